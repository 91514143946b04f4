// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/quickly-vote/ballotstore"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/pinstore"
	"github.com/danielhkuo/quickly-vote/testutil"
)

func newTestPinHandler(t *testing.T) (*PinHandler, *pinstore.Store) {
	t.Helper()
	_, store := testutil.SetupTestStore(t)
	return NewPinHandler(store, testutil.GetTestConfig()), store
}

// unknownCID is a well-formed cid that nothing pins
func unknownCID(t *testing.T) string {
	t.Helper()
	id, err := ballotstore.ContentID([]byte("nothing pinned here"))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestPinVote(t *testing.T) {
	h, store := newTestPinHandler(t)
	doc := testutil.TestBallot(testutil.Alice, 1, 2)

	req := testutil.MakeRequest("POST", "/pin_vote", doc, nil)
	w := httptest.NewRecorder()
	h.PinVote(w, req)

	testutil.AssertStatus(t, w, http.StatusCreated)

	var resp models.PinResponse
	testutil.AssertJSON(t, w, &resp)

	want, _ := ballotstore.DocumentCID(doc)
	if resp.CID != want {
		t.Errorf("Expected cid %s, got %s", want, resp.CID)
	}
	if resp.Name != doc.PinName() {
		t.Errorf("Expected name %s, got %s", doc.PinName(), resp.Name)
	}
	if _, err := store.Get(context.Background(), resp.CID); err != nil {
		t.Errorf("Document not stored: %v", err)
	}
}

func TestPinVote_Validation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{not json`},
		{"missing voter", `{"session":1,"optionIndex":0,"timestamp":"2025-03-01T12:00:00Z"}`},
		{"bad voter", `{"voter":"alice","session":1,"optionIndex":0,"timestamp":"2025-03-01T12:00:00Z"}`},
		{"negative option", `{"voter":"0xab8483f64d9c6d1ecf9b849ae677dd3315835cb2","session":1,"optionIndex":-1,"timestamp":"2025-03-01T12:00:00Z"}`},
		{"missing timestamp", `{"voter":"0xab8483f64d9c6d1ecf9b849ae677dd3315835cb2","session":1,"optionIndex":0}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestPinHandler(t)
			req := testutil.MakeRequest("POST", "/pin_vote", tc.body, nil)
			w := httptest.NewRecorder()
			h.PinVote(w, req)

			testutil.AssertStatus(t, w, http.StatusBadRequest)
		})
	}
}

func TestRetrieve(t *testing.T) {
	h, store := newTestPinHandler(t)
	doc := testutil.TestBallot(testutil.Bob, 3, 0)
	pin, err := store.Pin(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/retrieve/"+pin.CID, nil)
		req.SetPathValue("cid", pin.CID)
		w := httptest.NewRecorder()
		h.Retrieve(w, req)

		testutil.AssertStatus(t, w, http.StatusOK)

		var resp models.RetrieveResponse
		testutil.AssertJSON(t, w, &resp)
		got, err := ballotstore.Unmarshal(resp.Data)
		if err != nil {
			t.Fatalf("Returned data does not decode: %v", err)
		}
		if got != doc {
			t.Errorf("Expected %+v, got %+v", doc, got)
		}
		// the bytes must hash back to the requested cid
		if id, _ := ballotstore.ContentID(resp.Data); id != pin.CID {
			t.Errorf("Returned bytes hash to %s, expected %s", id, pin.CID)
		}
	})

	t.Run("unknown cid", func(t *testing.T) {
		id := unknownCID(t)
		req := httptest.NewRequest("GET", "/retrieve/"+id, nil)
		req.SetPathValue("cid", id)
		w := httptest.NewRecorder()
		h.Retrieve(w, req)

		testutil.AssertStatus(t, w, http.StatusNotFound)
	})

	t.Run("invalid cid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/retrieve/xyz", nil)
		req.SetPathValue("cid", "xyz")
		w := httptest.NewRecorder()
		h.Retrieve(w, req)

		testutil.AssertStatus(t, w, http.StatusBadRequest)
	})
}

func TestUnpin(t *testing.T) {
	h, store := newTestPinHandler(t)
	pin, err := store.Pin(context.Background(), testutil.TestBallot(testutil.Carol, 1, 1))
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("DELETE", "/unpin/"+pin.CID, nil)
	req.SetPathValue("cid", pin.CID)
	w := httptest.NewRecorder()
	h.Unpin(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)

	// Second unpin finds nothing
	req = httptest.NewRequest("DELETE", "/unpin/"+pin.CID, nil)
	req.SetPathValue("cid", pin.CID)
	w = httptest.NewRecorder()
	h.Unpin(w, req)

	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestUnpinAllAndList(t *testing.T) {
	h, store := newTestPinHandler(t)
	ctx := context.Background()
	store.Pin(ctx, testutil.TestBallot(testutil.Alice, 1, 0))
	store.Pin(ctx, testutil.TestBallot(testutil.Bob, 1, 1))
	store.Pin(ctx, testutil.TestBallot(testutil.Alice, 2, 0))

	t.Run("list all", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListPins(w, httptest.NewRequest("GET", "/pins", nil))

		testutil.AssertStatus(t, w, http.StatusOK)
		var resp models.ListPinsResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Count != 3 {
			t.Errorf("Expected 3 pins, got %d", resp.Count)
		}
	})

	t.Run("list by session", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListPins(w, httptest.NewRequest("GET", "/pins?session=2", nil))

		testutil.AssertStatus(t, w, http.StatusOK)
		var resp models.ListPinsResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Count != 1 {
			t.Errorf("Expected 1 pin in session 2, got %d", resp.Count)
		}
	})

	t.Run("bad session", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListPins(w, httptest.NewRequest("GET", "/pins?session=-1", nil))

		testutil.AssertStatus(t, w, http.StatusBadRequest)
	})

	t.Run("unpin all", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.UnpinAll(w, httptest.NewRequest("DELETE", "/unpin", nil))

		testutil.AssertStatus(t, w, http.StatusOK)
		var resp models.UnpinResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Removed != 3 {
			t.Errorf("Expected 3 removed, got %d", resp.Removed)
		}
	})
}
