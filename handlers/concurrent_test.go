// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/testutil"
)

// TestConcurrentPins verifies that simultaneous pins from different voters
// are all stored exactly once
func TestConcurrentPins(t *testing.T) {
	h, store := newTestPinHandler(t)

	numVoters := 10
	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func(voterIdx int) {
			defer wg.Done()

			var voter common.Address
			voter[19] = byte(voterIdx + 1)
			doc := testutil.TestBallot(voter, 1, voterIdx%3)

			req := testutil.MakeRequest("POST", "/pin_vote", doc, nil)
			w := httptest.NewRecorder()
			h.PinVote(w, req)

			if w.Code == http.StatusCreated {
				successCount.Add(1)
			} else {
				t.Errorf("Voter %d failed: %d - %s", voterIdx, w.Code, w.Body.String())
			}
		}(i)
	}

	wg.Wait()

	if int(successCount.Load()) != numVoters {
		t.Errorf("Expected %d successful pins, got %d", numVoters, successCount.Load())
	}

	pins, err := store.List(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pins) != numVoters {
		t.Errorf("Expected %d pins, got %d", numVoters, len(pins))
	}
}

// TestConcurrentDuplicatePins verifies that the same document pinned many
// times at once yields one row and one cid
func TestConcurrentDuplicatePins(t *testing.T) {
	h, store := newTestPinHandler(t)
	doc := testutil.TestBallot(testutil.Dave, 7, 1)

	numRequests := 8
	cids := make([]string, numRequests)
	var wg sync.WaitGroup

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			req := testutil.MakeRequest("POST", "/pin_vote", doc, nil)
			w := httptest.NewRecorder()
			h.PinVote(w, req)

			if w.Code != http.StatusCreated {
				t.Errorf("Request %d failed: %d - %s", idx, w.Code, w.Body.String())
				return
			}
			var resp models.PinResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Errorf("Request %d: bad response: %v", idx, err)
				return
			}
			cids[idx] = resp.CID
		}(i)
	}

	wg.Wait()

	for i := 1; i < numRequests; i++ {
		if cids[i] != cids[0] {
			t.Errorf("Request %d got cid %s, expected %s", i, cids[i], cids[0])
		}
	}

	pins, err := store.List(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pins) != 1 {
		t.Errorf("Expected exactly 1 pin, got %d", len(pins))
	}
}
