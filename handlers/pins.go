// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielhkuo/quickly-vote/ballotstore"
	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/middleware"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/pinstore"
)

type PinHandler struct {
	store *pinstore.Store
	cfg   cliparse.Config
}

func NewPinHandler(store *pinstore.Store, cfg cliparse.Config) *PinHandler {
	return &PinHandler{store: store, cfg: cfg}
}

// PinVote handles POST /pin_vote
func (h *PinHandler) PinVote(w http.ResponseWriter, r *http.Request) {
	var doc models.BallotDocument
	if err := middleware.ParseJSONBody(r, &doc); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	pin, err := h.store.Pin(r.Context(), doc)
	if errors.Is(err, models.ErrMalformedDocument) {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to pin document", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to pin document")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.PinResponse{
		CID:     pin.CID,
		Name:    pin.Name,
		Size:    pin.Size,
		Message: "Pin successful",
	})
}

// Retrieve handles GET /retrieve/{cid}
func (h *PinHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	cid, err := ballotstore.ParseCID(r.PathValue("cid"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid cid")
		return
	}

	data, err := h.store.Get(r.Context(), cid)
	if errors.Is(err, models.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		slog.Error("failed to retrieve document", "cid", cid, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve document")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.RetrieveResponse{
		Data:    data,
		Message: "Retrieve successful",
	})
}

// Unpin handles DELETE /unpin/{cid}
func (h *PinHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	cid, err := ballotstore.ParseCID(r.PathValue("cid"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid cid")
		return
	}

	removed, err := h.store.Unpin(r.Context(), cid)
	if err != nil {
		slog.Error("failed to unpin document", "cid", cid, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to unpin document")
		return
	}
	if !removed {
		middleware.ErrorResponse(w, http.StatusNotFound, "Document not found")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.UnpinResponse{
		Removed: 1,
		Message: "Unpin successful",
	})
}

// UnpinAll handles DELETE /unpin
func (h *PinHandler) UnpinAll(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.UnpinAll(r.Context())
	if err != nil {
		slog.Error("failed to unpin all documents", "removed", removed, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to unpin documents")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.UnpinResponse{
		Removed: removed,
		Message: "All pins removed",
	})
}

// ListPins handles GET /pins, optionally filtered with ?session=n
func (h *PinHandler) ListPins(w http.ResponseWriter, r *http.Request) {
	var session *uint64
	if s := r.URL.Query().Get("session"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "session must be a non-negative integer")
			return
		}
		session = &n
	}

	pins, err := h.store.List(r.Context(), session)
	if err != nil {
		slog.Error("failed to list pins", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListPinsResponse{
		Pins:  pins,
		Count: len(pins),
	})
}
