// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/handlers"
	"github.com/danielhkuo/quickly-vote/middleware"
	"github.com/danielhkuo/quickly-vote/pinstore"
)

func NewRouter(store *pinstore.Store, cfg cliparse.Config, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	pinHandler := handlers.NewPinHandler(store, cfg)
	metrics := middleware.NewMetrics(reg)

	route := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(metrics.Wrap(h))
	}
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return route(middleware.RequireAPIKey(cfg.APIKey, h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Ballot documents (writes need the API key when configured)
	mux.HandleFunc("POST /pin_vote", protected(pinHandler.PinVote))
	mux.HandleFunc("GET /retrieve/{cid}", route(pinHandler.Retrieve))
	mux.HandleFunc("DELETE /unpin/{cid}", protected(pinHandler.Unpin))
	mux.HandleFunc("DELETE /unpin", protected(pinHandler.UnpinAll))
	mux.HandleFunc("GET /pins", route(pinHandler.ListPins))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("quickly-vote relay v1"))
	})

	return mux
}
