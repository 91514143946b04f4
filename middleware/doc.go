// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /pins", middleware.WithLogging(handler))

Each request gets an X-Request-ID (taken from the request or generated) that
is echoed in the response and in both log lines. The client address is
logged as a salted hash.

# API Key

Mutating routes are wrapped with the relay key check:

	middleware.RequireAPIKey(cfg.APIKey, handler)

An empty key disables the check.

# Metrics

	m := middleware.NewMetrics(prometheus.DefaultRegisterer)
	mux.HandleFunc("GET /retrieve/{cid}", m.Wrap(handler))

Counts requests by route pattern and status code and times them.

# CORS Middleware

Open CORS for the browser client:

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

	var doc models.BallotDocument
	if err := middleware.ParseJSONBody(r, &doc); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
*/
package middleware
