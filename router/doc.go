// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the ballot relay.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(store, cfg, registry)

# Endpoints

Health and metrics:

	GET /health
	GET /metrics

Ballot documents (writes require "Authorization: Bearer <key>" when the
relay has an API key):

	POST   /pin_vote        - Store a ballot document
	GET    /retrieve/{cid}  - Fetch a stored document
	DELETE /unpin/{cid}     - Remove one document
	DELETE /unpin           - Remove every document
	GET    /pins            - List pins (?session=n)

Every document route is wrapped with request logging and the Prometheus
request metrics, labelled by route pattern.
*/
package router
