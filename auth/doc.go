// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides the relay's API key handling.

# API Keys

The relay accepts writes only from holders of a shared bearer key when one
is configured:

	key, err := auth.GenerateAPIKey()           // 32 random bytes, base64url
	err := auth.CheckRequest(r.Header.Get("Authorization"), cfg.APIKey)

CheckRequest is a no-op for an empty configured key. Otherwise the header
must be "Bearer <key>" and the key is compared in constant time.

# IP Hashing

Request logs carry a salted hash of the client address rather than the
address itself:

	hash := auth.HashIP(ipAddress, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
