// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ballotstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielhkuo/quickly-vote/models"
)

// DefaultTimeout bounds every relay request.
const DefaultTimeout = 10 * time.Second

// RelayClient talks to the ballot relay server over HTTP.
type RelayClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

func NewRelayClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *RelayClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger.With("component", "relay-client"),
	}
}

// Put pins doc and returns its CID. The relay's answer must match the CID
// computed locally.
func (c *RelayClient) Put(ctx context.Context, doc models.BallotDocument) (string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return "", err
	}
	want, err := ContentID(data)
	if err != nil {
		return "", err
	}

	var resp models.PinResponse
	status, err := c.do(ctx, http.MethodPost, "/pin_vote", data, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", c.statusError("pin", status)
	}
	if resp.CID != want {
		return "", fmt.Errorf("relay returned cid %s, expected %s", resp.CID, want)
	}
	c.logger.Debug("ballot pinned", "cid", resp.CID, "name", resp.Name)
	return resp.CID, nil
}

func (c *RelayClient) Get(ctx context.Context, id string) (models.BallotDocument, error) {
	var resp struct {
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	status, err := c.do(ctx, http.MethodGet, "/retrieve/"+url.PathEscape(id), nil, &resp)
	if err != nil {
		return models.BallotDocument{}, err
	}
	if status != http.StatusOK {
		return models.BallotDocument{}, c.statusError("retrieve "+id, status)
	}
	doc, err := Unmarshal(resp.Data)
	if err != nil {
		return models.BallotDocument{}, err
	}
	if err := verify(id, doc); err != nil {
		return models.BallotDocument{}, err
	}
	return doc, nil
}

func (c *RelayClient) Delete(ctx context.Context, id string) error {
	status, err := c.do(ctx, http.MethodDelete, "/unpin/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return c.statusError("unpin "+id, status)
}

// DeleteAll asks the relay to drop every pinned document.
func (c *RelayClient) DeleteAll(ctx context.Context) (int, error) {
	var resp models.UnpinResponse
	status, err := c.do(ctx, http.MethodDelete, "/unpin", nil, &resp)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, c.statusError("unpin all", status)
	}
	return resp.Removed, nil
}

// do sends one request and decodes a 2xx JSON body into out. Transport
// failures and timeouts, including while reading the body, are
// ErrStorageUnavailable; only a complete body that does not decode is
// ErrMalformedDocument.
func (c *RelayClient) do(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", models.ErrStorageUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("%w: %s %s: reading body: %w", models.ErrStorageUnavailable, method, path, err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: undecodable relay response: %w", models.ErrMalformedDocument, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *RelayClient) statusError(op string, status int) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, op)
	case status >= 500:
		return fmt.Errorf("%w: %s: relay answered %d", models.ErrStorageUnavailable, op, status)
	}
	return fmt.Errorf("relay rejected %s: status %d", op, status)
}
