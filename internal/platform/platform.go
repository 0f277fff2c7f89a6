// Package platform implements HTTP clients for the remote analytics
// platform: the identity endpoint, the SQL warehouse statement API, and the
// conversational analytics (Genie) API. All clients are stateless; the
// caller supplies the credential on every request.
package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voc-dashboard/internal/domain"
)

const defaultRequestTimeout = 30 * time.Second

// Client holds the shared HTTP transport and base URL for all platform
// endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a platform client for the given workspace URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

// doJSON sends a request with an optional JSON body and decodes the JSON
// response into out. Responses are mapped onto the domain error taxonomy:
// 401/403 become AuthError, 4xx become ValidationError, everything else
// (network faults included) becomes TransportError.
func (c *Client) doJSON(ctx context.Context, method, path string, cred domain.Credential, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ErrTransport("platform request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return domain.ErrAuth("platform rejected credential (%d): %s", resp.StatusCode, msg)
		case resp.StatusCode < 500:
			return domain.ErrValidation("platform rejected request (%d): %s", resp.StatusCode, msg)
		default:
			return domain.ErrTransport("platform error (%d): %s", resp.StatusCode, msg)
		}
	}

	if out == nil {
		return nil
	}
	return unmarshalBody(resp.Body, out)
}

func unmarshalBody(r io.Reader, out interface{}) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return domain.ErrTransport("decode platform response: %v", err)
	}
	return nil
}

// readErrorMessage extracts a human-readable message from an error response
// body, tolerating both {"message": ...} and plain-text bodies.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
