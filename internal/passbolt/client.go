// Package passbolt is a typed client for the Passbolt JSON API, built on the
// transport seam. It owns exact-name entity location on top of the server's
// substring search and decodes every response into validated model types.
package passbolt

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/transport"
)

// Client issues typed calls against one server.
type Client struct {
	t   transport.Transport
	log *zap.Logger
}

var _ API = (*Client)(nil)

// New constructs a Client over the given transport.
func New(t transport.Transport, log *zap.Logger) *Client {
	return &Client{t: t, log: log}
}

// envelope is the standard response wrapper: {"header": ..., "body": ...}.
type envelope struct {
	Header struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"header"`
	Body json.RawMessage `json:"body"`
}

// unwrap extracts the body of a response envelope.
func unwrap(raw json.RawMessage) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if len(env.Body) == 0 {
		return nil, fmt.Errorf("response envelope has no body (status %q)", env.Header.Status)
	}
	return env.Body, nil
}

// decodeBody unwraps the envelope and decodes its body into out.
func decodeBody(raw json.RawMessage, out any) error {
	body, err := unwrap(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
