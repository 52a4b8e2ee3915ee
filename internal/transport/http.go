package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
)

const csrfCookieName = "csrfToken"

// Client is the HTTP implementation of Transport. It maintains the session
// (challenge login, CSRF token, optional JWT access token) and re-runs the
// login transparently once the session expires.
type Client struct {
	baseURL     string
	fingerprint string
	http        *http.Client
	decrypter   Decrypter
	log         *zap.Logger

	loggedIn    bool
	accessToken string
	tokenExp    time.Time
}

var _ Transport = (*Client)(nil)

// NewClient constructs a Client for the given server. The decrypter unlocks
// the login challenge; fingerprint identifies the acting key.
func NewClient(serverURL, fingerprint string, decrypter Decrypter, timeout time.Duration, log *zap.Logger) (*Client, error) {
	if serverURL == "" {
		return nil, &errs.ValidationError{Field: "server_url", Reason: "cannot be empty"}
	}
	if fingerprint == "" {
		return nil, &errs.ValidationError{Field: "fingerprint", Reason: "cannot be empty"}
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(serverURL, "/"),
		fingerprint: strings.ToUpper(strings.ReplaceAll(fingerprint, " ", "")),
		http:        &http.Client{Jar: jar, Timeout: timeout},
		decrypter:   decrypter,
		log:         log,
	}, nil
}

// Get issues an authenticated GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, http.MethodGet, path, query, nil)
	return body, err
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, http.MethodPost, path, nil, payload)
	return body, err
}

// Put issues an authenticated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, http.MethodPut, path, nil, payload)
	return body, err
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return body, err
}

// do performs one request and maps non-2xx responses to TransportError.
// The response body is returned raw; callers unwrap the server envelope.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (json.RawMessage, *http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.csrfToken(); tok != "" {
		req.Header.Set("X-CSRF-Token", tok)
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp, &errs.TransportError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   string(raw),
		}
	}
	return raw, resp, nil
}

// csrfToken returns the CSRF token cookie the server set during login, if any.
func (c *Client) csrfToken() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	return ""
}
