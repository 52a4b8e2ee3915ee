package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	loginPath  = "/auth/login.json"
	verifyPath = "/auth/verify.json"

	authTokenHeader = "X-GPGAuth-User-Auth-Token"
)

// ensureSession logs in on first use and again once the access token expires.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.loggedIn && (c.accessToken == "" || time.Now().Before(c.tokenExp)) {
		return nil
	}
	return c.login(ctx)
}

// login runs the two-step challenge handshake: the server answers the key id
// with a token encrypted for our key; decrypting and returning it proves key
// ownership. A follow-up read of /users/me.json primes the CSRF cookie.
func (c *Client) login(ctx context.Context) error {
	_, resp, err := c.do(ctx, http.MethodPost, loginPath, nil, map[string]any{
		"gpg_auth": map[string]string{"keyid": c.fingerprint},
	})
	if err != nil && resp == nil {
		return err
	}
	// Stage one replies with the challenge in a header; its status code is
	// not meaningful on every server version.
	if resp == nil || resp.Header.Get(authTokenHeader) == "" {
		return fmt.Errorf("login: server sent no verification token for %s", c.fingerprint)
	}

	challenge, err := decodeChallenge(resp.Header.Get(authTokenHeader))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	token, err := c.decrypter.Decrypt(challenge)
	if err != nil {
		return fmt.Errorf("login: decrypt verification token: %w", err)
	}

	body, _, err := c.do(ctx, http.MethodPost, loginPath, nil, map[string]any{
		"gpg_auth": map[string]string{
			"keyid":             c.fingerprint,
			"user_token_result": token,
		},
	})
	if err != nil {
		return fmt.Errorf("login: verify token: %w", err)
	}
	c.adoptAccessToken(body)

	c.loggedIn = true
	// The CSRF cookie is issued on the first authenticated read.
	if _, _, err := c.do(ctx, http.MethodGet, "/users/me.json", nil, nil); err != nil {
		c.loggedIn = false
		return fmt.Errorf("login: prime csrf token: %w", err)
	}
	c.log.Info("session established", zap.String("fingerprint", c.fingerprint))
	return nil
}

// adoptAccessToken records a JWT access token when the server issues one, so
// session expiry can be read from the token instead of guessed.
func (c *Client) adoptAccessToken(body json.RawMessage) {
	var env struct {
		Body struct {
			AccessToken string `json:"access_token"`
		} `json:"body"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Body.AccessToken == "" {
		return
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(env.Body.AccessToken, &claims); err != nil {
		c.log.Warn("server issued an unparseable access token; falling back to cookie session")
		return
	}
	c.accessToken = env.Body.AccessToken
	if claims.ExpiresAt != nil {
		c.tokenExp = claims.ExpiresAt.Time
	} else {
		c.tokenExp = time.Now().Add(15 * time.Minute)
	}
}

// decodeChallenge reverses the URL-encoding the server applies to the
// armored token header.
func decodeChallenge(header string) (string, error) {
	unquoted, err := url.QueryUnescape(header)
	if err != nil {
		return "", fmt.Errorf("unescape verification token: %w", err)
	}
	return strings.ReplaceAll(unquoted, `\+`, " "), nil
}

// ServerKey is the server's advertised OpenPGP identity.
type ServerKey struct {
	Fingerprint string `json:"fingerprint"`
	KeyData     string `json:"keydata"`
}

// VerifyServerKey fetches the server's public key so callers can import and
// trust it before the first login.
func (c *Client) VerifyServerKey(ctx context.Context) (ServerKey, error) {
	body, _, err := c.do(ctx, http.MethodGet, verifyPath, nil, nil)
	if err != nil {
		return ServerKey{}, err
	}
	var env struct {
		Body ServerKey `json:"body"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ServerKey{}, fmt.Errorf("decode server key: %w", err)
	}
	return env.Body, nil
}
