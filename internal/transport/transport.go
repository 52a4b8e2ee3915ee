// Package transport provides the narrow HTTP seam between the engine and a
// Passbolt server: four verbs over a base URL, returning decoded JSON bodies
// or a TransportError on any non-2xx response.
package transport

import (
	"context"
	"encoding/json"
	"net/url"
)

// Transport issues requests against the server. Paths are relative to the
// configured base URL. Implementations return the raw JSON response document
// (the server envelope included) and surface non-2xx responses as
// *errs.TransportError.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string) (json.RawMessage, error)
}

// Decrypter is the slice of the cipher the session handshake needs: it only
// ever decrypts the server's verification token.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}
