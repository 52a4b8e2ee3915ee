// Package agecipher implements the Cipher seam with filippo.io/age X25519
// keys. Recipients are addressed by a fingerprint derived from their public
// key; ciphertexts are age-armored so they survive JSON transport.
package agecipher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/mabihan/passbolt-reconcile/internal/crypto"
)

// fingerprintLen matches the 40-hex-digit shape of an OpenPGP v4 fingerprint
// so server-side key records and local ones agree on format.
const fingerprintLen = 40

// Keyring holds the acting identity and the trust store of imported public
// keys. The trust store lives in memory only; the identity file on disk is
// protected with a passphrase.
type Keyring struct {
	identity *age.X25519Identity
	trusted  map[string]*age.X25519Recipient
}

var _ crypto.Cipher = (*Keyring)(nil)

// New wraps an identity. The identity's own public key is trusted up front
// so self-addressed secrets need no separate import.
func New(identity *age.X25519Identity) *Keyring {
	k := &Keyring{
		identity: identity,
		trusted:  map[string]*age.X25519Recipient{},
	}
	k.trusted[KeyFingerprint(identity.Recipient())] = identity.Recipient()
	return k
}

// Setup generates a fresh identity and writes it to path encrypted with the
// passphrase. Returns the new keyring and the public recipient string.
func Setup(path, passphrase string) (*Keyring, string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, "", fmt.Errorf("generating identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, "", fmt.Errorf("creating key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, "", fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, "", fmt.Errorf("deriving passphrase recipient: %w", err)
	}
	w, err := age.Encrypt(f, recipient)
	if err != nil {
		return nil, "", fmt.Errorf("encrypting identity: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return nil, "", fmt.Errorf("writing identity: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalizing identity file: %w", err)
	}
	return New(identity), identity.Recipient().String(), nil
}

// Load decrypts a passphrase-protected identity file written by Setup.
func Load(path, passphrase string) (*Keyring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	defer f.Close()

	id, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase identity: %w", err)
	}
	r, err := age.Decrypt(f, id)
	if err != nil {
		return nil, fmt.Errorf("unlocking identity file: %w", err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	identity, err := parseIdentity(string(raw))
	if err != nil {
		return nil, err
	}
	return New(identity), nil
}

// Fingerprint returns the acting identity's key fingerprint.
func (k *Keyring) Fingerprint() string {
	return KeyFingerprint(k.identity.Recipient())
}

// Recipient returns the acting identity's public key string.
func (k *Keyring) Recipient() string {
	return k.identity.Recipient().String()
}

// ImportAndTrust parses a public key block and records it in the trust
// store. Re-importing a known key is a no-op returning the same fingerprint.
func (k *Keyring) ImportAndTrust(armoredKey string) (string, error) {
	recipient, err := parseRecipient(armoredKey)
	if err != nil {
		return "", err
	}
	fpr := KeyFingerprint(recipient)
	k.trusted[fpr] = recipient
	return fpr, nil
}

// Encrypt encrypts plaintext for one trusted recipient, producing an armored
// ciphertext.
func (k *Keyring) Encrypt(plaintext, recipientFingerprint string) (string, error) {
	recipient, ok := k.trusted[strings.ToUpper(recipientFingerprint)]
	if !ok {
		return "", fmt.Errorf("no trusted key for fingerprint %s", recipientFingerprint)
	}
	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)
	w, err := age.Encrypt(aw, recipient)
	if err != nil {
		return "", fmt.Errorf("encrypting for %s: %w", recipientFingerprint, err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("encrypting for %s: %w", recipientFingerprint, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing ciphertext: %w", err)
	}
	if err := aw.Close(); err != nil {
		return "", fmt.Errorf("finalizing armor: %w", err)
	}
	return buf.String(), nil
}

// Decrypt decrypts an armored ciphertext addressed to the acting identity.
func (k *Keyring) Decrypt(ciphertext string) (string, error) {
	r, err := age.Decrypt(armor.NewReader(strings.NewReader(ciphertext)), k.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading plaintext: %w", err)
	}
	return string(plain), nil
}

// KeyFingerprint derives the fingerprint of a public key: uppercase hex of
// its SHA-256, truncated to the OpenPGP fingerprint length.
func KeyFingerprint(recipient *age.X25519Recipient) string {
	sum := sha256.Sum256([]byte(recipient.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:fingerprintLen]
}

// parseRecipient extracts the first public key from a key block, ignoring
// blank lines and comments.
func parseRecipient(block string) (*age.X25519Recipient, error) {
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		recipient, err := age.ParseX25519Recipient(line)
		if err != nil {
			return nil, fmt.Errorf("parsing public key: %w", err)
		}
		return recipient, nil
	}
	return nil, fmt.Errorf("no public key found in key block")
}

// parseIdentity extracts the first secret key from an identity file body.
func parseIdentity(body string) (*age.X25519Identity, error) {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parsing identity: %w", err)
		}
		return identity, nil
	}
	return nil, fmt.Errorf("no identity found in identity file")
}
