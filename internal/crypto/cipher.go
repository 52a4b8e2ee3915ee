// Package crypto defines the cipher seam used by the engine. Key material is
// opaque to everything above this interface.
package crypto

// Cipher encrypts per recipient and maintains a trust store of imported
// public keys. ImportAndTrust is idempotent: importing an already-trusted
// key returns its fingerprint unchanged.
type Cipher interface {
	// Encrypt encrypts plaintext for the recipient identified by a trusted
	// key fingerprint.
	Encrypt(plaintext, recipientFingerprint string) (string, error)

	// Decrypt decrypts a ciphertext addressed to the acting identity.
	Decrypt(ciphertext string) (string, error)

	// ImportAndTrust adds a public key to the trust store and returns its
	// fingerprint.
	ImportAndTrust(armoredKey string) (string, error)

	// Fingerprint returns the acting identity's own key fingerprint.
	Fingerprint() string
}
