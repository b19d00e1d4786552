package recipebox

import "io"

// Encryptor encrypts remote documents and assets at rest.
// Encryption uses the public key only. Decryption requires unlocking the
// private key with a passphrase, producing a DecryptionContext.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `recipebox keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a context for the session.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for a session.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
