package encryption

import (
	"bytes"
	"fmt"
	"io"

	"recipebox/internal/recipebox"
)

// testHeader marks data sealed by TestEncryptor.
var testHeader = []byte("RBXENC\x00\x01")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. It prepends a
// fixed header on encryption and strips it on decryption, so sealed documents
// differ from plaintext without any key material.
type TestEncryptor struct {
	setupCalled bool
	passphrase  string
}

var _ recipebox.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// Setup records the passphrase; later Unlock calls must match it.
func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	e.passphrase = passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

// Unlock accepts any passphrase until Setup has been called.
func (e *TestEncryptor) Unlock(passphrase string) (recipebox.DecryptionContext, error) {
	if e.setupCalled && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ recipebox.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
