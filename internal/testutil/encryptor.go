package testutil

import (
	"recipebox/internal/encryption"
	"recipebox/internal/recipebox"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() recipebox.Encryptor {
	return encryption.NewTestEncryptor()
}
