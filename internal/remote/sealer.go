package remote

import (
	"bytes"
	"encoding/json"
	"fmt"

	"recipebox/internal/model"
	"recipebox/internal/recipebox"
)

// Sealer encrypts recipe documents and assets before they leave the device
// and decrypts them on the way back. A nil *Sealer stores plaintext.
type Sealer struct {
	enc recipebox.Encryptor
	dec recipebox.DecryptionContext
}

// NewSealer returns a Sealer. dec may be nil for a write-only session, in
// which case reading an encrypted document fails.
func NewSealer(enc recipebox.Encryptor, dec recipebox.DecryptionContext) *Sealer {
	return &Sealer{enc: enc, dec: dec}
}

func (s *Sealer) seal(data []byte) ([]byte, error) {
	if s == nil {
		return data, nil
	}
	var buf bytes.Buffer
	if err := s.enc.Encrypt(bytes.NewReader(data), &buf); err != nil {
		return nil, fmt.Errorf("encrypting document: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Sealer) open(data []byte) ([]byte, error) {
	if s == nil {
		return data, nil
	}
	if s.dec == nil {
		return nil, fmt.Errorf("decrypting document: %w", recipebox.ErrUnauthorized)
	}
	var buf bytes.Buffer
	if err := s.dec.Decrypt(bytes.NewReader(data), &buf); err != nil {
		return nil, fmt.Errorf("decrypting document: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeRecipe serializes and seals a recipe document.
func (s *Sealer) encodeRecipe(r *model.Recipe) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding recipe %s: %w", r.ID, err)
	}
	return s.seal(data)
}

// decodeRecipe opens and parses a recipe document.
func (s *Sealer) decodeRecipe(data []byte) (*model.Recipe, error) {
	plain, err := s.open(data)
	if err != nil {
		return nil, err
	}
	var r model.Recipe
	if err := json.Unmarshal(plain, &r); err != nil {
		return nil, fmt.Errorf("decoding recipe: %w", err)
	}
	return &r, nil
}
