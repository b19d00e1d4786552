package app

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"recipebox/internal/config"
	"recipebox/internal/encryption"
)

// PassphraseEnv overrides the interactive passphrase prompt.
const PassphraseEnv = "RECIPEBOX_PASSPHRASE"

// ReadPassphrase returns $RECIPEBOX_PASSPHRASE when set, otherwise prompts
// on the terminal without echo.
func ReadPassphrase(prompt string) (string, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal: set %s", PassphraseEnv)
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// InitKeys generates this device's key pair, sealing the private key with passphrase.
func InitKeys(cfg config.EncryptionConfig, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}

// recipientAdder is implemented by encryptors that can seal for several devices.
type recipientAdder interface {
	AddRecipient(publicKey string) error
	Recipients() ([]string, error)
}

// AddRecipient lets another device read documents this device writes.
func AddRecipient(cfg config.EncryptionConfig, publicKey string) error {
	adder, err := newRecipientAdder(cfg)
	if err != nil {
		return err
	}
	return adder.AddRecipient(publicKey)
}

// Recipients lists the public keys documents are sealed for.
func Recipients(cfg config.EncryptionConfig) ([]string, error) {
	adder, err := newRecipientAdder(cfg)
	if err != nil {
		return nil, err
	}
	return adder.Recipients()
}

func newRecipientAdder(cfg config.EncryptionConfig) (recipientAdder, error) {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	adder, ok := enc.(recipientAdder)
	if !ok {
		return nil, errors.New("encryption type does not support extra recipients")
	}
	return adder, nil
}
