// Package auth verifies authorization PINs locally against a bcrypt hash.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoHash is returned by NewBcryptVerifier when no PIN hash is configured.
var ErrNoHash = errors.New("no PIN hash configured")

// BcryptVerifier implements service.Verifier for offline mode.
type BcryptVerifier struct {
	hash []byte
}

// NewBcryptVerifier parses a bcrypt hash produced by HashPIN.
func NewBcryptVerifier(hash string) (*BcryptVerifier, error) {
	if hash == "" {
		return nil, ErrNoHash
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid PIN hash: %w", err)
	}
	return &BcryptVerifier{hash: []byte(hash)}, nil
}

// Verify reports whether code matches the configured hash. A mismatch is not an error.
func (v *BcryptVerifier) Verify(ctx context.Context, code []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := bcrypt.CompareHashAndPassword(v.hash, code)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("failed to compare PIN: %w", err)
	}
}

// HashPIN returns the bcrypt hash stored in configuration under pin.hash.
func HashPIN(code []byte) (string, error) {
	defer clear(code)
	hash, err := bcrypt.GenerateFromPassword(code, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash PIN: %w", err)
	}
	return string(hash), nil
}
