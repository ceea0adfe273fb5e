package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrPINNotConfigured indicates that no override PIN hash was provisioned.
	ErrPINNotConfigured = errors.New("auth: override pin not configured")
	// ErrPINMismatch indicates that the supplied PIN does not match.
	ErrPINMismatch = errors.New("auth: override pin mismatch")
)

// PINVerifier checks staff override PINs against a provisioned SHA-256 digest.
// The digest is supplied out of band, typically via Secret Manager.
type PINVerifier struct {
	digest []byte
}

// NewPINVerifier parses the hex-encoded SHA-256 digest of the override PIN.
func NewPINVerifier(hexDigest string) (*PINVerifier, error) {
	hexDigest = strings.TrimSpace(strings.ToLower(hexDigest))
	if hexDigest == "" {
		return nil, ErrPINNotConfigured
	}
	digest, err := hex.DecodeString(hexDigest)
	if err != nil {
		return nil, errors.New("auth: override pin hash is not valid hex")
	}
	if len(digest) != sha256.Size {
		return nil, errors.New("auth: override pin hash must be a sha-256 digest")
	}
	return &PINVerifier{digest: digest}, nil
}

// HashPIN returns the hex-encoded SHA-256 digest for a PIN, for provisioning.
func HashPIN(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// Verify compares the supplied PIN in constant time.
func (v *PINVerifier) Verify(pin string) error {
	if v == nil || len(v.digest) == 0 {
		return ErrPINNotConfigured
	}
	sum := sha256.Sum256([]byte(pin))
	if subtle.ConstantTimeCompare(sum[:], v.digest) != 1 {
		return ErrPINMismatch
	}
	return nil
}
