package auth

import (
	"errors"
	"testing"
)

func TestPINVerifier(t *testing.T) {
	verifier, err := NewPINVerifier(HashPIN("4812"))
	if err != nil {
		t.Fatalf("NewPINVerifier returned error: %v", err)
	}

	if err := verifier.Verify("4812"); err != nil {
		t.Errorf("expected matching pin to verify, got %v", err)
	}
	if err := verifier.Verify("0000"); !errors.Is(err, ErrPINMismatch) {
		t.Errorf("expected ErrPINMismatch, got %v", err)
	}
}

func TestNewPINVerifierRejectsBadDigests(t *testing.T) {
	if _, err := NewPINVerifier(""); !errors.Is(err, ErrPINNotConfigured) {
		t.Errorf("expected ErrPINNotConfigured for empty digest, got %v", err)
	}
	if _, err := NewPINVerifier("not-hex"); err == nil {
		t.Error("expected error for non-hex digest")
	}
	if _, err := NewPINVerifier("abcd"); err == nil {
		t.Error("expected error for truncated digest")
	}
}

func TestNilPINVerifier(t *testing.T) {
	var verifier *PINVerifier
	if err := verifier.Verify("1234"); !errors.Is(err, ErrPINNotConfigured) {
		t.Errorf("expected ErrPINNotConfigured, got %v", err)
	}
}
