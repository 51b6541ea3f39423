package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGeneratePKCECodes(t *testing.T) {
	t.Parallel()

	pkce, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes() error = %v", err)
	}

	if len(pkce.CodeVerifier) < 43 {
		t.Errorf("verifier length = %d, want >= 43", len(pkce.CodeVerifier))
	}

	hash := sha256.Sum256([]byte(pkce.CodeVerifier))
	want := base64.RawURLEncoding.EncodeToString(hash[:])
	if pkce.CodeChallenge != want {
		t.Errorf("challenge = %q, want SHA-256 derivation %q", pkce.CodeChallenge, want)
	}

	for _, s := range []string{pkce.CodeVerifier, pkce.CodeChallenge} {
		if strings.ContainsAny(s, "+/=") {
			t.Errorf("%q contains non-URL-safe characters", s)
		}
	}
}

func TestGeneratePKCECodesUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		pkce, err := GeneratePKCECodes()
		if err != nil {
			t.Fatalf("GeneratePKCECodes() error = %v", err)
		}
		if seen[pkce.CodeVerifier] {
			t.Fatalf("verifier %q repeated", pkce.CodeVerifier)
		}
		seen[pkce.CodeVerifier] = true
	}
}
