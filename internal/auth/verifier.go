package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VerifierStash holds the PKCE code verifier between the moment the browser
// is sent to the hosted UI and the moment the callback exchanges the code.
// The verifier is consumed exactly once: Take removes it from disk before
// returning it, so a replayed callback cannot reuse it. It is never sent to
// the backend API, only to the identity provider during the exchange.
type VerifierStash struct {
	path string
}

// NewVerifierStash creates a stash rooted at the given file path.
func NewVerifierStash(path string) *VerifierStash {
	return &VerifierStash{path: path}
}

// Put stores the verifier, replacing any leftover from an abandoned flow.
func (v *VerifierStash) Put(verifier string) error {
	if verifier == "" {
		return fmt.Errorf("refusing to stash empty verifier")
	}
	if dir := filepath.Dir(v.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create stash directory: %w", err)
		}
	}
	if err := os.WriteFile(v.path, []byte(verifier), 0600); err != nil {
		return fmt.Errorf("failed to stash verifier: %w", err)
	}
	return nil
}

// Take returns the stashed verifier and deletes it. A second Take, or a
// Take with nothing stashed, returns an error.
func (v *VerifierStash) Take() (string, error) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return "", fmt.Errorf("no pending login: %w", err)
	}
	if err = os.Remove(v.path); err != nil {
		return "", fmt.Errorf("failed to consume verifier: %w", err)
	}
	verifier := strings.TrimSpace(string(data))
	if verifier == "" {
		return "", fmt.Errorf("stashed verifier is empty")
	}
	return verifier, nil
}

// Discard drops any stashed verifier without returning it.
func (v *VerifierStash) Discard() {
	_ = os.Remove(v.path)
}
