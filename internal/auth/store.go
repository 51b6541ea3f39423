package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// TokenBundle is the persisted credential record: the identity token issued
// by the hosted UI plus the email claim cached at login time. It is owned
// exclusively by the TokenStore; every other component reads it through the
// store.
type TokenBundle struct {
	// IDToken is the signed JWT asserting the user's identity.
	IDToken string `json:"id_token"`
	// Email is the address decoded from the token when it was saved.
	Email string `json:"email,omitempty"`
}

// TokenStore persists the token bundle as a JSON file across runs. All
// reads fail closed: malformed or unreadable state is reported as an absent
// bundle, never as an error the caller has to untangle.
type TokenStore struct {
	path string

	// now is replaceable in tests.
	now func() time.Time
}

// NewTokenStore creates a store rooted at the given file path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path, now: time.Now}
}

// Path returns the credential file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Save overwrites any existing bundle on disk. The containing directory is
// created on demand and the file is written with owner-only permissions.
func (s *TokenStore) Save(bundle *TokenBundle) error {
	if bundle == nil || bundle.IDToken == "" {
		return fmt.Errorf("refusing to save empty token bundle")
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create credential directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize token bundle: %w", err)
	}

	log.Debugf("saving credentials to %s", s.path)
	if err = os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token bundle: %w", err)
	}
	return nil
}

// Load returns the persisted bundle, or nil when it is absent or
// unusable. A file containing non-JSON, JSON without an id_token, or a
// token that is not three base64url segments all count as absent.
func (s *TokenStore) Load() *TokenBundle {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debugf("token bundle unreadable: %v", err)
		}
		return nil
	}

	var bundle TokenBundle
	if err = json.Unmarshal(data, &bundle); err != nil {
		log.Warnf("token bundle is not valid JSON, treating as logged out: %v", err)
		return nil
	}
	if bundle.IDToken == "" {
		return nil
	}
	if _, err = ParseIdentityToken(bundle.IDToken); err != nil {
		log.Warnf("stored identity token is malformed, treating as logged out: %v", err)
		return nil
	}
	return &bundle
}

// Clear removes the persisted bundle. Clearing an already-absent bundle is
// not an error.
func (s *TokenStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear token bundle: %w", err)
	}
	return nil
}

// IsValid reports whether a structurally well-formed bundle is present and
// its identity token expires strictly in the future. This is the single
// validity authority for the whole CLI; every login/refresh decision goes
// through it.
func (s *TokenStore) IsValid() bool {
	claims := s.Claims()
	return claims != nil && claims.ExpiresAfter(s.now())
}

// Claims decodes the stored identity token without verifying its
// signature. Returns nil on any decode failure.
func (s *TokenStore) Claims() *IdentityClaims {
	bundle := s.Load()
	if bundle == nil {
		return nil
	}
	claims, err := ParseIdentityToken(bundle.IDToken)
	if err != nil {
		return nil
	}
	return claims
}
