package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mintToken builds an unsigned JWT with the given claims. The signature
// segment is garbage on purpose; the store never verifies it.
func mintToken(t *testing.T, claims map[string]any) string {
	t.Helper()

	header, _ := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return fmt.Sprintf("%s.%s.%s",
		base64.RawURLEncoding.EncodeToString(header),
		base64.RawURLEncoding.EncodeToString(payload),
		base64.RawURLEncoding.EncodeToString([]byte("sig")))
}

func storeAt(t *testing.T, contents []byte) *TokenStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tokens.json")
	if contents != nil {
		if err := os.WriteFile(path, contents, 0600); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	return NewTokenStore(path)
}

func bundleJSON(t *testing.T, token string) []byte {
	t.Helper()
	data, _ := json.Marshal(TokenBundle{IDToken: token, Email: "reader@example.com"})
	return data
}

func TestTokenStoreIsValid(t *testing.T) {
	t.Parallel()

	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name     string
		contents []byte
		want     bool
	}{
		{
			"absent storage",
			nil,
			false,
		},
		{
			"non-JSON storage",
			[]byte("definitely not json"),
			false,
		},
		{
			"token with two segments",
			bundleJSON(t, "header.payload"),
			false,
		},
		{
			"expired token",
			bundleJSON(t, mintToken(t, map[string]any{"exp": past, "email": "reader@example.com"})),
			false,
		},
		{
			"token without exp",
			bundleJSON(t, mintToken(t, map[string]any{"email": "reader@example.com"})),
			false,
		},
		{
			"fresh token",
			bundleJSON(t, mintToken(t, map[string]any{"exp": future, "email": "reader@example.com"})),
			true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := storeAt(t, tt.contents)
			if got := store.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenStoreLoadFailsClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		contents []byte
	}{
		{"absent", nil},
		{"non-JSON", []byte("{broken")},
		{"empty id_token", []byte(`{"id_token":""}`)},
		{"malformed token", bundleJSON(t, "only-one-segment")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := storeAt(t, tt.contents).Load(); got != nil {
				t.Errorf("Load() = %+v, want nil", got)
			}
		})
	}
}

func TestTokenStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := storeAt(t, nil)
	token := mintToken(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix(), "email": "reader@example.com"})

	if err := store.Save(&TokenBundle{IDToken: token, Email: "reader@example.com"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := store.Load()
	if loaded == nil {
		t.Fatal("Load() = nil after Save")
	}
	if loaded.IDToken != token || loaded.Email != "reader@example.com" {
		t.Errorf("Load() = %+v, want saved bundle", loaded)
	}

	claims := store.Claims()
	if claims == nil {
		t.Fatal("Claims() = nil for well-formed token")
	}
	if claims.UserEmail() != "reader@example.com" {
		t.Errorf("UserEmail() = %q, want reader@example.com", claims.UserEmail())
	}
}

func TestTokenStoreClearIdempotent(t *testing.T) {
	t.Parallel()

	store := storeAt(t, bundleJSON(t, mintToken(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()})))

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
	if store.Load() != nil {
		t.Error("Load() after Clear() should be nil")
	}
}

func TestClaimsEmailFallback(t *testing.T) {
	t.Parallel()

	token := mintToken(t, map[string]any{
		"exp":              time.Now().Add(time.Hour).Unix(),
		"cognito:username": "federated-user",
	})
	claims, err := ParseIdentityToken(token)
	if err != nil {
		t.Fatalf("ParseIdentityToken() error = %v", err)
	}
	if got := claims.UserEmail(); got != "federated-user" {
		t.Errorf("UserEmail() = %q, want cognito:username fallback", got)
	}
}
