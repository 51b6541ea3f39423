package subscription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thenewspaper/newsroom-cli/internal/api"
	"github.com/thenewspaper/newsroom-cli/internal/auth"
	"github.com/thenewspaper/newsroom-cli/internal/config"
)

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()

	header, _ := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	payload, _ := json.Marshal(map[string]any{"exp": exp.Unix(), "email": "reader@example.com"})
	return fmt.Sprintf("%s.%s.%s",
		base64.RawURLEncoding.EncodeToString(header),
		base64.RawURLEncoding.EncodeToString(payload),
		base64.RawURLEncoding.EncodeToString([]byte("sig")))
}

// seedStore writes a bundle whose token expires at the given time. A zero
// time leaves the store empty.
func seedStore(t *testing.T, exp time.Time) *auth.TokenStore {
	t.Helper()

	tokenFile := filepath.Join(t.TempDir(), "tokens.json")
	store := auth.NewTokenStore(tokenFile)
	if !exp.IsZero() {
		data, _ := json.Marshal(auth.TokenBundle{IDToken: mintToken(t, exp), Email: "reader@example.com"})
		if err := os.WriteFile(tokenFile, data, 0600); err != nil {
			t.Fatalf("seed token store: %v", err)
		}
	}
	return store
}

func newTestEngine(t *testing.T, baseURL string, exp time.Time) (*Engine, *auth.TokenStore) {
	t.Helper()

	store := seedStore(t, exp)
	client := api.NewClient(&config.Config{APIBaseURL: baseURL}, store)
	return NewEngine(client, store), store
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestRefreshActiveRecordsRenewal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(jsonHandler(http.StatusOK, `{"status":"active","renews":1893456000000}`))
	defer server.Close()

	engine, _ := newTestEngine(t, server.URL, time.Now().Add(time.Hour))
	snap := engine.Refresh(context.Background())

	if snap.Status != StatusActive {
		t.Fatalf("status = %s, want %s", snap.Status, StatusActive)
	}
	if snap.RenewsAt == nil {
		t.Fatal("RenewsAt = nil, want recorded renewal timestamp")
	}
	if want := time.UnixMilli(1893456000000); !snap.RenewsAt.Equal(want) {
		t.Errorf("RenewsAt = %v, want %v", snap.RenewsAt, want)
	}
}

func TestRefreshNonActiveShapesAreInactive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"past_due", `{"status":"past_due"}`},
		{"trialing", `{"status":"trialing"}`},
		{"canceled", `{"status":"canceled"}`},
		{"missing status", `{"renews":1893456000000}`},
		{"unexpected value", `{"status":"ACTIVE"}`},
		{"not an object", `"active"`},
		{"not JSON at all", `status: active`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(jsonHandler(http.StatusOK, tt.body))
			defer server.Close()

			engine, store := newTestEngine(t, server.URL, time.Now().Add(time.Hour))
			snap := engine.Refresh(context.Background())

			if snap.Status != StatusInactive {
				t.Errorf("status = %s, want %s (only literal \"active\" grants entitlement)", snap.Status, StatusInactive)
			}
			if store.Load() == nil {
				t.Error("tokens should be kept for non-active answers")
			}
		})
	}
}

func TestRefreshUnauthorizedClearsTokens(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(jsonHandler(http.StatusUnauthorized, ""))
	defer server.Close()

	engine, store := newTestEngine(t, server.URL, time.Now().Add(time.Hour))
	snap := engine.Refresh(context.Background())

	if snap.Status != StatusLoggedOut {
		t.Errorf("status = %s, want %s", snap.Status, StatusLoggedOut)
	}
	if store.Load() != nil {
		t.Error("store should be cleared after a 401")
	}
}

func TestRefreshTransientErrorKeepsTokens(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(jsonHandler(http.StatusInternalServerError, "boom"))
	defer server.Close()

	engine, store := newTestEngine(t, server.URL, time.Now().Add(time.Hour))
	snap := engine.Refresh(context.Background())

	if snap.Status != StatusError {
		t.Errorf("status = %s, want %s", snap.Status, StatusError)
	}
	if store.Load() == nil {
		t.Error("tokens must survive transient failures so the user can retry")
	}
}

func TestRefreshWithoutValidTokenSkipsNetwork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		exp  time.Time
	}{
		{"absent bundle", time.Time{}},
		{"expired token", time.Now().Add(-time.Hour)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var requests atomic.Int64
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
			}))
			defer server.Close()

			engine, store := newTestEngine(t, server.URL, tt.exp)
			snap := engine.Refresh(context.Background())

			if snap.Status != StatusLoggedOut {
				t.Errorf("status = %s, want %s", snap.Status, StatusLoggedOut)
			}
			if store.Load() != nil {
				t.Error("store should be cleared")
			}
			if got := requests.Load(); got != 0 {
				t.Errorf("request count = %d, want no network call", got)
			}
		})
	}
}

func TestRefreshIdempotent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(jsonHandler(http.StatusOK, `{"status":"active","renews":1893456000000}`))
	defer server.Close()

	engine, store := newTestEngine(t, server.URL, time.Now().Add(time.Hour))

	first := engine.Refresh(context.Background())
	before, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read token file: %v", err)
	}

	second := engine.Refresh(context.Background())
	after, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("token file mutated away: %v", err)
	}

	if first.Status != second.Status {
		t.Errorf("second refresh status = %s, want %s", second.Status, first.Status)
	}
	if string(before) != string(after) {
		t.Error("second refresh mutated the token store")
	}
}

func TestRefreshPublishesToSinks(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(jsonHandler(http.StatusOK, `{"status":"active"}`))
	defer server.Close()

	engine, _ := newTestEngine(t, server.URL, time.Now().Add(time.Hour))

	var published []Snapshot
	engine.AddSink(SinkFunc(func(s Snapshot) { published = append(published, s) }))

	engine.Refresh(context.Background())
	if len(published) != 1 {
		t.Fatalf("published %d snapshots, want 1 per refresh", len(published))
	}
	if published[0].Status != StatusActive {
		t.Errorf("published status = %s, want %s", published[0].Status, StatusActive)
	}
	if published[0].Email != "reader@example.com" {
		t.Errorf("published email = %q, want claims email", published[0].Email)
	}
}
