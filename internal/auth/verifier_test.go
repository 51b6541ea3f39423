package auth

import (
	"path/filepath"
	"testing"
)

func TestVerifierStashTakeConsumesExactlyOnce(t *testing.T) {
	t.Parallel()

	stash := NewVerifierStash(filepath.Join(t.TempDir(), "pkce-verifier"))

	if err := stash.Put("verifier-value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := stash.Take()
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if got != "verifier-value" {
		t.Errorf("Take() = %q, want verifier-value", got)
	}

	if _, err = stash.Take(); err == nil {
		t.Error("second Take() should fail, verifier must be single-use")
	}
}

func TestVerifierStashEmpty(t *testing.T) {
	t.Parallel()

	stash := NewVerifierStash(filepath.Join(t.TempDir(), "pkce-verifier"))
	if _, err := stash.Take(); err == nil {
		t.Error("Take() with nothing stashed should fail")
	}

	if err := stash.Put(""); err == nil {
		t.Error("Put(\"\") should be rejected")
	}
}

func TestVerifierStashPutReplaces(t *testing.T) {
	t.Parallel()

	stash := NewVerifierStash(filepath.Join(t.TempDir(), "pkce-verifier"))
	if err := stash.Put("abandoned-flow"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := stash.Put("current-flow"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := stash.Take()
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if got != "current-flow" {
		t.Errorf("Take() = %q, want the most recent verifier", got)
	}
}
