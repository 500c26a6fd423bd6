package testsupport

import (
	"context"
	"testing"

	"taunote/internal/config"
	"taunote/internal/history"
)

// MustOpenStore opens the history store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun records a running run for the given input.
func NewRun(t testing.TB, store *history.Store, input string) *history.Run {
	t.Helper()

	run, err := store.CreateRun(context.Background(), history.NewRun{InputPath: input, Model: "small", Backend: "whisperx"})
	if err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}
