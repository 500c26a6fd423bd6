package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taunote/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.OpenPath(filepath.Join(t.TempDir(), "data", "history.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateFinishAndGetRun(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, history.NewRun{InputPath: "/in/meeting.m4a", OutputPath: "tmp/transcript.txt", Format: "txt", Model: "small", Backend: "whisperx"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != history.StatusRunning || run.ID == "" || run.FinishedAt != nil {
		t.Fatalf("unexpected new run %+v", run)
	}

	if err := store.FinishRun(ctx, run.ID, history.Outcome{Language: "en", Segments: 12, Speakers: 2, AudioSeconds: 61.5, TranscriptJSON: `{"segments":[]}`}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := store.GetRun(ctx, run.ShortID())
	if err != nil {
		t.Fatalf("GetRun by prefix: %v", err)
	}
	if got == nil || got.ID != run.ID {
		t.Fatalf("expected run %s, got %+v", run.ID, got)
	}
	if got.Status != history.StatusCompleted || got.Segments != 12 || got.Speakers != 2 || got.Language != "en" {
		t.Fatalf("unexpected finished run %+v", got)
	}
	if got.OutputPath != "tmp/transcript.txt" {
		t.Fatalf("expected output path to be kept, got %q", got.OutputPath)
	}
	if got.FinishedAt == nil || got.Elapsed() < 0 {
		t.Fatalf("expected finish time, got %+v", got.FinishedAt)
	}
}

func TestFailRunRecordsKind(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	run, err := store.CreateRun(ctx, history.NewRun{InputPath: "a.wav"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := store.FailRun(ctx, run.ID, "configuration", "token missing"); err != nil {
		t.Fatalf("FailRun: %v", err)
	}
	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != history.StatusFailed || got.ErrorKind != "configuration" || got.ErrorMessage != "token missing" {
		t.Fatalf("unexpected failed run %+v", got)
	}
	if err := store.FailRun(ctx, "missing", "x", "y"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestGetRunMissingAndAmbiguous(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	got, err := store.GetRun(ctx, "nope")
	if err != nil || got != nil {
		t.Fatalf("expected nil run, got %+v, %v", got, err)
	}

	// Insert runs until two share a first hex digit.
	seen := map[byte]bool{}
	var shared byte
	for i := 0; i < 40 && shared == 0; i++ {
		run, err := store.CreateRun(ctx, history.NewRun{InputPath: "x.wav"})
		if err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		if seen[run.ID[0]] {
			shared = run.ID[0]
		}
		seen[run.ID[0]] = true
	}
	if shared == 0 {
		t.Skip("no shared prefix generated")
	}
	if _, err := store.GetRun(ctx, string(shared)); !errors.Is(err, history.ErrAmbiguousID) {
		t.Fatalf("expected ambiguous id error, got %v", err)
	}
}

func TestListRunsNewestFirstWithLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	var ids []string
	for _, name := range []string{"a.wav", "b.wav", "c.wav"} {
		run, err := store.CreateRun(ctx, history.NewRun{InputPath: name})
		if err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected order: %v", runs)
	}
	all, err := store.ListRuns(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d (%v)", len(all), err)
	}
}

func TestMarkInterrupted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	run, _ := store.CreateRun(ctx, history.NewRun{InputPath: "a.wav"})
	done, _ := store.CreateRun(ctx, history.NewRun{InputPath: "b.wav"})
	if err := store.FinishRun(ctx, done.ID, history.Outcome{}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	n, err := store.MarkInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	got, _ := store.GetRun(ctx, run.ID)
	if got.Status != history.StatusFailed || got.ErrorKind != "interrupted" {
		t.Fatalf("unexpected run %+v", got)
	}
}

func TestNotesCascadeOnDelete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	run, _ := store.CreateRun(ctx, history.NewRun{InputPath: "a.wav"})

	if _, err := store.AddNote(ctx, history.Note{RunID: run.ID, Kind: "summary", Model: "m", Content: "first"}); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if _, err := store.AddNote(ctx, history.Note{RunID: run.ID, Kind: "email", Content: "second"}); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	notes, err := store.ListNotes(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 2 || notes[0].Kind != "summary" || notes[1].Model != "" {
		t.Fatalf("unexpected notes %+v", notes)
	}

	removed, err := store.DeleteRun(ctx, run.ID)
	if err != nil || !removed {
		t.Fatalf("DeleteRun = %v, %v", removed, err)
	}
	notes, err = store.ListNotes(ctx, run.ID)
	if err != nil || len(notes) != 0 {
		t.Fatalf("expected notes to cascade, got %d (%v)", len(notes), err)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := store.CreateRun(context.Background(), history.NewRun{InputPath: "a.wav"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	_ = store.Close()

	reopened, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	runs, err := reopened.ListRuns(context.Background(), 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected persisted run, got %d (%v)", len(runs), err)
	}
}
