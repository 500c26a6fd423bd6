package audio_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"taunote/internal/media/audio"
)

func TestPreprocessBuildsNormalizedCommand(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "work", "audio.wav")
	var gotName string
	var gotArgs []string
	err := audio.Preprocess(context.Background(), "in.m4a", dest, audio.Options{
		FFmpegBinary: "/opt/ffmpeg",
		Normalize:    true,
		Runner: func(_ context.Context, name string, args ...string) error {
			gotName = name
			gotArgs = args
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if gotName != "/opt/ffmpeg" {
		t.Fatalf("unexpected binary %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"-i in.m4a", "-af loudnorm=I=-16:TP=-1.5,silenceremove=start_periods=1:start_threshold=-50dB", "-ar 16000", "-ac 1", "-sample_fmt s16"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
	if gotArgs[len(gotArgs)-1] != dest {
		t.Fatalf("expected destination last, got %q", gotArgs[len(gotArgs)-1])
	}
}

func TestBuildArgsWithoutNormalization(t *testing.T) {
	args := audio.BuildArgs("in.wav", "out.wav", false)
	if slices.Contains(args, "-af") {
		t.Fatalf("did not expect filter chain: %v", args)
	}
	if !slices.Contains(args, "pcm_s16le") {
		t.Fatalf("expected pcm codec: %v", args)
	}
}

func TestPreprocessWrapsRunnerError(t *testing.T) {
	boom := errors.New("boom")
	err := audio.Preprocess(context.Background(), "in.wav", filepath.Join(t.TempDir(), "out.wav"), audio.Options{
		Runner: func(context.Context, string, ...string) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped runner error, got %v", err)
	}
}

func TestPreprocessRequiresPaths(t *testing.T) {
	if err := audio.Preprocess(context.Background(), "", "out.wav", audio.Options{}); err == nil {
		t.Fatal("expected error for empty source")
	}
	if err := audio.Preprocess(context.Background(), "in.wav", " ", audio.Options{}); err == nil {
		t.Fatal("expected error for empty destination")
	}
}
