package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taunote/internal/config"
	"taunote/internal/history"
	"taunote/internal/logging"
	"taunote/internal/media/audio"
	"taunote/internal/media/ffprobe"
	"taunote/internal/pipeline"
	"taunote/internal/services"
	"taunote/internal/testsupport"
	"taunote/internal/transcript"
)

type fakeTranscriber struct {
	lang   string
	called bool
	tr     transcript.Transcript
	err    error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath, _ string, lang string) (transcript.Transcript, error) {
	f.called = true
	f.lang = lang
	if _, err := os.Stat(audioPath); err != nil {
		return transcript.Transcript{}, err
	}
	return f.tr, f.err
}

type fakeAligner struct {
	called bool
}

func (f *fakeAligner) Align(_ context.Context, _, _ string, tr transcript.Transcript) (transcript.Transcript, error) {
	f.called = true
	for i := range tr.Segments {
		seg := &tr.Segments[i]
		seg.Words = []transcript.Word{{Text: seg.Text, Start: transcript.Seconds(seg.Start), End: transcript.Seconds(seg.End)}}
	}
	return tr, nil
}

type fakeDiarizer struct {
	min, max int
	turns    []transcript.SpeakerTurn
	err      error
}

func (f *fakeDiarizer) Diarize(_ context.Context, _, _ string, minSpeakers, maxSpeakers int) ([]transcript.SpeakerTurn, error) {
	f.min, f.max = minSpeakers, maxSpeakers
	return f.turns, f.err
}

type harness struct {
	cfg         *config.Config
	store       *history.Store
	input       string
	transcriber *fakeTranscriber
	aligner     *fakeAligner
	diarizer    *fakeDiarizer
	probe       ffprobe.Result
	model       string
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	input := filepath.Join(testsupport.BaseDir(cfg), "meeting.m4a")
	testsupport.WriteWAV(t, input, 64)
	return &harness{
		cfg:   cfg,
		store: testsupport.MustOpenStore(t, cfg),
		input: input,
		transcriber: &fakeTranscriber{tr: transcript.Transcript{
			Language: "en",
			Segments: []transcript.Segment{
				{Start: 0, End: 2, Text: " Hello there. "},
				{Start: 2, End: 4, Text: "General Kenobi!"},
			},
		}},
		aligner: &fakeAligner{},
		diarizer: &fakeDiarizer{turns: []transcript.SpeakerTurn{
			{Start: 0, End: 2.1, Speaker: "SPEAKER_00"},
			{Start: 2.1, End: 4, Speaker: "SPEAKER_01"},
		}},
		probe: ffprobe.Result{
			Streams: []ffprobe.Stream{{Index: 0, CodecType: "audio", SampleRate: "48000", Channels: 2}},
			Format:  ffprobe.Format{Duration: "4.000000"},
		},
	}
}

func (h *harness) runner(t *testing.T) *pipeline.Runner {
	t.Helper()
	runner, err := pipeline.NewRunner(h.cfg, logging.NewNop(),
		pipeline.WithStore(h.store),
		pipeline.WithBackendFactory(func(_ *config.Config, model string, _ *slog.Logger) (pipeline.Backends, error) {
			h.model = model
			b := pipeline.Backends{Transcriber: h.transcriber}
			if h.cfg.Alignment.Enabled {
				b.Aligner = h.aligner
			}
			if h.cfg.Diarization.Enabled {
				b.Diarizer = h.diarizer
			}
			return b, nil
		}),
		pipeline.WithProber(func(context.Context, string, string) (ffprobe.Result, error) {
			return h.probe, nil
		}),
		pipeline.WithPreprocessor(func(_ context.Context, _, dest string, _ audio.Options) error {
			return os.WriteFile(dest, []byte("RIFF"), 0o644)
		}),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}

func TestRunWritesSpeakerLabelledTranscript(t *testing.T) {
	h := newHarness(t)
	output := filepath.Join(testsupport.BaseDir(h.cfg), "out", "nested", "transcript.txt")

	result, err := h.runner(t).Run(context.Background(), pipeline.Request{InputPath: h.input, OutputPath: output, Model: "large-v3"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "[SPEAKER_00] Hello there.\n[SPEAKER_01] General Kenobi!\n"
	if string(data) != want {
		t.Fatalf("unexpected transcript:\n%s", data)
	}
	if h.model != "large-v3" || result.Model != "large-v3" {
		t.Fatalf("expected model override, got factory=%q result=%q", h.model, result.Model)
	}
	if !h.aligner.called || result.AlignmentSkipped || result.DiarizationSkipped {
		t.Fatalf("expected alignment and diarization to run: %+v", result)
	}
	if h.transcriber.lang != "" {
		t.Fatalf("expected language detection, got %q", h.transcriber.lang)
	}
	if len(result.Speakers) != 2 || result.Transcript.Duration != 4 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, seg := range result.Transcript.Segments {
		for _, w := range seg.Words {
			if w.Speaker != seg.Speaker {
				t.Fatalf("word %q speaker %q, segment %q", w.Text, w.Speaker, seg.Speaker)
			}
		}
	}

	run, err := h.store.GetRun(context.Background(), result.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v %v", run, err)
	}
	if run.Status != history.StatusCompleted || run.Segments != 2 || run.Speakers != 2 || run.Model != "large-v3" {
		t.Fatalf("unexpected run record %+v", run)
	}
	if !strings.Contains(run.TranscriptJSON, "General Kenobi!") {
		t.Fatalf("expected transcript JSON in history, got %q", run.TranscriptJSON)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.WorkDir, result.RunID)); !os.IsNotExist(err) {
		t.Fatalf("expected work dir to be removed, stat err=%v", err)
	}
}

func TestRunDiarizationFailureLeavesNoTranscript(t *testing.T) {
	h := newHarness(t)
	h.diarizer.err = services.Wrap(services.ErrConfiguration, "whisperx", "diarize", "token rejected", nil)
	output := filepath.Join(testsupport.BaseDir(h.cfg), "out.txt")

	result, err := h.runner(t).Run(context.Background(), pipeline.Request{InputPath: h.input, OutputPath: output})
	if err == nil {
		t.Fatal("expected diarization error")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker to survive wrapping, got %v", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Fatalf("expected no transcript, stat err=%v", statErr)
	}
	run, _ := h.store.GetRun(context.Background(), result.RunID)
	if run == nil || run.Status != history.StatusFailed || run.ErrorKind != "configuration" {
		t.Fatalf("unexpected run record %+v", run)
	}
}

func TestRunRejectsInputWithoutAudio(t *testing.T) {
	h := newHarness(t)
	h.probe = ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video"}}}

	_, err := h.runner(t).Run(context.Background(), pipeline.Request{InputPath: h.input, OutputPath: filepath.Join(t.TempDir(), "t.txt")})
	if !errors.Is(err, services.ErrValidation) || !errors.Is(err, ffprobe.ErrNoAudio) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.transcriber.called {
		t.Fatal("transcriber should not run without audio")
	}
}

func TestRunMissingInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.runner(t).Run(context.Background(), pipeline.Request{InputPath: filepath.Join(t.TempDir(), "nope.wav")})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunSkipsAlignmentWithoutDefaultModel(t *testing.T) {
	h := newHarness(t)
	h.transcriber.tr.Language = "sw"

	result, err := h.runner(t).Run(context.Background(), pipeline.Request{InputPath: h.input, OutputPath: filepath.Join(t.TempDir(), "t.txt"), Language: "SW"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.transcriber.lang != "sw" {
		t.Fatalf("expected normalized language, got %q", h.transcriber.lang)
	}
	if h.aligner.called || !result.AlignmentSkipped {
		t.Fatal("expected alignment to be skipped")
	}
	for _, seg := range result.Transcript.Segments {
		if len(seg.Words) == 0 {
			t.Fatalf("expected estimated words for %q", seg.Text)
		}
	}
}

func TestRunFormatFollowsExtensionAndKeepsAudio(t *testing.T) {
	h := newHarness(t, testsupport.WithoutDiarization())
	h.cfg.Audio.KeepIntermediate = true
	dir := t.TempDir()
	output := filepath.Join(dir, "meeting.srt")

	result, err := h.runner(t).Run(context.Background(), pipeline.Request{InputPath: h.input, OutputPath: output})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Format != transcript.FormatSRT || !result.DiarizationSkipped {
		t.Fatalf("unexpected result %+v", result)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "00:00:00,000 --> 00:00:02,000") || !strings.Contains(string(data), "[unknown]") {
		t.Fatalf("unexpected srt:\n%s", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "preprocessed.wav")); err != nil {
		t.Fatalf("expected preprocessed audio copy: %v", err)
	}
}

func TestRunSpeakerBoundsFromConfigAndRequest(t *testing.T) {
	h := newHarness(t)
	h.cfg.Diarization.MinSpeakers = 2
	h.cfg.Diarization.MaxSpeakers = 3

	if _, err := h.runner(t).Run(context.Background(), pipeline.Request{InputPath: h.input, OutputPath: filepath.Join(t.TempDir(), "a.txt"), MaxSpeakers: 5}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.diarizer.min != 2 || h.diarizer.max != 5 {
		t.Fatalf("unexpected bounds %d..%d", h.diarizer.min, h.diarizer.max)
	}

	_, err := h.runner(t).Run(context.Background(), pipeline.Request{InputPath: h.input, OutputPath: filepath.Join(t.TempDir(), "b.txt"), MinSpeakers: 4, MaxSpeakers: 2})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for inverted bounds, got %v", err)
	}
}

func TestRunCanceledIsRecorded(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.transcriber.err = context.Canceled
	cancel()

	result, err := h.runner(t).Run(ctx, pipeline.Request{InputPath: h.input, OutputPath: filepath.Join(t.TempDir(), "c.txt")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if result.RunID != "" {
		run, _ := h.store.GetRun(context.Background(), result.RunID)
		if run == nil || run.ErrorKind != "canceled" {
			t.Fatalf("unexpected run record %+v", run)
		}
	}
}
