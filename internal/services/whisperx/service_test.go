package whisperx_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"taunote/internal/services"
	"taunote/internal/services/whisperx"
	"taunote/internal/transcript"
)

type stubCall struct {
	env  []string
	name string
	args []string
}

// stubRunner records calls and writes the canned payload for each stage to
// the --out path, mimicking the helper.
type stubRunner struct {
	calls    []stubCall
	payloads map[string]string
	err      error
}

func (s *stubRunner) run(_ context.Context, env []string, name string, args ...string) error {
	s.calls = append(s.calls, stubCall{env: env, name: name, args: args})
	if s.err != nil {
		return s.err
	}
	stage := args[slices.Index(args, "python")+2]
	out := argValue(args, "--out")
	return os.WriteFile(out, []byte(s.payloads[stage]), 0o644)
}

func argValue(args []string, flag string) string {
	idx := slices.Index(args, flag)
	if idx < 0 || idx+1 >= len(args) {
		return ""
	}
	return args[idx+1]
}

func hasEnv(env []string, entry string) bool {
	return slices.Contains(env, entry)
}

func TestTranscribeBuildsCommandAndDecodesSegments(t *testing.T) {
	work := t.TempDir()
	stub := &stubRunner{payloads: map[string]string{
		whisperx.StageTranscribe: `{"language":"en","duration":3.5,"segments":[{"start":0,"end":1.5,"text":" hello"}]}`,
	}}
	svc := whisperx.NewService(whisperx.Config{Model: "large-v3", Device: "cuda", HFToken: "hf_secret"}, nil)
	svc.WithCommandRunner(stub.run)

	tr, err := svc.Transcribe(context.Background(), filepath.Join(work, "audio.wav"), work, "English")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Language != "en" || tr.Duration != 3.5 || len(tr.Segments) != 1 || tr.Segments[0].Text != " hello" {
		t.Fatalf("unexpected transcript %+v", tr)
	}

	call := stub.calls[0]
	if call.name != "uv" {
		t.Fatalf("expected uv binary, got %q", call.name)
	}
	joined := strings.Join(call.args, " ")
	for _, want := range []string{
		"run --no-project",
		"--index-url https://download.pytorch.org/whl/cu128",
		"--extra-index-url https://pypi.org/simple",
		"--with whisperx",
		"--model large-v3",
		"--batch-size 8",
		"--language en",
		"--device cuda",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
	if strings.Contains(joined, "hf_secret") {
		t.Fatal("token must never appear on the command line")
	}
	if hasEnv(call.env, "HF_TOKEN=hf_secret") {
		t.Fatal("transcribe stage must not receive the token")
	}
	script := call.args[slices.Index(call.args, "python")+1]
	if _, err := os.Stat(script); err != nil {
		t.Fatalf("expected helper script on disk: %v", err)
	}
}

func TestTranscribeOmitsLanguageForAutoDetect(t *testing.T) {
	work := t.TempDir()
	stub := &stubRunner{payloads: map[string]string{whisperx.StageTranscribe: `{"language":"fr","segments":[]}`}}
	svc := whisperx.NewService(whisperx.Config{}, nil)
	svc.WithCommandRunner(stub.run)

	tr, err := svc.Transcribe(context.Background(), filepath.Join(work, "audio.wav"), work, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Language != "fr" {
		t.Fatalf("expected detected language, got %q", tr.Language)
	}
	args := stub.calls[0].args
	if slices.Contains(args, "--language") {
		t.Fatalf("did not expect --language: %v", args)
	}
	if slices.Contains(args, "--index-url") {
		t.Fatalf("did not expect CUDA index for auto device: %v", args)
	}
	if argValue(args, "--model") != "small" {
		t.Fatalf("expected default model, got %q", argValue(args, "--model"))
	}
}

func TestAlignWritesSegmentsAndDecodesWords(t *testing.T) {
	work := t.TempDir()
	stub := &stubRunner{payloads: map[string]string{
		whisperx.StageAlign: `{"language":"en","segments":[{"start":0,"end":1,"text":"hi 42","words":[{"word":"hi","start":0,"end":0.4,"score":0.9},{"word":"42"}]}]}`,
	}}
	svc := whisperx.NewService(whisperx.Config{AlignModel: "custom/wav2vec2"}, nil)
	svc.WithCommandRunner(stub.run)

	input := transcript.Transcript{Language: "en", Segments: []transcript.Segment{{Start: 0, End: 1, Text: "hi 42"}}}
	tr, err := svc.Align(context.Background(), filepath.Join(work, "audio.wav"), work, input)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	words := tr.Segments[0].Words
	if len(words) != 2 || !words[0].Timed() || words[1].Timed() {
		t.Fatalf("unexpected words %+v", words)
	}

	args := stub.calls[0].args
	if argValue(args, "--align-model") != "custom/wav2vec2" {
		t.Fatalf("expected align model override: %v", args)
	}
	segmentsPath := argValue(args, "--segments")
	data, err := os.ReadFile(segmentsPath)
	if err != nil {
		t.Fatalf("read segments input: %v", err)
	}
	if !strings.Contains(string(data), `"text":"hi 42"`) {
		t.Fatalf("unexpected segments input %s", data)
	}
}

func TestAlignRequiresLanguage(t *testing.T) {
	svc := whisperx.NewService(whisperx.Config{}, nil)
	_, err := svc.Align(context.Background(), "audio.wav", t.TempDir(), transcript.Transcript{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDiarizePassesTokenThroughEnvironment(t *testing.T) {
	work := t.TempDir()
	stub := &stubRunner{payloads: map[string]string{
		whisperx.StageDiarize: `{"turns":[{"start":0,"end":2,"speaker":"SPEAKER_00"},{"start":2,"end":3,"speaker":"SPEAKER_01"}]}`,
	}}
	svc := whisperx.NewService(whisperx.Config{HFToken: "hf_secret"}, nil)
	svc.WithCommandRunner(stub.run)

	turns, err := svc.Diarize(context.Background(), filepath.Join(work, "audio.wav"), work, 2, 3)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(turns) != 2 || turns[1].Speaker != "SPEAKER_01" {
		t.Fatalf("unexpected turns %+v", turns)
	}
	call := stub.calls[0]
	if !hasEnv(call.env, "HF_TOKEN=hf_secret") {
		t.Fatal("expected token in environment")
	}
	if !hasEnv(call.env, "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1") && os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		t.Fatal("expected torch weights override in environment")
	}
	if strings.Contains(strings.Join(call.args, " "), "hf_secret") {
		t.Fatal("token must never appear on the command line")
	}
	if argValue(call.args, "--min-speakers") != "2" || argValue(call.args, "--max-speakers") != "3" {
		t.Fatalf("expected speaker bounds: %v", call.args)
	}
}

func TestDiarizeWithoutTokenIsConfigurationError(t *testing.T) {
	svc := whisperx.NewService(whisperx.Config{}, nil)
	_, err := svc.Diarize(context.Background(), "audio.wav", t.TempDir(), 0, 0)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStageFailureIsExternalToolError(t *testing.T) {
	stub := &stubRunner{err: errors.New("exit status 1")}
	svc := whisperx.NewService(whisperx.Config{}, nil)
	svc.WithCommandRunner(stub.run)

	_, err := svc.Transcribe(context.Background(), "audio.wav", t.TempDir(), "")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
