package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"taunote/internal/config"
)

func clearTokenEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"HUGGINGFACE_TOKEN", "HUGGING_FACE_HUB_TOKEN", "HF_TOKEN", "TAUNOTE_LLM_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearTokenEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "taunote")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.HistoryPath() != filepath.Join(wantData, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.HistoryPath())
	}
	if cfg.Transcription.Model != "small" {
		t.Fatalf("expected small model default, got %q", cfg.Transcription.Model)
	}
	if cfg.Transcription.BatchSize != 8 {
		t.Fatalf("expected batch size 8, got %d", cfg.Transcription.BatchSize)
	}
	if !cfg.Diarization.Enabled || cfg.Diarization.Backend != config.BackendWhisperX {
		t.Fatalf("unexpected diarization defaults: %+v", cfg.Diarization)
	}
	if cfg.Output.UnknownLabel != "unknown" {
		t.Fatalf("unexpected unknown label: %q", cfg.Output.UnknownLabel)
	}
	if cfg.Diarization.HFToken != "" {
		t.Fatalf("expected empty token, got %q", cfg.Diarization.HFToken)
	}
	if err := cfg.RequireHFToken(); err == nil {
		t.Fatal("expected missing token to be reported")
	}
}

func TestLoadReadsTokenFromEnvironmentInOrder(t *testing.T) {
	clearTokenEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HF_TOKEN", "hf-fallback")
	t.Setenv("HUGGINGFACE_TOKEN", "hf-primary")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Diarization.HFToken != "hf-primary" {
		t.Fatalf("expected HUGGINGFACE_TOKEN to win, got %q", cfg.Diarization.HFToken)
	}
	if err := cfg.RequireHFToken(); err != nil {
		t.Fatalf("RequireHFToken returned error: %v", err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearTokenEnv(t)
	t.Setenv("HOME", t.TempDir())
	os.Unsetenv("HUGGINGFACE_TOKEN")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("HUGGINGFACE_TOKEN=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Diarization.HFToken != "from-dotenv" {
		t.Fatalf("expected token from .env, got %q", cfg.Diarization.HFToken)
	}
}

func TestLoadCustomConfig(t *testing.T) {
	clearTokenEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "taunote.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": "~/notes",
		},
		"transcription": map[string]any{
			"model":  "large-v3",
			"device": "CUDA",
		},
		"diarization": map[string]any{
			"hf_token":     "file-token",
			"min_speakers": 2,
			"max_speakers": 4,
		},
		"output": map[string]any{
			"format": "SRT",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "notes") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Transcription.Device != config.DeviceCUDA {
		t.Fatalf("expected device to be lowercased, got %q", cfg.Transcription.Device)
	}
	if cfg.ComputeType() != "float16" {
		t.Fatalf("expected float16 on cuda, got %q", cfg.ComputeType())
	}
	if cfg.Output.Format != config.FormatSRT {
		t.Fatalf("unexpected format: %q", cfg.Output.Format)
	}
	if cfg.Diarization.HFToken != "file-token" {
		t.Fatalf("expected token from file, got %q", cfg.Diarization.HFToken)
	}
}

func TestComputeTypeFollowsDevice(t *testing.T) {
	cfg := config.Default()
	if got := cfg.ComputeType(); got != "auto" {
		t.Fatalf("expected auto for auto device, got %q", got)
	}
	cfg.Transcription.Device = config.DeviceCPU
	if got := cfg.ComputeType(); got != "int8" {
		t.Fatalf("expected int8 on cpu, got %q", got)
	}
	cfg.Transcription.ComputeType = "float32"
	if got := cfg.ComputeType(); got != "float32" {
		t.Fatalf("expected explicit compute type, got %q", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"backend", func(c *config.Config) { c.Transcription.Backend = "vosk" }, "transcription.backend"},
		{"device", func(c *config.Config) { c.Transcription.Device = "tpu" }, "transcription.device"},
		{"speakers", func(c *config.Config) { c.Diarization.MinSpeakers = 5; c.Diarization.MaxSpeakers = 2 }, "min_speakers"},
		{"format", func(c *config.Config) { c.Output.Format = "docx" }, "output.format"},
		{"sherpa models", func(c *config.Config) { c.Diarization.Backend = config.BackendSherpa }, "sherpa.segmentation_model"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSherpaDiarizationDoesNotNeedToken(t *testing.T) {
	cfg := config.Default()
	cfg.Diarization.Backend = config.BackendSherpa
	if cfg.DiarizationNeedsToken() {
		t.Fatal("sherpa diarization should not need a Hugging Face token")
	}
	if err := cfg.RequireHFToken(); err != nil {
		t.Fatalf("RequireHFToken returned error: %v", err)
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Diarization.HFToken = "hf_abcdefghijkl"
	cfg.LLM.APIKey = "short"
	redacted := cfg.Redacted()
	if redacted.Diarization.HFToken != "hf_a****" {
		t.Fatalf("unexpected redacted token: %q", redacted.Diarization.HFToken)
	}
	if redacted.LLM.APIKey != "****" {
		t.Fatalf("unexpected redacted key: %q", redacted.LLM.APIKey)
	}
	if cfg.Diarization.HFToken != "hf_abcdefghijkl" {
		t.Fatal("Redacted must not modify the receiver")
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	clearTokenEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Transcription.Backend != config.BackendWhisperX {
		t.Fatalf("unexpected backend from sample: %q", cfg.Transcription.Backend)
	}
}
