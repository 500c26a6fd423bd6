package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"taunote/internal/config"
	"taunote/internal/deps"
	"taunote/internal/services"
	"taunote/internal/services/llm"
	"taunote/internal/services/whisperx"
)

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig, opts ...llm.Option) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts = append([]llm.Option{llm.WithRetryMaxAttempts(1)}, opts...)
	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, opts...)

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeNetworkError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckHuggingFace validates the diarization token against Hugging Face.
// An unreachable endpoint is reported as a warning rather than a failure.
func CheckHuggingFace(ctx context.Context, token string, validator whisperx.TokenValidator) Result {
	const name = "Hugging Face token"

	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Detail: "missing (set HUGGINGFACE_TOKEN)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	info, err := validator.Validate(checkCtx, token)
	if err == nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("valid (account %s)", info.Account)}
	}
	if errors.Is(err, services.ErrConfiguration) {
		return Result{Name: name, Detail: "rejected by Hugging Face"}
	}
	return Result{Name: name, Passed: true, Warning: true, Detail: "not verified: " + summarizeNetworkError(err)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckModelFiles verifies that every configured sherpa-onnx model file is
// readable.
func CheckModelFiles(cfg *config.Config) Result {
	const name = "Sherpa models"

	files := map[string]string{}
	if cfg.Transcription.Backend == config.BackendSherpa {
		files["whisper_encoder"] = cfg.Sherpa.WhisperEncoder
		files["whisper_decoder"] = cfg.Sherpa.WhisperDecoder
		files["whisper_tokens"] = cfg.Sherpa.WhisperTokens
	}
	if cfg.Diarization.Enabled && cfg.Diarization.Backend == config.BackendSherpa {
		files["segmentation_model"] = cfg.Sherpa.SegmentationModel
		files["embedding_model"] = cfg.Sherpa.EmbeddingModel
	}
	if len(files) == 0 {
		return Result{Name: name, Passed: true, Detail: "not used"}
	}
	var problems []string
	for key, path := range files {
		if strings.TrimSpace(path) == "" {
			problems = append(problems, key+" not set")
			continue
		}
		if err := unix.Access(path, unix.R_OK); err != nil {
			problems = append(problems, fmt.Sprintf("%s unreadable (%v)", key, err))
		}
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return Result{Name: name, Detail: strings.Join(problems, "; ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d files readable", len(files))}
}

// CheckSystemDeps evaluates the external tools the configured backends need.
// Both the transcribe command and doctor use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for audio preprocessing",
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for media inspection",
			VersionArgs: []string{"-version"},
		},
	}
	if usesWhisperX(cfg) {
		requirements = append(requirements, deps.Requirement{
			Name:        "uv",
			Command:     whisperx.UVCommand,
			Description: "Required for WhisperX-driven transcription",
			VersionArgs: []string{"--version"},
		})
	}
	requirements = append(requirements, deps.Requirement{
		Name:        "nvidia-smi",
		Command:     "nvidia-smi",
		Description: "Reports CUDA devices",
		Optional:    cfg.Transcription.Device != config.DeviceCUDA,
	})
	return deps.CheckBinaries(ctx, requirements)
}

func usesWhisperX(cfg *config.Config) bool {
	if cfg.Transcription.Backend == config.BackendWhisperX {
		return true
	}
	return cfg.Diarization.Enabled && cfg.Diarization.Backend == config.BackendWhisperX
}

// summarizeNetworkError produces a human-readable summary for remote check failures.
func summarizeNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
