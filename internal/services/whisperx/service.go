package whisperx

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"taunote/internal/language"
	"taunote/internal/logging"
	"taunote/internal/services"
	"taunote/internal/transcript"
)

//go:embed assets/stage.py
var stageScript []byte

const (
	scriptName   = "whisperx_stage.py"
	maxErrorTail = 2000
)

// CommandRunner executes an external command with the given environment.
type CommandRunner func(ctx context.Context, env []string, name string, args ...string) error

// Service provides WhisperX transcription, alignment and diarization.
type Service struct {
	cfg    Config
	logger *slog.Logger
	runner CommandRunner
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if strings.TrimSpace(cfg.UVBinary) == "" {
		cfg.UVBinary = UVCommand
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if strings.TrimSpace(cfg.Device) == "" {
		cfg.Device = DeviceAuto
	}
	return &Service{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "whisperx"),
		runner: runCommand,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	if runner != nil {
		s.runner = runner
	}
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

type stagePayload struct {
	Language string                   `json:"language"`
	Duration float64                  `json:"duration"`
	Segments []transcript.Segment     `json:"segments"`
	Turns    []transcript.SpeakerTurn `json:"turns"`
}

// Transcribe runs Whisper over a preprocessed WAV. An empty language lets
// Whisper detect it; the detected code is returned on the transcript.
func (s *Service) Transcribe(ctx context.Context, audioPath, workDir, lang string) (transcript.Transcript, error) {
	args := []string{
		"--model", s.cfg.Model,
		"--batch-size", strconv.Itoa(s.cfg.BatchSize),
		"--compute-type", computeType(s.cfg.ComputeType),
	}
	if s.cfg.ModelDir != "" {
		args = append(args, "--model-dir", s.cfg.ModelDir)
	}
	if code := language.Normalize(lang); code != "" {
		args = append(args, "--language", code)
	}

	payload, err := s.runStage(ctx, StageTranscribe, audioPath, workDir, args, false)
	if err != nil {
		return transcript.Transcript{}, err
	}
	return transcript.Transcript{
		Language: payload.Language,
		Duration: payload.Duration,
		Segments: payload.Segments,
	}, nil
}

// Align adds word-level timestamps to tr using the language's alignment model.
func (s *Service) Align(ctx context.Context, audioPath, workDir string, tr transcript.Transcript) (transcript.Transcript, error) {
	if strings.TrimSpace(tr.Language) == "" {
		return tr, services.Wrap(services.ErrValidation, "whisperx", StageAlign, "transcript language unknown", nil)
	}
	segmentsPath := filepath.Join(workDir, "align_input.json")
	data, err := json.Marshal(tr)
	if err != nil {
		return tr, services.Wrap(services.ErrValidation, "whisperx", StageAlign, "encode segments", err)
	}
	if err := os.WriteFile(segmentsPath, data, 0o644); err != nil {
		return tr, services.Wrap(services.ErrTransient, "whisperx", StageAlign, "write segments", err)
	}

	args := []string{"--segments", segmentsPath, "--language", tr.Language}
	if s.cfg.AlignModel != "" {
		args = append(args, "--align-model", s.cfg.AlignModel)
	}
	if s.cfg.ModelDir != "" {
		args = append(args, "--model-dir", s.cfg.ModelDir)
	}

	payload, err := s.runStage(ctx, StageAlign, audioPath, workDir, args, false)
	if err != nil {
		return tr, err
	}
	aligned := tr
	aligned.Segments = payload.Segments
	if payload.Language != "" {
		aligned.Language = payload.Language
	}
	return aligned, nil
}

// Diarize returns speaker turns from the pyannote pipeline. Zero bounds leave
// the speaker count to the model.
func (s *Service) Diarize(ctx context.Context, audioPath, workDir string, minSpeakers, maxSpeakers int) ([]transcript.SpeakerTurn, error) {
	if strings.TrimSpace(s.cfg.HFToken) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "whisperx", StageDiarize, "Hugging Face token required for diarization (set HUGGINGFACE_TOKEN)", nil)
	}
	var args []string
	if minSpeakers > 0 {
		args = append(args, "--min-speakers", strconv.Itoa(minSpeakers))
	}
	if maxSpeakers > 0 {
		args = append(args, "--max-speakers", strconv.Itoa(maxSpeakers))
	}

	payload, err := s.runStage(ctx, StageDiarize, audioPath, workDir, args, true)
	if err != nil {
		return nil, err
	}
	return payload.Turns, nil
}

func (s *Service) runStage(ctx context.Context, stage, audioPath, workDir string, stageArgs []string, withToken bool) (stagePayload, error) {
	if strings.TrimSpace(audioPath) == "" {
		return stagePayload{}, services.Wrap(services.ErrValidation, "whisperx", stage, "audio path required", nil)
	}
	if strings.TrimSpace(workDir) == "" {
		workDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return stagePayload{}, services.Wrap(services.ErrTransient, "whisperx", stage, "ensure work dir", err)
	}
	script, err := writeScript(workDir)
	if err != nil {
		return stagePayload{}, services.Wrap(services.ErrTransient, "whisperx", stage, "write helper script", err)
	}

	outPath := filepath.Join(workDir, stage+".json")
	_ = os.Remove(outPath)
	args := s.buildArgs(script, stage, audioPath, outPath, stageArgs)

	s.logger.Info("whisperx stage starting",
		logging.String(logging.FieldStage, stage),
		logging.String("model", s.cfg.Model),
		logging.String("device", s.cfg.Device),
	)
	s.logger.Debug("whisperx command", logging.String("command", s.cfg.UVBinary+" "+strings.Join(args, " ")))

	if err := s.runner(ctx, s.env(withToken), s.cfg.UVBinary, args...); err != nil {
		if ctx.Err() != nil {
			return stagePayload{}, services.Wrap(services.ErrTimeout, "whisperx", stage, "stage cancelled", ctx.Err())
		}
		return stagePayload{}, services.Wrap(services.ErrExternalTool, "whisperx", stage, "helper failed", err)
	}

	payload, err := loadPayload(outPath)
	if err != nil {
		return stagePayload{}, services.Wrap(services.ErrExternalTool, "whisperx", stage, "read helper output", err)
	}
	s.logger.Info("whisperx stage complete",
		logging.String(logging.FieldStage, stage),
		logging.Int("segments", len(payload.Segments)),
		logging.Int("turns", len(payload.Turns)),
	)
	return payload, nil
}

// buildArgs constructs the uv command line for a helper stage.
func (s *Service) buildArgs(script, stage, audioPath, outPath string, stageArgs []string) []string {
	args := make([]string, 0, 24+len(stageArgs))
	args = append(args, "run", "--no-project")
	if strings.EqualFold(s.cfg.Device, DeviceCUDA) {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	}
	args = append(args,
		"--with", Package,
		"python", script, stage,
		"--audio", audioPath,
		"--out", outPath,
		"--device", s.cfg.Device,
	)
	return append(args, stageArgs...)
}

func (s *Service) env(withToken bool) []string {
	env := os.Environ()
	// Torch 2.6 changed torch.load default to weights_only=true, breaking pyannote checkpoints.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		env = append(env, "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if s.cfg.ModelDir != "" {
		env = append(env, "HF_HOME="+filepath.Join(s.cfg.ModelDir, "huggingface"))
	}
	if withToken {
		env = append(env, "HF_TOKEN="+s.cfg.HFToken)
	}
	return env
}

func computeType(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return "auto"
}

func writeScript(dir string) (string, error) {
	path := filepath.Join(dir, scriptName)
	if err := os.WriteFile(path, stageScript, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func loadPayload(path string) (stagePayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return stagePayload{}, err
	}
	var payload stagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return stagePayload{}, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload, nil
}

func runCommand(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Env = env
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(strings.TrimSpace(string(output)), maxErrorTail))
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
