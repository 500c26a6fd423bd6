package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"taunote/internal/config"
	"taunote/internal/fileutil"
	"taunote/internal/history"
	"taunote/internal/language"
	"taunote/internal/logging"
	"taunote/internal/media/audio"
	"taunote/internal/media/ffprobe"
	"taunote/internal/services"
	"taunote/internal/transcript"
)

// DefaultOutputPath is used when a request names no output file.
const DefaultOutputPath = "tmp/transcript.txt"

// Stage names used for logging context and error wrapping.
const (
	StageProbe      = "probe"
	StagePreprocess = "preprocess"
	StageTranscribe = "transcribe"
	StageAlign      = "align"
	StageDiarize    = "diarize"
	StageAssign     = "assign"
	StageWrite      = "write"
)

// Prober inspects the input file.
type Prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Preprocessor converts the input to the WAV the models consume.
type Preprocessor func(ctx context.Context, source, dest string, opts audio.Options) error

// Request describes one transcription.
type Request struct {
	InputPath  string
	OutputPath string
	// Model overrides the configured model name when set.
	Model string
	// Language forces the transcription language. Empty detects it.
	Language    string
	Format      string
	MinSpeakers int
	MaxSpeakers int
}

// Result summarizes a finished run.
type Result struct {
	RunID              string
	OutputPath         string
	Format             string
	Model              string
	Transcript         transcript.Transcript
	Speakers           []string
	AlignmentSkipped   bool
	DiarizationSkipped bool
	Elapsed            time.Duration
}

// Runner executes pipeline requests.
type Runner struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *history.Store
	factory    BackendFactory
	probe      Prober
	preprocess Preprocessor
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStore records runs in the history store.
func WithStore(store *history.Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithBackendFactory replaces backend selection (useful for tests).
func WithBackendFactory(factory BackendFactory) Option {
	return func(r *Runner) {
		if factory != nil {
			r.factory = factory
		}
	}
}

// WithProber replaces ffprobe inspection.
func WithProber(probe Prober) Option {
	return func(r *Runner) {
		if probe != nil {
			r.probe = probe
		}
	}
}

// WithPreprocessor replaces ffmpeg preprocessing.
func WithPreprocessor(preprocess Preprocessor) Option {
	return func(r *Runner) {
		if preprocess != nil {
			r.preprocess = preprocess
		}
	}
}

// NewRunner constructs a runner for cfg.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("pipeline runner requires config")
	}
	r := &Runner{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		factory:    NewBackends,
		probe:      ffprobe.Inspect,
		preprocess: audio.Preprocess,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the request. A failed run leaves no transcript behind and is
// recorded in history with its failure kind.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	req, err := r.resolve(req)
	if err != nil {
		return Result{}, err
	}

	release, err := acquireLock(ctx, r.cfg.LockPath(), r.logger)
	if err != nil {
		return Result{}, err
	}
	defer release()

	runID, err := r.beginRun(ctx, req)
	if err != nil {
		return Result{}, err
	}
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	result, err := r.execute(ctx, logger, runID, req)
	result.RunID = runID
	result.Elapsed = time.Since(started)
	if err != nil {
		r.failRun(ctx, logger, runID, err)
		return result, err
	}
	r.finishRun(ctx, logger, runID, result)

	logger.Info("transcription complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("output", result.OutputPath),
		logging.Int("segments", len(result.Transcript.Segments)),
		logging.Int("speakers", len(result.Speakers)),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (r *Runner) resolve(req Request) (Request, error) {
	req.InputPath = strings.TrimSpace(req.InputPath)
	if req.InputPath == "" {
		return req, services.Wrap(services.ErrValidation, "pipeline", "input", "input path required", nil)
	}
	info, err := os.Stat(req.InputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return req, services.Wrap(services.ErrNotFound, "pipeline", "input", fmt.Sprintf("input %s does not exist", req.InputPath), nil)
		}
		return req, services.Wrap(services.ErrValidation, "pipeline", "input", "stat input", err)
	}
	if info.IsDir() {
		return req, services.Wrap(services.ErrValidation, "pipeline", "input", fmt.Sprintf("input %s is a directory", req.InputPath), nil)
	}

	req.OutputPath = strings.TrimSpace(req.OutputPath)
	if req.OutputPath == "" {
		req.OutputPath = DefaultOutputPath
	}
	req.Format = resolveFormat(req.Format, req.OutputPath, r.cfg.Output.Format)
	if req.Format != transcript.FormatText && req.Format != transcript.FormatJSON && req.Format != transcript.FormatSRT {
		return req, services.Wrap(services.ErrValidation, "pipeline", "output", fmt.Sprintf("unsupported format %q", req.Format), nil)
	}

	if strings.TrimSpace(req.Model) == "" {
		req.Model = r.cfg.Transcription.Model
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = r.cfg.Transcription.Language
	}
	req.Language = language.Normalize(req.Language)

	if req.MinSpeakers <= 0 {
		req.MinSpeakers = r.cfg.Diarization.MinSpeakers
	}
	if req.MaxSpeakers <= 0 {
		req.MaxSpeakers = r.cfg.Diarization.MaxSpeakers
	}
	if req.MinSpeakers < 0 || req.MaxSpeakers < 0 || (req.MaxSpeakers > 0 && req.MinSpeakers > req.MaxSpeakers) {
		return req, services.Wrap(services.ErrValidation, "pipeline", "speakers", fmt.Sprintf("invalid speaker bounds %d..%d", req.MinSpeakers, req.MaxSpeakers), nil)
	}
	return req, nil
}

// resolveFormat applies flag, then output extension, then config.
func resolveFormat(flagValue, outputPath, configured string) string {
	if f := strings.ToLower(strings.TrimSpace(flagValue)); f != "" {
		return f
	}
	if f := transcript.FormatFromPath(outputPath); f != "" {
		return f
	}
	if f := strings.ToLower(strings.TrimSpace(configured)); f != "" {
		return f
	}
	return transcript.FormatText
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, runID string, req Request) (Result, error) {
	result := Result{OutputPath: req.OutputPath, Format: req.Format, Model: req.Model}

	backends, err := r.factory(r.cfg, req.Model, r.logger)
	if err != nil {
		return result, services.Wrap(services.ErrConfiguration, "pipeline", "backends", "select backends", err)
	}
	if backends.Transcriber == nil {
		return result, services.Wrap(services.ErrConfiguration, "pipeline", "backends", "no transcription backend", nil)
	}

	workDir := filepath.Join(r.cfg.Paths.WorkDir, runID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "pipeline", "workdir", "create work directory", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove work directory", logging.Error(err), logging.String("dir", workDir))
		}
	}()

	probe, err := r.inspect(stageContext(ctx, StageProbe), req.InputPath)
	if err != nil {
		return result, err
	}

	wavPath := filepath.Join(workDir, "audio.wav")
	if err := r.runPreprocess(stageContext(ctx, StagePreprocess), req.InputPath, wavPath); err != nil {
		return result, err
	}

	tr, err := r.transcribe(stageContext(ctx, StageTranscribe), backends.Transcriber, wavPath, workDir, req.Language)
	if err != nil {
		return result, err
	}

	tr, result.AlignmentSkipped, err = r.align(stageContext(ctx, StageAlign), backends.Aligner, wavPath, workDir, tr)
	if err != nil {
		return result, err
	}
	tr.Segments = transcript.Refine(tr.Segments)

	turns, skipped, err := r.diarize(stageContext(ctx, StageDiarize), backends.Diarizer, wavPath, workDir, req)
	if err != nil {
		return result, err
	}
	result.DiarizationSkipped = skipped
	if len(turns) > 0 {
		tr.Segments = transcript.AssignSpeakers(tr.Segments, turns, r.cfg.Diarization.FillNearest)
	}

	if tr.Duration <= 0 {
		tr.Duration = probe.DurationSeconds()
	}
	result.Transcript = tr
	result.Speakers = tr.Speakers()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := transcript.WriteFile(req.OutputPath, tr, req.Format, r.cfg.Output.UnknownLabel); err != nil {
		return result, services.Wrap(services.ErrTransient, "pipeline", StageWrite, "write transcript", err)
	}
	if r.cfg.Audio.KeepIntermediate {
		keep := filepath.Join(filepath.Dir(req.OutputPath), "preprocessed.wav")
		if err := fileutil.CopyFile(wavPath, keep, 0o644); err != nil {
			logging.WarnWithContext(logger, "failed to keep preprocessed audio", "keep_intermediate",
				logging.Error(err),
				logging.String(logging.FieldImpact, "transcript written without intermediate audio"),
			)
		}
	}
	return result, nil
}

func stageContext(ctx context.Context, stage string) context.Context {
	return services.WithStage(ctx, stage)
}

func (r *Runner) inspect(ctx context.Context, input string) (ffprobe.Result, error) {
	probe, err := r.probe(ctx, r.cfg.FFprobeBinary(), input)
	if err != nil {
		return probe, services.Wrap(services.ErrExternalTool, "pipeline", StageProbe, "inspect input", err)
	}
	if err := probe.RequireAudio(); err != nil {
		return probe, services.Wrap(services.ErrValidation, "pipeline", StageProbe, input, err)
	}
	logging.WithContext(ctx, r.logger).Debug("input inspected",
		logging.Float64("duration_seconds", probe.DurationSeconds()),
		logging.Int("audio_streams", probe.AudioStreamCount()),
		logging.Int("sample_rate", probe.SampleRate()),
		logging.String("language_tag", probe.LanguageHint()),
	)
	return probe, nil
}

func (r *Runner) runPreprocess(ctx context.Context, input, wavPath string) error {
	stageLogger := logging.WithContext(ctx, r.logger)
	start := time.Now()
	err := r.preprocess(ctx, input, wavPath, audio.Options{
		FFmpegBinary: r.cfg.FFmpegBinary(),
		Normalize:    r.cfg.Audio.Normalize,
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "pipeline", StagePreprocess, "ffmpeg preprocessing", err)
	}
	stageLogger.Debug("audio preprocessed",
		logging.Bool("normalize", r.cfg.Audio.Normalize),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (r *Runner) transcribe(ctx context.Context, backend Transcriber, wavPath, workDir, lang string) (transcript.Transcript, error) {
	stageLogger := logging.WithContext(ctx, r.logger)
	stageLogger.Info("transcribing", logging.String(logging.FieldEventType, "stage_start"), logging.String("language", lang))
	start := time.Now()
	tr, err := backend.Transcribe(ctx, wavPath, workDir, lang)
	if err != nil {
		return tr, services.Wrap(services.ErrExternalTool, "pipeline", StageTranscribe, "transcription", err)
	}
	if tr.Language == "" {
		tr.Language = lang
	}
	stageLogger.Info("transcription finished",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("language", tr.Language),
		logging.Int("segments", len(tr.Segments)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return tr, nil
}

func (r *Runner) align(ctx context.Context, backend Aligner, wavPath, workDir string, tr transcript.Transcript) (transcript.Transcript, bool, error) {
	if backend == nil {
		return tr, true, nil
	}
	stageLogger := logging.WithContext(ctx, r.logger)
	if len(tr.Segments) == 0 {
		return tr, true, nil
	}
	if tr.Language == "" {
		logging.WarnWithContext(stageLogger, "alignment skipped", "alignment_skipped",
			logging.String("reason", "language unknown"),
			logging.String(logging.FieldErrorHint, "pass --lang to force a language"),
			logging.String(logging.FieldImpact, "word timings are estimated"),
		)
		return tr, true, nil
	}
	if r.cfg.Alignment.Model == "" && !language.HasDefaultAlignModel(tr.Language) {
		logging.WarnWithContext(stageLogger, "alignment skipped", "alignment_skipped",
			logging.String("reason", "no default alignment model"),
			logging.String("language", tr.Language),
			logging.String(logging.FieldErrorHint, "set alignment.model to a wav2vec2 model for this language"),
			logging.String(logging.FieldImpact, "word timings are estimated"),
		)
		return tr, true, nil
	}

	stageLogger.Info("aligning", logging.String(logging.FieldEventType, "stage_start"), logging.String("language", tr.Language))
	start := time.Now()
	aligned, err := backend.Align(ctx, wavPath, workDir, tr)
	if err != nil {
		return tr, false, services.Wrap(services.ErrExternalTool, "pipeline", StageAlign, "alignment", err)
	}
	stageLogger.Info("alignment finished",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", time.Since(start)),
	)
	return aligned, false, nil
}

func (r *Runner) diarize(ctx context.Context, backend Diarizer, wavPath, workDir string, req Request) ([]transcript.SpeakerTurn, bool, error) {
	if backend == nil {
		return nil, true, nil
	}
	stageLogger := logging.WithContext(ctx, r.logger)
	stageLogger.Info("diarizing",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("min_speakers", req.MinSpeakers),
		logging.Int("max_speakers", req.MaxSpeakers),
	)
	start := time.Now()
	turns, err := backend.Diarize(ctx, wavPath, workDir, req.MinSpeakers, req.MaxSpeakers)
	if err != nil {
		return nil, false, services.Wrap(services.ErrExternalTool, "pipeline", StageDiarize, "diarization", err)
	}
	stageLogger.Info("diarization finished",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("turns", len(turns)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return turns, false, nil
}

func (r *Runner) beginRun(ctx context.Context, req Request) (string, error) {
	if r.store == nil {
		return uuid.NewString(), nil
	}
	if n, err := r.store.MarkInterrupted(ctx); err != nil {
		r.logger.Warn("failed to reconcile interrupted runs", logging.Error(err))
	} else if n > 0 {
		r.logger.Info("marked interrupted runs as failed", logging.Int64("count", n))
	}
	run, err := r.store.CreateRun(ctx, history.NewRun{
		InputPath:  absPath(req.InputPath),
		OutputPath: absPath(req.OutputPath),
		Format:     req.Format,
		Model:      req.Model,
		Backend:    r.cfg.Transcription.Backend,
		Language:   req.Language,
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "pipeline", "history", "record run", err)
	}
	return run.ID, nil
}

func (r *Runner) finishRun(ctx context.Context, logger *slog.Logger, runID string, result Result) {
	if r.store == nil {
		return
	}
	payload, err := json.Marshal(result.Transcript)
	if err != nil {
		logger.Warn("failed to encode transcript for history", logging.Error(err))
	}
	err = r.store.FinishRun(context.WithoutCancel(ctx), runID, history.Outcome{
		OutputPath:     absPath(result.OutputPath),
		Language:       result.Transcript.Language,
		Segments:       len(result.Transcript.Segments),
		Speakers:       len(result.Speakers),
		AudioSeconds:   result.Transcript.Duration,
		TranscriptJSON: string(payload),
	})
	if err != nil {
		logger.Warn("failed to record finished run", logging.Error(err))
	}
}

func (r *Runner) failRun(ctx context.Context, logger *slog.Logger, runID string, cause error) {
	if r.store == nil {
		return
	}
	kind := services.FailureKind(cause)
	if errors.Is(cause, context.Canceled) {
		kind = "canceled"
	}
	if err := r.store.FailRun(context.WithoutCancel(ctx), runID, kind, cause.Error()); err != nil {
		logger.Warn("failed to record failed run", logging.Error(err))
	}
}

func absPath(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
