package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"taunote/internal/config"
	"taunote/internal/services/sherpa"
	"taunote/internal/services/whisperx"
	"taunote/internal/transcript"
)

// Transcriber turns a preprocessed WAV into segments. An empty lang asks the
// backend to detect the language.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, workDir, lang string) (transcript.Transcript, error)
}

// Aligner adds word timings to a transcript.
type Aligner interface {
	Align(ctx context.Context, audioPath, workDir string, tr transcript.Transcript) (transcript.Transcript, error)
}

// Diarizer returns speaker turns. Zero bounds leave the count to the model.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath, workDir string, minSpeakers, maxSpeakers int) ([]transcript.SpeakerTurn, error)
}

// Backends groups the stage implementations for one run. Aligner and
// Diarizer may be nil to skip the stage.
type Backends struct {
	Transcriber Transcriber
	Aligner     Aligner
	Diarizer    Diarizer
}

// BackendFactory builds the stage backends for a model name.
type BackendFactory func(cfg *config.Config, model string, logger *slog.Logger) (Backends, error)

// NewBackends selects stage implementations from the configured backends.
// Alignment is only available through WhisperX.
func NewBackends(cfg *config.Config, model string, logger *slog.Logger) (Backends, error) {
	if cfg == nil {
		return Backends{}, fmt.Errorf("pipeline backends: config required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = cfg.Transcription.Model
	}

	var wx *whisperx.Service
	whisperxService := func() *whisperx.Service {
		if wx == nil {
			wx = whisperx.NewService(whisperx.Config{
				Model:       model,
				Device:      cfg.Transcription.Device,
				ComputeType: cfg.ComputeType(),
				BatchSize:   cfg.Transcription.BatchSize,
				AlignModel:  cfg.Alignment.Model,
				HFToken:     cfg.Diarization.HFToken,
				ModelDir:    cfg.Paths.ModelDir,
			}, logger)
		}
		return wx
	}
	sherpaCfg := sherpa.Config{
		WhisperEncoder:    cfg.Sherpa.WhisperEncoder,
		WhisperDecoder:    cfg.Sherpa.WhisperDecoder,
		WhisperTokens:     cfg.Sherpa.WhisperTokens,
		SegmentationModel: cfg.Sherpa.SegmentationModel,
		EmbeddingModel:    cfg.Sherpa.EmbeddingModel,
		NumThreads:        cfg.Sherpa.NumThreads,
		Provider:          cfg.Sherpa.Provider,
		ClusterThreshold:  float32(cfg.Sherpa.ClusterThreshold),
		NumSpeakers:       cfg.Sherpa.NumSpeakers,
	}

	var backends Backends
	switch cfg.Transcription.Backend {
	case config.BackendSherpa:
		backends.Transcriber = sherpa.NewTranscriber(sherpaCfg, logger)
	case config.BackendWhisperX, "":
		backends.Transcriber = whisperxService()
		if cfg.Alignment.Enabled {
			backends.Aligner = whisperxService()
		}
	default:
		return Backends{}, fmt.Errorf("pipeline backends: unknown transcription backend %q", cfg.Transcription.Backend)
	}

	if cfg.Diarization.Enabled {
		switch cfg.Diarization.Backend {
		case config.BackendSherpa:
			backends.Diarizer = sherpa.NewDiarizer(sherpaCfg, logger)
		case config.BackendWhisperX, "":
			backends.Diarizer = whisperxService()
		default:
			return Backends{}, fmt.Errorf("pipeline backends: unknown diarization backend %q", cfg.Diarization.Backend)
		}
	}
	return backends, nil
}
