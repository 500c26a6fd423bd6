package sherpa

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"taunote/internal/language"
	"taunote/internal/logging"
	"taunote/internal/services"
	"taunote/internal/transcript"
)

// Transcriber runs sherpa-onnx Whisper over a 16 kHz mono WAV.
type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

// NewTranscriber returns a Transcriber; models load on each call so memory
// is released between runs.
func NewTranscriber(cfg Config, logger *slog.Logger) *Transcriber {
	return &Transcriber{cfg: cfg, logger: logging.NewComponentLogger(logger, "sherpa")}
}

// Transcribe decodes the file window by window. workDir is unused; the
// signature matches the other backends.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath, _ string, lang string) (transcript.Transcript, error) {
	samples, err := readWave(audioPath)
	if err != nil {
		return transcript.Transcript{}, err
	}

	code := language.Normalize(lang)
	config := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{SampleRate: SampleRate, FeatureDim: 80},
		ModelConfig: sherpa.OfflineModelConfig{
			Whisper: sherpa.OfflineWhisperModelConfig{
				Encoder:  t.cfg.WhisperEncoder,
				Decoder:  t.cfg.WhisperDecoder,
				Language: code,
				Task:     "transcribe",
			},
			Tokens:     t.cfg.WhisperTokens,
			NumThreads: t.cfg.threads(),
			Provider:   t.cfg.provider(),
		},
	}
	recognizer := sherpa.NewOfflineRecognizer(&config)
	if recognizer == nil {
		return transcript.Transcript{}, services.Wrap(services.ErrConfiguration, "sherpa", "transcribe", "failed to create Whisper recognizer (check sherpa model paths)", nil)
	}
	defer sherpa.DeleteOfflineRecognizer(recognizer)

	bounds := chunkBounds(len(samples), SampleRate, ChunkSeconds)
	t.logger.Info("sherpa transcription starting",
		logging.String(logging.FieldStage, "transcribe"),
		logging.Int("chunks", len(bounds)),
	)

	out := transcript.Transcript{
		Language: code,
		Duration: float64(len(samples)) / SampleRate,
	}
	for _, b := range bounds {
		if err := ctx.Err(); err != nil {
			return transcript.Transcript{}, services.Wrap(services.ErrTimeout, "sherpa", "transcribe", "cancelled", err)
		}
		stream := sherpa.NewOfflineStream(recognizer)
		stream.AcceptWaveform(SampleRate, samples[b.from:b.to])
		recognizer.Decode(stream)
		result := stream.GetResult()
		sherpa.DeleteOfflineStream(stream)

		if out.Language == "" {
			out.Language = detectedLanguage(result.Lang)
		}
		text := strings.TrimSpace(result.Text)
		if text == "" {
			continue
		}
		out.Segments = append(out.Segments, transcript.Segment{
			Start: float64(b.from) / SampleRate,
			End:   float64(b.to) / SampleRate,
			Text:  text,
		})
	}
	return out, nil
}

type window struct {
	from, to int
}

// chunkBounds splits n samples into windows of at most seconds length.
func chunkBounds(n, sampleRate, seconds int) []window {
	size := sampleRate * seconds
	if n <= 0 || size <= 0 {
		return nil
	}
	bounds := make([]window, 0, n/size+1)
	for from := 0; from < n; from += size {
		bounds = append(bounds, window{from: from, to: min(from+size, n)})
	}
	return bounds
}

// detectedLanguage strips Whisper's "<|en|>" token markup.
func detectedLanguage(raw string) string {
	return language.ToISO2(strings.Trim(strings.TrimSpace(raw), "<|>"))
}

func readWave(path string) ([]float32, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "sherpa", "read audio", path, err)
	}
	wave := sherpa.ReadWave(path)
	if wave == nil || len(wave.Samples) == 0 {
		return nil, services.Wrap(services.ErrValidation, "sherpa", "read audio", "failed to read WAV file or file is empty", nil)
	}
	if wave.SampleRate != SampleRate {
		return nil, services.Wrap(services.ErrValidation, "sherpa", "read audio", fmt.Sprintf("expected %d Hz audio, got %d", SampleRate, wave.SampleRate), nil)
	}
	return wave.Samples, nil
}
