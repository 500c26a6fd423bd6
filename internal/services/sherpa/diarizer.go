package sherpa

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"taunote/internal/logging"
	"taunote/internal/services"
	"taunote/internal/transcript"
)

// Diarizer labels speaker turns with sherpa-onnx offline diarization.
type Diarizer struct {
	cfg    Config
	logger *slog.Logger
}

// NewDiarizer returns a Diarizer using the configured models.
func NewDiarizer(cfg Config, logger *slog.Logger) *Diarizer {
	return &Diarizer{cfg: cfg, logger: logging.NewComponentLogger(logger, "sherpa")}
}

// Diarize returns speaker turns ordered by start time.
func (d *Diarizer) Diarize(ctx context.Context, audioPath, _ string, minSpeakers, maxSpeakers int) ([]transcript.SpeakerTurn, error) {
	samples, err := readWave(audioPath)
	if err != nil {
		return nil, err
	}
	numClusters, threshold := d.clusterSettings(minSpeakers, maxSpeakers)

	config := sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote:   sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{Model: d.cfg.SegmentationModel},
			NumThreads: d.cfg.threads(),
			Provider:   d.cfg.provider(),
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      d.cfg.EmbeddingModel,
			NumThreads: d.cfg.threads(),
			Provider:   d.cfg.provider(),
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: numClusters,
			Threshold:   threshold,
		},
		MinDurationOn:  0.3,
		MinDurationOff: 0.5,
	}
	sd := sherpa.NewOfflineSpeakerDiarization(&config)
	if sd == nil {
		return nil, services.Wrap(services.ErrConfiguration, "sherpa", "diarize", "failed to create diarizer (check sherpa model paths)", nil)
	}
	defer sherpa.DeleteOfflineSpeakerDiarization(sd)

	if rate := sd.SampleRate(); rate != SampleRate {
		return nil, services.Wrap(services.ErrConfiguration, "sherpa", "diarize", fmt.Sprintf("segmentation model expects %d Hz", rate), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTimeout, "sherpa", "diarize", "cancelled", err)
	}

	d.logger.Info("sherpa diarization starting",
		logging.String(logging.FieldStage, "diarize"),
		logging.Int("clusters", numClusters),
	)
	segments := sd.Process(samples)
	turns := make([]transcript.SpeakerTurn, 0, len(segments))
	for _, seg := range segments {
		turns = append(turns, toTurn(float64(seg.Start), float64(seg.End), seg.Speaker))
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })
	return turns, nil
}

// clusterSettings resolves the clustering parameters and warns when the
// requested speaker bounds cannot be expressed as a single cluster count.
func (d *Diarizer) clusterSettings(minSpeakers, maxSpeakers int) (int, float32) {
	numClusters, threshold, honoured := d.cfg.clusters(minSpeakers, maxSpeakers)
	if !honoured {
		logging.WarnWithContext(d.logger, "speaker bounds ignored by sherpa diarization", "diarize_bounds_ignored",
			logging.String(logging.FieldStage, "diarize"),
			logging.Int("min_speakers", minSpeakers),
			logging.Int("max_speakers", maxSpeakers),
			logging.String(logging.FieldErrorHint, "sherpa only honours an exact speaker count; set equal bounds or only --max-speakers"),
			logging.String(logging.FieldImpact, "speaker count is chosen by clustering threshold"),
		)
	}
	return numClusters, threshold
}

func toTurn(start, end float64, speaker int) transcript.SpeakerTurn {
	return transcript.SpeakerTurn{Start: start, End: end, Speaker: SpeakerLabel(speaker)}
}

// SpeakerLabel formats a cluster index the way pyannote names speakers.
func SpeakerLabel(index int) string {
	return fmt.Sprintf("SPEAKER_%02d", index)
}
