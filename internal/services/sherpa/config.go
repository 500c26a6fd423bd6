package sherpa

import "strings"

// Config points at the ONNX models and runtime settings.
type Config struct {
	WhisperEncoder    string
	WhisperDecoder    string
	WhisperTokens     string
	SegmentationModel string
	EmbeddingModel    string
	NumThreads        int
	Provider          string
	// ClusterThreshold is used when the speaker count is unknown. Smaller
	// values produce more speakers.
	ClusterThreshold float32
	// NumSpeakers fixes the cluster count when positive.
	NumSpeakers int
}

const (
	// ChunkSeconds is the window Whisper handles natively.
	ChunkSeconds = 30
	// SampleRate expected by every model.
	SampleRate = 16000

	defaultThreads   = 4
	defaultThreshold = 0.5
	defaultProvider  = "cpu"
)

func (c Config) threads() int {
	if c.NumThreads > 0 {
		return c.NumThreads
	}
	return defaultThreads
}

func (c Config) provider() string {
	if p := strings.TrimSpace(c.Provider); p != "" {
		return p
	}
	return defaultProvider
}

// clusters returns the fixed cluster count (or -1 to cluster by threshold),
// the threshold, and whether the speaker bounds were honoured. A configured
// count wins over bounds; equal bounds pin the count and a lone upper bound
// is used as the count. Other ranges fall back to threshold clustering.
func (c Config) clusters(minSpeakers, maxSpeakers int) (int, float32, bool) {
	threshold := c.ClusterThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	switch {
	case c.NumSpeakers > 0:
		return c.NumSpeakers, threshold, true
	case minSpeakers > 0 && minSpeakers == maxSpeakers:
		return minSpeakers, threshold, true
	case minSpeakers <= 0 && maxSpeakers > 0:
		return maxSpeakers, threshold, true
	default:
		return -1, threshold, minSpeakers <= 0 && maxSpeakers <= 0
	}
}
