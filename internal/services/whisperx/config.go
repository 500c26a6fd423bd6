package whisperx

// Config captures runtime settings for WhisperX stages.
type Config struct {
	// Model is the Whisper model name (e.g. "small", "large-v3").
	Model string
	// Device is "auto", "cuda" or "cpu". "auto" is resolved by the helper.
	Device string
	// ComputeType is the CTranslate2 compute type; "auto" picks per device.
	ComputeType string
	// BatchSize is the transcription batch size.
	BatchSize int
	// AlignModel overrides the default wav2vec2 alignment model.
	AlignModel string
	// HFToken authorizes the gated pyannote diarization models.
	HFToken string
	// ModelDir is the download root for Whisper and Hugging Face models.
	ModelDir string
	// UVBinary is the uv executable used to run the helper.
	UVBinary string
}

// WhisperX configuration constants.
const (
	DefaultModel     = "small"
	DefaultBatchSize = 8
	CUDAIndexURL     = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL     = "https://pypi.org/simple"
	Package          = "whisperx"
	DeviceAuto       = "auto"
	DeviceCUDA       = "cuda"
	DeviceCPU        = "cpu"
)

// Helper stage names.
const (
	StageTranscribe = "transcribe"
	StageAlign      = "align"
	StageDiarize    = "diarize"
)

// UVCommand is the default uv executable name.
const UVCommand = "uv"
