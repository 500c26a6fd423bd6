package config

// Backend names accepted by transcription.backend and diarization.backend.
const (
	BackendWhisperX = "whisperx"
	BackendSherpa   = "sherpa"
)

// Device names accepted by transcription.device.
const (
	DeviceAuto = "auto"
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// Output formats accepted by output.format.
const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatSRT  = "srt"
)

const (
	defaultConfigPath    = "~/.config/taunote/config.toml"
	projectConfigName    = "taunote.toml"
	historyFileName      = "history.db"
	lockFileName         = "pipeline.lock"
	defaultWorkDir       = "~/.cache/taunote/work"
	defaultDataDir       = "~/.local/share/taunote"
	defaultLogDir        = "~/.local/share/taunote/logs"
	defaultModelDir      = "~/.cache/taunote/models"
	defaultModel         = "small"
	defaultBatchSize     = 8
	defaultUnknownLabel  = "unknown"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultSherpaThreads = 4
	defaultSherpaCluster = 0.5
	defaultLLMBaseURL    = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel      = "google/gemini-3-flash-preview"
	defaultLLMReferer    = "https://github.com/taunote/taunote"
	defaultLLMTitle      = "taunote"
	defaultLLMTimeout    = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			ModelDir: defaultModelDir,
		},
		Transcription: Transcription{
			Backend:   BackendWhisperX,
			Model:     defaultModel,
			BatchSize: defaultBatchSize,
			Device:    DeviceAuto,
		},
		Alignment: Alignment{
			Enabled: true,
		},
		Diarization: Diarization{
			Enabled:       true,
			Backend:       BackendWhisperX,
			ValidateToken: true,
		},
		Audio: Audio{
			Normalize: true,
		},
		Sherpa: Sherpa{
			NumThreads:       defaultSherpaThreads,
			Provider:         "cpu",
			ClusterThreshold: defaultSherpaCluster,
		},
		Output: Output{
			Format:       FormatText,
			UnknownLabel: defaultUnknownLabel,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
