package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	ModelDir string `toml:"model_dir"`
}

// Transcription contains speech-to-text settings.
type Transcription struct {
	Backend     string `toml:"backend"`
	Model       string `toml:"model"`
	BatchSize   int    `toml:"batch_size"`
	Device      string `toml:"device"`
	ComputeType string `toml:"compute_type"`
	Language    string `toml:"language"`
}

// Alignment contains forced alignment settings.
type Alignment struct {
	Enabled bool `toml:"enabled"`
	// Model overrides the language-default alignment model when set.
	Model string `toml:"model"`
}

// Diarization contains speaker diarization settings.
type Diarization struct {
	Enabled       bool   `toml:"enabled"`
	Backend       string `toml:"backend"`
	HFToken       string `toml:"hf_token"`
	MinSpeakers   int    `toml:"min_speakers"`
	MaxSpeakers   int    `toml:"max_speakers"`
	FillNearest   bool   `toml:"fill_nearest"`
	ValidateToken bool   `toml:"validate_token"`
}

// Audio contains preprocessing settings applied before transcription.
type Audio struct {
	Normalize        bool `toml:"normalize"`
	KeepIntermediate bool `toml:"keep_intermediate"`
}

// Sherpa contains model locations for the in-process sherpa-onnx backend.
type Sherpa struct {
	WhisperEncoder    string  `toml:"whisper_encoder"`
	WhisperDecoder    string  `toml:"whisper_decoder"`
	WhisperTokens     string  `toml:"whisper_tokens"`
	SegmentationModel string  `toml:"segmentation_model"`
	EmbeddingModel    string  `toml:"embedding_model"`
	NumThreads        int     `toml:"num_threads"`
	Provider          string  `toml:"provider"`
	ClusterThreshold  float64 `toml:"cluster_threshold"`
	NumSpeakers       int     `toml:"num_speakers"`
}

// Output contains transcript rendering settings.
type Output struct {
	Format       string `toml:"format"`
	UnknownLabel string `toml:"unknown_label"`
}

// LLM contains connection settings for transcript note generation.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for taunote.
//
// Configuration sections by subsystem:
//   - Paths: work, data, log, and model directories
//   - Transcription: backend, model, device, batch size
//   - Alignment: word-level alignment toggle and model override
//   - Diarization: speaker detection and token handling
//   - Audio: ffmpeg preprocessing
//   - Sherpa: model files for the in-process backend
//   - Output: transcript format
//   - LLM: note generation over transcripts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Alignment     Alignment     `toml:"alignment"`
	Diarization   Diarization   `toml:"diarization"`
	Audio         Audio         `toml:"audio"`
	Sherpa        Sherpa        `toml:"sherpa"`
	Output        Output        `toml:"output"`
	LLM           LLM           `toml:"llm"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is
// loaded first so tokens kept there participate in environment fallbacks.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	// Existing environment variables win over .env entries.
	_ = godotenv.Load()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work, data, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the location of the run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.DataDir, historyFileName)
}

// LockPath returns the location of the pipeline lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, lockFileName)
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for input inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// ComputeType resolves the inference precision for the configured device.
// An explicit compute_type always wins. CUDA runs in float16 and CPU in int8;
// "auto" is returned when the device is left to the helper to detect.
func (c *Config) ComputeType() string {
	if c.Transcription.ComputeType != "" {
		return c.Transcription.ComputeType
	}
	switch c.Transcription.Device {
	case DeviceCUDA:
		return "float16"
	case DeviceCPU:
		return "int8"
	default:
		return DeviceAuto
	}
}

// DiarizationNeedsToken reports whether the configured diarization backend
// authenticates against Hugging Face.
func (c *Config) DiarizationNeedsToken() bool {
	return c.Diarization.Enabled && c.Diarization.Backend == BackendWhisperX
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c Config) Redacted() Config {
	c.Diarization.HFToken = redact(c.Diarization.HFToken)
	c.LLM.APIKey = redact(c.LLM.APIKey)
	return c
}

// EncodeTOML renders the configuration as TOML.
func (c Config) EncodeTOML() ([]byte, error) {
	return toml.Marshal(c)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}

// LLMConfig contains the LLM connection settings consumed by the notes client.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
