package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeDiarization()
	if err := c.normalizeSherpa(); err != nil {
		return err
	}
	c.normalizeOutput()
	c.normalizeLLM()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ModelDir) == "" {
		c.Paths.ModelDir = defaultModelDir
	}
	if c.Paths.ModelDir, err = expandPath(c.Paths.ModelDir); err != nil {
		return fmt.Errorf("paths.model_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Backend = strings.ToLower(strings.TrimSpace(c.Transcription.Backend))
	if c.Transcription.Backend == "" {
		c.Transcription.Backend = BackendWhisperX
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultModel
	}
	if c.Transcription.BatchSize <= 0 {
		c.Transcription.BatchSize = defaultBatchSize
	}
	c.Transcription.Device = strings.ToLower(strings.TrimSpace(c.Transcription.Device))
	if c.Transcription.Device == "" {
		c.Transcription.Device = DeviceAuto
	}
	c.Transcription.ComputeType = strings.ToLower(strings.TrimSpace(c.Transcription.ComputeType))
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	c.Alignment.Model = strings.TrimSpace(c.Alignment.Model)
}

func (c *Config) normalizeDiarization() {
	c.Diarization.Backend = strings.ToLower(strings.TrimSpace(c.Diarization.Backend))
	if c.Diarization.Backend == "" {
		c.Diarization.Backend = BackendWhisperX
	}
	c.Diarization.HFToken = strings.TrimSpace(c.Diarization.HFToken)
	if c.Diarization.HFToken == "" {
		for _, key := range []string{"HUGGINGFACE_TOKEN", "HUGGING_FACE_HUB_TOKEN", "HF_TOKEN"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.Diarization.HFToken = strings.TrimSpace(value)
				break
			}
		}
	}
}

func (c *Config) normalizeSherpa() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"sherpa.whisper_encoder", &c.Sherpa.WhisperEncoder},
		{"sherpa.whisper_decoder", &c.Sherpa.WhisperDecoder},
		{"sherpa.whisper_tokens", &c.Sherpa.WhisperTokens},
		{"sherpa.segmentation_model", &c.Sherpa.SegmentationModel},
		{"sherpa.embedding_model", &c.Sherpa.EmbeddingModel},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	if c.Sherpa.NumThreads <= 0 {
		c.Sherpa.NumThreads = defaultSherpaThreads
	}
	c.Sherpa.Provider = strings.ToLower(strings.TrimSpace(c.Sherpa.Provider))
	if c.Sherpa.Provider == "" {
		c.Sherpa.Provider = "cpu"
	}
	if c.Sherpa.ClusterThreshold <= 0 {
		c.Sherpa.ClusterThreshold = defaultSherpaCluster
	}
	return nil
}

func (c *Config) normalizeOutput() {
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = FormatText
	}
	c.Output.UnknownLabel = strings.TrimSpace(c.Output.UnknownLabel)
	if c.Output.UnknownLabel == "" {
		c.Output.UnknownLabel = defaultUnknownLabel
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		for _, key := range []string{"TAUNOTE_LLM_API_KEY", "OPENROUTER_API_KEY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text", "pretty":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
