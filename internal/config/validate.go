package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateDiarization(); err != nil {
		return err
	}
	if err := c.validateSherpa(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"transcription.batch_size": c.Transcription.BatchSize,
		"llm.timeout_seconds":      c.LLM.TimeoutSeconds,
	})
}

// RequireHFToken reports a configuration error when the diarization backend
// needs a Hugging Face token and none was found.
func (c *Config) RequireHFToken() error {
	if !c.DiarizationNeedsToken() || c.Diarization.HFToken != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("diarization.hf_token is required. Set HUGGINGFACE_TOKEN (environment or .env) or edit %s (create with 'taunote config init')", defaultPath)
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Backend {
	case BackendWhisperX, BackendSherpa:
	default:
		return fmt.Errorf("transcription.backend must be %q or %q, got %q", BackendWhisperX, BackendSherpa, c.Transcription.Backend)
	}
	switch c.Transcription.Device {
	case DeviceAuto, DeviceCUDA, DeviceCPU:
	default:
		return fmt.Errorf("transcription.device must be auto, cuda, or cpu, got %q", c.Transcription.Device)
	}
	switch c.Transcription.ComputeType {
	case "", "float16", "float32", "int8", "int8_float16":
	default:
		return fmt.Errorf("transcription.compute_type %q is not supported", c.Transcription.ComputeType)
	}
	return nil
}

func (c *Config) validateDiarization() error {
	switch c.Diarization.Backend {
	case BackendWhisperX, BackendSherpa:
	default:
		return fmt.Errorf("diarization.backend must be %q or %q, got %q", BackendWhisperX, BackendSherpa, c.Diarization.Backend)
	}
	if c.Diarization.MinSpeakers < 0 || c.Diarization.MaxSpeakers < 0 {
		return errors.New("diarization.min_speakers and diarization.max_speakers must be >= 0")
	}
	if c.Diarization.MaxSpeakers > 0 && c.Diarization.MinSpeakers > c.Diarization.MaxSpeakers {
		return errors.New("diarization.min_speakers must not exceed diarization.max_speakers")
	}
	return nil
}

func (c *Config) validateSherpa() error {
	if c.Transcription.Backend == BackendSherpa {
		if c.Sherpa.WhisperEncoder == "" || c.Sherpa.WhisperDecoder == "" || c.Sherpa.WhisperTokens == "" {
			return errors.New("sherpa.whisper_encoder, sherpa.whisper_decoder, and sherpa.whisper_tokens must be set when transcription.backend is sherpa")
		}
	}
	if c.Diarization.Enabled && c.Diarization.Backend == BackendSherpa {
		if c.Sherpa.SegmentationModel == "" || c.Sherpa.EmbeddingModel == "" {
			return errors.New("sherpa.segmentation_model and sherpa.embedding_model must be set when diarization.backend is sherpa")
		}
	}
	if c.Sherpa.ClusterThreshold > 1 {
		return errors.New("sherpa.cluster_threshold must be between 0 and 1")
	}
	if c.Sherpa.NumSpeakers < 0 {
		return errors.New("sherpa.num_speakers must be >= 0")
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch c.Output.Format {
	case FormatText, FormatJSON, FormatSRT:
		return nil
	default:
		return fmt.Errorf("output.format must be one of txt, json, srt, got %q", c.Output.Format)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
