// Package whisperx drives WhisperX through a small embedded Python helper.
//
// Each stage (transcribe, align, diarize) runs in its own `uv run` process so
// model weights and GPU memory are released when the stage exits. The helper
// writes its result as JSON which the service decodes into transcript types.
// The Hugging Face token reaches the helper through the environment only.
//
// token.go validates Hugging Face tokens against the whoami endpoint so a bad
// token fails fast instead of after transcription.
package whisperx
