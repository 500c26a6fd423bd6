// Package language normalizes user and container language codes to the
// ISO 639-1 form Whisper expects, and knows which languages WhisperX can
// align without an explicit model.
package language
