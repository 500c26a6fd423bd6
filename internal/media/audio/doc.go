// Package audio prepares input media for speech recognition.
//
// Preprocess runs ffmpeg once to produce the 16 kHz mono PCM WAV every
// backend consumes, optionally applying EBU R128 loudness normalization and
// trimming leading silence on the way.
package audio
