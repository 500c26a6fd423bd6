// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and returns a Result; helpers on Result answer the
// questions the pipeline asks before transcribing: is there audio, how long
// is it, what sample rate, and is a language tagged.
package ffprobe
