// Package pipeline runs one transcription end to end.
//
// A run takes the pipeline lock, inspects and preprocesses the input, then
// drives the stage backends strictly in sequence: transcribe, align,
// diarize. Speakers are merged into segments and words before the transcript
// is written and the outcome is recorded in run history. Each model stage
// is a separate backend call so a subprocess backend returns its memory
// before the next model loads.
package pipeline
