// Package transcript holds the speaker-labelled transcript model and the
// logic that runs entirely in Go: merging diarization turns into segments
// and words, filling word timings the aligner could not place, and
// rendering txt, json, and srt output.
package transcript
