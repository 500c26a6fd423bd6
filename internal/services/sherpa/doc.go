// Package sherpa runs transcription and speaker diarization in-process with
// sherpa-onnx, for machines without a Python toolchain or a Hugging Face
// account.
//
// Whisper runs over fixed 30 second windows and yields segment-level text
// only; word timings are filled in later by transcript.Refine. Diarization
// uses a pyannote segmentation model plus a speaker embedding extractor with
// fast clustering, which needs no gated models.
package sherpa
