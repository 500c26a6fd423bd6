package ffprobe

import (
	"errors"
	"testing"
)

const sampleProbe = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2,
     "duration": "61.5", "tags": {"language": "ger"}}
  ],
  "format": {"filename": "meeting.mp4", "nb_streams": 2, "duration": "62.040000", "size": "1000", "format_name": "mov,mp4"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleProbe))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if err := result.RequireAudio(); err != nil {
		t.Fatalf("RequireAudio: %v", err)
	}
	if result.DurationSeconds() != 62.04 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SampleRate() != 48000 {
		t.Fatalf("unexpected sample rate: %d", result.SampleRate())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if result.LanguageHint() != "de" {
		t.Fatalf("unexpected language hint: %q", result.LanguageHint())
	}
}

func TestDurationFallsBackToAudioStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "12.5"}},
		Format:  Format{Duration: "N/A"},
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestRequireAudioWithoutAudio(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "video"}}}
	if err := result.RequireAudio(); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	if result.SampleRate() != 0 || result.LanguageHint() != "" {
		t.Fatal("expected zero values without audio")
	}
}

func TestLanguageHintIgnoresUndefined(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Tags: map[string]string{"language": "und"}}},
		Format:  Format{Tags: map[string]string{"language": "en"}},
	}
	if got := result.LanguageHint(); got != "en" {
		t.Fatalf("expected container language, got %q", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
