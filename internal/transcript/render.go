package transcript

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Supported output formats.
const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatSRT  = "srt"
)

// DefaultUnknownLabel marks segments no diarization turn could be matched to.
const DefaultUnknownLabel = "unknown"

// Render encodes the transcript in the requested format.
func Render(tr Transcript, format, unknownLabel string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return []byte(RenderText(tr.Segments, unknownLabel)), nil
	case FormatSRT:
		return []byte(RenderSRT(tr.Segments, unknownLabel)), nil
	case FormatJSON:
		return RenderJSON(tr)
	default:
		return nil, fmt.Errorf("unsupported transcript format %q", format)
	}
}

// FormatFromPath infers an output format from a file extension, returning
// an empty string when the extension is not a known format.
func FormatFromPath(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "txt", "text":
		return FormatText
	case "json":
		return FormatJSON
	case "srt":
		return FormatSRT
	default:
		return ""
	}
}

// SpeakerLabel returns the segment speaker or unknownLabel when unset.
func SpeakerLabel(seg Segment, unknownLabel string) string {
	if speaker := strings.TrimSpace(seg.Speaker); speaker != "" {
		return speaker
	}
	if unknownLabel == "" {
		return DefaultUnknownLabel
	}
	return unknownLabel
}

// RenderText writes one "[speaker] text" line per segment.
func RenderText(segments []Segment, unknownLabel string) string {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "[%s] %s\n", SpeakerLabel(seg, unknownLabel), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// RenderSRT writes numbered subtitle cues prefixed with the speaker label.
func RenderSRT(segments []Segment, unknownLabel string) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n[%s] %s\n",
			i+1,
			formatSRTTime(seg.Start),
			formatSRTTime(seg.End),
			SpeakerLabel(seg, unknownLabel),
			strings.TrimSpace(seg.Text),
		)
	}
	return b.String()
}

// RenderJSON writes the transcript as indented JSON.
func RenderJSON(tr Transcript) ([]byte, error) {
	if tr.Segments == nil {
		tr.Segments = []Segment{}
	}
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript json: %w", err)
	}
	return append(data, '\n'), nil
}

// formatSRTTime converts seconds to the HH:MM:SS,mmm cue format.
func formatSRTTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	h := total / 3_600_000
	m := (total / 60_000) % 60
	s := (total / 1000) % 60
	ms := total % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
