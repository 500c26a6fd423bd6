package transcript

import "strings"

// Word is a single aligned word. Start and End are nil when the aligner could
// not place the word (digits and symbols are common cases).
type Word struct {
	Text    string   `json:"word"`
	Start   *float64 `json:"start,omitempty"`
	End     *float64 `json:"end,omitempty"`
	Score   *float64 `json:"score,omitempty"`
	Speaker string   `json:"speaker,omitempty"`
}

// Timed reports whether both word boundaries are known.
func (w Word) Timed() bool {
	return w.Start != nil && w.End != nil
}

// Segment is a span of speech with its text and, after alignment, its words.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	Words   []Word  `json:"words,omitempty"`
}

// SpeakerTurn is one diarization interval attributed to a speaker label.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Transcript is the full result of a run.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments"`
}

// Seconds returns a pointer to v for populating optional word timings.
func Seconds(v float64) *float64 {
	return &v
}

// Speakers lists distinct segment speakers in order of first appearance.
func (t Transcript) Speakers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, seg := range t.Segments {
		if seg.Speaker == "" {
			continue
		}
		if _, ok := seen[seg.Speaker]; ok {
			continue
		}
		seen[seg.Speaker] = struct{}{}
		out = append(out, seg.Speaker)
	}
	return out
}

// Text joins the trimmed segment texts with single spaces.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
