package transcript

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// Refine returns segments with complete word timings:
//   - runs of untimed words are spread across the gap between their timed
//     neighbours (or the segment edges) in proportion to their rune length,
//     keeping any start or end a partially timed word already has;
//   - segments without words get words split from their text and spread
//     across the whole segment;
//   - every word is clamped into its segment.
//
// Backends without word-level alignment rely on this for speaker assignment
// at word granularity.
func Refine(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		if len(seg.Words) == 0 {
			seg.Words = splitWords(seg.Text)
		} else {
			seg.Words = append([]Word(nil), seg.Words...)
		}
		fillGaps(&seg)
		clampWords(&seg)
		out[i] = seg
	}
	return out
}

func splitWords(text string) []Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	words := make([]Word, len(fields))
	for i, field := range fields {
		words[i] = Word{Text: field}
	}
	return words
}

func fillGaps(seg *Segment) {
	words := seg.Words
	for i := 0; i < len(words); {
		if words[i].Timed() {
			i++
			continue
		}
		j := i
		for j < len(words) && !words[j].Timed() {
			j++
		}
		lo := seg.Start
		if i > 0 {
			lo = *words[i-1].End
		}
		hi := seg.End
		if j < len(words) {
			hi = *words[j].Start
		}
		if hi < lo {
			hi = lo
		}
		fillRun(words[i:j], lo, hi)
		i = j
	}
}

// fillRun spreads words over [lo, hi], splitting the span at the first word
// that already carries a start or an end.
func fillRun(words []Word, lo, hi float64) {
	k := slices.IndexFunc(words, func(w Word) bool { return w.Start != nil || w.End != nil })
	if k < 0 {
		distribute(words, lo, hi)
		return
	}
	w := &words[k]
	if w.Start != nil {
		start := clamp(*w.Start, lo, hi)
		distribute(words[:k], lo, start)
		w.Start = nil
		fillRun(words[k:], start, hi)
		return
	}
	end := clamp(*w.End, lo, hi)
	w.End = nil
	distribute(words[:k+1], lo, end)
	fillRun(words[k+1:], end, hi)
}

// distribute assigns consecutive spans over [lo, hi] weighted by rune count.
func distribute(words []Word, lo, hi float64) {
	if len(words) == 0 {
		return
	}
	total := 0
	for _, w := range words {
		total += weight(w.Text)
	}
	span := hi - lo
	cursor := lo
	for i := range words {
		share := span * float64(weight(words[i].Text)) / float64(total)
		start := cursor
		end := cursor + share
		if i == len(words)-1 {
			end = hi
		}
		words[i].Start = Seconds(start)
		words[i].End = Seconds(end)
		cursor = end
	}
}

func weight(text string) int {
	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n > 0 {
		return n
	}
	return 1
}

func clampWords(seg *Segment) {
	for i := range seg.Words {
		w := &seg.Words[i]
		start := clamp(*w.Start, seg.Start, seg.End)
		end := clamp(*w.End, seg.Start, seg.End)
		if end < start {
			end = start
		}
		w.Start = Seconds(start)
		w.End = Seconds(end)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
