package transcript

import "math"

// AssignSpeakers labels each segment, and each timed word inside it, with the
// diarization speaker whose turns overlap it the most. Overlap is summed per
// speaker; ties go to the speaker whose overlapping turn comes first in turns.
//
// When nothing overlaps and fillNearest is set, the speaker of the turn with
// the largest (least negative) intersection is used, which is the closest
// turn in time. Otherwise the existing label is left untouched.
//
// The input slice is not modified.
func AssignSpeakers(segments []Segment, turns []SpeakerTurn, fillNearest bool) []Segment {
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		if len(seg.Words) > 0 {
			seg.Words = append([]Word(nil), seg.Words...)
		}
		if len(turns) > 0 {
			if speaker, ok := pickSpeaker(turns, seg.Start, seg.End, fillNearest); ok {
				seg.Speaker = speaker
			}
			for j := range seg.Words {
				word := &seg.Words[j]
				if !word.Timed() {
					continue
				}
				if speaker, ok := pickSpeaker(turns, *word.Start, *word.End, fillNearest); ok {
					word.Speaker = speaker
				}
			}
		}
		out[i] = seg
	}
	return out
}

func pickSpeaker(turns []SpeakerTurn, start, end float64, fillNearest bool) (string, bool) {
	totals := make(map[string]float64)
	var order []string
	nearest := ""
	nearestOverlap := math.Inf(-1)

	for _, turn := range turns {
		if turn.Speaker == "" {
			continue
		}
		overlap := math.Min(turn.End, end) - math.Max(turn.Start, start)
		if overlap > 0 {
			if _, seen := totals[turn.Speaker]; !seen {
				order = append(order, turn.Speaker)
			}
			totals[turn.Speaker] += overlap
		}
		if overlap > nearestOverlap {
			nearestOverlap = overlap
			nearest = turn.Speaker
		}
	}

	if len(order) > 0 {
		best := order[0]
		for _, speaker := range order[1:] {
			if totals[speaker] > totals[best] {
				best = speaker
			}
		}
		return best, true
	}
	if fillNearest && nearest != "" {
		return nearest, true
	}
	return "", false
}
