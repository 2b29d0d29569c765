package subtitle

import (
	"sort"
	"strings"
)

// NormalizeOptions bounds cue timing after cleanup.
type NormalizeOptions struct {
	MinGap      float64 // minimum gap between consecutive cues
	MaxDuration float64 // cap on a single cue's on-screen time
	MinDuration float64 // floor on a single cue's on-screen time
}

// DefaultNormalizeOptions matches the timing used for burned-in captions:
// captions never overlap, never linger past 4.5s, and stay on screen long
// enough to read.
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		MinGap:      0.05,
		MaxDuration: 4.5,
		MinDuration: 0.35,
	}
}

// Normalize sorts cues by (start, end) and repairs their timing so that no
// cue overlaps the next and every cue's duration falls within
// [MinDuration, MaxDuration]. A cue starting before the previous one ends
// is pushed forward; an end running past the next cue's start is pulled
// back; the minimum-duration stretch runs last, so the guarantee is soft
// only for a pathological final cue. Normalize is idempotent.
func Normalize(cues []Cue, opts NormalizeOptions) []Cue {
	if len(cues) == 0 {
		return nil
	}

	sorted := make([]Cue, len(cues))
	copy(sorted, cues)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var normalized []Cue
	for idx, cue := range sorted {
		text := strings.TrimSpace(cue.Text)
		if text == "" {
			continue
		}
		start := cue.Start
		end := cue.End

		// Push forward past the previous cue so captions never overlap.
		if len(normalized) > 0 {
			prevEnd := normalized[len(normalized)-1].End
			if start < prevEnd+opts.MinGap {
				start = prevEnd + opts.MinGap
			}
		}

		// Cap duration so captions don't stick too long.
		if end > start+opts.MaxDuration {
			end = start + opts.MaxDuration
		}

		// If the next cue starts before this ends, clamp the end back.
		if idx+1 < len(sorted) {
			nextStart := sorted[idx+1].Start
			if nextStart <= end {
				end = nextStart - opts.MinGap
				if end < start {
					end = start
				}
			}
		}

		// Guarantee a minimal on-screen time; some players misbehave on
		// sub-frame cues.
		if end-start < opts.MinDuration {
			end = start + opts.MinDuration
		}

		normalized = append(normalized, Cue{
			Start:   start,
			End:     end,
			Text:    text,
			Speaker: cue.Speaker,
		})
	}
	return normalized
}
