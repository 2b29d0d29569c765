package jobs

import (
	"clipd/internal/timeutil"
)

// MaxRanges is the hard per-job clip limit.
const MaxRanges = 60

// Window is a resolved clip range in seconds on the source timeline.
type Window struct {
	Start float64
	End   float64
}

// PlanRanges resolves a job's planning configuration against the probed
// source duration. Interval mode tiles [0, duration) in interval-sized
// windows with a short final window; explicit mode parses and validates
// each configured timecode pair. The result is capped at MaxRanges and,
// when the job sets a positive MaxClips, truncated to that many entries
// in original order.
func PlanRanges(job *Job, duration float64) ([]Window, error) {
	if duration <= 0 {
		return nil, configErrorf("could not read source duration")
	}

	var ranges []Window
	switch job.Mode {
	case ModeInterval:
		minutes := job.IntervalMinutes
		if minutes <= 0 {
			minutes = 3
		}
		interval := float64(minutes) * 60
		if interval < 60 {
			return nil, configErrorf("interval must be at least 1 minute")
		}
		for start := 0.0; start < duration; {
			end := start + interval
			if end > duration {
				end = duration
			}
			ranges = append(ranges, Window{Start: start, End: end})
			start = end
		}

	case ModeExplicit:
		if len(job.Ranges) == 0 {
			return nil, configErrorf("no ranges configured")
		}
		for _, r := range job.Ranges {
			start, err := timeutil.ParseTimecode(r.Start)
			if err != nil {
				return nil, configErrorf("invalid range start %q: %v", r.Start, err)
			}
			end, err := timeutil.ParseTimecode(r.End)
			if err != nil {
				return nil, configErrorf("invalid range end %q: %v", r.End, err)
			}
			if start >= end {
				return nil, configErrorf("invalid range: start must be before end")
			}
			if end > duration {
				return nil, configErrorf("range exceeds source duration")
			}
			ranges = append(ranges, Window{Start: start, End: end})
		}

	default:
		return nil, configErrorf("unknown planning mode %q", job.Mode)
	}

	if len(ranges) > MaxRanges {
		return nil, configErrorf("too many clips: maximum is %d per job", MaxRanges)
	}
	if job.MaxClips > 0 && len(ranges) > job.MaxClips {
		ranges = ranges[:job.MaxClips]
	}
	return ranges, nil
}
