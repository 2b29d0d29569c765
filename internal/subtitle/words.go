package subtitle

import "strings"

// SegmentOptions controls how word tokens are grouped into cues.
type SegmentOptions struct {
	MaxWords     int     // flush when the buffer reaches this many words
	MaxChars     int     // flush when the joined text reaches this length
	PauseSeconds float64 // flush when the gap to the next token exceeds this
	Normalize    NormalizeOptions
}

// DefaultSegmentOptions groups words into short caption lines suited to
// burned-in display.
func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{
		MaxWords:     7,
		MaxChars:     40,
		PauseSeconds: 0.3,
		Normalize:    DefaultNormalizeOptions(),
	}
}

// contraction suffixes that attach to the previous word without a space
var contractionSuffixes = map[string]bool{
	"'s": true, "'t": true, "'re": true, "'ve": true,
	"'ll": true, "'d": true, "'m": true,
	"n't": true,
}

// WordsToCues greedily groups word tokens into cues. A new cue starts when
// the buffer hits the word or character budget, the last word ends a
// sentence, the speaker changes, or the inter-token pause exceeds the
// threshold. Punctuation-only tokens and contraction suffixes join the
// previous word without an inserted space. The result is normalized.
func WordsToCues(words []Word, opts SegmentOptions) []Cue {
	var cues []Cue

	var (
		text    strings.Builder
		count   int
		start   float64
		end     float64
		speaker string
	)

	flush := func() {
		if count == 0 {
			return
		}
		cues = append(cues, Cue{
			Start:   start,
			End:     end,
			Text:    strings.TrimSpace(text.String()),
			Speaker: speaker,
		})
		text.Reset()
		count = 0
	}

	for _, w := range words {
		token := strings.TrimSpace(w.Word)
		if token == "" {
			continue
		}

		if count > 0 {
			if w.Speaker != speaker || w.Start-end > opts.PauseSeconds {
				flush()
			}
		}

		if count == 0 {
			start = w.Start
			speaker = w.Speaker
			text.WriteString(token)
		} else if isJoinedToken(token) {
			// "don" + "'t", or a stray "," token: no space, no word count.
			text.WriteString(token)
			end = w.End
			if text.Len() >= opts.MaxChars || endsSentence(token) {
				flush()
			}
			continue
		} else {
			text.WriteByte(' ')
			text.WriteString(token)
		}
		end = w.End
		count++

		if count >= opts.MaxWords || text.Len() >= opts.MaxChars || endsSentence(token) {
			flush()
		}
	}
	flush()

	return Normalize(cues, opts.Normalize)
}

// isJoinedToken reports whether a token attaches to the previous word
// without a space: pure punctuation or a contraction suffix.
func isJoinedToken(token string) bool {
	if contractionSuffixes[strings.ToLower(token)] {
		return true
	}
	for _, r := range token {
		switch r {
		case '.', ',', '!', '?', ';', ':', '\'', '"', ')', ']', '…':
		default:
			return false
		}
	}
	return true
}

func endsSentence(token string) bool {
	return strings.HasSuffix(token, ".") ||
		strings.HasSuffix(token, "!") ||
		strings.HasSuffix(token, "?") ||
		strings.HasSuffix(token, "…")
}

// AlignSpeakers attaches a speaker label to each word whose midpoint falls
// inside a diarization segment. Segments must be sorted by start; the scan
// advances a single cursor so alignment stays linear.
func AlignSpeakers(words []Word, segments []Segment) []Word {
	if len(segments) == 0 {
		return words
	}

	out := make([]Word, len(words))
	copy(out, words)

	cursor := 0
	for i := range out {
		mid := (out[i].Start + out[i].End) / 2
		for cursor < len(segments) && segments[cursor].End < mid {
			cursor++
		}
		if cursor < len(segments) && segments[cursor].Start <= mid && mid <= segments[cursor].End {
			out[i].Speaker = segments[cursor].Speaker
		}
	}
	return out
}

// minVADOverlap is the minimum word/segment overlap for a word to count
// as voiced.
const minVADOverlap = 0.03

// FilterByVoiceActivity keeps only words overlapping a voice-activity
// segment by at least minOverlap seconds. Segments must be sorted by
// start; each word is checked against the current and next segment via an
// advancing cursor, which tolerates words straddling a segment boundary.
func FilterByVoiceActivity(words []Word, segments []Segment, minOverlap float64) []Word {
	if len(segments) == 0 {
		return nil
	}
	if minOverlap <= 0 {
		minOverlap = minVADOverlap
	}

	var kept []Word
	cursor := 0
	for _, w := range words {
		for cursor < len(segments) && segments[cursor].End <= w.Start {
			cursor++
		}
		if cursor >= len(segments) {
			break
		}
		if overlapSeconds(w, segments[cursor]) >= minOverlap {
			kept = append(kept, w)
			continue
		}
		if cursor+1 < len(segments) && overlapSeconds(w, segments[cursor+1]) >= minOverlap {
			kept = append(kept, w)
		}
	}
	return kept
}

func overlapSeconds(w Word, seg Segment) float64 {
	start := w.Start
	if seg.Start > start {
		start = seg.Start
	}
	end := w.End
	if seg.End < end {
		end = seg.End
	}
	if end <= start {
		return 0
	}
	return end - start
}
