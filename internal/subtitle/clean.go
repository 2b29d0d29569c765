package subtitle

import (
	"strings"
	"unicode"
)

// Cleanup thresholds. Tuned against YouTube auto-captions, which repeat
// partial text across rolling cues.
const (
	DefaultDedupeGap       = 0.2
	DefaultRollingMaxGap   = 0.35
	DefaultMinOverlapWords = 4

	rollingMaxDuration = 1.0
	rollingMinWords    = 2
)

// Dedupe merges consecutive cues with identical text when the gap between
// them is below gapThreshold, extending the end time. Empty and
// non-positive-duration cues are dropped.
func Dedupe(cues []Cue, gapThreshold float64) []Cue {
	var cleaned []Cue
	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" || cue.End <= cue.Start {
			continue
		}
		if len(cleaned) > 0 {
			prev := &cleaned[len(cleaned)-1]
			if prev.Text == text && cue.Start <= prev.End+gapThreshold {
				if cue.End > prev.End {
					prev.End = cue.End
				}
				continue
			}
		}
		cue.Text = text
		cleaned = append(cleaned, cue)
	}
	return cleaned
}

// RemoveRollingDuplicates drops short repeated fragments produced by
// rolling auto-captions: a cue lasting at most a second, with at least two
// words, whose normalized text is contained in the immediately preceding
// or following cue and sits within maxGap of it.
func RemoveRollingDuplicates(cues []Cue, maxGap float64) []Cue {
	if len(cues) < 2 {
		return cues
	}

	drop := make([]bool, len(cues))
	for i, cue := range cues {
		if cue.End-cue.Start > rollingMaxDuration {
			continue
		}
		norm := normalizeText(cue.Text)
		if len(strings.Fields(norm)) < rollingMinWords {
			continue
		}

		if i > 0 && !drop[i-1] {
			prev := cues[i-1]
			if cue.Start-prev.End <= maxGap && strings.Contains(normalizeText(prev.Text), norm) {
				drop[i] = true
				continue
			}
		}
		if i+1 < len(cues) {
			next := cues[i+1]
			if next.Start-cue.End <= maxGap && strings.Contains(normalizeText(next.Text), norm) {
				drop[i] = true
			}
		}
	}

	kept := cues[:0:0]
	for i, cue := range cues {
		if !drop[i] {
			kept = append(kept, cue)
		}
	}
	return kept
}

// TrimWordOverlap strips repeated word runs across consecutive cues: when
// the trailing words of one cue reappear as the leading words of the next
// (case- and punctuation-insensitive, at least minOverlapWords long), the
// duplicated leading words are removed from the later cue. Cues left empty
// are dropped.
func TrimWordOverlap(cues []Cue, minOverlapWords int) []Cue {
	if len(cues) < 2 || minOverlapWords < 1 {
		return cues
	}

	var out []Cue
	out = append(out, cues[0])
	for i := 1; i < len(cues); i++ {
		cue := cues[i]
		prev := out[len(out)-1]

		overlap := overlapWordCount(prev.Text, cue.Text)
		if overlap >= minOverlapWords {
			words := strings.Fields(cue.Text)
			cue.Text = strings.Join(words[overlap:], " ")
		}
		if strings.TrimSpace(cue.Text) == "" {
			continue
		}
		out = append(out, cue)
	}
	return out
}

// overlapWordCount returns the longest k such that the last k words of a
// equal the first k words of b, case- and punctuation-insensitive. Words
// are raw whitespace fields on both sides so the count indexes directly
// into either cue's fields.
func overlapWordCount(a, b string) int {
	aw := strings.Fields(a)
	bw := strings.Fields(b)
	max := len(aw)
	if len(bw) < max {
		max = len(bw)
	}
	for k := max; k > 0; k-- {
		match := true
		for j := 0; j < k; j++ {
			if foldWord(aw[len(aw)-k+j]) != foldWord(bw[j]) {
				match = false
				break
			}
		}
		if match {
			return k
		}
	}
	return 0
}

// foldWord lowercases a token and drops everything that is not a letter
// or digit, without splitting it.
func foldWord(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
