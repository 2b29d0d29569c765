// Package subtitle implements the caption engine: SRT parsing and
// rendering, trimming cue lists to a clip window, cleanup of auto-caption
// artifacts, timing normalization, and grouping of word-level transcription
// tokens into readable cues. All functions are pure transformations over
// in-memory slices; file I/O happens in the callers.
package subtitle

import (
	"regexp"
	"strconv"
	"strings"

	"clipd/internal/timeutil"
)

// Cue is one caption entry. Times are seconds, relative to whatever
// timeline the containing list is on (source or clip).
type Cue struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Word is a single transcribed word with its own timestamps.
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Segment is a labeled time interval: a diarization turn (Speaker set)
// or a voice-activity region (Speaker empty).
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
}

var (
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRunRe  = regexp.MustCompile(`[ \t]+`)
	indexLineRe = regexp.MustCompile(`^\d+$`)
	nonLetterRe = regexp.MustCompile(`[^\p{L}\p{N}\s']`)
)

// ParseSRT parses SRT text into cues. Blocks are separated by blank
// lines; each block optionally starts with a numeric index, followed by a
// "HH:MM:SS,mmm --> HH:MM:SS,mmm" line and one or more text lines. HTML
// tags are stripped and whitespace collapsed. Malformed blocks (bad
// timecodes, non-positive duration) are silently dropped.
func ParseSRT(content string) []Cue {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	var cues []Cue

	for _, block := range strings.Split(normalized, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 || lines[0] == "" {
			continue
		}

		i := 0
		if indexLineRe.MatchString(strings.TrimSpace(lines[i])) {
			i++
		}
		if i >= len(lines) || !strings.Contains(lines[i], "-->") {
			continue
		}

		parts := strings.SplitN(lines[i], "-->", 2)
		start, errS := timeutil.ParseSRTTime(parts[0])
		end, errE := timeutil.ParseSRTTime(parts[1])
		if errS != nil || errE != nil || end <= start {
			continue
		}
		i++

		var textLines []string
		for ; i < len(lines); i++ {
			line := htmlTagRe.ReplaceAllString(lines[i], "")
			line = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
			if line != "" {
				textLines = append(textLines, line)
			}
		}
		text := strings.Join(textLines, "\n")
		if text == "" {
			continue
		}

		cues = append(cues, Cue{Start: start, End: end, Text: text})
	}
	return cues
}

// RenderSRT renders cues as SRT with 1-based indices.
func RenderSRT(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		b.WriteString(timeutil.FormatSRTTime(cue.Start))
		b.WriteString(" --> ")
		b.WriteString(timeutil.FormatSRTTime(cue.End))
		b.WriteByte('\n')
		b.WriteString(cue.Text)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()) + trailingNewline(b.Len())
}

func trailingNewline(n int) string {
	if n == 0 {
		return ""
	}
	return "\n"
}

// TrimToWindow keeps cues overlapping [start, end), clamps partially
// overlapping cues to the window and shifts times to be window-relative.
// It is a pure trim: text and clamped durations pass through untouched,
// so callers clean their cue source once, before slicing it per clip.
func TrimToWindow(cues []Cue, start, end float64) []Cue {
	var trimmed []Cue
	for _, cue := range cues {
		if cue.End <= start || cue.Start >= end {
			continue
		}
		s := cue.Start
		if s < start {
			s = start
		}
		e := cue.End
		if e > end {
			e = end
		}
		trimmed = append(trimmed, Cue{
			Start:   s - start,
			End:     e - start,
			Text:    cue.Text,
			Speaker: cue.Speaker,
		})
	}
	return trimmed
}

// Clean runs the full cue cleanup pipeline used after any trim or parse:
// duplicate merging, rolling-caption artifact removal, cross-cue word
// overlap trimming, and timing normalization.
func Clean(cues []Cue) []Cue {
	kept := make([]Cue, 0, len(cues))
	for _, cue := range cues {
		if strings.TrimSpace(cue.Text) == "" {
			continue
		}
		kept = append(kept, cue)
	}
	cues = Dedupe(kept, DefaultDedupeGap)
	cues = RemoveRollingDuplicates(cues, DefaultRollingMaxGap)
	cues = TrimWordOverlap(cues, DefaultMinOverlapWords)
	return Normalize(cues, DefaultNormalizeOptions())
}

// normalizeText lowercases, strips punctuation and collapses whitespace
// so that textual comparisons ignore case and markup differences.
func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = nonLetterRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "'", "")
	return strings.Join(strings.Fields(s), " ")
}
