package subtitle

import (
	"fmt"
	"strings"

	"clipd/internal/timeutil"
)

// RenderVTT renders cues as WebVTT. A cue's speaker, when present, is
// prefixed in brackets so downstream players can show who is talking.
func RenderVTT(cues []Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, cue := range cues {
		b.WriteString(timeutil.FormatVTTTime(cue.Start))
		b.WriteString(" --> ")
		b.WriteString(timeutil.FormatVTTTime(cue.End))
		b.WriteByte('\n')
		if cue.Speaker != "" {
			b.WriteByte('[')
			b.WriteString(cue.Speaker)
			b.WriteString("] ")
		}
		b.WriteString(cue.Text)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()) + "\n"
}

// ASSStyle configures the single dialogue style used for burned-in
// captions.
type ASSStyle struct {
	FontName string
	FontSize int
	PlayResX int
	PlayResY int
}

// DefaultASSStyle matches the burn-in defaults used by the pipeline.
func DefaultASSStyle() ASSStyle {
	return ASSStyle{FontName: "Arial", FontSize: 14, PlayResX: 1920, PlayResY: 1080}
}

// RenderASS renders cues as an ASS script with one style. Text is escaped
// so braces cannot open override blocks and newlines become ASS line
// breaks.
func RenderASS(cues []Cue, style ASSStyle) string {
	if style.FontName == "" {
		style.FontName = "Arial"
	}
	if style.FontSize <= 0 {
		style.FontSize = 14
	}
	if style.PlayResX <= 0 || style.PlayResY <= 0 {
		style.PlayResX, style.PlayResY = 1920, 1080
	}

	var b strings.Builder
	fmt.Fprintf(&b, `[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption,%s,%d,&H00FFFFFF,&H00FFFFFF,&H00000000,&H64000000,0,0,0,0,100,100,0,0,1,2,1,2,40,40,30,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`, style.PlayResX, style.PlayResY, style.FontName, style.FontSize)

	for _, cue := range cues {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Caption,,0,0,0,,%s\n",
			timeutil.FormatASSTime(cue.Start),
			timeutil.FormatASSTime(cue.End),
			EscapeASS(cue.Text))
	}
	return b.String()
}

// RenderKaraokeASS renders word tokens as an ASS script with per-word
// karaoke timing, grouped into lines by the default segmentation budgets.
// Used for word-level burn-in.
func RenderKaraokeASS(words []Word, style ASSStyle) string {
	if style.FontName == "" {
		style.FontName = "Arial"
	}
	if style.FontSize <= 0 {
		style.FontSize = 14
	}
	if style.PlayResX <= 0 || style.PlayResY <= 0 {
		style.PlayResX, style.PlayResY = 1920, 1080
	}

	lines := groupKaraokeLines(words, DefaultSegmentOptions())

	var b strings.Builder
	fmt.Fprintf(&b, `[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption,%s,%d,&H00FFFFFF,&H00FFD200,&H00000000,&H64000000,1,0,0,0,100,100,0,0,1,3,1,2,40,40,30,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`, style.PlayResX, style.PlayResY, style.FontName, style.FontSize)

	for _, line := range lines {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Caption,,0,0,0,,",
			timeutil.FormatASSTime(line[0].Start),
			timeutil.FormatASSTime(line[len(line)-1].End))
		for _, w := range line {
			durCS := int((w.End - w.Start) * 100)
			if durCS < 1 {
				durCS = 1
			}
			fmt.Fprintf(&b, "{\\k%d}%s ", durCS, EscapeASS(w.Word))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// groupKaraokeLines packs words into display lines using the same budgets
// as cue segmentation, without the normalization pass (karaoke timing is
// carried inside each line).
func groupKaraokeLines(words []Word, opts SegmentOptions) [][]Word {
	var lines [][]Word
	var cur []Word
	chars := 0

	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, cur)
			cur = nil
			chars = 0
		}
	}

	for _, w := range words {
		token := strings.TrimSpace(w.Word)
		if token == "" {
			continue
		}
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			if w.Speaker != prev.Speaker || w.Start-prev.End > opts.PauseSeconds {
				flush()
			}
		}
		cur = append(cur, w)
		chars += len(token) + 1
		if len(cur) >= opts.MaxWords || chars >= opts.MaxChars || endsSentence(token) {
			flush()
		}
	}
	flush()
	return lines
}

// EscapeASS neutralizes characters with meaning in ASS dialogue text.
func EscapeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "\\{")
	s = strings.ReplaceAll(s, "}", "\\}")
	s = strings.ReplaceAll(s, "\n", "\\N")
	return s
}
