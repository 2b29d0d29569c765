package subtitle

import (
	"strings"
	"testing"
)

func TestRenderVTT(t *testing.T) {
	cues := []Cue{
		{Start: 0.5, End: 2.25, Text: "plain"},
		{Start: 3, End: 4, Text: "labeled", Speaker: "alice"},
	}
	out := RenderVTT(cues)
	if !strings.HasPrefix(out, "WEBVTT\n\n") {
		t.Error("missing WEBVTT header")
	}
	if !strings.Contains(out, "00:00:00.500 --> 00:00:02.250") {
		t.Errorf("VTT times use periods:\n%s", out)
	}
	if !strings.Contains(out, "[alice] labeled") {
		t.Errorf("speaker prefix missing:\n%s", out)
	}
}

func TestRenderASS(t *testing.T) {
	cues := []Cue{{Start: 1.5, End: 3.0, Text: "hello {world}\nsecond"}}
	out := RenderASS(cues, ASSStyle{FontName: "Inter", FontSize: 18, PlayResX: 1080, PlayResY: 1920})

	if !strings.Contains(out, "PlayResX: 1080") || !strings.Contains(out, "PlayResY: 1920") {
		t.Error("play resolution not applied")
	}
	if !strings.Contains(out, "Style: Caption,Inter,18,") {
		t.Errorf("style line missing font settings:\n%s", out)
	}
	if !strings.Contains(out, "Dialogue: 0,0:00:01.50,0:00:03.00,Caption,,0,0,0,,hello \\{world\\}\\Nsecond") {
		t.Errorf("dialogue line wrong:\n%s", out)
	}
}

func TestRenderASSDefaults(t *testing.T) {
	out := RenderASS([]Cue{{Start: 0, End: 1, Text: "x"}}, ASSStyle{})
	if !strings.Contains(out, "Style: Caption,Arial,14,") {
		t.Errorf("zero style should fall back to defaults:\n%s", out)
	}
}

func TestRenderKaraokeASS(t *testing.T) {
	words := []Word{
		{Word: "hello", Start: 0.0, End: 0.4},
		{Word: "world", Start: 0.45, End: 1.0},
	}
	out := RenderKaraokeASS(words, DefaultASSStyle())
	if !strings.Contains(out, "{\\k40}hello") {
		t.Errorf("karaoke timing missing for first word:\n%s", out)
	}
	if !strings.Contains(out, "{\\k55}world") {
		t.Errorf("karaoke timing missing for second word:\n%s", out)
	}
	if !strings.Contains(out, "Dialogue: 0,0:00:00.00,0:00:01.00,") {
		t.Errorf("line timing should span first start to last end:\n%s", out)
	}
}

func TestGroupKaraokeLinesSplitsOnPause(t *testing.T) {
	words := []Word{
		{Word: "one", Start: 0, End: 0.2},
		{Word: "two", Start: 0.9, End: 1.1},
	}
	lines := groupKaraokeLines(words, DefaultSegmentOptions())
	if len(lines) != 2 {
		t.Fatalf("expected pause split into 2 lines, got %d", len(lines))
	}
}

func TestEscapeASS(t *testing.T) {
	got := EscapeASS(`a\b{c}` + "\nd")
	want := `a\\b\{c\}\Nd`
	if got != want {
		t.Errorf("EscapeASS = %q, want %q", got, want)
	}
}
