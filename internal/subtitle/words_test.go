package subtitle

import (
	"strings"
	"testing"
)

func TestWordsToCuesSplitsOnPause(t *testing.T) {
	words := []Word{
		{Word: "hello", Start: 0.0, End: 0.4},
		{Word: "there", Start: 0.45, End: 0.8},
		{Word: "new", Start: 1.3, End: 1.6}, // 0.5s gap, above the 0.3s pause
		{Word: "cue", Start: 1.65, End: 2.0},
	}
	cues := WordsToCues(words, DefaultSegmentOptions())
	if len(cues) != 2 {
		t.Fatalf("expected pause to split into 2 cues, got %d: %+v", len(cues), cues)
	}
	if cues[0].Text != "hello there" || cues[1].Text != "new cue" {
		t.Errorf("unexpected cue texts: %q / %q", cues[0].Text, cues[1].Text)
	}
}

func TestWordsToCuesJoinsContractions(t *testing.T) {
	words := []Word{
		{Word: "don", Start: 0, End: 0.2},
		{Word: "'t", Start: 0.2, End: 0.3},
		{Word: "stop", Start: 0.35, End: 0.6},
		{Word: ",", Start: 0.6, End: 0.6},
	}
	cues := WordsToCues(words, DefaultSegmentOptions())
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	if cues[0].Text != "don't stop," {
		t.Errorf("joined tokens mishandled: %q", cues[0].Text)
	}
}

func TestWordsToCuesMaxWords(t *testing.T) {
	var words []Word
	for i := 0; i < 16; i++ {
		start := float64(i) * 0.2
		words = append(words, Word{Word: "w", Start: start, End: start + 0.15})
	}
	opts := DefaultSegmentOptions()
	cues := WordsToCues(words, opts)
	for _, cue := range cues {
		if n := len(strings.Fields(cue.Text)); n > opts.MaxWords {
			t.Errorf("cue exceeds MaxWords (%d): %q", n, cue.Text)
		}
	}
}

func TestWordsToCuesSplitsOnSentenceEnd(t *testing.T) {
	words := []Word{
		{Word: "done.", Start: 0, End: 0.3},
		{Word: "next", Start: 0.35, End: 0.6},
	}
	cues := WordsToCues(words, DefaultSegmentOptions())
	if len(cues) != 2 {
		t.Fatalf("sentence boundary should split, got %d cues", len(cues))
	}
}

func TestWordsToCuesSplitsOnSpeakerChange(t *testing.T) {
	words := []Word{
		{Word: "hi", Start: 0, End: 0.2, Speaker: "A"},
		{Word: "hello", Start: 0.25, End: 0.5, Speaker: "B"},
	}
	cues := WordsToCues(words, DefaultSegmentOptions())
	if len(cues) != 2 {
		t.Fatalf("speaker change should split, got %d cues", len(cues))
	}
	if cues[0].Speaker != "A" || cues[1].Speaker != "B" {
		t.Errorf("speakers not carried: %+v", cues)
	}
}

func TestAlignSpeakers(t *testing.T) {
	words := []Word{
		{Word: "one", Start: 0.0, End: 0.5},
		{Word: "two", Start: 2.0, End: 2.5},
		{Word: "three", Start: 9.0, End: 9.5},
	}
	turns := []Segment{
		{Start: 0, End: 3, Speaker: "alice"},
		{Start: 3, End: 8, Speaker: "bob"},
	}
	out := AlignSpeakers(words, turns)
	if out[0].Speaker != "alice" || out[1].Speaker != "alice" {
		t.Errorf("words inside first turn mislabeled: %+v", out[:2])
	}
	if out[2].Speaker != "" {
		t.Errorf("word outside all turns should stay unlabeled: %+v", out[2])
	}
}

func TestFilterByVoiceActivity(t *testing.T) {
	words := []Word{
		{Word: "speech", Start: 0, End: 2},
		{Word: "hallucinated", Start: 5, End: 6},
		{Word: "more", Start: 10, End: 12},
	}
	voiced := []Segment{
		{Start: 0, End: 3},
		{Start: 9.5, End: 13},
	}
	out := FilterByVoiceActivity(words, voiced, 0)
	if len(out) != 2 {
		t.Fatalf("expected silent-region word dropped, got %d: %+v", len(out), out)
	}
	if out[0].Word != "speech" || out[1].Word != "more" {
		t.Errorf("wrong words kept: %+v", out)
	}
}

func TestFilterByVoiceActivityBoundaryStraddle(t *testing.T) {
	words := []Word{{Word: "edge", Start: 2.9, End: 3.5}}
	voiced := []Segment{{Start: 0, End: 2.95}, {Start: 3.2, End: 5}}
	out := FilterByVoiceActivity(words, voiced, 0.1)
	if len(out) != 1 {
		t.Fatalf("word overlapping the next segment should be kept, got %+v", out)
	}
}

func TestFilterByVoiceActivityNoSegments(t *testing.T) {
	words := []Word{{Word: "keep", Start: 0, End: 1}}
	if out := FilterByVoiceActivity(words, nil, 0); len(out) != 0 {
		t.Errorf("without VAD segments nothing is voiced, got %+v", out)
	}
}
