// Package stt runs speech recognition through an external whisper.cpp
// style CLI and converts the resulting transcript into subtitle cues and
// word tokens.
package stt

import (
	"context"
	"strings"

	"clipd/internal/subtitle"
)

// Transcript is the JSON document the ASR tool writes with -oj.
type Transcript struct {
	Segments []Segment `json:"segments"`
}

// Segment is one recognized phrase.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Word is one recognized token with its own timing.
type Word struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Word        string  `json:"word"`
	Probability float64 `json:"probability,omitempty"`
}

// Engine produces a transcript for a mono 16 kHz WAV file.
type Engine interface {
	Transcribe(ctx context.Context, wavPath, workDir, lang string) (*Transcript, error)
}

// Cues flattens a transcript into subtitle cues and runs the standard
// cleanup pass. Used when the caller doesn't need word-level timing.
func (t *Transcript) Cues() []subtitle.Cue {
	var cues []subtitle.Cue
	for _, seg := range t.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue
		}
		cues = append(cues, subtitle.Cue{Start: seg.Start, End: seg.End, Text: text})
	}
	return subtitle.Clean(cues)
}

// WordTokens returns every word in the transcript. Segments without word
// timing get synthesized stamps so downstream word-level rendering always
// has something to work with.
func (t *Transcript) WordTokens() []subtitle.Word {
	var words []subtitle.Word
	for _, seg := range t.Segments {
		segWords := seg.Words
		if len(segWords) == 0 {
			segWords = SynthesizeWordTimestamps(seg)
		}
		for _, w := range segWords {
			token := strings.TrimSpace(w.Word)
			if token == "" {
				continue
			}
			words = append(words, subtitle.Word{
				Word:       token,
				Start:      w.Start,
				End:        w.End,
				Confidence: w.Probability,
			})
		}
	}
	return words
}

// SynthesizeWordTimestamps distributes a segment's duration over its
// whitespace-split words, proportional to each word's rune length.
// Approximate, but good enough for karaoke-style highlighting when the
// backend produced no word stamps.
func SynthesizeWordTimestamps(seg Segment) []Word {
	fields := strings.Fields(seg.Text)
	if len(fields) == 0 || seg.End <= seg.Start {
		return nil
	}

	total := 0
	lengths := make([]int, len(fields))
	for i, f := range fields {
		n := len([]rune(f))
		if n == 0 {
			n = 1
		}
		lengths[i] = n
		total += n
	}

	duration := seg.End - seg.Start
	words := make([]Word, len(fields))
	cursor := seg.Start
	for i, f := range fields {
		span := duration * float64(lengths[i]) / float64(total)
		end := cursor + span
		if i == len(fields)-1 {
			end = seg.End // absorb rounding drift
		}
		words[i] = Word{Start: cursor, End: end, Word: f}
		cursor = end
	}
	return words
}
