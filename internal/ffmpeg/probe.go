// Package ffmpeg shells out to ffmpeg/ffprobe for probing, clip
// extraction, subtitle burn-in, audio extraction and portrait reframing.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"clipd/internal/execx"
)

// Prober wraps the ffprobe binary.
type Prober struct {
	Bin string
}

// NewProber returns a prober using the binary at bin ("ffprobe" when
// empty).
func NewProber(bin string) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{Bin: bin}
}

// MediaInfo is the probe result the pipeline needs: overall duration and
// the dimensions of the first video stream.
type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe inspects a media file.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	out, err := execx.Run(ctx, p.Bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	var raw probeOutput
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("probe %s: parse output: %w", path, err)
	}

	info := &MediaInfo{}
	if raw.Format.Duration != "" {
		if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	for _, s := range raw.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			info.Width = s.Width
			info.Height = s.Height
			break
		}
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("probe %s: no duration in output", path)
	}
	return info, nil
}
