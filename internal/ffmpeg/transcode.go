package ffmpeg

import (
	"context"
	"fmt"
	"strings"

	"clipd/internal/execx"
	"clipd/internal/logger"
	"clipd/internal/reframe"
	"clipd/internal/timeutil"
)

// Transcoder wraps the ffmpeg binary.
type Transcoder struct {
	Bin string
}

// NewTranscoder returns a transcoder using the binary at bin ("ffmpeg"
// when empty).
func NewTranscoder(bin string) *Transcoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Transcoder{Bin: bin}
}

// ExtractClip cuts [start, start+duration) of source into output. A
// stream-copy is attempted first; when the container refuses the copy
// (keyframe misalignment, odd codecs) the clip is re-encoded.
func (t *Transcoder) ExtractClip(ctx context.Context, source, output string, start, duration float64) error {
	_, err := execx.Run(ctx, t.Bin,
		"-y",
		"-ss", timeutil.FormatSeconds(start),
		"-i", source,
		"-t", timeutil.FormatSeconds(duration),
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Debug("stream copy failed, re-encoding", "source", source, "error", err)

	_, err = execx.Run(ctx, t.Bin,
		"-y",
		"-i", source,
		"-ss", timeutil.FormatSeconds(start),
		"-t", timeutil.FormatSeconds(duration),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-movflags", "+faststart",
		output,
	)
	if err != nil {
		return fmt.Errorf("extract clip: %w", err)
	}
	return nil
}

// BurnSubtitles renders an SRT file into the video stream. Font name and
// size, when set, are passed through force_style.
func (t *Transcoder) BurnSubtitles(ctx context.Context, input, srtPath, output, fontName string, fontSize int) error {
	filter := fmt.Sprintf("subtitles='%s'", EscapeFilterPath(srtPath))
	if style := forceStyle(fontName, fontSize); style != "" {
		filter += ":force_style='" + style + "'"
	}
	_, err := execx.Run(ctx, t.Bin,
		"-y",
		"-i", input,
		"-vf", filter,
		"-c:a", "copy",
		output,
	)
	if err != nil {
		return fmt.Errorf("burn subtitles: %w", err)
	}
	return nil
}

// BurnASS renders an ASS script into the video stream. Styling lives in
// the script itself.
func (t *Transcoder) BurnASS(ctx context.Context, input, assPath, output string) error {
	filter := fmt.Sprintf("ass='%s'", EscapeFilterPath(assPath))
	_, err := execx.Run(ctx, t.Bin,
		"-y",
		"-i", input,
		"-vf", filter,
		"-c:a", "copy",
		output,
	)
	if err != nil {
		return fmt.Errorf("burn ass: %w", err)
	}
	return nil
}

// ExtractAudioMono16k writes a mono 16 kHz WAV for speech recognition.
func (t *Transcoder) ExtractAudioMono16k(ctx context.Context, input, output string) error {
	_, err := execx.Run(ctx, t.Bin,
		"-y",
		"-i", input,
		"-ac", "1",
		"-ar", "16000",
		"-vn",
		output,
	)
	if err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	return nil
}

// ConvertToPortrait crops the input to the given window and scales to
// 1080x1920.
func (t *Transcoder) ConvertToPortrait(ctx context.Context, input, output string, crop reframe.Rect) error {
	_, err := execx.Run(ctx, t.Bin,
		"-y",
		"-i", input,
		"-vf", portraitFilter(crop),
		"-c:v", "libx264",
		"-c:a", "copy",
		"-movflags", "+faststart",
		output,
	)
	if err != nil {
		return fmt.Errorf("portrait convert: %w", err)
	}
	return nil
}

func portraitFilter(crop reframe.Rect) string {
	return fmt.Sprintf("crop=%d:%d:%d:%d,scale=1080:1920",
		crop.Width, crop.Height, crop.X, crop.Y)
}

// forceStyle builds the force_style value for the subtitles filter.
func forceStyle(fontName string, fontSize int) string {
	var parts []string
	if fontName != "" {
		parts = append(parts, "FontName="+fontName)
	}
	if fontSize > 0 {
		parts = append(parts, fmt.Sprintf("FontSize=%d", fontSize))
	}
	return strings.Join(parts, ",")
}

// EscapeFilterPath escapes a path for use inside an ffmpeg filter
// argument, where backslashes, colons and quotes are meta-characters.
func EscapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	path = strings.ReplaceAll(path, `:`, `\:`)
	path = strings.ReplaceAll(path, `'`, `\'`)
	return path
}
