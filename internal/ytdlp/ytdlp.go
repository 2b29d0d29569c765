// Package ytdlp shells out to yt-dlp for source acquisition: probing
// metadata, downloading video (whole or sectioned) and fetching
// subtitle tracks.
package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"clipd/internal/execx"
	"clipd/internal/logger"
	"clipd/internal/timeutil"
)

// Client wraps the yt-dlp binary.
type Client struct {
	Bin string
}

// NewClient returns a client for the binary at bin ("yt-dlp" when empty).
func NewClient(bin string) *Client {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &Client{Bin: bin}
}

// Format is one entry of yt-dlp's formats list; only the fields the
// planner cares about are decoded.
type Format struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	Height   int     `json:"height"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	Filesize float64 `json:"filesize"`
}

// Info is the subset of yt-dlp -J output the pipeline consumes.
type Info struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Duration float64  `json:"duration"`
	Formats  []Format `json:"formats"`
}

// FetchInfo probes a URL without downloading anything.
func (c *Client) FetchInfo(ctx context.Context, url string) (*Info, error) {
	out, err := execx.Run(ctx, c.Bin, "-J", "--no-playlist", url)
	if err != nil {
		return nil, fmt.Errorf("fetch info: %w", err)
	}
	var info Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, fmt.Errorf("fetch info: parse metadata: %w", err)
	}
	return &info, nil
}

// MaxHeight returns the tallest available video format, 0 when unknown.
func (i *Info) MaxHeight() int {
	max := 0
	for _, f := range i.Formats {
		if f.Height > max {
			max = f.Height
		}
	}
	return max
}

// HasHeight reports whether any format reaches minHeight.
func (i *Info) HasHeight(minHeight int) bool {
	for _, f := range i.Formats {
		if f.Height >= minHeight {
			return true
		}
	}
	return false
}

// BuildFormatSelector composes the -f selector. Strict mode refuses
// anything under 1080p; otherwise the selector degrades stepwise down to
// minHeightFallback and finally to best-available.
func BuildFormatSelector(strict1080 bool, minHeightFallback int) string {
	if strict1080 {
		return "bv*[height>=1080][ext=mp4]+ba[ext=m4a]/bv*[height>=1080]+ba/b"
	}
	return "bv*[height>=1080][ext=mp4]+ba[ext=m4a]" +
		"/bv*[height>=1080]+ba" +
		fmt.Sprintf("/bv*[height>=%d]+ba/best", minHeightFallback)
}

var progressRe = regexp.MustCompile(`\[download\]\s+([\d.]+)%`)

// Download fetches the full video into workDir as source.<ext>, merging to
// mp4 when possible. onProgress, when non-nil, receives download progress
// in [0,100] parsed from yt-dlp's --newline output. Returns the path of
// the downloaded file.
func (c *Client) Download(ctx context.Context, url, workDir, selector string, onProgress func(float64)) (string, error) {
	template := filepath.Join(workDir, "source.%(ext)s")
	args := []string{
		"-f", selector,
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--newline",
		"-o", template,
		url,
	}
	err := execx.RunStreaming(ctx, func(line string) {
		if onProgress == nil {
			return
		}
		if m := progressRe.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
				onProgress(pct)
			}
		}
	}, c.Bin, args...)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	return findSource(workDir)
}

// DownloadSections fetches only the given ranges of the source using
// yt-dlp's --download-sections. Ranges are seconds on the source timeline.
func (c *Client) DownloadSections(ctx context.Context, url, workDir, selector string, ranges [][2]float64, onProgress func(float64)) (string, error) {
	args := []string{
		"-f", selector,
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--newline",
	}
	for _, r := range ranges {
		args = append(args, "--download-sections",
			fmt.Sprintf("*%s-%s", timeutil.FormatSeconds(r[0]), timeutil.FormatSeconds(r[1])))
	}
	args = append(args, "-o", filepath.Join(workDir, "source.%(ext)s"), url)

	err := execx.RunStreaming(ctx, func(line string) {
		if onProgress == nil {
			return
		}
		if m := progressRe.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
				onProgress(pct)
			}
		}
	}, c.Bin, args...)
	if err != nil {
		return "", fmt.Errorf("download sections: %w", err)
	}
	return findSource(workDir)
}

// findSource locates the downloaded file: source.mp4 preferred, any
// source.* otherwise.
func findSource(workDir string) (string, error) {
	preferred := filepath.Join(workDir, "source.mp4")
	if _, err := os.Stat(preferred); err == nil {
		return preferred, nil
	}
	matches, err := filepath.Glob(filepath.Join(workDir, "source.*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("download produced no output file")
	}
	sort.Strings(matches)
	return matches[0], nil
}

// DownloadSubtitles fetches uploaded and auto-generated subtitle tracks
// for the given languages, converted to SRT, without downloading media.
// Returns all subs*.srt files written under workDir.
func (c *Client) DownloadSubtitles(ctx context.Context, url, workDir string, langs []string) ([]string, error) {
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	_, err := execx.Run(ctx, c.Bin,
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", strings.Join(langs, ","),
		"--convert-subs", "srt",
		"--skip-download",
		"--no-playlist",
		"-o", filepath.Join(workDir, "subs.%(ext)s"),
		url,
	)
	if err != nil {
		// Many sources simply have no subtitles; the caller decides
		// whether that is fatal.
		logger.Debug("subtitle download failed", "url", url, "error", err)
		return nil, fmt.Errorf("download subtitles: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(workDir, "subs*.srt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
