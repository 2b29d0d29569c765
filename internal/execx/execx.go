// Package execx wraps os/exec for the external tools the pipeline shells
// out to (yt-dlp, ffmpeg, ffprobe, the ASR and pose binaries). Failures
// carry the tail of the tool's stderr so job error messages stay short
// and human-readable.
package execx

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"clipd/internal/logger"
)

// errTailLines bounds how much tool output ends up in a job's error field.
const errTailLines = 5

// Run executes a command and returns its stdout. On a non-zero exit the
// returned error contains the last few lines of stderr (or stdout when
// stderr is empty).
func Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("exec", "cmd", name, "args", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), ctx.Err()
		}
		detail := TailLines(stderr.String(), errTailLines)
		if detail == "" {
			detail = TailLines(stdout.String(), errTailLines)
		}
		if detail == "" {
			return stdout.String(), fmt.Errorf("%s failed: %w", name, err)
		}
		return stdout.String(), fmt.Errorf("%s failed: %s", name, detail)
	}
	return stdout.String(), nil
}

// RunStreaming executes a command and feeds every line of its combined
// output to onLine as it arrives. Used for yt-dlp's --newline progress
// output. The error behaves like Run's.
func RunStreaming(ctx context.Context, onLine func(string), name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout // combined output keeps progress + errors in order

	logger.Debug("exec stream", "cmd", name, "args", strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	var tail []string
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail = append(tail, line)
		if len(tail) > errTailLines {
			tail = tail[1:]
		}
		if onLine != nil {
			onLine(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(strings.Join(tail, "\n"))
		if detail == "" {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		return fmt.Errorf("%s failed: %s", name, detail)
	}
	return nil
}

// TailLines returns the last n non-empty lines of s joined by " | ".
func TailLines(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
