package reframe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"clipd/internal/execx"
	"clipd/internal/logger"
)

// Detector produces person-detection samples for a video file.
type Detector interface {
	DetectPersons(ctx context.Context, videoPath string, fps float64) ([]Sample, error)
}

// Tool shells out to an external pose-estimation binary that prints a
// JSON array of samples on stdout.
type Tool struct {
	Path string
}

// NewTool wraps the pose binary at path. An empty path yields a detector
// whose DetectPersons always fails; callers treat that as "no person
// found" and center-crop.
func NewTool(path string) *Tool {
	return &Tool{Path: path}
}

func (t *Tool) DetectPersons(ctx context.Context, videoPath string, fps float64) ([]Sample, error) {
	if t.Path == "" {
		return nil, fmt.Errorf("pose tool not configured")
	}
	if fps <= 0 {
		fps = 2
	}

	out, err := execx.Run(ctx, t.Path,
		"--input", videoPath,
		"--fps", strconv.FormatFloat(fps, 'f', -1, 64),
		"--format", "json",
	)
	if err != nil {
		return nil, fmt.Errorf("pose detection: %w", err)
	}

	var samples []Sample
	if err := json.Unmarshal([]byte(out), &samples); err != nil {
		return nil, fmt.Errorf("pose detection: parse output: %w", err)
	}
	logger.Debug("pose detection complete", "video", videoPath, "samples", len(samples))
	return samples, nil
}
