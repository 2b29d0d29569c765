// Package jobs holds the job model, range planning and the orchestrator
// that drives one job from queued to a terminal state.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Source kinds.
const (
	SourceURL  = "url"
	SourceFile = "file"
)

// Planning modes.
const (
	ModeInterval = "interval"
	ModeExplicit = "explicit"
)

// Orientations.
const (
	OrientationLandscape = "landscape"
	OrientationPortrait  = "portrait"
)

// Range is one explicit clip window given as HH:MM:SS[.fff] timecodes.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Job is the unit of work: one source video turned into up to MaxClips
// output clips.
type Job struct {
	ID         string `json:"id"`
	SourceKind string `json:"source_kind"` // url | file
	SourceURL  string `json:"source_url,omitempty"`
	SourcePath string `json:"source_path,omitempty"`

	Mode            string  `json:"mode"` // interval | explicit
	IntervalMinutes int     `json:"interval_minutes,omitempty"`
	Ranges          []Range `json:"ranges,omitempty"`

	Strict1080        bool `json:"strict_1080"`
	MinHeightFallback int  `json:"min_height_fallback"`

	SubtitleLangs []string `json:"subtitle_langs"`
	BurnSubtitles bool     `json:"burn_subtitles"`
	AutoCaptions  bool     `json:"auto_captions"`
	CaptionLang   string   `json:"caption_lang,omitempty"`
	WhisperModel  string   `json:"whisper_model,omitempty"`
	SubtitleFont  string   `json:"subtitle_font,omitempty"`
	SubtitleSize  int      `json:"subtitle_size,omitempty"`
	WordLevel     bool     `json:"word_level"`

	Orientation      string `json:"orientation"`
	MaxClips         int    `json:"max_clips,omitempty"`
	DownloadSections bool   `json:"download_sections"`

	Status          Status `json:"status"`
	Progress        int    `json:"progress"` // 0-100
	Message         string `json:"message"`
	Error           string `json:"error,omitempty"`
	CancelRequested bool   `json:"cancel_requested"`
	AccessToken     string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob returns a queued job with fresh identity and access token and
// the defaults the API layer doesn't override.
func NewJob() *Job {
	now := time.Now().UTC()
	return &Job{
		ID:                uuid.NewString(),
		AccessToken:       uuid.NewString(),
		Status:            StatusQueued,
		Mode:              ModeInterval,
		SourceKind:        SourceURL,
		Orientation:       OrientationLandscape,
		MinHeightFallback: 720,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// IsTerminal reports whether the job reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusDone || j.Status == StatusFailed || j.Status == StatusCanceled
}
