package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CaptionStrategy controls where per-clip captions come from when auto
// captioning is enabled. "auto" transcribes the whole source once when the
// clip count is at most WholeSourceMaxClips and per-range downloading is off,
// otherwise it transcribes each clip's own audio.
type CaptionStrategy string

const (
	CaptionAuto        CaptionStrategy = "auto"
	CaptionWholeSource CaptionStrategy = "whole"
	CaptionPerClip     CaptionStrategy = "per_clip"
)

type Config struct {
	// DataDir is the root directory for job working and output files.
	// Each job owns DataDir/jobs/<id>/.
	DataDir string `yaml:"data_dir"`

	// ListenAddr is the HTTP listen address (default ":8080")
	ListenAddr string `yaml:"listen_addr"`

	// Workers is the number of concurrent job executions (default 1)
	Workers int `yaml:"workers"`

	// MaxActiveJobs caps simultaneously queued+running jobs; submissions
	// above the cap are rejected (default 3)
	MaxActiveJobs int `yaml:"max_active_jobs"`

	// MaxClips is the hard per-job clip limit (default 60)
	MaxClips int `yaml:"max_clips"`

	// MaxSourceSeconds rejects sources longer than this (default 2h)
	MaxSourceSeconds float64 `yaml:"max_source_seconds"`

	// WholeSourceMaxClips is the clip-count ceiling below which the "auto"
	// caption strategy transcribes the whole source once instead of each
	// clip separately (default 4)
	WholeSourceMaxClips int `yaml:"whole_source_max_clips"`

	// CaptionStrategy selects the caption source policy (default "auto")
	CaptionStrategy CaptionStrategy `yaml:"caption_strategy"`

	// SubtitleLangs is the default subtitle language preference order
	SubtitleLangs []string `yaml:"subtitle_langs"`

	// RetentionHours is how long job artifacts are kept before the sweeper
	// may remove them (default 24)
	RetentionHours int `yaml:"retention_hours"`

	// External tool paths. Defaults resolve via PATH.
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	YtdlpPath   string `yaml:"ytdlp_path"`

	// WhisperPath is the whisper.cpp-compatible ASR binary; WhisperModelDir
	// holds the ggml model files named ggml-<size>.bin
	WhisperPath     string `yaml:"whisper_path"`
	WhisperModelDir string `yaml:"whisper_model_dir"`

	// PoseToolPath is the optional pose-sampling binary used for portrait
	// reframing. Empty or missing degrades to a center crop.
	PoseToolPath string `yaml:"pose_tool_path"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:             "data",
		ListenAddr:          ":8080",
		Workers:             1,
		MaxActiveJobs:       3,
		MaxClips:            60,
		MaxSourceSeconds:    2 * 60 * 60,
		WholeSourceMaxClips: 4,
		CaptionStrategy:     CaptionAuto,
		SubtitleLangs:       []string{"id", "en"},
		RetentionHours:      24,
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
		YtdlpPath:           "yt-dlp",
		WhisperPath:         "whisper-cli",
		WhisperModelDir:     "models",
		LogLevel:            "info",
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Apply defaults for empty values
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxActiveJobs < 1 {
		cfg.MaxActiveJobs = 3
	}
	if cfg.MaxClips < 1 {
		cfg.MaxClips = 60
	}
	if cfg.MaxSourceSeconds <= 0 {
		cfg.MaxSourceSeconds = 2 * 60 * 60
	}
	if cfg.WholeSourceMaxClips < 1 {
		cfg.WholeSourceMaxClips = 4
	}
	switch cfg.CaptionStrategy {
	case CaptionAuto, CaptionWholeSource, CaptionPerClip:
	default:
		cfg.CaptionStrategy = CaptionAuto
	}
	if len(cfg.SubtitleLangs) == 0 {
		cfg.SubtitleLangs = []string{"id", "en"}
	}
	if cfg.RetentionHours < 1 {
		cfg.RetentionHours = 24
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.YtdlpPath == "" {
		cfg.YtdlpPath = "yt-dlp"
	}
	if cfg.WhisperPath == "" {
		cfg.WhisperPath = "whisper-cli"
	}
	if cfg.WhisperModelDir == "" {
		cfg.WhisperModelDir = "models"
	}

	return cfg, nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// JobDir returns the directory holding one job's final artifacts.
func (c *Config) JobDir(jobID string) string {
	return filepath.Join(c.DataDir, "jobs", jobID)
}

// WorkDir returns the transient working directory for one job.
func (c *Config) WorkDir(jobID string) string {
	return filepath.Join(c.JobDir(jobID), "work")
}
