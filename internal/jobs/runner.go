package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"clipd/internal/config"
	"clipd/internal/ffmpeg"
	"clipd/internal/logger"
	"clipd/internal/reframe"
	"clipd/internal/stt"
	"clipd/internal/subtitle"
	"clipd/internal/ytdlp"
)

// Downloader acquires remote sources; implemented by ytdlp.Client.
type Downloader interface {
	FetchInfo(ctx context.Context, url string) (*ytdlp.Info, error)
	Download(ctx context.Context, url, workDir, selector string, onProgress func(float64)) (string, error)
	DownloadSections(ctx context.Context, url, workDir, selector string, ranges [][2]float64, onProgress func(float64)) (string, error)
	DownloadSubtitles(ctx context.Context, url, workDir string, langs []string) ([]string, error)
}

// Prober reads media metadata; implemented by ffmpeg.Prober.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// Media performs the transcode operations; implemented by
// ffmpeg.Transcoder.
type Media interface {
	ExtractClip(ctx context.Context, source, output string, start, duration float64) error
	BurnSubtitles(ctx context.Context, input, srtPath, output, fontName string, fontSize int) error
	BurnASS(ctx context.Context, input, assPath, output string) error
	ExtractAudioMono16k(ctx context.Context, input, output string) error
	ConvertToPortrait(ctx context.Context, input, output string, crop reframe.Rect) error
}

// EngineFactory builds a speech-recognition engine for a model size.
type EngineFactory func(size string) stt.Engine

// StatusWriter is the slice of the store the runner mutates.
type StatusWriter interface {
	UpdateProgress(id string, progress int, message string) error
	MarkDone(id string) error
	MarkFailed(id string, errText string) error
	MarkCanceled(id string) error
	IsCancelRequested(id string) (bool, error)
}

// Runner drives one job from running to a terminal state. It owns no
// goroutines; the worker pool calls Run once per claimed job.
type Runner struct {
	Cfg      *config.Config
	Store    StatusWriter
	Dl       Downloader
	Prober   Prober
	Media    Media
	Engines  EngineFactory
	Detector reframe.Detector
}

// Run executes the pipeline for an already-claimed (running) job and
// writes the terminal state. Cancellation is checked before and after
// every external step; observing it aborts with the working directory
// removed and the job canceled.
func (r *Runner) Run(ctx context.Context, job *Job) {
	workDir := r.Cfg.WorkDir(job.ID)
	err := r.execute(ctx, job, workDir)

	os.RemoveAll(workDir)

	switch {
	case err == nil:
		if err := r.Store.MarkDone(job.ID); err != nil {
			logger.Error("mark done failed", "job", job.ID, "error", err)
			return
		}
		logger.Info("job done", "job", job.ID)
		r.postProcess(ctx, job)

	case errors.Is(err, ErrCanceled):
		r.purgeOutputs(job.ID)
		if err := r.Store.MarkCanceled(job.ID); err != nil {
			logger.Error("mark canceled failed", "job", job.ID, "error", err)
		}
		logger.Info("job canceled", "job", job.ID)

	case ctx.Err() != nil:
		// A per-job cancel also cancels the context; tell it apart
		// from process shutdown by the store flag.
		if flag, ferr := r.Store.IsCancelRequested(job.ID); ferr == nil && flag {
			r.purgeOutputs(job.ID)
			if err := r.Store.MarkCanceled(job.ID); err != nil {
				logger.Error("mark canceled failed", "job", job.ID, "error", err)
			}
			logger.Info("job canceled", "job", job.ID)
			return
		}
		// process shutdown: leave the record running so startup
		// re-queues it
		logger.Info("job interrupted by shutdown", "job", job.ID)

	default:
		if merr := r.Store.MarkFailed(job.ID, err.Error()); merr != nil {
			logger.Error("mark failed failed", "job", job.ID, "error", merr)
		}
		logger.Warn("job failed", "job", job.ID, "error", err)
	}
}

// checkpoint returns ErrCanceled when the job's cancel flag is set, or
// the context error when the process is shutting down.
func (r *Runner) checkpoint(ctx context.Context, jobID string) error {
	flag, err := r.Store.IsCancelRequested(jobID)
	if err == nil && flag {
		return ErrCanceled
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (r *Runner) progress(jobID string, pct int, message string) {
	if err := r.Store.UpdateProgress(jobID, pct, message); err != nil {
		logger.Warn("progress update failed", "job", jobID, "error", err)
	}
}

func (r *Runner) execute(ctx context.Context, job *Job, workDir string) error {
	if err := r.checkpoint(ctx, job.ID); err != nil {
		return err
	}
	r.progress(job.ID, 5, "Fetching video info")

	duration, sourceInfo, err := r.fetchInfo(ctx, job)
	if err != nil {
		return err
	}
	if err := r.checkpoint(ctx, job.ID); err != nil {
		return err
	}

	ranges, err := PlanRanges(job, duration)
	if err != nil {
		return err
	}

	jobDir := r.Cfg.JobDir(job.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("create job directory: %w", err)
	}

	r.progress(job.ID, 20, "Downloading video")
	source, sectioned, err := r.acquire(ctx, job, workDir, ranges)
	if err != nil {
		return err
	}
	if err := r.checkpoint(ctx, job.ID); err != nil {
		return err
	}

	// dimensions for portrait reframing; duration sanity for local files
	if sourceInfo == nil || sourceInfo.Width == 0 {
		if info, perr := r.Prober.Probe(ctx, source); perr == nil {
			sourceInfo = info
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	caps := r.resolveCaptions(ctx, job, workDir, source, ranges, sectioned)

	r.progress(job.ID, 40, "Splitting video")
	total := len(ranges)
	offset := 0.0 // position within a sectioned download's timeline
	for i, window := range ranges {
		if err := r.checkpoint(ctx, job.ID); err != nil {
			return err
		}
		pct := 40 + 55*i/total
		r.progress(job.ID, pct, fmt.Sprintf("Processing clip %d/%d", i+1, total))

		extractStart := window.Start
		if sectioned {
			extractStart = offset
			offset += window.End - window.Start
		}
		if err := r.processClip(ctx, job, jobDir, workDir, source, sourceInfo, window, i+1, extractStart, caps); err != nil {
			return err
		}
	}

	r.progress(job.ID, 95, "Finalizing")
	return nil
}

// fetchInfo resolves the source duration (and dimensions for local
// files) and enforces the duration and resolution policies.
func (r *Runner) fetchInfo(ctx context.Context, job *Job) (float64, *ffmpeg.MediaInfo, error) {
	switch job.SourceKind {
	case SourceURL:
		info, err := r.Dl.FetchInfo(ctx, job.SourceURL)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			return 0, nil, &AcquisitionError{Stage: "fetch info", Err: err}
		}
		if info.Duration <= 0 {
			return 0, nil, configErrorf("could not read source duration")
		}
		if info.Duration > r.Cfg.MaxSourceSeconds {
			return 0, nil, configErrorf("source is longer than 2 hours; use a shorter video")
		}
		if job.Strict1080 && !info.HasHeight(1080) {
			return 0, nil, configErrorf("1080p not available; max available height is %dp", info.MaxHeight())
		}
		return info.Duration, nil, nil

	case SourceFile:
		info, err := r.Prober.Probe(ctx, job.SourcePath)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			return 0, nil, &AcquisitionError{Stage: "probe source", Err: err}
		}
		if info.Duration > r.Cfg.MaxSourceSeconds {
			return 0, nil, configErrorf("source is longer than 2 hours; use a shorter video")
		}
		return info.Duration, info, nil

	default:
		return 0, nil, configErrorf("unknown source kind %q", job.SourceKind)
	}
}

// acquire obtains the source file into workDir. The second return value
// reports whether the file contains only the requested sections (its
// timeline is the concatenation of the ranges rather than the original).
func (r *Runner) acquire(ctx context.Context, job *Job, workDir string, ranges []Window) (string, bool, error) {
	if job.SourceKind == SourceFile {
		return job.SourcePath, false, nil
	}

	selector := ytdlp.BuildFormatSelector(job.Strict1080, job.MinHeightFallback)
	onProgress := func(pct float64) {
		// downloads span the 20-40 band
		r.progress(job.ID, 20+int(pct/5), "Downloading video")
	}

	if job.DownloadSections {
		secs := make([][2]float64, len(ranges))
		for i, w := range ranges {
			secs[i] = [2]float64{w.Start, w.End}
		}
		source, err := r.Dl.DownloadSections(ctx, job.SourceURL, workDir, selector, secs, onProgress)
		if err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			return "", false, &AcquisitionError{Stage: "download sections", Err: err}
		}
		return source, true, nil
	}

	source, err := r.Dl.Download(ctx, job.SourceURL, workDir, selector, onProgress)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, &AcquisitionError{Stage: "download", Err: err}
	}
	return source, false, nil
}

// captionState carries the caption sources resolved once per job.
type captionState struct {
	whole []subtitle.Cue // whole-source ASR cues, source timeline
	track []subtitle.Cue // picked subtitle track, source timeline
}

// resolveCaptions prepares the job-level caption sources. All failures
// here are non-fatal: captions degrade, the job continues.
func (r *Runner) resolveCaptions(ctx context.Context, job *Job, workDir, source string, ranges []Window, sectioned bool) *captionState {
	caps := &captionState{}
	if !job.BurnSubtitles && !job.AutoCaptions && len(job.SubtitleLangs) == 0 {
		return caps
	}

	// Whole-source ASR: one transcription sliced per clip. Skipped for
	// sectioned downloads (their timeline is not the source's) and for
	// jobs with many clips, where per-clip ASR bounds memory instead.
	if job.AutoCaptions && !sectioned && r.useWholeSource(len(ranges)) {
		if cues, err := r.transcribe(ctx, job, workDir, source, "whole"); err == nil {
			caps.whole = cues
			return caps
		} else if ctx.Err() != nil {
			return caps
		} else {
			logger.Warn("whole-source transcription failed, falling back", "job", job.ID, "error", err)
		}
	}

	// Source subtitle track (remote sources only).
	if job.SourceKind == SourceURL && len(job.SubtitleLangs) > 0 {
		files, err := r.Dl.DownloadSubtitles(ctx, job.SourceURL, workDir, job.SubtitleLangs)
		if err != nil {
			logger.Info("no subtitles available, proceeding without captions", "job", job.ID)
			r.progress(job.ID, 0, "No subtitles available, proceeding without captions")
			return caps
		}
		picked := ytdlp.PickSubtitleFile(files, job.SubtitleLangs)
		if picked == "" {
			return caps
		}
		data, err := os.ReadFile(picked)
		if err != nil {
			logger.Warn("picked subtitle unreadable", "job", job.ID, "file", picked, "error", err)
			return caps
		}
		caps.track = subtitle.Clean(subtitle.ParseSRT(string(data)))
	}
	return caps
}

// useWholeSource decides between one whole-source transcription and
// per-clip transcriptions.
func (r *Runner) useWholeSource(clipCount int) bool {
	switch r.Cfg.CaptionStrategy {
	case config.CaptionWholeSource:
		return true
	case config.CaptionPerClip:
		return false
	default:
		return clipCount <= r.Cfg.WholeSourceMaxClips
	}
}

// transcribe extracts audio from media and runs ASR, returning cleaned
// cues on the media's own timeline.
func (r *Runner) transcribe(ctx context.Context, job *Job, workDir, media, tag string) ([]subtitle.Cue, error) {
	if r.Engines == nil {
		return nil, fmt.Errorf("no speech engine configured")
	}
	wav := filepath.Join(workDir, tag+".wav")
	if err := r.Media.ExtractAudioMono16k(ctx, media, wav); err != nil {
		return nil, err
	}
	defer os.Remove(wav)

	engine := r.Engines(job.WhisperModel)
	tr, err := engine.Transcribe(ctx, wav, workDir, job.CaptionLang)
	if err != nil {
		return nil, err
	}
	return tr.Cues(), nil
}

// clipCaptions resolves the cue list for one clip window, clip-relative.
// Priority: whole-source ASR slice, subtitle track slice, per-clip ASR,
// empty. Per-clip failures degrade to empty.
func (r *Runner) clipCaptions(ctx context.Context, job *Job, workDir, clipPath string, window Window, caps *captionState) []subtitle.Cue {
	if caps.whole != nil {
		return subtitle.TrimToWindow(caps.whole, window.Start, window.End)
	}
	if caps.track != nil {
		return subtitle.TrimToWindow(caps.track, window.Start, window.End)
	}
	if job.AutoCaptions {
		cues, err := r.transcribe(ctx, job, workDir, clipPath, filepath.Base(clipPath))
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("clip transcription failed, captions skipped", "job", job.ID, "clip", clipPath, "error", err)
			}
			return nil
		}
		return cues
	}
	return nil
}

// processClip produces the artifacts for one range: clip_NNN.mp4,
// clip_NNN.srt (always, possibly empty) and, when burn-in is on,
// clip_NNN_caption.mp4.
func (r *Runner) processClip(ctx context.Context, job *Job, jobDir, workDir, source string, sourceInfo *ffmpeg.MediaInfo, window Window, idx int, extractStart float64, caps *captionState) error {
	name := clipName(idx)
	rawClip := filepath.Join(workDir, name+".mp4")

	if err := r.Media.ExtractClip(ctx, source, rawClip, extractStart, window.End-window.Start); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("extract clip %d: %w", idx, err)
	}
	if err := r.checkpoint(ctx, job.ID); err != nil {
		return err
	}

	cues := r.clipCaptions(ctx, job, workDir, rawClip, window, caps)
	srtPath := filepath.Join(jobDir, name+".srt")
	if err := os.WriteFile(srtPath, []byte(subtitle.RenderSRT(cues)), 0644); err != nil {
		return fmt.Errorf("write subtitles for clip %d: %w", idx, err)
	}
	if err := r.checkpoint(ctx, job.ID); err != nil {
		return err
	}

	// portrait reframing, center-crop fallback, never fatal
	if job.Orientation == OrientationPortrait && sourceInfo != nil && sourceInfo.Width > 0 {
		portrait := filepath.Join(workDir, name+"_portrait.mp4")
		crop := r.pickCrop(ctx, rawClip, sourceInfo)
		if err := r.Media.ConvertToPortrait(ctx, rawClip, portrait, crop); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("portrait conversion failed, keeping landscape", "job", job.ID, "clip", idx, "error", err)
		} else {
			rawClip = portrait
		}
		if err := r.checkpoint(ctx, job.ID); err != nil {
			return err
		}
	}

	finalClip := filepath.Join(jobDir, name+".mp4")
	if err := copyFile(rawClip, finalClip); err != nil {
		return fmt.Errorf("store clip %d: %w", idx, err)
	}

	if job.BurnSubtitles {
		burned := filepath.Join(jobDir, name+"_caption.mp4")
		if len(cues) > 0 {
			if err := r.Media.BurnSubtitles(ctx, rawClip, srtPath, burned, job.SubtitleFont, job.SubtitleSize); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("burn subtitles for clip %d: %w", idx, err)
			}
		} else if err := copyFile(rawClip, burned); err != nil {
			return fmt.Errorf("store clip %d: %w", idx, err)
		}
	}
	return nil
}

// pickCrop runs person detection and falls back to a center crop when no
// dominant subject is found or the detector is unavailable.
func (r *Runner) pickCrop(ctx context.Context, clipPath string, info *ffmpeg.MediaInfo) reframe.Rect {
	if r.Detector != nil {
		samples, err := r.Detector.DetectPersons(ctx, clipPath, 2)
		if err == nil {
			if crop := reframe.DominantPersonCrop(samples, info.Width, info.Height); crop != nil {
				return *crop
			}
		} else if ctx.Err() == nil {
			logger.Debug("person detection unavailable, center cropping", "error", err)
		}
	}
	return reframe.CenterCrop(info.Width, info.Height)
}

// postProcess runs after done: word-token sidecars and word-level
// re-burn. Best-effort; failures are logged and never change the job's
// terminal state.
func (r *Runner) postProcess(ctx context.Context, job *Job) {
	if !job.WordLevel || r.Engines == nil {
		return
	}
	jobDir := r.Cfg.JobDir(job.ID)
	tmpDir := filepath.Join(jobDir, "postproc")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		logger.Warn("post-processing skipped", "job", job.ID, "error", err)
		return
	}
	defer os.RemoveAll(tmpDir)

	clips, _ := filepath.Glob(filepath.Join(jobDir, "clip_???.mp4"))
	for _, clip := range clips {
		if ctx.Err() != nil {
			return
		}
		base := strings.TrimSuffix(filepath.Base(clip), ".mp4")

		words, err := r.extractWords(ctx, job, tmpDir, clip)
		if err != nil {
			logger.Warn("word extraction failed", "job", job.ID, "clip", clip, "error", err)
			continue
		}
		if err := writeWordSidecar(filepath.Join(jobDir, base+".json"), words); err != nil {
			logger.Warn("word sidecar write failed", "job", job.ID, "clip", clip, "error", err)
			continue
		}

		burned := filepath.Join(jobDir, base+"_caption.mp4")
		if !job.BurnSubtitles || len(words) == 0 {
			continue
		}
		style := subtitle.DefaultASSStyle()
		if job.SubtitleFont != "" {
			style.FontName = job.SubtitleFont
		}
		if job.SubtitleSize > 0 {
			style.FontSize = job.SubtitleSize
		}
		assPath := filepath.Join(tmpDir, base+".ass")
		if err := os.WriteFile(assPath, []byte(subtitle.RenderKaraokeASS(words, style)), 0644); err != nil {
			logger.Warn("karaoke script write failed", "job", job.ID, "clip", clip, "error", err)
			continue
		}
		reburned := filepath.Join(tmpDir, base+"_words.mp4")
		if err := r.Media.BurnASS(ctx, clip, assPath, reburned); err != nil {
			logger.Warn("word-level burn failed", "job", job.ID, "clip", clip, "error", err)
			continue
		}
		if err := os.Rename(reburned, burned); err != nil {
			logger.Warn("word-level burn replace failed", "job", job.ID, "clip", clip, "error", err)
		}
	}
}

// extractWords transcribes one clip and returns its word tokens,
// synthesized when the backend yields none.
func (r *Runner) extractWords(ctx context.Context, job *Job, tmpDir, clip string) ([]subtitle.Word, error) {
	wav := filepath.Join(tmpDir, filepath.Base(clip)+".wav")
	if err := r.Media.ExtractAudioMono16k(ctx, clip, wav); err != nil {
		return nil, err
	}
	defer os.Remove(wav)

	engine := r.Engines(job.WhisperModel)
	tr, err := engine.Transcribe(ctx, wav, tmpDir, job.CaptionLang)
	if err != nil {
		return nil, err
	}
	return tr.WordTokens(), nil
}

// purgeOutputs deletes accumulated artifacts after cancellation.
func (r *Runner) purgeOutputs(jobID string) {
	if err := os.RemoveAll(r.Cfg.JobDir(jobID)); err != nil {
		logger.Warn("output purge failed", "job", jobID, "error", err)
	}
}

// clipName formats the 1-based, zero-padded artifact stem.
func clipName(idx int) string {
	return fmt.Sprintf("clip_%03d", idx)
}

func writeWordSidecar(path string, words []subtitle.Word) error {
	if words == nil {
		words = []subtitle.Word{}
	}
	data, err := json.MarshalIndent(map[string]any{"words": words}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
