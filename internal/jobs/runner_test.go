package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"clipd/internal/config"
	"clipd/internal/ffmpeg"
	"clipd/internal/logger"
	"clipd/internal/reframe"
	"clipd/internal/stt"
	"clipd/internal/ytdlp"
)

func init() {
	logger.Init("error")
}

// fakeStatus is an in-memory StatusWriter mirroring the store's guarded
// transitions.
type fakeStatus struct {
	mu       sync.Mutex
	status   Status
	progress int
	message  string
	errText  string
	cancel   bool
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{status: StatusRunning}
}

func (f *fakeStatus) UpdateProgress(id string, progress int, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != StatusRunning {
		return nil
	}
	if progress > f.progress {
		f.progress = progress
	}
	f.message = message
	return nil
}

func (f *fakeStatus) MarkDone(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusRunning {
		f.status = StatusDone
		f.progress = 100
	}
	return nil
}

func (f *fakeStatus) MarkFailed(id string, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusRunning {
		f.status = StatusFailed
		f.errText = errText
	}
	return nil
}

func (f *fakeStatus) MarkCanceled(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusRunning || f.status == StatusQueued {
		f.status = StatusCanceled
	}
	return nil
}

func (f *fakeStatus) IsCancelRequested(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel, nil
}

// fakeDownloader serves a synthetic 30s source.
type fakeDownloader struct {
	duration float64
	heights  []int
	subs     string // SRT content served by DownloadSubtitles, "" for none
}

func (f *fakeDownloader) FetchInfo(ctx context.Context, url string) (*ytdlp.Info, error) {
	info := &ytdlp.Info{Duration: f.duration}
	for _, h := range f.heights {
		info.Formats = append(info.Formats, ytdlp.Format{Height: h})
	}
	return info, nil
}

func (f *fakeDownloader) Download(ctx context.Context, url, workDir, selector string, onProgress func(float64)) (string, error) {
	if onProgress != nil {
		onProgress(100)
	}
	path := filepath.Join(workDir, "source.mp4")
	return path, os.WriteFile(path, []byte("source"), 0644)
}

func (f *fakeDownloader) DownloadSections(ctx context.Context, url, workDir, selector string, ranges [][2]float64, onProgress func(float64)) (string, error) {
	path := filepath.Join(workDir, "source.mp4")
	return path, os.WriteFile(path, []byte("sections"), 0644)
}

func (f *fakeDownloader) DownloadSubtitles(ctx context.Context, url, workDir string, langs []string) ([]string, error) {
	if f.subs == "" {
		return nil, os.ErrNotExist
	}
	path := filepath.Join(workDir, "subs.en.srt")
	return []string{path}, os.WriteFile(path, []byte(f.subs), 0644)
}

// fakeProber reports fixed dimensions.
type fakeProber struct {
	duration float64
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	return &ffmpeg.MediaInfo{Duration: f.duration, Width: 1920, Height: 1080}, nil
}

// fakeMedia records calls and writes placeholder outputs.
type fakeMedia struct {
	mu       sync.Mutex
	extracts []float64 // (start, duration) pairs flattened
	burns    int
}

func (f *fakeMedia) ExtractClip(ctx context.Context, source, output string, start, duration float64) error {
	f.mu.Lock()
	f.extracts = append(f.extracts, start, duration)
	f.mu.Unlock()
	return os.WriteFile(output, []byte("clip"), 0644)
}

func (f *fakeMedia) BurnSubtitles(ctx context.Context, input, srtPath, output, fontName string, fontSize int) error {
	f.mu.Lock()
	f.burns++
	f.mu.Unlock()
	return os.WriteFile(output, []byte("burned"), 0644)
}

func (f *fakeMedia) BurnASS(ctx context.Context, input, assPath, output string) error {
	return os.WriteFile(output, []byte("karaoke"), 0644)
}

func (f *fakeMedia) ExtractAudioMono16k(ctx context.Context, input, output string) error {
	return os.WriteFile(output, []byte("wav"), 0644)
}

func (f *fakeMedia) ConvertToPortrait(ctx context.Context, input, output string, crop reframe.Rect) error {
	return os.WriteFile(output, []byte("portrait"), 0644)
}

type fakeEngine struct {
	transcript *stt.Transcript
}

func (f *fakeEngine) Transcribe(ctx context.Context, wavPath, workDir, lang string) (*stt.Transcript, error) {
	return f.transcript, nil
}

func newTestRunner(t *testing.T, dl Downloader) (*Runner, *fakeStatus, *fakeMedia) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	status := newFakeStatus()
	media := &fakeMedia{}
	r := &Runner{
		Cfg:    cfg,
		Store:  status,
		Dl:     dl,
		Prober: &fakeProber{duration: 30},
		Media:  media,
	}
	return r, status, media
}

func TestRunExplicitRangeEndToEnd(t *testing.T) {
	dl := &fakeDownloader{duration: 30, heights: []int{1080}}
	r, status, media := newTestRunner(t, dl)

	job := NewJob()
	job.SourceURL = "https://example.com/v"
	job.Mode = ModeExplicit
	job.Ranges = []Range{{Start: "00:00:05", End: "00:00:10"}}

	r.Run(context.Background(), job)

	if status.status != StatusDone {
		t.Fatalf("status = %s (err %q), want done", status.status, status.errText)
	}
	if status.progress != 100 {
		t.Errorf("progress = %d, want 100", status.progress)
	}
	if len(media.extracts) != 2 || media.extracts[0] != 5 || media.extracts[1] != 5 {
		t.Errorf("extract args = %v, want start=5 duration=5", media.extracts)
	}

	jobDir := r.Cfg.JobDir(job.ID)
	if _, err := os.Stat(filepath.Join(jobDir, "clip_001.mp4")); err != nil {
		t.Errorf("clip artifact missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(jobDir, "clip_001.srt")); err != nil {
		t.Errorf("srt artifact missing (must exist even when empty): %v", err)
	}
	if _, err := os.Stat(r.Cfg.WorkDir(job.ID)); !os.IsNotExist(err) {
		t.Error("working directory should be removed after done")
	}
}

func TestRunCancellationBeforeCheckpoint(t *testing.T) {
	dl := &fakeDownloader{duration: 30, heights: []int{1080}}
	r, status, _ := newTestRunner(t, dl)
	status.cancel = true // requested before the first checkpoint

	job := NewJob()
	job.SourceURL = "https://example.com/v"
	job.Mode = ModeExplicit
	job.Ranges = []Range{{Start: "00:00:05", End: "00:00:10"}}

	r.Run(context.Background(), job)

	if status.status != StatusCanceled {
		t.Fatalf("status = %s, want canceled (never failed)", status.status)
	}
	if _, err := os.Stat(r.Cfg.JobDir(job.ID)); !os.IsNotExist(err) {
		t.Error("outputs should be purged on cancellation")
	}
}

func TestRunConfigErrorFails(t *testing.T) {
	dl := &fakeDownloader{duration: 30, heights: []int{1080}}
	r, status, _ := newTestRunner(t, dl)

	job := NewJob()
	job.SourceURL = "https://example.com/v"
	job.Mode = ModeExplicit
	job.Ranges = []Range{{Start: "00:00:10", End: "00:00:05"}}

	r.Run(context.Background(), job)

	if status.status != StatusFailed {
		t.Fatalf("status = %s, want failed", status.status)
	}
	if status.errText == "" {
		t.Error("failure detail should be recorded")
	}
}

func TestRunStrict1080Unavailable(t *testing.T) {
	dl := &fakeDownloader{duration: 30, heights: []int{720}}
	r, status, _ := newTestRunner(t, dl)

	job := NewJob()
	job.SourceURL = "https://example.com/v"
	job.Strict1080 = true
	job.Mode = ModeExplicit
	job.Ranges = []Range{{Start: "00:00:05", End: "00:00:10"}}

	r.Run(context.Background(), job)

	if status.status != StatusFailed {
		t.Fatalf("status = %s, want failed", status.status)
	}
}

func TestRunDurationCap(t *testing.T) {
	dl := &fakeDownloader{duration: 3 * 60 * 60, heights: []int{1080}}
	r, status, _ := newTestRunner(t, dl)

	job := NewJob()
	job.SourceURL = "https://example.com/v"

	r.Run(context.Background(), job)

	if status.status != StatusFailed {
		t.Fatalf("status = %s, want failed for over-long source", status.status)
	}
}

func TestRunBurnsPickedSubtitleTrack(t *testing.T) {
	srt := "1\n00:00:06,000 --> 00:00:08,000\nhello from the track\n"
	dl := &fakeDownloader{duration: 30, heights: []int{1080}, subs: srt}
	r, status, media := newTestRunner(t, dl)

	job := NewJob()
	job.SourceURL = "https://example.com/v"
	job.Mode = ModeExplicit
	job.Ranges = []Range{{Start: "00:00:05", End: "00:00:10"}}
	job.BurnSubtitles = true
	job.SubtitleLangs = []string{"en"}

	r.Run(context.Background(), job)

	if status.status != StatusDone {
		t.Fatalf("status = %s (err %q)", status.status, status.errText)
	}
	if media.burns != 1 {
		t.Errorf("burn count = %d, want 1", media.burns)
	}

	data, err := os.ReadFile(filepath.Join(r.Cfg.JobDir(job.ID), "clip_001.srt"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "hello from the track") {
		t.Errorf("srt missing track text:\n%s", got)
	}
	// cue is clip-relative: source 6s → clip 1s
	if !strings.Contains(got, "00:00:01,000") {
		t.Errorf("cue not shifted to clip time:\n%s", got)
	}
}

func TestRunPerClipASRCaptions(t *testing.T) {
	dl := &fakeDownloader{duration: 30, heights: []int{1080}}
	r, status, _ := newTestRunner(t, dl)
	r.Engines = func(size string) stt.Engine {
		return &fakeEngine{transcript: &stt.Transcript{Segments: []stt.Segment{
			{Start: 0.5, End: 2.5, Text: "spoken words"},
		}}}
	}
	r.Cfg.CaptionStrategy = config.CaptionPerClip

	job := NewJob()
	job.SourceURL = "https://example.com/v"
	job.Mode = ModeExplicit
	job.Ranges = []Range{{Start: "00:00:05", End: "00:00:10"}}
	job.AutoCaptions = true

	r.Run(context.Background(), job)

	if status.status != StatusDone {
		t.Fatalf("status = %s (err %q)", status.status, status.errText)
	}
	data, err := os.ReadFile(filepath.Join(r.Cfg.JobDir(job.ID), "clip_001.srt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "spoken words") {
		t.Errorf("ASR captions missing:\n%s", data)
	}
}

func TestRunPortraitFallsBackToCenterCrop(t *testing.T) {
	dl := &fakeDownloader{duration: 30, heights: []int{1080}}
	r, status, _ := newTestRunner(t, dl)
	// no Detector configured: center crop path

	job := NewJob()
	job.SourceURL = "https://example.com/v"
	job.Mode = ModeExplicit
	job.Ranges = []Range{{Start: "00:00:05", End: "00:00:10"}}
	job.Orientation = OrientationPortrait

	r.Run(context.Background(), job)

	if status.status != StatusDone {
		t.Fatalf("status = %s (err %q)", status.status, status.errText)
	}
	data, err := os.ReadFile(filepath.Join(r.Cfg.JobDir(job.ID), "clip_001.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "portrait" {
		t.Errorf("final clip should be the portrait conversion, got %q", data)
	}
}

func TestRunWordSidecarsAfterDone(t *testing.T) {
	dl := &fakeDownloader{duration: 30, heights: []int{1080}}
	r, status, _ := newTestRunner(t, dl)
	r.Engines = func(size string) stt.Engine {
		return &fakeEngine{transcript: &stt.Transcript{Segments: []stt.Segment{
			{Start: 0, End: 1, Text: "two words"},
		}}}
	}

	job := NewJob()
	job.SourceURL = "https://example.com/v"
	job.Mode = ModeExplicit
	job.Ranges = []Range{{Start: "00:00:05", End: "00:00:10"}}
	job.WordLevel = true

	r.Run(context.Background(), job)

	if status.status != StatusDone {
		t.Fatalf("status = %s (err %q)", status.status, status.errText)
	}
	sidecar := filepath.Join(r.Cfg.JobDir(job.ID), "clip_001.json")
	data, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("word sidecar missing: %v", err)
	}
	if !strings.Contains(string(data), "two") || !strings.Contains(string(data), "words") {
		t.Errorf("sidecar content wrong:\n%s", data)
	}
}
