package store

import (
	"errors"
	"path/filepath"
	"testing"

	"clipd/internal/jobs"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "clipd.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestJob() *jobs.Job {
	job := jobs.NewJob()
	job.SourceURL = "https://example.com/watch?v=abc"
	job.Mode = jobs.ModeExplicit
	job.Ranges = []jobs.Range{{Start: "00:00:05", End: "00:00:10"}}
	job.SubtitleLangs = []string{"id", "en"}
	return job
}

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)
	job := newTestJob()
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != jobs.StatusQueued {
		t.Errorf("status = %s, want queued", got.Status)
	}
	if got.SourceURL != job.SourceURL {
		t.Errorf("source url = %q", got.SourceURL)
	}
	if len(got.Ranges) != 1 || got.Ranges[0].Start != "00:00:05" {
		t.Errorf("ranges not round-tripped: %+v", got.Ranges)
	}
	if len(got.SubtitleLangs) != 2 || got.SubtitleLangs[0] != "id" {
		t.Errorf("langs not round-tripped: %+v", got.SubtitleLangs)
	}
	if got.AccessToken != job.AccessToken {
		t.Error("access token not persisted")
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetJob("nope")
	if !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestClaimQueued(t *testing.T) {
	s := newTestStore(t)
	if job, err := s.ClaimQueued(); err != nil || job != nil {
		t.Fatalf("empty queue should yield (nil, nil), got (%v, %v)", job, err)
	}

	job := newTestJob()
	if err := s.CreateJob(job); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.ClaimQueued()
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("claimed wrong job: %+v", claimed)
	}
	if claimed.Status != jobs.StatusRunning {
		t.Errorf("claimed status = %s, want running", claimed.Status)
	}

	// the same job cannot be claimed twice
	if again, err := s.ClaimQueued(); err != nil || again != nil {
		t.Errorf("second claim should be empty, got (%v, %v)", again, err)
	}
}

func TestProgressMonotone(t *testing.T) {
	s := newTestStore(t)
	job := newTestJob()
	if err := s.CreateJob(job); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimQueued(); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateProgress(job.ID, 40, "Splitting video"); err != nil {
		t.Fatal(err)
	}
	// stale lower write must not move progress backwards
	if err := s.UpdateProgress(job.ID, 20, "Downloading video"); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 40 {
		t.Errorf("progress = %d, want 40", got.Progress)
	}
	if got.Message != "Downloading video" {
		t.Errorf("message should still update: %q", got.Message)
	}
}

func TestProgressIgnoredWhenNotRunning(t *testing.T) {
	s := newTestStore(t)
	job := newTestJob()
	if err := s.CreateJob(job); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateProgress(job.ID, 50, "should not apply"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(job.ID)
	if got.Progress != 0 {
		t.Errorf("queued job progress moved: %d", got.Progress)
	}
}

func TestCanceledIsSticky(t *testing.T) {
	s := newTestStore(t)
	job := newTestJob()
	if err := s.CreateJob(job); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimQueued(); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkCanceled(job.ID); err != nil {
		t.Fatal(err)
	}

	// a stale execution reporting success or failure must not win
	if err := s.MarkDone(job.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkFailed(job.ID, "late failure"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateProgress(job.ID, 99, "late progress"); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != jobs.StatusCanceled {
		t.Errorf("status = %s, canceled must be sticky", got.Status)
	}
	if got.Progress != 0 {
		t.Errorf("progress moved after cancel: %d", got.Progress)
	}
	if !got.CancelRequested {
		t.Error("cancel flag should be set")
	}
}

func TestMarkDoneAndFailed(t *testing.T) {
	s := newTestStore(t)
	job := newTestJob()
	if err := s.CreateJob(job); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimQueued(); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDone(job.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(job.ID)
	if got.Status != jobs.StatusDone || got.Progress != 100 {
		t.Errorf("done job: status=%s progress=%d", got.Status, got.Progress)
	}

	// terminal states don't transition further
	if err := s.MarkFailed(job.ID, "x"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetJob(job.ID)
	if got.Status != jobs.StatusDone {
		t.Errorf("done job overwritten: %s", got.Status)
	}
}

func TestRequestCancelFlag(t *testing.T) {
	s := newTestStore(t)
	job := newTestJob()
	if err := s.CreateJob(job); err != nil {
		t.Fatal(err)
	}
	flag, err := s.IsCancelRequested(job.ID)
	if err != nil || flag {
		t.Fatalf("fresh job flag = %v, %v", flag, err)
	}
	if err := s.RequestCancel(job.ID); err != nil {
		t.Fatal(err)
	}
	flag, err = s.IsCancelRequested(job.ID)
	if err != nil || !flag {
		t.Fatalf("flag after request = %v, %v", flag, err)
	}
}

func TestCountActiveAndListRecent(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.CreateJob(newTestJob()); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.CountActive()
	if err != nil || n != 3 {
		t.Fatalf("active = %d, %v", n, err)
	}

	claimed, err := s.ClaimQueued()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDone(claimed.ID); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.CountActive(); n != 2 {
		t.Errorf("active after done = %d, want 2", n)
	}

	list, err := s.ListRecent(10)
	if err != nil || len(list) != 3 {
		t.Fatalf("recent = %d jobs, %v", len(list), err)
	}
}

func TestResetInterrupted(t *testing.T) {
	s := newTestStore(t)
	job := newTestJob()
	if err := s.CreateJob(job); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimQueued(); err != nil {
		t.Fatal(err)
	}

	n, err := s.ResetInterrupted()
	if err != nil || n != 1 {
		t.Fatalf("reset = %d, %v", n, err)
	}
	got, _ := s.GetJob(job.ID)
	if got.Status != jobs.StatusQueued {
		t.Errorf("status after reset = %s", got.Status)
	}
}
