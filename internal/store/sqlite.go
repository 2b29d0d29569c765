package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"clipd/internal/jobs"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	source_kind TEXT NOT NULL,
	source_url TEXT,
	source_path TEXT,
	mode TEXT NOT NULL,
	interval_minutes INTEGER NOT NULL DEFAULT 0,
	ranges TEXT,
	strict_1080 INTEGER NOT NULL DEFAULT 0,
	min_height_fallback INTEGER NOT NULL DEFAULT 720,
	subtitle_langs TEXT,
	burn_subtitles INTEGER NOT NULL DEFAULT 0,
	auto_captions INTEGER NOT NULL DEFAULT 0,
	caption_lang TEXT,
	whisper_model TEXT,
	subtitle_font TEXT,
	subtitle_size INTEGER NOT NULL DEFAULT 0,
	word_level INTEGER NOT NULL DEFAULT 0,
	orientation TEXT NOT NULL DEFAULT 'landscape',
	max_clips INTEGER NOT NULL DEFAULT 0,
	download_sections INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	error TEXT,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	access_token TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex // serializes multi-statement operations like ClaimQueued
	path string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for concurrent readers during worker writes
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// CreateJob inserts a new job record.
func (s *SQLiteStore) CreateJob(job *jobs.Job) error {
	ranges, err := json.Marshal(job.Ranges)
	if err != nil {
		return fmt.Errorf("encode ranges: %w", err)
	}
	langs, err := json.Marshal(job.SubtitleLangs)
	if err != nil {
		return fmt.Errorf("encode subtitle langs: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (
			id, source_kind, source_url, source_path, mode, interval_minutes,
			ranges, strict_1080, min_height_fallback, subtitle_langs,
			burn_subtitles, auto_captions, caption_lang, whisper_model,
			subtitle_font, subtitle_size, word_level, orientation, max_clips,
			download_sections, status, progress, message, error,
			cancel_requested, access_token, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.SourceKind, nullString(job.SourceURL), nullString(job.SourcePath),
		job.Mode, job.IntervalMinutes, string(ranges), boolToInt(job.Strict1080),
		job.MinHeightFallback, string(langs), boolToInt(job.BurnSubtitles),
		boolToInt(job.AutoCaptions), nullString(job.CaptionLang), nullString(job.WhisperModel),
		nullString(job.SubtitleFont), job.SubtitleSize, boolToInt(job.WordLevel),
		job.Orientation, job.MaxClips, boolToInt(job.DownloadSections),
		string(job.Status), job.Progress, job.Message, nullString(job.Error),
		boolToInt(job.CancelRequested), job.AccessToken,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	return err
}

const jobColumns = `id, source_kind, source_url, source_path, mode, interval_minutes,
	ranges, strict_1080, min_height_fallback, subtitle_langs, burn_subtitles,
	auto_captions, caption_lang, whisper_model, subtitle_font, subtitle_size,
	word_level, orientation, max_clips, download_sections, status, progress,
	message, error, cancel_requested, access_token, created_at, updated_at`

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(id string) (*jobs.Job, error) {
	row := s.db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	return job, err
}

// ClaimQueued atomically claims the oldest queued job.
func (s *SQLiteStore) ClaimQueued() (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		var id string
		err := s.db.QueryRow(
			"SELECT id FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1",
			string(jobs.StatusQueued),
		).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res, err := s.db.Exec(
			"UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
			string(jobs.StatusRunning), formatTime(time.Now().UTC()), id, string(jobs.StatusQueued),
		)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 1 {
			return s.GetJob(id)
		}
		// lost the race (e.g. a concurrent cancel); pick again
	}
}

// UpdateProgress bumps progress/message while running. MAX keeps progress
// monotone even if a stale execution reports a lower value.
func (s *SQLiteStore) UpdateProgress(id string, progress int, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.Exec(`
		UPDATE jobs SET progress = MAX(progress, ?), message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		progress, message, formatTime(time.Now().UTC()), id, string(jobs.StatusRunning),
	)
	return err
}

// MarkDone transitions running → done. The status guard makes canceled
// sticky: a job canceled while this execution was finishing stays
// canceled.
func (s *SQLiteStore) MarkDone(id string) error {
	_, err := s.db.Exec(`
		UPDATE jobs SET status = ?, progress = 100, message = 'Done', updated_at = ?
		WHERE id = ? AND status = ?`,
		string(jobs.StatusDone), formatTime(time.Now().UTC()), id, string(jobs.StatusRunning),
	)
	return err
}

// MarkFailed transitions running → failed, same stickiness as MarkDone.
func (s *SQLiteStore) MarkFailed(id string, errText string) error {
	_, err := s.db.Exec(`
		UPDATE jobs SET status = ?, message = 'Failed', error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(jobs.StatusFailed), errText, formatTime(time.Now().UTC()), id, string(jobs.StatusRunning),
	)
	return err
}

// MarkCanceled transitions queued or running → canceled and sets the
// cancel flag.
func (s *SQLiteStore) MarkCanceled(id string) error {
	_, err := s.db.Exec(`
		UPDATE jobs SET status = ?, message = 'Canceled', cancel_requested = 1, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(jobs.StatusCanceled), formatTime(time.Now().UTC()), id,
		string(jobs.StatusQueued), string(jobs.StatusRunning),
	)
	return err
}

// RequestCancel sets the cancellation flag.
func (s *SQLiteStore) RequestCancel(id string) error {
	_, err := s.db.Exec(
		"UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ?",
		formatTime(time.Now().UTC()), id,
	)
	return err
}

// IsCancelRequested reads the cancellation flag.
func (s *SQLiteStore) IsCancelRequested(id string) (bool, error) {
	var flag int
	err := s.db.QueryRow("SELECT cancel_requested FROM jobs WHERE id = ?", id).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	if err != nil {
		return false, err
	}
	return flag != 0, nil
}

// CountActive counts queued and running jobs.
func (s *SQLiteStore) CountActive() (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM jobs WHERE status IN (?, ?)",
		string(jobs.StatusQueued), string(jobs.StatusRunning),
	).Scan(&n)
	return n, err
}

// ListRecent returns the newest jobs first.
func (s *SQLiteStore) ListRecent(limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT "+jobColumns+" FROM jobs ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

// ResetInterrupted re-queues jobs a previous process left running.
func (s *SQLiteStore) ResetInterrupted() (int, error) {
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, message = 'Re-queued after restart', updated_at = ?
		WHERE status = ?`,
		string(jobs.StatusQueued), formatTime(time.Now().UTC()), string(jobs.StatusRunning),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*jobs.Job, error) {
	var (
		job                                                 jobs.Job
		sourceURL, sourcePath, captionLang, whisperModel    sql.NullString
		subtitleFont, errText                               sql.NullString
		rangesJSON, langsJSON                               string
		strict, burn, auto, wordLevel, sections, cancelFlag int
		createdAt, updatedAt                                string
		status                                              string
	)
	err := row.Scan(
		&job.ID, &job.SourceKind, &sourceURL, &sourcePath, &job.Mode,
		&job.IntervalMinutes, &rangesJSON, &strict, &job.MinHeightFallback,
		&langsJSON, &burn, &auto, &captionLang, &whisperModel, &subtitleFont,
		&job.SubtitleSize, &wordLevel, &job.Orientation, &job.MaxClips,
		&sections, &status, &job.Progress, &job.Message, &errText,
		&cancelFlag, &job.AccessToken, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.SourceURL = sourceURL.String
	job.SourcePath = sourcePath.String
	job.CaptionLang = captionLang.String
	job.WhisperModel = whisperModel.String
	job.SubtitleFont = subtitleFont.String
	job.Error = errText.String
	job.Status = jobs.Status(status)
	job.Strict1080 = strict != 0
	job.BurnSubtitles = burn != 0
	job.AutoCaptions = auto != 0
	job.WordLevel = wordLevel != 0
	job.DownloadSections = sections != 0
	job.CancelRequested = cancelFlag != 0

	if rangesJSON != "" && rangesJSON != "null" {
		if err := json.Unmarshal([]byte(rangesJSON), &job.Ranges); err != nil {
			return nil, fmt.Errorf("decode ranges: %w", err)
		}
	}
	if langsJSON != "" && langsJSON != "null" {
		if err := json.Unmarshal([]byte(langsJSON), &job.SubtitleLangs); err != nil {
			return nil, fmt.Errorf("decode subtitle langs: %w", err)
		}
	}
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
