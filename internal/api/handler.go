// Package api exposes the HTTP surface: job submission, status polling,
// cancellation and artifact download. Every per-job route is gated by
// the job's access token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"clipd/internal/archive"
	"clipd/internal/config"
	"clipd/internal/jobs"
	"clipd/internal/logger"
	"clipd/internal/store"
)

// maxOutputsListed caps the outputs array in status responses.
const maxOutputsListed = 200

// Handler provides HTTP API handlers
type Handler struct {
	store    store.Store
	pool     *jobs.WorkerPool
	cfg      *config.Config
	archives *archive.Builder
}

// NewHandler creates a new API handler
func NewHandler(st store.Store, pool *jobs.WorkerPool, cfg *config.Config) *Handler {
	return &Handler{
		store:    st,
		pool:     pool,
		cfg:      cfg,
		archives: archive.NewBuilder(),
	}
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// CreateJobRequest is the request body for creating a URL-sourced job.
// The same fields double as the "options" part of an upload.
type CreateJobRequest struct {
	URL               string       `json:"url,omitempty"`
	Mode              string       `json:"mode,omitempty"`
	IntervalMinutes   int          `json:"interval_minutes,omitempty"`
	Ranges            []jobs.Range `json:"ranges,omitempty"`
	Strict1080        bool         `json:"strict_1080,omitempty"`
	MinHeightFallback int          `json:"min_height_fallback,omitempty"`
	SubtitleLangs     []string     `json:"subtitle_langs,omitempty"`
	BurnSubtitles     bool         `json:"burn_subtitles,omitempty"`
	AutoCaptions      bool         `json:"auto_captions,omitempty"`
	CaptionLang       string       `json:"caption_lang,omitempty"`
	WhisperModel      string       `json:"whisper_model,omitempty"`
	SubtitleFont      string       `json:"subtitle_font,omitempty"`
	SubtitleSize      int          `json:"subtitle_size,omitempty"`
	WordLevel         bool         `json:"word_level,omitempty"`
	Orientation       string       `json:"orientation,omitempty"`
	MaxClips          int          `json:"max_clips,omitempty"`
	DownloadSections  bool         `json:"download_sections,omitempty"`
}

// buildJob validates the request options and materializes a queued job.
func (h *Handler) buildJob(req *CreateJobRequest) (*jobs.Job, error) {
	job := jobs.NewJob()

	switch req.Mode {
	case "", jobs.ModeInterval:
		job.Mode = jobs.ModeInterval
	case jobs.ModeExplicit:
		job.Mode = jobs.ModeExplicit
	default:
		return nil, fmt.Errorf("mode must be %q or %q", jobs.ModeInterval, jobs.ModeExplicit)
	}
	if job.Mode == jobs.ModeExplicit && len(req.Ranges) == 0 {
		return nil, fmt.Errorf("explicit mode requires at least one range")
	}
	if len(req.Ranges) > jobs.MaxRanges {
		return nil, fmt.Errorf("at most %d ranges allowed, got %d", jobs.MaxRanges, len(req.Ranges))
	}
	if req.IntervalMinutes < 0 {
		return nil, fmt.Errorf("interval_minutes must be positive")
	}

	switch req.Orientation {
	case "", jobs.OrientationLandscape:
		job.Orientation = jobs.OrientationLandscape
	case jobs.OrientationPortrait:
		job.Orientation = jobs.OrientationPortrait
	default:
		return nil, fmt.Errorf("orientation must be %q or %q", jobs.OrientationLandscape, jobs.OrientationPortrait)
	}

	switch req.MinHeightFallback {
	case 0:
		// keep the default from NewJob
	case 720, 480:
		job.MinHeightFallback = req.MinHeightFallback
	default:
		return nil, fmt.Errorf("min_height_fallback must be 720 or 480")
	}

	if req.MaxClips < 0 || req.MaxClips > h.cfg.MaxClips {
		return nil, fmt.Errorf("max_clips must be between 0 and %d", h.cfg.MaxClips)
	}

	job.IntervalMinutes = req.IntervalMinutes
	job.Ranges = req.Ranges
	job.Strict1080 = req.Strict1080
	job.SubtitleLangs = req.SubtitleLangs
	if len(job.SubtitleLangs) == 0 {
		job.SubtitleLangs = h.cfg.SubtitleLangs
	}
	job.BurnSubtitles = req.BurnSubtitles
	job.AutoCaptions = req.AutoCaptions
	job.CaptionLang = req.CaptionLang
	job.WhisperModel = req.WhisperModel
	job.SubtitleFont = req.SubtitleFont
	job.SubtitleSize = req.SubtitleSize
	job.WordLevel = req.WordLevel
	job.MaxClips = req.MaxClips
	job.DownloadSections = req.DownloadSections
	job.Message = "Queued"
	return job, nil
}

// admit rejects the submission with 429 when the active-job cap is hit.
// Returns false when the response has been written.
func (h *Handler) admit(w http.ResponseWriter) bool {
	active, err := h.store.CountActive()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if active >= h.cfg.MaxActiveJobs {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":           "too many active jobs, try again later",
			"active_jobs":     active,
			"max_active_jobs": h.cfg.MaxActiveJobs,
		})
		return false
	}
	return true
}

// CreateJob handles POST /api/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	if !h.admit(w) {
		return
	}

	job, err := h.buildJob(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job.SourceKind = jobs.SourceURL
	job.SourceURL = req.URL

	if err := h.store.CreateJob(job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("job created", "job", job.ID, "source", "url")

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":           job.ID,
		"access_token": job.AccessToken,
		"status":       string(job.Status),
	})
}

// UploadJob handles POST /api/jobs/upload: a multipart form with a
// "file" part and an optional "options" part holding the same JSON as
// CreateJob (minus url).
func (h *Handler) UploadJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var req CreateJobRequest
	if opts := r.FormValue("options"); opts != "" {
		if err := json.Unmarshal([]byte(opts), &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid options")
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	if !h.admit(w) {
		return
	}

	job, err := h.buildJob(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	uploadDir := filepath.Join(h.cfg.DataDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".mp4"
	}
	dest := filepath.Join(uploadDir, job.ID+ext)
	out, err := os.Create(dest)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dest)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := out.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job.SourceKind = jobs.SourceFile
	job.SourcePath = dest

	if err := h.store.CreateJob(job); err != nil {
		os.Remove(dest)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("job created", "job", job.ID, "source", "file", "name", header.Filename)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":           job.ID,
		"access_token": job.AccessToken,
		"status":       string(job.Status),
	})
}

// authorized loads the job and checks the access token from the
// access_token query parameter or X-Access-Token header. On failure it
// writes the response and returns nil.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) *jobs.Job {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job ID required")
		return nil
	}

	job, err := h.store.GetJob(id)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil
	}

	token := r.URL.Query().Get("access_token")
	if token == "" {
		token = r.Header.Get("X-Access-Token")
	}
	if token == "" || token != job.AccessToken {
		writeError(w, http.StatusForbidden, "invalid access token")
		return nil
	}
	return job
}

// outputEntry describes one downloadable artifact.
type outputEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// listOutputs returns the job's clip artifacts as relative download
// URLs, capped at maxOutputsListed.
func (h *Handler) listOutputs(job *jobs.Job) []outputEntry {
	entries, err := os.ReadDir(h.cfg.JobDir(job.ID))
	if err != nil {
		return nil
	}

	outputs := make([]outputEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "clip_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		outputs = append(outputs, outputEntry{
			Name: e.Name(),
			Size: info.Size(),
			URL: fmt.Sprintf("/files/%s/%s?access_token=%s",
				job.ID, url.PathEscape(e.Name()), url.QueryEscape(job.AccessToken)),
		})
		if len(outputs) == maxOutputsListed {
			break
		}
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Name < outputs[j].Name })
	return outputs
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job := h.authorized(w, r)
	if job == nil {
		return
	}

	resp := map[string]interface{}{
		"job": job,
	}
	if job.Status == jobs.StatusDone {
		resp["outputs"] = h.listOutputs(job)
		resp["archive_url"] = fmt.Sprintf("/api/jobs/%s/archive?access_token=%s",
			job.ID, url.QueryEscape(job.AccessToken))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelJob handles POST /api/jobs/{id}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job := h.authorized(w, r)
	if job == nil {
		return
	}
	if job.IsTerminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("job already %s", job.Status))
		return
	}

	// Flag first so running work observes it at its next checkpoint,
	// then transition the record and signal the worker.
	if err := h.store.RequestCancel(job.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.store.MarkCanceled(job.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.pool != nil {
		h.pool.CancelJob(job.ID)
	}
	h.purgeOutputs(job.ID)
	logger.Info("job canceled via api", "job", job.ID)

	writeJSON(w, http.StatusOK, map[string]string{"status": string(jobs.StatusCanceled)})
}

// purgeOutputs removes the job's produced artifacts, best effort.
func (h *Handler) purgeOutputs(jobID string) {
	jobDir := h.cfg.JobDir(jobID)
	matches, _ := filepath.Glob(filepath.Join(jobDir, "clip_*"))
	for _, m := range matches {
		os.Remove(m)
	}
	os.Remove(filepath.Join(jobDir, "clips.zip"))
}

// Archive handles GET /api/jobs/{id}/archive
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	job := h.authorized(w, r)
	if job == nil {
		return
	}
	if job.Status != jobs.StatusDone {
		writeError(w, http.StatusConflict, "job has no finished outputs")
		return
	}

	path, err := h.archives.Build(h.cfg.JobDir(job.ID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", job.ID+".zip"))
	http.ServeFile(w, r, path)
}

// Words handles GET /api/jobs/{id}/words: every clip's word-level
// sidecar keyed by clip name.
func (h *Handler) Words(w http.ResponseWriter, r *http.Request) {
	job := h.authorized(w, r)
	if job == nil {
		return
	}

	matches, _ := filepath.Glob(filepath.Join(h.cfg.JobDir(job.ID), "clip_*.json"))
	sort.Strings(matches)
	clips := map[string]json.RawMessage{}
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(m), ".json")
		clips[name] = json.RawMessage(data)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"clips": clips})
}

// ClipWords handles GET /api/jobs/{id}/clips/{idx}/words for a single
// 1-based clip index.
func (h *Handler) ClipWords(w http.ResponseWriter, r *http.Request) {
	job := h.authorized(w, r)
	if job == nil {
		return
	}

	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil || idx < 1 {
		writeError(w, http.StatusBadRequest, "invalid clip index")
		return
	}

	path := filepath.Join(h.cfg.JobDir(job.ID), fmt.Sprintf("clip_%03d.json", idx))
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "no word data for that clip")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// ServeFile handles GET /files/{id}/{name}
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	job := h.authorized(w, r)
	if job == nil {
		return
	}

	name := r.PathValue("name")
	if name == "" || name != filepath.Base(name) || !strings.HasPrefix(name, "clip_") {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	http.ServeFile(w, r, filepath.Join(h.cfg.JobDir(job.ID), name))
}
