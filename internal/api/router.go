package api

import "net/http"

// NewRouter creates the HTTP router with all API endpoints
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	// Job management
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("POST /api/jobs/upload", h.UploadJob)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("GET /api/jobs/{id}/archive", h.Archive)
	mux.HandleFunc("GET /api/jobs/{id}/words", h.Words)
	mux.HandleFunc("GET /api/jobs/{id}/clips/{idx}/words", h.ClipWords)

	// Artifact download
	mux.HandleFunc("GET /files/{id}/{name}", h.ServeFile)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}
