package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/site-ledger/internal/api/middleware"
	"github.com/dvloznov/site-ledger/internal/jobs"
	"github.com/dvloznov/site-ledger/internal/ledger"
	"github.com/dvloznov/site-ledger/internal/logger"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

// SourceHTTP marks voice notes uploaded through the API.
const SourceHTTP = "http"

// VoiceHandler accepts voice note uploads.
type VoiceHandler struct {
	publisher jobs.Publisher
	maxBytes  int64
	log       zerolog.Logger
}

// NewVoiceHandler creates a new voice handler. Uploads larger than maxBytes are rejected.
func NewVoiceHandler(publisher jobs.Publisher, maxBytes int64, log zerolog.Logger) *VoiceHandler {
	if maxBytes <= 0 {
		maxBytes = pipeline.DefaultMaxAudioBytes
	}
	return &VoiceHandler{
		publisher: publisher,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// UploadVoice handles POST /api/voice
// Multipart form: "audio" file (required), "message_id" and "sender" (optional).
func (h *VoiceHandler) UploadVoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	// Room for the other form fields on top of the audio itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Voice note is too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read voice note")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read audio file")
		return
	}
	if int64(len(audio)) > h.maxBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Voice note is too large")
		return
	}
	if len(audio) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	noteID := strings.TrimSpace(r.FormValue("message_id"))
	if noteID == "" {
		noteID = uuid.NewString()
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimeFromName(header.Filename)
	}

	// The worker owns the job once it is published; respond from local copies.
	jobID := uuid.NewString()
	job := &jobs.VoiceNoteJob{
		JobID:    jobID,
		Status:   jobs.JobStatusPending,
		NoteID:   noteID,
		Source:   SourceHTTP,
		Sender:   r.FormValue("sender"),
		MIMEType: mimeType,
		Audio:    pipeline.BytesAudio(audio),
	}
	if err := h.publisher.PublishVoiceNote(ctx, job); err != nil {
		log.Error().Err(err).Str("note_id", noteID).Msg("Failed to enqueue voice note")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue voice note")
		return
	}

	log.Info().
		Str("job_id", jobID).
		Str("note_id", noteID).
		Int("bytes", len(audio)).
		Msg("Voice note enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  jobID,
		"note_id": noteID,
		"status":  string(jobs.JobStatusPending),
	})
}

func mimeFromName(name string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(strings.ToLower(name), ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(strings.ToLower(name), ".wav"):
		return "audio/wav"
	default:
		return "audio/ogg"
	}
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Debug().Err(err).Str("job_id", jobID).Msg("Job not found")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Source: query.Get("source"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// ProjectLister returns the known project spreadsheets.
type ProjectLister func(ctx context.Context) ([]ledger.ProjectInfo, error)

// ProjectsHandler handles project-related endpoints.
type ProjectsHandler struct {
	list ProjectLister
	log  zerolog.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(list ProjectLister, log zerolog.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		list: list,
		log:  log,
	}
}

// ListProjects handles GET /api/projects
func (h *ProjectsHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.list(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list projects")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to list projects")
		return
	}
	if projects == nil {
		projects = []ledger.ProjectInfo{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
