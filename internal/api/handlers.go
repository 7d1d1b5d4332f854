package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bobarin/codereel/internal/apperr"
	"github.com/bobarin/codereel/internal/models"
	"github.com/bobarin/codereel/internal/schema"
	"github.com/bobarin/codereel/internal/services"
	"github.com/bobarin/codereel/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, id string, patch models.JobPatch) error
}

type PrepQueue interface {
	EnqueuePrep(ctx context.Context, body models.PrepMessage) error
}

type AssetStore interface {
	Get(ctx context.Context, key string) (*storage.Object, error)
}

type SignatureVerifier interface {
	Verify(key string, exp int64, sig string) bool
}

// RenderPreviewer rebuilds a job's render message with fresh URLs.
type RenderPreviewer interface {
	Preview(ctx context.Context, job *models.Job) (*models.RenderMessage, error)
}

const (
	serviceName       = "codereel"
	assetCacheControl = "private, max-age=60"
)

type Handler struct {
	jobs             JobStore
	queue            PrepQueue
	assets           AssetStore
	verifier         SignatureVerifier
	previews         RenderPreviewer
	playbackTemplate string
}

func NewHandler(jobs JobStore, q PrepQueue, assets AssetStore, verifier SignatureVerifier, previews RenderPreviewer, playbackTemplate string) *Handler {
	return &Handler{
		jobs:             jobs,
		queue:            q,
		assets:           assets,
		verifier:         verifier,
		previews:         previews,
		playbackTemplate: playbackTemplate,
	}
}

// validateCreate rejects a request before anything is stored.
func validateCreate(req *models.CreateJobRequest) error {
	if strings.TrimSpace(req.Code) == "" {
		return apperr.New(apperr.KindInputValidation, "code is required")
	}
	if n := utf8.RuneCountInString(req.Code); n > models.MaxCodeLength {
		return apperr.Newf(apperr.KindInputValidation, "code is %d characters, limit is %d", n, models.MaxCodeLength)
	}
	if !req.Language.Valid() {
		return apperr.Newf(apperr.KindInputValidation, "unsupported language %q (want python, java or js)", req.Language)
	}
	return nil
}

// CreateJob handles POST /api/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateCreate(&req); err != nil {
		respondAppError(w, err)
		return
	}

	job := &models.Job{
		ID:                uuid.NewString(),
		Status:            models.JobStatusQueued,
		Language:          req.Language,
		ExternalProblemID: req.ExternalProblemID,
	}
	if err := h.jobs.CreateJob(r.Context(), job); err != nil {
		log.Printf("[API] failed to create job: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	msg := models.PrepMessage{
		JobID:             job.ID,
		Code:              req.Code,
		Language:          req.Language,
		ExternalProblemID: req.ExternalProblemID,
		Size:              utf8.RuneCountInString(req.Code),
	}
	if err := h.queue.EnqueuePrep(r.Context(), msg); err != nil {
		log.Printf("[API] failed to enqueue job %s: %v", job.ID, err)
		failed := models.JobStatusFailed
		reason := "failed to enqueue prep job"
		if uerr := h.jobs.UpdateJob(r.Context(), job.ID, models.JobPatch{Status: &failed, Message: &reason}); uerr != nil {
			log.Printf("[API] failed to mark job %s failed: %v", job.ID, uerr)
		}
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusOK, models.CreateJobResponse{JobID: job.ID})
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewJobResponse(job))
}

// Callback handles POST /api/jobs/{id}/callback from the renderer.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	var req models.CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status != models.JobStatusDone && req.Status != models.JobStatusFailed {
		respondError(w, http.StatusBadRequest, "status must be done or failed")
		return
	}

	id := chi.URLParam(r, "id")
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if !models.CanTransition(job.Status, req.Status) {
		respondAppError(w, apperr.Newf(apperr.KindConflict, "job %s cannot move from %s to %s", id, job.Status, req.Status))
		return
	}

	patch := models.JobPatch{Status: &req.Status}
	if req.Message != nil {
		msg := apperr.Truncate(*req.Message, models.MaxMessageLength)
		patch.Message = &msg
	}
	if req.StreamUID != nil && *req.StreamUID != "" {
		patch.StreamUID = req.StreamUID
	}
	switch {
	case req.PlaybackURL != nil && *req.PlaybackURL != "":
		patch.PlaybackURL = req.PlaybackURL
	case patch.StreamUID != nil:
		playback := services.PlaybackURL(h.playbackTemplate, *patch.StreamUID)
		patch.PlaybackURL = &playback
	}

	if err := h.jobs.UpdateJob(r.Context(), id, patch); err != nil {
		respondAppError(w, err)
		return
	}
	log.Printf("[API] job %s: callback %s -> %s", id, job.Status, req.Status)

	updated, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewJobResponse(updated))
}

// GetAsset handles GET and HEAD /assets/get?key=&exp=&sig=
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, expStr, sig := q.Get("key"), q.Get("exp"), q.Get("sig")
	if key == "" || expStr == "" || sig == "" {
		respondError(w, http.StatusBadRequest, "key, exp and sig are required")
		return
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "exp must be epoch seconds")
		return
	}
	if !h.verifier.Verify(key, exp, sig) {
		respondAppError(w, apperr.New(apperr.KindSigning, "invalid or expired signature"))
		return
	}

	obj, err := h.assets.Get(r.Context(), key)
	if err != nil {
		respondAppError(w, err)
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", assetCacheControl)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(obj.Data)
	}
}

// GetTemplates handles GET /spec/templates
func (h *Handler) GetTemplates(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(schema.TemplatesJSON(true))
}

// GetRenderPayload handles GET /v1/jobs/{id}/render-payload
func (h *Handler) GetRenderPayload(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	msg, err := h.previews.Preview(r.Context(), job)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondAppError maps the error kind onto a status. Internal details are
// logged, not returned.
func respondAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status == http.StatusInternalServerError {
		log.Printf("[API] internal error: %v", err)
		respondJSON(w, status, map[string]string{"error": "Internal server error", "kind": string(kind)})
		return
	}
	respondJSON(w, status, map[string]string{"error": err.Error(), "kind": string(kind)})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}
