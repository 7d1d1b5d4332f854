package models

import (
	"time"
)

// Enums
type JobStatus string

const (
	JobStatusQueued        JobStatus = "queued"
	JobStatusPrepping      JobStatus = "prepping"
	JobStatusReadyToRender JobStatus = "ready_to_render"
	JobStatusRendering     JobStatus = "rendering"
	JobStatusDone          JobStatus = "done"
	JobStatusFailed        JobStatus = "failed"
)

// transitions lists every status a job may move to from a given status.
// rendering is entered by the external renderer, never by this service.
var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:        {JobStatusPrepping, JobStatusFailed},
	JobStatusPrepping:      {JobStatusReadyToRender, JobStatusFailed},
	JobStatusReadyToRender: {JobStatusRendering, JobStatusDone, JobStatusFailed},
	JobStatusRendering:     {JobStatusDone, JobStatusFailed},
}

// CanTransition reports whether a job in status from may move to status to.
// Repeating the current status is allowed so redelivered updates are no-ops.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Prepared reports whether the prep pipeline has already finished for a job
// in this status, successfully or not.
func (s JobStatus) Prepared() bool {
	switch s {
	case JobStatusReadyToRender, JobStatusRendering, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

type Language string

const (
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageJavaScript Language = "js"
)

func (l Language) Valid() bool {
	switch l {
	case LanguagePython, LanguageJava, LanguageJavaScript:
		return true
	}
	return false
}

// MaxCodeLength bounds a submitted snippet, in characters.
const MaxCodeLength = 40000

// MaxMessageLength bounds the diagnostic stored on a job, in characters.
const MaxMessageLength = 500

// Models

type Job struct {
	ID                string    `json:"id"`
	Status            JobStatus `json:"status"`
	Language          Language  `json:"language"`
	ExternalProblemID *string   `json:"external_problem_id,omitempty"`
	Algo              *string   `json:"algo,omitempty"`
	PlaybackURL       *string   `json:"playback_url,omitempty"`
	StreamUID         *string   `json:"stream_uid,omitempty"`
	Message           *string   `json:"message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// JobPatch is a partial update; nil fields are left unchanged.
type JobPatch struct {
	Status      *JobStatus
	Algo        *string
	PlaybackURL *string
	StreamUID   *string
	Message     *string
}

// Detection is the Generation Service's guess at which algorithm a snippet
// implements.
type Detection struct {
	AlgoID     string   `json:"algo_id"`
	Confidence float64  `json:"confidence"`
	DS         []string `json:"ds"`
}

// Request/Response DTOs

type CreateJobRequest struct {
	Code              string   `json:"code"`
	Language          Language `json:"language"`
	ExternalProblemID *string  `json:"externalProblemId,omitempty"`
}

type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

type JobResponse struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	Language    Language  `json:"language"`
	Algo        *string   `json:"algo"`
	PlaybackURL *string   `json:"playbackUrl"`
	StreamUID   *string   `json:"streamUid"`
	Message     *string   `json:"message"`
	CreatedAt   int64     `json:"createdAt"`
	UpdatedAt   int64     `json:"updatedAt"`
}

func NewJobResponse(j *Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		Status:      j.Status,
		Language:    j.Language,
		Algo:        j.Algo,
		PlaybackURL: j.PlaybackURL,
		StreamUID:   j.StreamUID,
		Message:     j.Message,
		CreatedAt:   j.CreatedAt.Unix(),
		UpdatedAt:   j.UpdatedAt.Unix(),
	}
}

type CallbackRequest struct {
	Status      JobStatus `json:"status"`
	Message     *string   `json:"message,omitempty"`
	StreamUID   *string   `json:"streamUid,omitempty"`
	PlaybackURL *string   `json:"playbackUrl,omitempty"`
}

// Queue payloads

// PrepMessage asks the orchestrator to prepare assets for a job.
type PrepMessage struct {
	JobID             string   `json:"jobId"`
	Code              string   `json:"code"`
	Language          Language `json:"language"`
	ExternalProblemID *string  `json:"externalProblemId,omitempty"`
	Size              int      `json:"size"`
}

// RenderAssets carries freshly signed URLs for every persisted artifact.
// AudioURLs is index-aligned with the storyboard's scenes.
type RenderAssets struct {
	EventsURL     string   `json:"eventsUrl"`
	NarrationURL  string   `json:"narrationUrl"`
	ComplexityURL string   `json:"complexityUrl"`
	SyncURL       string   `json:"syncUrl"`
	AudioURLs     []string `json:"audioUrls"`
}

// UploadTarget is where the renderer sends the finished video.
type UploadTarget struct {
	UploadURL string `json:"uploadURL"`
	UID       string `json:"uid,omitempty"`
}

// RenderMessage asks the external renderer to produce the video.
type RenderMessage struct {
	JobID  string        `json:"jobId"`
	AlgoID string        `json:"algo_id"`
	Assets RenderAssets  `json:"assets"`
	Stream *UploadTarget `json:"stream,omitempty"`
}
