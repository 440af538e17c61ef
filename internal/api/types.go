package api

import (
	"vidmill/internal/media"
	"vidmill/internal/store"
	"vidmill/internal/transform"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue job in a transport-friendly format.
type Job struct {
	ID              string         `json:"id"`
	Label           string         `json:"label"`
	Status          string         `json:"status"`
	Progress        int            `json:"progress"`
	Media           media.Ref      `json:"mediaRef"`
	Spec            transform.Spec `json:"spec"`
	Result          string         `json:"result,omitempty"`
	Outputs         []string       `json:"outputs,omitempty"`
	Error           string         `json:"error,omitempty"`
	Cancelled       bool           `json:"cancelled"`
	CreatedAt       string         `json:"createdAt,omitempty"`
	StartedAt       string         `json:"startedAt,omitempty"`
	FinishedAt      string         `json:"finishedAt,omitempty"`
	DurationSeconds float64        `json:"durationSeconds,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs   []Job          `json:"jobs"`
	Counts map[string]int `json:"counts"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// SubmitItem is one entry of a batch submission. Exactly one of Spec and
// Preset should be set; with neither, the editor defaults apply.
type SubmitItem struct {
	Media  media.Ref       `json:"mediaRef"`
	Spec   *transform.Spec `json:"spec,omitempty"`
	Preset string          `json:"preset,omitempty"`
	Label  string          `json:"label,omitempty"`
}

// SubmitRequest is the POST /api/jobs body.
type SubmitRequest struct {
	Items []SubmitItem `json:"items"`
}

// FieldError is one rejected spec field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SubmitResult reports the fate of one SubmitItem.
type SubmitResult struct {
	Index  int          `json:"index"`
	JobID  string       `json:"jobId,omitempty"`
	Error  string       `json:"error,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Fields []FieldError `json:"fields,omitempty"`
}

// SubmitResponse lists per-item results in request order.
type SubmitResponse struct {
	Results  []SubmitResult `json:"results"`
	Accepted int            `json:"accepted"`
	Rejected int            `json:"rejected"`
}

// CountResponse reports how many jobs an operation touched.
type CountResponse struct {
	Count   int   `json:"count"`
	Journal int64 `json:"journal,omitempty"`
}

// PresetListResponse wraps presets ordered by name.
type PresetListResponse struct {
	Presets []store.Preset `json:"presets"`
}

// UploadResponse names the stored upload and the reference to submit it with.
type UploadResponse struct {
	Media media.Ref `json:"mediaRef"`
	Size  int64     `json:"size"`
}

// LibraryResponse lists download folders.
type LibraryResponse struct {
	Root    string         `json:"root"`
	Folders []media.Folder `json:"folders"`
}

// FolderResponse lists the videos in one folder.
type FolderResponse struct {
	Folder string   `json:"folder"`
	Videos []string `json:"videos"`
}

// HealthResponse aggregates daemon runtime information.
type HealthResponse struct {
	Status   string               `json:"status"`
	PID      int                  `json:"pid"`
	Engine   string               `json:"engine"`
	Uptime   string               `json:"uptime"`
	Counts   map[string]int       `json:"counts"`
	Database store.DatabaseHealth `json:"database"`
	Checks   []Check              `json:"checks,omitempty"`
}

// Check is one readiness probe result.
type Check struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error         string       `json:"error"`
	Fields        []FieldError `json:"fields,omitempty"`
	CorrelationID string       `json:"correlationId,omitempty"`
}
