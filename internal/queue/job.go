package queue

import (
	"time"

	"vidmill/internal/media"
	"vidmill/internal/transform"
)

// Job is one media item paired with the spec it will be transformed with.
// Spec and Media are fixed at creation; the queue mutates only Status,
// Progress, Result, Outputs, Error, and the timestamps.
type Job struct {
	ID         string
	Label      string
	Status     Status
	Progress   int
	Spec       transform.Spec
	Media      media.Ref
	Result     string
	Outputs    []string
	Error      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// IsTerminal reports whether the job is completed or failed.
func (j Job) IsTerminal() bool { return j.Status.IsTerminal() }

// IsCancelled reports whether the job failed through Cancel or
// CancelAllPending rather than an engine error.
func (j Job) IsCancelled() bool {
	return j.Status == StatusFailed && (j.Error == CancelledMessage || j.Error == CancelledBeforeStartMessage)
}

// Duration is the processing wall time, or zero if the job never started or
// has not finished.
func (j Job) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// Clone returns a copy that shares no slices with j.
func (j Job) Clone() Job {
	j.Media = j.Media.Clone()
	if j.Outputs != nil {
		j.Outputs = append([]string(nil), j.Outputs...)
	}
	return j
}
