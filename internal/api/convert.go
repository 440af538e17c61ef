package api

import (
	"errors"
	"time"

	"vidmill/internal/queue"
	"vidmill/internal/transform"
)

// FromJob converts a queue job into its API representation.
func FromJob(job queue.Job) Job {
	dto := Job{
		ID:         job.ID,
		Label:      job.Label,
		Status:     string(job.Status),
		Progress:   job.Progress,
		Media:      job.Media,
		Spec:       job.Spec,
		Result:     job.Result,
		Outputs:    job.Outputs,
		Error:      job.Error,
		Cancelled:  job.IsCancelled(),
		CreatedAt:  formatTime(job.CreatedAt),
		StartedAt:  formatTime(job.StartedAt),
		FinishedAt: formatTime(job.FinishedAt),
	}
	if d := job.Duration(); d > 0 {
		dto.DurationSeconds = d.Seconds()
	}
	return dto
}

// FromJobs converts a slice of jobs, keeping order.
func FromJobs(jobs []queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// CountStatuses tallies jobs per status, always including every known status.
func CountStatuses(jobs []queue.Job) map[string]int {
	counts := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		counts[string(status)] = 0
	}
	for _, job := range jobs {
		counts[string(job.Status)]++
	}
	return counts
}

// FieldErrors flattens spec validation failures for API payloads.
func FieldErrors(err error) []FieldError {
	fields := transform.Fields(err)
	if len(fields) == 0 {
		return nil
	}
	out := make([]FieldError, 0, len(fields))
	for _, f := range fields {
		out = append(out, FieldError{Field: f.Field, Message: f.Reason})
	}
	return out
}

func submitResult(res queue.EnqueueResult) SubmitResult {
	out := SubmitResult{Index: res.Index, JobID: res.JobID}
	if res.Err != nil {
		out.JobID = ""
		out.Error = res.Err.Error()
		out.Reason = queue.RejectReason(res.Err)
		if errors.Is(res.Err, transform.ErrInvalidSpec) {
			out.Fields = FieldErrors(res.Err)
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
