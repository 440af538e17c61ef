package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"vidmill/internal/queue"
	"vidmill/internal/transform"
)

// ErrNotFound is returned when a job or preset does not exist.
var ErrNotFound = errors.New("not found")

// DaemonStopReason is the error recorded for jobs a previous daemon left
// unfinished.
const DaemonStopReason = queue.StoppedMessage

const jobColumns = "id, label, status, progress, media_json, spec_json, result, outputs_json, error_message, created_at, started_at, finished_at"

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	Statuses []queue.Status
	Limit    int
}

// RecordJob upserts a snapshot of job. It implements queue.Recorder.
func (s *Store) RecordJob(ctx context.Context, job queue.Job) error {
	if job.ID == "" {
		return errors.New("record job: id is empty")
	}
	mediaJSON, err := json.Marshal(job.Media)
	if err != nil {
		return fmt.Errorf("record job: encode media: %w", err)
	}
	specJSON, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("record job: encode spec: %w", err)
	}
	var outputs any
	if len(job.Outputs) > 0 {
		encoded, err := json.Marshal(job.Outputs)
		if err != nil {
			return fmt.Errorf("record job: encode outputs: %w", err)
		}
		outputs = string(encoded)
	}
	created := job.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO jobs (`+jobColumns+`, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             label = excluded.label, status = excluded.status, progress = excluded.progress,
             result = excluded.result, outputs_json = excluded.outputs_json,
             error_message = excluded.error_message, started_at = excluded.started_at,
             finished_at = excluded.finished_at, updated_at = excluded.updated_at`,
		job.ID,
		job.Label,
		job.Status,
		job.Progress,
		string(mediaJSON),
		string(specJSON),
		nullableString(job.Result),
		outputs,
		nullableString(job.Error),
		formatTime(created),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	if job.IsTerminal() && s.historyLimit > 0 {
		if err := s.trimHistory(ctx); err != nil {
			return err
		}
	}
	return nil
}

// GetJob fetches one journal row.
func (s *Store) GetJob(ctx context.Context, id string) (queue.Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return queue.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns journal rows newest first.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]queue.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(filter.Statuses)+1)
	if len(filter.Statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(filter.Statuses)) + `)`
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []queue.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// PurgeJobs deletes every terminal journal row.
func (s *Store) PurgeJobs(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status IN (?, ?)`, queue.StatusCompleted, queue.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	return res.RowsAffected()
}

// MarkInterrupted fails rows a previous process left pending or processing.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	ts := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
         WHERE status IN (?, ?)`,
		queue.StatusFailed,
		DaemonStopReason,
		ts,
		ts,
		queue.StatusPending,
		queue.StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of journal rows grouped by status.
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[queue.Status]int)
	for rows.Next() {
		var (
			status queue.Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) trimHistory(ctx context.Context) error {
	_, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE rowid IN (
             SELECT rowid FROM jobs WHERE status IN (?, ?)
             ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?
         )`,
		queue.StatusCompleted, queue.StatusFailed, s.historyLimit,
	)
	if err != nil {
		return fmt.Errorf("trim job history: %w", err)
	}
	return nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (queue.Job, error) {
	var (
		job         queue.Job
		status      string
		mediaJSON   string
		specJSON    string
		result      sql.NullString
		outputsJSON sql.NullString
		errMessage  sql.NullString
		createdRaw  string
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Label,
		&status,
		&job.Progress,
		&mediaJSON,
		&specJSON,
		&result,
		&outputsJSON,
		&errMessage,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return queue.Job{}, err
	}

	job.Status = queue.Status(status)
	job.Result = result.String
	job.Error = errMessage.String
	if err := json.Unmarshal([]byte(mediaJSON), &job.Media); err != nil {
		return queue.Job{}, fmt.Errorf("decode media for %s: %w", job.ID, err)
	}
	spec, err := transform.Parse([]byte(specJSON))
	if err != nil {
		return queue.Job{}, fmt.Errorf("decode spec for %s: %w", job.ID, err)
	}
	job.Spec = spec
	if outputsJSON.Valid && outputsJSON.String != "" {
		if err := json.Unmarshal([]byte(outputsJSON.String), &job.Outputs); err != nil {
			return queue.Job{}, fmt.Errorf("decode outputs for %s: %w", job.ID, err)
		}
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(startedRaw.String); err == nil {
		job.StartedAt = t
	}
	if t, err := parseTimeString(finishedRaw.String); err == nil {
		job.FinishedAt = t
	}
	return job, nil
}

var _ queue.Recorder = (*Store)(nil)
