package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidmill/internal/logging"
	"vidmill/internal/media"
	"vidmill/internal/progress"
	"vidmill/internal/transform"
)

// Submission is what the queue hands to a Dispatcher for the job it promotes.
type Submission struct {
	JobID string
	Label string
	Media media.Ref
	Spec  transform.Spec
}

// ReportFunc delivers a job's terminal outcome back to the queue.
type ReportFunc func(jobID string, outcome Outcome)

// Dispatcher starts executing one submission and returns without waiting for
// it. It must call report exactly once per accepted submission, from its own
// goroutine rather than from inside Submit. ctx is cancelled when the queue
// stops caring about the job (cancellation or shutdown).
type Dispatcher interface {
	Submit(ctx context.Context, sub Submission, report ReportFunc) error
}

// Recorder persists job snapshots after each lifecycle transition.
type Recorder interface {
	RecordJob(ctx context.Context, job Job) error
}

// Observer receives queue events. Calls happen with the queue locked, so
// implementations must not block or call back into the queue.
type Observer interface {
	JobEnqueued(job Job)
	JobRejected(reason string)
	JobStarted(job Job)
	JobFinished(job Job)
	StaleCallback(jobID string)
	QueueDepth(pending, processing int)
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) JobEnqueued(job Job) {
	for _, obs := range o {
		obs.JobEnqueued(job)
	}
}

func (o Observers) JobRejected(reason string) {
	for _, obs := range o {
		obs.JobRejected(reason)
	}
}

func (o Observers) JobStarted(job Job) {
	for _, obs := range o {
		obs.JobStarted(job)
	}
}

func (o Observers) JobFinished(job Job) {
	for _, obs := range o {
		obs.JobFinished(job)
	}
}

func (o Observers) StaleCallback(jobID string) {
	for _, obs := range o {
		obs.StaleCallback(jobID)
	}
}

func (o Observers) QueueDepth(pending, processing int) {
	for _, obs := range o {
		obs.QueueDepth(pending, processing)
	}
}

// Item is one entry of an EnqueueBatch call.
type Item struct {
	Media media.Ref
	Spec  transform.Spec
	// Label overrides the display name derived from Media.
	Label string
}

// EnqueueResult reports the fate of one Item. Exactly one of JobID and Err is
// set.
type EnqueueResult struct {
	Index int
	JobID string
	Err   error
}

type entry struct {
	job          Job
	cancel       context.CancelFunc
	stopProgress func()
}

// Queue is the single-flight FIFO scheduler.
type Queue struct {
	mu sync.Mutex

	dispatcher Dispatcher
	estimator  progress.Estimator
	recorder   Recorder
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
	rng        *rand.Rand
	newID      func() string

	ctx        context.Context
	stop       context.CancelFunc
	closed     bool
	jobs       []*entry
	index      map[string]*entry
	processing *entry
}

// Option customizes a Queue.
type Option func(*Queue)

// WithLogger sets the base logger; the queue tags it with component=queue.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithEstimator attaches a progress estimator to processing jobs.
func WithEstimator(estimator progress.Estimator) Option {
	return func(q *Queue) { q.estimator = estimator }
}

// WithRecorder persists every lifecycle transition.
func WithRecorder(recorder Recorder) Option {
	return func(q *Queue) { q.recorder = recorder }
}

// WithObserver reports queue events, typically to metrics.
func WithObserver(observer Observer) Option {
	return func(q *Queue) { q.observer = observer }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithRand fixes the source used to bake randomized spec fields.
func WithRand(rng *rand.Rand) Option {
	return func(q *Queue) { q.rng = rng }
}

// WithIDGenerator overrides uuid job identifiers.
func WithIDGenerator(newID func() string) Option {
	return func(q *Queue) { q.newID = newID }
}

// New builds a queue that dispatches through d.
func New(d Dispatcher, opts ...Option) *Queue {
	ctx, stop := context.WithCancel(context.Background())
	q := &Queue{
		dispatcher: d,
		now:        time.Now,
		newID:      uuid.NewString,
		ctx:        ctx,
		stop:       stop,
		index:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = logging.NewComponentLogger(q.logger, "queue")
	return q
}

// EnqueueBatch validates every item and appends a pending job for each valid
// one, in input order. Invalid items are reported individually and never
// become jobs. The only returned error is ErrQueueClosed.
func (q *Queue) EnqueueBatch(items []Item) ([]EnqueueResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	results := make([]EnqueueResult, len(items))
	accepted := 0
	for i, item := range items {
		results[i].Index = i
		job, err := q.newJob(item)
		if err != nil {
			results[i].Err = err
			reason := RejectReason(err)
			q.logger.Warn("job rejected",
				logging.Int("index", i),
				logging.String("reason", reason),
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_rejected"),
			)
			if q.observer != nil {
				q.observer.JobRejected(reason)
			}
			continue
		}
		e := &entry{job: job}
		q.jobs = append(q.jobs, e)
		q.index[job.ID] = e
		results[i].JobID = job.ID
		accepted++
		q.record(e)
		if q.observer != nil {
			q.observer.JobEnqueued(job.Clone())
		}
		q.logger.Info("job enqueued",
			logging.Job(job.ID),
			logging.String("label", job.Label),
		)
	}

	if accepted > 0 {
		q.tick()
	}
	q.publishDepth()
	return results, nil
}

func (q *Queue) newJob(item Item) (Job, error) {
	if err := item.Media.Validate(); err != nil {
		return Job{}, err
	}
	if err := item.Spec.Validate(); err != nil {
		return Job{}, err
	}
	label := strings.TrimSpace(item.Label)
	if label == "" {
		label = item.Media.Label()
	}
	return Job{
		ID:        q.newID(),
		Label:     label,
		Status:    StatusPending,
		Spec:      item.Spec.Bake(q.rng),
		Media:     item.Media.Clone(),
		CreatedAt: q.now(),
	}, nil
}

// tick promotes the oldest pending job when nothing is processing. A dispatch
// error fails that job and the loop moves on to the next one. Callers hold
// q.mu.
func (q *Queue) tick() {
	for !q.closed && q.processing == nil {
		e := q.nextPending()
		if e == nil {
			return
		}
		if !q.transition(e, StatusProcessing) {
			return
		}
		e.job.Progress = 0
		e.job.StartedAt = q.now()
		q.processing = e

		ctx, cancel := context.WithCancel(logging.WithJobID(q.ctx, e.job.ID))
		e.cancel = cancel
		q.record(e)
		if q.observer != nil {
			q.observer.JobStarted(e.job.Clone())
		}
		q.logger.Info("job started",
			logging.Job(e.job.ID),
			logging.String("label", e.job.Label),
		)

		sub := Submission{JobID: e.job.ID, Label: e.job.Label, Media: e.job.Media.Clone(), Spec: e.job.Spec}
		if err := q.dispatcher.Submit(ctx, sub, q.OnExecutorResult); err != nil {
			q.finish(e, Failure(fmt.Sprintf("dispatch: %v", err)))
			continue
		}
		if q.estimator != nil {
			e.stopProgress = q.estimator.Start(e.job.ID, q.reportProgress)
		}
	}
}

func (q *Queue) nextPending() *entry {
	for _, e := range q.jobs {
		if e.job.Status == StatusPending {
			return e
		}
	}
	return nil
}

// OnExecutorResult applies a terminal outcome to the processing job and
// advances the queue. Results for jobs that are no longer processing are
// dropped.
func (q *Queue) OnExecutorResult(jobID string, outcome Outcome) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.index[jobID]
	if e == nil || e.job.Status != StatusProcessing {
		q.logger.Debug("stale executor result dropped",
			logging.Job(jobID),
			logging.Bool("succeeded", outcome.Succeeded),
		)
		if q.observer != nil {
			q.observer.StaleCallback(jobID)
		}
		return
	}
	q.finish(e, outcome)
	q.tick()
	q.publishDepth()
}

// Cancel fails the processing job with CancelledMessage and starts the next
// one. It returns false for pending, terminal, and unknown jobs.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.index[jobID]
	if e == nil || e.job.Status != StatusProcessing {
		return false
	}
	q.finish(e, Failure(CancelledMessage))
	q.tick()
	q.publishDepth()
	return true
}

// CancelAllPending fails every pending job without dispatching it and
// returns how many were cancelled. The processing job is left alone.
func (q *Queue) CancelAllPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, e := range q.jobs {
		if e.job.Status != StatusPending {
			continue
		}
		if q.failPending(e, CancelledBeforeStartMessage) {
			count++
		}
	}
	if count > 0 {
		q.logger.Info("pending jobs cancelled", logging.Int("count", count))
	}
	q.publishDepth()
	return count
}

// PurgeTerminal drops completed and failed jobs and returns how many were
// removed.
func (q *Queue) PurgeTerminal() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.jobs[:0]
	removed := 0
	for _, e := range q.jobs {
		if e.job.IsTerminal() {
			delete(q.index, e.job.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.jobs); i++ {
		q.jobs[i] = nil
	}
	q.jobs = kept
	if removed > 0 {
		q.logger.Info("terminal jobs purged", logging.Int("count", removed))
	}
	return removed
}

// Snapshot returns copies of every job in creation order.
func (q *Queue) Snapshot() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, len(q.jobs))
	for _, e := range q.jobs {
		out = append(out, e.job.Clone())
	}
	return out
}

// Get returns a copy of one job.
func (q *Queue) Get(jobID string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.index[jobID]
	if e == nil {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return e.job.Clone(), nil
}

// Close stops accepting work and fails every pending and processing job with
// StoppedMessage. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	if q.processing != nil {
		q.finish(q.processing, Failure(StoppedMessage))
	}
	for _, e := range q.jobs {
		if e.job.Status == StatusPending {
			q.failPending(e, StoppedMessage)
		}
	}
	q.stop()
	q.publishDepth()
}

func (q *Queue) reportProgress(jobID string, percent int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.index[jobID]
	if e == nil || e.job.Status != StatusProcessing {
		return
	}
	if percent <= e.job.Progress || percent >= 100 {
		return
	}
	e.job.Progress = percent
}

// finish moves the processing entry to its terminal state. Callers hold q.mu.
func (q *Queue) finish(e *entry, outcome Outcome) {
	target := StatusFailed
	if outcome.Succeeded {
		target = StatusCompleted
	}
	if !q.transition(e, target) {
		return
	}
	if e.stopProgress != nil {
		e.stopProgress()
		e.stopProgress = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if q.processing == e {
		q.processing = nil
	}

	e.job.FinishedAt = q.now()
	if outcome.Succeeded {
		e.job.Progress = 100
		e.job.Result = outcome.Artifact
		if len(outcome.Outputs) > 0 {
			e.job.Outputs = append([]string(nil), outcome.Outputs...)
		}
	} else {
		e.job.Error = outcome.Message
	}

	q.record(e)
	if q.observer != nil {
		q.observer.JobFinished(e.job.Clone())
	}

	attrs := []logging.Attr{
		logging.Job(e.job.ID),
		logging.String(logging.FieldStatus, string(e.job.Status)),
		logging.Duration("duration", e.job.Duration()),
	}
	switch {
	case outcome.Succeeded:
		q.logger.Info("job completed", logging.Args(append(attrs, logging.String("result", e.job.Result))...)...)
	case e.job.IsCancelled() || e.job.Error == StoppedMessage:
		q.logger.Warn("job cancelled", logging.Args(append(attrs, logging.String("reason", e.job.Error))...)...)
	default:
		logging.WarnWithContext(q.logger, "job failed", "job_failed",
			append(attrs,
				logging.String("error_message", e.job.Error),
				logging.String(logging.FieldErrorHint, "inspect the engine output in the daemon log"),
			)...,
		)
	}
}

func (q *Queue) failPending(e *entry, message string) bool {
	if !q.transition(e, StatusFailed) {
		return false
	}
	e.job.Error = message
	e.job.FinishedAt = q.now()
	q.record(e)
	if q.observer != nil {
		q.observer.JobFinished(e.job.Clone())
	}
	return true
}

func (q *Queue) transition(e *entry, to Status) bool {
	if !CanTransition(e.job.Status, to) {
		q.logger.Debug("illegal transition ignored",
			logging.Job(e.job.ID),
			logging.String("from", string(e.job.Status)),
			logging.String("to", string(to)),
		)
		return false
	}
	e.job.Status = to
	return true
}

func (q *Queue) record(e *entry) {
	if q.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.recorder.RecordJob(ctx, e.job.Clone()); err != nil {
		logging.WarnWithContext(q.logger, "job journal write failed", "journal_write",
			logging.Job(e.job.ID),
			logging.Error(err),
		)
	}
}

func (q *Queue) publishDepth() {
	if q.observer == nil {
		return
	}
	pending, processing := 0, 0
	for _, e := range q.jobs {
		switch e.job.Status {
		case StatusPending:
			pending++
		case StatusProcessing:
			processing++
		}
	}
	q.observer.QueueDepth(pending, processing)
}
