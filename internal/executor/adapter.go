package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"vidmill/internal/logging"
	"vidmill/internal/queue"
)

var (
	// ErrBusy is returned by Submit while another submission is outstanding.
	ErrBusy = errors.New("executor busy")
	// ErrTimeout is the context cause recorded when a job exceeds its deadline.
	ErrTimeout = errors.New("executor timeout")
)

type flight struct {
	jobID string
	ctx   context.Context
}

// Adapter turns an Engine into a queue.Dispatcher.
type Adapter struct {
	engine  Engine
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	active *flight
}

// NewAdapter wraps engine. A zero timeout disables the per-job deadline.
func NewAdapter(engine Engine, timeout time.Duration, logger *slog.Logger) *Adapter {
	return &Adapter{
		engine:  engine,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "executor"),
	}
}

// Submit starts sub on the engine and returns immediately. report is called
// exactly once from another goroutine: with the engine result, with
// queue.TimeoutMessage when the deadline passes first, or with
// queue.CancelledMessage when ctx is cancelled first. A submission whose
// context is done no longer counts as outstanding, so the queue can dispatch
// its next job right after a cancel.
func (a *Adapter) Submit(ctx context.Context, sub queue.Submission, report queue.ReportFunc) error {
	if sub.JobID == "" {
		return errors.New("submission has no job id")
	}
	if report == nil {
		return errors.New("submission has no report callback")
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if a.timeout > 0 {
		runCtx, cancel = context.WithTimeoutCause(ctx, a.timeout, ErrTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	a.mu.Lock()
	if a.active != nil && a.active.ctx.Err() == nil {
		busy := a.active.jobID
		a.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: job %s is still running", ErrBusy, busy)
	}
	f := &flight{jobID: sub.JobID, ctx: runCtx}
	a.active = f
	a.mu.Unlock()

	logger := logging.WithContext(runCtx, a.logger).With(logging.Job(sub.JobID))
	logger.Info("submission accepted", logging.String("engine", a.engine.Name()), logging.String("label", sub.Label))

	results := make(chan queue.Outcome, 1)
	go a.run(runCtx, sub, results, logger)
	go func() {
		defer cancel()
		var outcome queue.Outcome
		select {
		case outcome = <-results:
		case <-runCtx.Done():
			outcome = interruptedOutcome(runCtx)
			logger.Warn("submission abandoned before engine returned", logging.String("reason", outcome.Message))
		}
		a.release(f)
		report(sub.JobID, outcome)
	}()
	return nil
}

func (a *Adapter) run(ctx context.Context, sub queue.Submission, results chan<- queue.Outcome, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "engine panicked", "engine_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			results <- queue.Failure(fmt.Sprintf("engine panic: %v", r))
		}
	}()

	started := time.Now()
	res, err := a.engine.Run(ctx, sub)
	if ctx.Err() != nil {
		results <- interruptedOutcome(ctx)
		return
	}
	if err != nil {
		logger.Warn("engine run failed", logging.Error(err), logging.Duration("elapsed", time.Since(started)))
		results <- queue.Failure(err.Error())
		return
	}
	logger.Info("engine run finished", logging.String("artifact", res.Artifact), logging.Duration("elapsed", time.Since(started)))
	results <- queue.Success(res.Artifact, res.Outputs...)
}

func (a *Adapter) release(f *flight) {
	a.mu.Lock()
	if a.active == f {
		a.active = nil
	}
	a.mu.Unlock()
}

// Active returns the job ID of the outstanding submission, if any.
func (a *Adapter) Active() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil || a.active.ctx.Err() != nil {
		return "", false
	}
	return a.active.jobID, true
}

// EngineName reports the wrapped engine's name.
func (a *Adapter) EngineName() string {
	return a.engine.Name()
}

func interruptedOutcome(ctx context.Context) queue.Outcome {
	if errors.Is(context.Cause(ctx), ErrTimeout) {
		return queue.Failure(queue.TimeoutMessage)
	}
	return queue.Failure(queue.CancelledMessage)
}
