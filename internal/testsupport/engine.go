package testsupport

import (
	"context"
	"sync"

	"vidmill/internal/executor"
	"vidmill/internal/queue"
)

// Engine is a controllable executor.Engine. Each Run blocks until the test
// releases it with Finish or its context ends.
type Engine struct {
	mu      sync.Mutex
	started chan queue.Submission
	results map[string]chan runResult
}

type runResult struct {
	res executor.Result
	err error
}

// NewEngine returns an engine whose runs wait for Finish.
func NewEngine() *Engine {
	return &Engine{
		started: make(chan queue.Submission, 64),
		results: make(map[string]chan runResult),
	}
}

func (e *Engine) Name() string { return "test" }

// Started delivers every submission as its run begins.
func (e *Engine) Started() <-chan queue.Submission { return e.started }

// Run implements executor.Engine.
func (e *Engine) Run(ctx context.Context, sub queue.Submission) (executor.Result, error) {
	ch := e.slot(sub.JobID)
	e.started <- sub
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return executor.Result{}, ctx.Err()
	}
}

// Finish completes the run for jobID with artifact, or with err when non-nil.
func (e *Engine) Finish(jobID, artifact string, err error) {
	e.slot(jobID) <- runResult{res: executor.Result{Artifact: artifact, Outputs: []string{artifact}}, err: err}
}

func (e *Engine) slot(jobID string) chan runResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.results[jobID]
	if !ok {
		ch = make(chan runResult, 1)
		e.results[jobID] = ch
	}
	return ch
}

var _ executor.Engine = (*Engine)(nil)
