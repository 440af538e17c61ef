package executor

import (
	"context"

	"vidmill/internal/queue"
)

// Result is what an engine produced for a submission.
type Result struct {
	// Artifact is the primary output.
	Artifact string
	// Outputs lists every produced file for batch references.
	Outputs []string
}

// Engine runs one submission to completion. Implementations should stop work
// when ctx is cancelled, but callers never rely on it.
type Engine interface {
	Name() string
	Run(ctx context.Context, sub queue.Submission) (Result, error)
}

// EngineFunc adapts a function into an Engine.
type EngineFunc func(ctx context.Context, sub queue.Submission) (Result, error)

func (f EngineFunc) Name() string { return "func" }

func (f EngineFunc) Run(ctx context.Context, sub queue.Submission) (Result, error) {
	return f(ctx, sub)
}
