package queue

import (
	"errors"

	"vidmill/internal/media"
)

var (
	// ErrJobNotFound is returned when an ID does not name a job in the queue.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueClosed is returned by EnqueueBatch after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// Fixed failure messages for synthetic outcomes. Renderers compare against
// these to style cancellations differently from engine failures.
const (
	CancelledMessage            = "cancelled"
	CancelledBeforeStartMessage = "cancelled before start"
	StoppedMessage              = "daemon stopped"
	TimeoutMessage              = "timeout"
)

// ErrorClassifier allows errors to declare their classification for
// rejection reporting.
type ErrorClassifier interface {
	ErrorKind() string
}

// RejectReason maps an enqueue error onto a short label for metrics and
// API responses.
func RejectReason(err error) string {
	if errors.Is(err, media.ErrInvalidRef) {
		return "media"
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return "invalid"
}
