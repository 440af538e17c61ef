package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"vidmill/internal/logging"
	"vidmill/internal/queue"
)

const (
	userAgent      = "vidmill/1.0"
	outboxCapacity = 32
	defaultTimeout = 10 * time.Second
)

// Message is one ntfy post.
type Message struct {
	Title    string
	Body     string
	Tags     []string
	Priority string
}

// Options configures a Notifier.
type Options struct {
	// Topic is the full ntfy topic URL.
	Topic string
	// Timeout bounds each request.
	Timeout time.Duration
	// NotifyCompleted also announces successful jobs.
	NotifyCompleted bool
	Logger          *slog.Logger
	HTTPClient      *http.Client
}

// Notifier turns queue events into ntfy posts.
type Notifier struct {
	topic           string
	notifyCompleted bool
	client          *http.Client
	logger          *slog.Logger

	outbox chan Message
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	succeeded int
	failed    int
	runStart  time.Time
}

// New starts a Notifier. Close must be called to stop its worker.
func New(opts Options) *Notifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		topic:           strings.TrimSpace(opts.Topic),
		notifyCompleted: opts.NotifyCompleted,
		client:          client,
		logger:          logging.NewComponentLogger(logger, "notifications"),
		outbox:          make(chan Message, outboxCapacity),
		done:            make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}
	go n.run()
	return n
}

// Close stops accepting messages, gives queued ones until ctx is done to go
// out, and waits for the worker.
func (n *Notifier) Close(ctx context.Context) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.outbox)
	n.mu.Unlock()

	select {
	case <-n.done:
	case <-ctx.Done():
		n.cancel()
		<-n.done
	}
	n.cancel()
}

// Publish queues msg for delivery and reports whether it was accepted.
func (n *Notifier) Publish(msg Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.publishLocked(msg)
}

func (n *Notifier) publishLocked(msg Message) bool {
	if n.closed {
		return false
	}
	select {
	case n.outbox <- msg:
		return true
	default:
		logging.WarnWithContext(n.logger, "notification dropped", "notification_dropped",
			logging.String("title", msg.Title),
			logging.String(logging.FieldErrorHint, "check that the ntfy server is reachable"),
		)
		return false
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.outbox {
		if err := n.send(n.ctx, msg); err != nil {
			logging.WarnWithContext(n.logger, "notification failed", "notification_failed",
				logging.String("title", msg.Title),
				logging.Error(err),
			)
		}
	}
}

func (n *Notifier) send(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topic, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Priority != "" {
		req.Header.Set("Priority", msg.Priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// JobEnqueued implements queue.Observer.
func (n *Notifier) JobEnqueued(queue.Job) {}

// JobRejected implements queue.Observer.
func (n *Notifier) JobRejected(string) {}

// JobStarted implements queue.Observer and marks the start of a run.
func (n *Notifier) JobStarted(job queue.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.runStart.IsZero() {
		n.runStart = job.StartedAt
	}
}

// JobFinished implements queue.Observer. Jobs failed by a daemon shutdown and
// operator cancellations are counted but not announced.
func (n *Notifier) JobFinished(job queue.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if job.Status == queue.StatusCompleted {
		n.succeeded++
	} else {
		n.failed++
	}
	if msg, ok := n.jobMessage(job); ok {
		n.publishLocked(msg)
	}
}

// StaleCallback implements queue.Observer.
func (n *Notifier) StaleCallback(string) {}

// QueueDepth implements queue.Observer. Draining the queue after more than one
// job produces a summary.
func (n *Notifier) QueueDepth(pending, processing int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if pending != 0 || processing != 0 {
		return
	}
	total := n.succeeded + n.failed
	if total > 1 {
		elapsed := time.Duration(0)
		if !n.runStart.IsZero() {
			elapsed = time.Since(n.runStart)
		}
		n.publishLocked(summaryMessage(n.succeeded, n.failed, elapsed))
	}
	n.succeeded, n.failed, n.runStart = 0, 0, time.Time{}
}

func (n *Notifier) jobMessage(job queue.Job) (Message, bool) {
	label := strings.TrimSpace(job.Label)
	if label == "" {
		label = job.ID
	}
	switch {
	case job.Status == queue.StatusCompleted:
		if !n.notifyCompleted {
			return Message{}, false
		}
		body := fmt.Sprintf("Finished: %s", label)
		if job.Result != "" {
			body += "\nOutput: " + job.Result
		}
		return Message{
			Title: "vidmill - Job Complete",
			Body:  body,
			Tags:  []string{"vidmill", "job", "completed"},
		}, true
	case job.IsCancelled(), job.Error == queue.StoppedMessage:
		return Message{}, false
	default:
		return Message{
			Title:    "vidmill - Job Failed",
			Body:     fmt.Sprintf("Failed: %s\nError: %s", label, job.Error),
			Tags:     []string{"vidmill", "job", "error"},
			Priority: "high",
		}, true
	}
}

func summaryMessage(succeeded, failed int, elapsed time.Duration) Message {
	elapsed = elapsed.Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	msg := Message{Tags: []string{"vidmill", "queue", "completed"}}
	if failed == 0 {
		msg.Title = "vidmill - Queue Complete"
		msg.Body = fmt.Sprintf("Processed %d jobs in %s", succeeded, elapsed)
	} else {
		msg.Title = "vidmill - Queue Complete (with errors)"
		msg.Body = fmt.Sprintf("%d succeeded, %d failed in %s", succeeded, failed, elapsed)
	}
	return msg
}

var _ queue.Observer = (*Notifier)(nil)
