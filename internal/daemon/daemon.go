package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"vidmill/internal/api"
	"vidmill/internal/config"
	"vidmill/internal/executor"
	"vidmill/internal/logging"
	"vidmill/internal/media"
	"vidmill/internal/metrics"
	"vidmill/internal/notifications"
	"vidmill/internal/preflight"
	"vidmill/internal/progress"
	"vidmill/internal/queue"
	"vidmill/internal/store"
)

// Daemon owns the queue, journal, and HTTP server for one data directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   executor.Engine
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	running  bool
	store    *store.Store
	queue    *queue.Queue
	notifier *notifications.Notifier
	http     *httpServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Address      string
	Engine       string
	DatabasePath string
	LockFilePath string
	Counts       map[string]int
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithEngine replaces the engine selected from configuration.
func WithEngine(engine executor.Engine) Option {
	return func(d *Daemon) {
		if engine != nil {
			d.engine = engine
		}
	}
}

// WithRegistry registers metrics with reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(d *Daemon) {
		d.registry = reg
	}
}

// New validates the configuration and builds the transcoding engine. Nothing
// is opened or bound until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.engine == nil {
		engine, err := newEngine(cfg, logger)
		if err != nil {
			return nil, err
		}
		d.engine = engine
	}
	if cfg.Metrics.Enabled {
		d.metrics = metrics.New(d.registry)
	}
	return d, nil
}

// Start acquires the lock, reconciles the journal, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidmill daemon instance is already running")
	}

	if err := d.startLocked(ctx); err != nil {
		d.teardownLocked()
		return err
	}
	d.running = true
	d.logger.Info("vidmill daemon started",
		logging.String("lock", d.lockPath),
		logging.String("engine", d.engine.Name()),
		logging.String("address", d.http.addr()),
	)
	return nil
}

func (d *Daemon) startLocked(ctx context.Context) error {
	st, err := store.Open(d.cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = st

	interrupted, err := st.MarkInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("reconcile journal: %w", err)
	}
	if interrupted > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, d.logger), "marked unfinished jobs from previous run as failed",
			"journal_reconcile",
			logging.Int("count", int(interrupted)),
			logging.String(logging.FieldErrorHint, "resubmit the affected jobs"),
		)
	}

	queueOpts := []queue.Option{
		queue.WithLogger(d.logger),
		queue.WithEstimator(progress.NewSynthetic(d.cfg.ProgressInterval(), d.cfg.Queue.ProgressCap, d.cfg.Queue.ProgressMaxStep)),
		queue.WithRecorder(st),
	}
	var observers queue.Observers
	if d.metrics != nil {
		observers = append(observers, d.metrics)
	}
	if topic := d.cfg.Notifications.NtfyTopic; topic != "" {
		d.notifier = notifications.New(notifications.Options{
			Topic:           topic,
			Timeout:         d.cfg.NotifyTimeout(),
			NotifyCompleted: d.cfg.Notifications.NotifyCompleted,
			Logger:          d.logger,
		})
		observers = append(observers, d.notifier)
	}
	if len(observers) > 0 {
		queueOpts = append(queueOpts, queue.WithObserver(observers))
	}
	d.queue = queue.New(executor.NewAdapter(d.engine, d.cfg.JobTimeout(), d.logger), queueOpts...)

	server := api.NewServer(api.Options{
		Queue:        d.queue,
		Store:        st,
		Library:      media.NewLibrary(d.cfg.Paths.DownloadsDir),
		CheckLibrary: d.cfg.Executor.Engine != config.EngineRemote,
		UploadDir:    d.cfg.Paths.UploadDir,
		Token:        d.cfg.API.Token,
		Engine:       d.engine.Name(),
		Checks:       d.readiness,
		Metrics:      d.metrics,
		Logger:       d.logger,
	})
	d.http = newHTTPServer(server.Handler(), d.logger)
	return d.http.start(d.cfg.API.Bind)
}

// readiness adapts preflight results to API health checks.
func (d *Daemon) readiness(ctx context.Context) []api.Check {
	results := preflight.RunAll(ctx, d.cfg)
	checks := make([]api.Check, 0, len(results))
	for _, r := range results {
		checks = append(checks, api.Check{Name: r.Name, Ready: r.Passed, Detail: r.Detail})
	}
	return checks
}

// Stop shuts the API down, fails outstanding jobs, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	d.teardownLocked()
	d.running = false
	d.logger.Info("vidmill daemon stopped")
}

func (d *Daemon) teardownLocked() {
	if d.http != nil {
		d.http.stop()
		d.http = nil
	}
	if d.queue != nil {
		d.queue.Close()
		d.queue = nil
	}
	if d.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		d.notifier.Close(ctx)
		cancel()
		d.notifier = nil
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("failed to close store", logging.Error(err))
		}
		d.store = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Addr returns the bound API address, or "" when stopped.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.http.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := Status{
		Running:      d.running,
		PID:          os.Getpid(),
		Address:      d.http.addr(),
		Engine:       d.engine.Name(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if d.queue != nil {
		status.Counts = api.CountStatuses(d.queue.Snapshot())
	}
	return status
}
