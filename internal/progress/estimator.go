package progress

import (
	"math/rand/v2"
	"sync"
	"time"
)

// ReportFunc receives a job's estimated percentage.
type ReportFunc func(jobID string, percent int)

// Estimator drives progress for one running job until stop is called.
// Stop must not block waiting for an in-flight report.
type Estimator interface {
	Start(jobID string, report ReportFunc) (stop func())
}

const (
	DefaultInterval = 500 * time.Millisecond
	DefaultCap      = 90
	DefaultMaxStep  = 10
)

// Synthetic advances progress by a random step on every tick and never
// reports more than Cap.
type Synthetic struct {
	Interval time.Duration
	Cap      int
	MaxStep  int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic returns a Synthetic estimator; zero arguments select defaults.
func NewSynthetic(interval time.Duration, limit, maxStep int) *Synthetic {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if limit <= 0 || limit >= 100 {
		limit = DefaultCap
	}
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	return &Synthetic{Interval: interval, Cap: limit, MaxStep: maxStep}
}

// WithRand makes step sizes deterministic.
func (s *Synthetic) WithRand(rng *rand.Rand) *Synthetic {
	s.mu.Lock()
	s.rng = rng
	s.mu.Unlock()
	return s
}

// Start launches a ticker goroutine for jobID.
func (s *Synthetic) Start(jobID string, report ReportFunc) func() {
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		current := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			next := s.Next(current)
			if next == current {
				continue
			}
			current = next
			select {
			case <-done:
				return
			default:
			}
			report(jobID, current)
		}
	}()
	return stop
}

// Next returns the value following current: a random step in [1, MaxStep],
// clamped to Cap.
func (s *Synthetic) Next(current int) int {
	if current >= s.Cap {
		return current
	}
	next := current + 1 + s.intN(s.MaxStep)
	return min(next, s.Cap)
}

func (s *Synthetic) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng != nil {
		return s.rng.IntN(n)
	}
	return rand.IntN(n)
}
