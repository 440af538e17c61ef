package progress

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"
)

func TestNextIsMonotonicAndCapped(t *testing.T) {
	s := NewSynthetic(time.Millisecond, 90, 10).WithRand(rand.New(rand.NewPCG(3, 4)))
	current := 0
	for i := 0; i < 200; i++ {
		next := s.Next(current)
		if next < current {
			t.Fatalf("progress regressed from %d to %d", current, next)
		}
		if next > 90 {
			t.Fatalf("progress %d exceeded cap", next)
		}
		current = next
	}
	if current != 90 {
		t.Fatalf("expected progress to settle at cap, got %d", current)
	}
}

func TestNewSyntheticDefaults(t *testing.T) {
	s := NewSynthetic(0, 150, 0)
	if s.Interval != DefaultInterval || s.Cap != DefaultCap || s.MaxStep != DefaultMaxStep {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestStartReportsUntilStopped(t *testing.T) {
	s := NewSynthetic(time.Millisecond, 50, 5)

	var (
		mu     sync.Mutex
		values []int
	)
	reported := make(chan struct{}, 100)
	stop := s.Start("job-1", func(jobID string, percent int) {
		if jobID != "job-1" {
			t.Errorf("unexpected job id %q", jobID)
		}
		mu.Lock()
		values = append(values, percent)
		mu.Unlock()
		select {
		case reported <- struct{}{}:
		default:
		}
	})

	for i := 0; i < 3; i++ {
		select {
		case <-reported:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for progress")
		}
	}
	stop()
	stop()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("reported values regressed: %v", values)
		}
	}
}
