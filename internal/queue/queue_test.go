package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"vidmill/internal/media"
	"vidmill/internal/progress"
	"vidmill/internal/queue"
	"vidmill/internal/transform"
)

type submitted struct {
	ctx    context.Context
	sub    queue.Submission
	report queue.ReportFunc
}

// scriptedDispatcher records submissions; tests deliver outcomes by hand.
type scriptedDispatcher struct {
	mu    sync.Mutex
	calls []submitted
	fail  map[string]error
}

func (d *scriptedDispatcher) Submit(ctx context.Context, sub queue.Submission, report queue.ReportFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[sub.Label]; err != nil {
		return err
	}
	d.calls = append(d.calls, submitted{ctx: ctx, sub: sub, report: report})
	return nil
}

func (d *scriptedDispatcher) submittedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.calls))
	for _, c := range d.calls {
		ids = append(ids, c.sub.JobID)
	}
	return ids
}

func (d *scriptedDispatcher) last() submitted {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[len(d.calls)-1]
}

type manualEstimator struct {
	mu      sync.Mutex
	reports map[string]progress.ReportFunc
	stopped map[string]bool
}

func newManualEstimator() *manualEstimator {
	return &manualEstimator{reports: map[string]progress.ReportFunc{}, stopped: map[string]bool{}}
}

func (m *manualEstimator) Start(jobID string, report progress.ReportFunc) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[jobID] = report
	return func() {
		m.mu.Lock()
		m.stopped[jobID] = true
		m.mu.Unlock()
	}
}

func (m *manualEstimator) report(jobID string, pct int) {
	m.mu.Lock()
	fn := m.reports[jobID]
	m.mu.Unlock()
	fn(jobID, pct)
}

type memoryRecorder struct {
	mu   sync.Mutex
	seen map[string][]queue.Status
}

func (r *memoryRecorder) RecordJob(_ context.Context, job queue.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = map[string][]queue.Status{}
	}
	r.seen[job.ID] = append(r.seen[job.ID], job.Status)
	return nil
}

type countingObserver struct {
	enqueued, rejected, started, finished, stale int
	pending, processing                          int
}

func (o *countingObserver) JobEnqueued(queue.Job)  { o.enqueued++ }
func (o *countingObserver) JobRejected(string)     { o.rejected++ }
func (o *countingObserver) JobStarted(queue.Job)   { o.started++ }
func (o *countingObserver) JobFinished(queue.Job)  { o.finished++ }
func (o *countingObserver) StaleCallback(string)   { o.stale++ }
func (o *countingObserver) QueueDepth(p, proc int) { o.pending, o.processing = p, proc }

func newTestQueue(t *testing.T, opts ...queue.Option) (*queue.Queue, *scriptedDispatcher) {
	t.Helper()
	d := &scriptedDispatcher{}
	seq := 0
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	base := []queue.Option{
		queue.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("job-%d", seq)
		}),
		queue.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	}
	q := queue.New(d, append(base, opts...)...)
	t.Cleanup(q.Close)
	return q, d
}

func item(filename string) queue.Item {
	return queue.Item{Media: media.FolderFile("clips", filename), Spec: transform.Default()}
}

func enqueue(t *testing.T, q *queue.Queue, items ...queue.Item) []string {
	t.Helper()
	results, err := q.EnqueueBatch(items)
	if err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("item %d rejected: %v", r.Index, r.Err)
		}
		ids = append(ids, r.JobID)
	}
	return ids
}

func statusOf(t *testing.T, q *queue.Queue, id string) queue.Job {
	t.Helper()
	job, err := q.Get(id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return job
}

func assertSingleFlight(t *testing.T, q *queue.Queue) {
	t.Helper()
	count := 0
	for _, job := range q.Snapshot() {
		if job.Status == queue.StatusProcessing {
			count++
		}
	}
	if count > 1 {
		t.Fatalf("expected at most one processing job, found %d", count)
	}
}

func TestEnqueuePromotesOnlyOldest(t *testing.T) {
	q, d := newTestQueue(t)
	ids := enqueue(t, q, item("a.mp4"), item("b.mp4"))

	if got := statusOf(t, q, ids[0]).Status; got != queue.StatusProcessing {
		t.Fatalf("first job status = %s, want processing", got)
	}
	if got := statusOf(t, q, ids[1]).Status; got != queue.StatusPending {
		t.Fatalf("second job status = %s, want pending", got)
	}
	if got := d.submittedIDs(); len(got) != 1 || got[0] != ids[0] {
		t.Fatalf("unexpected submissions: %v", got)
	}
	assertSingleFlight(t, q)
}

func TestSuccessCompletesAndAdvances(t *testing.T) {
	q, d := newTestQueue(t)
	ids := enqueue(t, q, item("a.mp4"), item("b.mp4"))

	d.last().report(ids[0], queue.Success("/out/clips/a_edited.mp4"))

	first := statusOf(t, q, ids[0])
	if first.Status != queue.StatusCompleted || first.Progress != 100 || first.Result != "/out/clips/a_edited.mp4" {
		t.Fatalf("unexpected completed job: %+v", first)
	}
	if got := statusOf(t, q, ids[1]).Status; got != queue.StatusProcessing {
		t.Fatalf("second job status = %s, want processing", got)
	}
	if first.Duration() <= 0 {
		t.Fatal("expected positive duration")
	}
	assertSingleFlight(t, q)
}

func TestFIFOOrder(t *testing.T) {
	q, d := newTestQueue(t)
	ids := enqueue(t, q, item("a.mp4"), item("b.mp4"))
	ids = append(ids, enqueue(t, q, item("c.mp4"))...)

	for i := range ids {
		d.last().report(ids[i], queue.Success(fmt.Sprintf("out-%d", i)))
	}
	got := d.submittedIDs()
	if len(got) != 3 {
		t.Fatalf("expected 3 submissions, got %v", got)
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("submission order %v, want %v", got, ids)
		}
	}
}

func TestCancelProcessingAdvancesAndDropsLateResult(t *testing.T) {
	q, d := newTestQueue(t)
	ids := enqueue(t, q, item("a.mp4"), item("b.mp4"))
	first := d.last()

	if !q.Cancel(ids[0]) {
		t.Fatal("expected cancel to succeed on processing job")
	}
	cancelled := statusOf(t, q, ids[0])
	if cancelled.Status != queue.StatusFailed || cancelled.Error != queue.CancelledMessage || !cancelled.IsCancelled() {
		t.Fatalf("unexpected cancelled job: %+v", cancelled)
	}
	if first.ctx.Err() == nil {
		t.Fatal("expected dispatch context to be cancelled")
	}
	if got := statusOf(t, q, ids[1]).Status; got != queue.StatusProcessing {
		t.Fatalf("next job status = %s, want processing", got)
	}

	first.report(ids[0], queue.Success("late.mp4"))
	if got := statusOf(t, q, ids[0]); got.Status != queue.StatusFailed || got.Result != "" {
		t.Fatalf("late result must be ignored, got %+v", got)
	}
	assertSingleFlight(t, q)
}

func TestCancelRejectsNonProcessing(t *testing.T) {
	q, d := newTestQueue(t)
	ids := enqueue(t, q, item("a.mp4"), item("b.mp4"))

	if q.Cancel(ids[1]) {
		t.Fatal("cancel must not apply to pending jobs")
	}
	if q.Cancel("missing") {
		t.Fatal("cancel must not apply to unknown jobs")
	}
	d.last().report(ids[0], queue.Failure("exit status 1"))
	if q.Cancel(ids[0]) {
		t.Fatal("cancel must not apply to terminal jobs")
	}
	if got := statusOf(t, q, ids[0]); got.Error != "exit status 1" || got.IsCancelled() {
		t.Fatalf("unexpected failed job: %+v", got)
	}
}

func TestCancelAllPending(t *testing.T) {
	q, d := newTestQueue(t)
	ids := enqueue(t, q, item("x.mp4"), item("y.mp4"), item("z.mp4"))

	if got := q.CancelAllPending(); got != 2 {
		t.Fatalf("CancelAllPending = %d, want 2", got)
	}
	if got := statusOf(t, q, ids[0]).Status; got != queue.StatusProcessing {
		t.Fatalf("processing job disturbed: %s", got)
	}
	for _, id := range ids[1:] {
		job := statusOf(t, q, id)
		if job.Status != queue.StatusFailed || job.Error != queue.CancelledBeforeStartMessage {
			t.Fatalf("unexpected pending-cancel result: %+v", job)
		}
	}
	if got := len(d.submittedIDs()); got != 1 {
		t.Fatalf("cancelled pending jobs must never dispatch, got %d submissions", got)
	}
}

func TestPurgeTerminalKeepsActiveJobs(t *testing.T) {
	q, d := newTestQueue(t)
	ids := enqueue(t, q, item("a.mp4"), item("b.mp4"), item("c.mp4"))
	d.last().report(ids[0], queue.Success("a.out"))
	d.last().report(ids[1], queue.Failure("boom"))

	if got := q.PurgeTerminal(); got != 2 {
		t.Fatalf("PurgeTerminal = %d, want 2", got)
	}
	snap := q.Snapshot()
	if len(snap) != 1 || snap[0].ID != ids[2] || snap[0].Status != queue.StatusProcessing {
		t.Fatalf("unexpected snapshot after purge: %+v", snap)
	}
	if _, err := q.Get(ids[0]); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if got := q.PurgeTerminal(); got != 0 {
		t.Fatalf("second purge = %d, want 0", got)
	}
}

func TestTerminalJobsAreImmutable(t *testing.T) {
	q, d := newTestQueue(t)
	ids := enqueue(t, q, item("a.mp4"))
	report := d.last().report
	report(ids[0], queue.Failure("exit status 1"))
	report(ids[0], queue.Success("retry.mp4"))
	q.CancelAllPending()
	q.Cancel(ids[0])

	job := statusOf(t, q, ids[0])
	if job.Status != queue.StatusFailed || job.Error != "exit status 1" || job.Result != "" {
		t.Fatalf("terminal job mutated: %+v", job)
	}
}

func TestInvalidItemsAreRejectedIndividually(t *testing.T) {
	obs := &countingObserver{}
	q, d := newTestQueue(t, queue.WithObserver(obs))

	bad := transform.Default()
	bad.FrameDecimation = transform.FrameDecimation{Enabled: true, Start: 40, End: 10}

	results, err := q.EnqueueBatch([]queue.Item{
		{Media: media.FolderFile("clips", "bad.mp4"), Spec: bad},
		item("good.mp4"),
		{Media: media.FolderFile("..", "escape.mp4"), Spec: transform.Default()},
	})
	if err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	if !errors.Is(results[0].Err, transform.ErrInvalidSpec) || results[0].JobID != "" {
		t.Fatalf("expected spec validation error, got %+v", results[0])
	}
	if queue.RejectReason(results[0].Err) != "validation" {
		t.Fatalf("unexpected reason %q", queue.RejectReason(results[0].Err))
	}
	if results[1].Err != nil || results[1].JobID == "" {
		t.Fatalf("valid sibling should be accepted, got %+v", results[1])
	}
	if !errors.Is(results[2].Err, media.ErrInvalidRef) {
		t.Fatalf("expected media error, got %+v", results[2])
	}
	if got := len(q.Snapshot()); got != 1 {
		t.Fatalf("expected exactly one job, got %d", got)
	}
	if got := d.submittedIDs(); len(got) != 1 || got[0] != results[1].JobID {
		t.Fatalf("only the valid job may be dispatched, got %v", got)
	}
	if obs.rejected != 2 || obs.enqueued != 1 || obs.started != 1 {
		t.Fatalf("unexpected observer counts: %+v", obs)
	}
}

func TestInvertedRangesAreRejectedEvenWhenInactive(t *testing.T) {
	q, d := newTestQueue(t)

	decimation := transform.Default()
	decimation.FrameDecimation = transform.FrameDecimation{Enabled: false, Start: 40, End: 10}
	bitrate := transform.Default()
	bitrate.Bitrate = transform.Bitrate{KeepOriginal: true, Mode: transform.BitrateMultiplier, Min: 3, Max: 1}

	results, err := q.EnqueueBatch([]queue.Item{
		{Media: media.FolderFile("clips", "a.mp4"), Spec: decimation},
		{Media: media.FolderFile("clips", "b.mp4"), Spec: bitrate},
	})
	if err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	for i, res := range results {
		if !errors.Is(res.Err, transform.ErrInvalidSpec) || res.JobID != "" {
			t.Fatalf("item %d should be rejected, got %+v", i, res)
		}
	}
	if len(q.Snapshot()) != 0 || len(d.submittedIDs()) != 0 {
		t.Fatal("rejected items must not become jobs or reach the dispatcher")
	}
}

func TestDispatchErrorFailsJobAndContinues(t *testing.T) {
	q, d := newTestQueue(t)
	d.fail = map[string]error{"broken.mp4": errors.New("engine offline")}

	ids := enqueue(t, q, item("broken.mp4"), item("ok.mp4"))
	broken := statusOf(t, q, ids[0])
	if broken.Status != queue.StatusFailed || broken.Error != "dispatch: engine offline" {
		t.Fatalf("unexpected failed dispatch: %+v", broken)
	}
	if got := statusOf(t, q, ids[1]).Status; got != queue.StatusProcessing {
		t.Fatalf("next job status = %s, want processing", got)
	}
}

func TestProgressIsMonotonicAndSnapsOnCompletion(t *testing.T) {
	est := newManualEstimator()
	q, d := newTestQueue(t, queue.WithEstimator(est))
	ids := enqueue(t, q, item("a.mp4"), item("b.mp4"))

	est.report(ids[0], 30)
	est.report(ids[0], 20)
	est.report(ids[0], 100)
	if got := statusOf(t, q, ids[0]).Progress; got != 30 {
		t.Fatalf("progress = %d, want 30", got)
	}
	est.report(ids[0], 45)
	if got := statusOf(t, q, ids[0]).Progress; got != 45 {
		t.Fatalf("progress = %d, want 45", got)
	}

	d.last().report(ids[0], queue.Success("a.out"))
	if got := statusOf(t, q, ids[0]).Progress; got != 100 {
		t.Fatalf("completed progress = %d, want 100", got)
	}
	est.mu.Lock()
	stopped := est.stopped[ids[0]]
	est.mu.Unlock()
	if !stopped {
		t.Fatal("expected estimator stopped on completion")
	}

	est.report(ids[1], 60)
	d.last().report(ids[1], queue.Failure("boom"))
	est.report(ids[1], 80)
	if got := statusOf(t, q, ids[1]).Progress; got != 60 {
		t.Fatalf("failed job progress = %d, want last value 60", got)
	}
}

func TestSpecIsBakedAndCaptured(t *testing.T) {
	q, d := newTestQueue(t)
	spec := transform.Default()
	spec.FrameRate.Randomize = true
	it := queue.Item{Media: media.FolderFiles("clips", "a.mp4", "b.mp4"), Spec: spec}
	ids := enqueue(t, q, it)

	it.Media.Filenames[0] = "mutated.mp4"
	job := statusOf(t, q, ids[0])
	if job.Media.Filenames[0] != "a.mp4" {
		t.Fatal("job must not share media slices with the caller")
	}
	if job.Spec.FrameRate.Randomize || job.Spec.Bitrate.Multiplier == 0 {
		t.Fatalf("expected baked spec, got %+v", job.Spec)
	}
	if job.Label != "clips (2 files)" {
		t.Fatalf("unexpected label %q", job.Label)
	}
	if d.last().sub.Spec != job.Spec {
		t.Fatal("dispatched spec must equal the captured spec")
	}
}

func TestRecorderSeesEveryTransition(t *testing.T) {
	rec := &memoryRecorder{}
	q, d := newTestQueue(t, queue.WithRecorder(rec))
	ids := enqueue(t, q, item("a.mp4"))
	d.last().report(ids[0], queue.Success("a.out"))

	want := []queue.Status{queue.StatusPending, queue.StatusProcessing, queue.StatusCompleted}
	got := rec.seen[ids[0]]
	if len(got) != len(want) {
		t.Fatalf("recorded %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recorded %v, want %v", got, want)
		}
	}
}

func TestStaleCallbackIsCounted(t *testing.T) {
	obs := &countingObserver{}
	q, _ := newTestQueue(t, queue.WithObserver(obs))
	q.OnExecutorResult("ghost", queue.Success("x"))
	if obs.stale != 1 {
		t.Fatalf("stale = %d, want 1", obs.stale)
	}
}

func TestObserversFanOut(t *testing.T) {
	first, second := &countingObserver{}, &countingObserver{}
	q, _ := newTestQueue(t, queue.WithObserver(queue.Observers{first, second}))
	enqueue(t, q, item("a.mp4"), item("b.mp4"))
	q.OnExecutorResult("ghost", queue.Success("x"))

	for i, obs := range []*countingObserver{first, second} {
		if obs.enqueued != 2 || obs.started != 1 || obs.stale != 1 || obs.pending != 1 || obs.processing != 1 {
			t.Fatalf("observer %d saw %+v", i, obs)
		}
	}
}

func TestCloseFailsOutstandingJobs(t *testing.T) {
	q, d := newTestQueue(t)
	ids := enqueue(t, q, item("a.mp4"), item("b.mp4"))
	inflight := d.last()

	q.Close()
	for _, id := range ids {
		job := statusOf(t, q, id)
		if job.Status != queue.StatusFailed || job.Error != queue.StoppedMessage {
			t.Fatalf("unexpected job after close: %+v", job)
		}
	}
	if inflight.ctx.Err() == nil {
		t.Fatal("expected in-flight context cancelled")
	}
	if _, err := q.EnqueueBatch([]queue.Item{item("c.mp4")}); !errors.Is(err, queue.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestConcurrentOperationsKeepSingleFlight(t *testing.T) {
	q, d := newTestQueue(t)
	for i := 0; i < 20; i++ {
		enqueue(t, q, item(fmt.Sprintf("%02d.mp4", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				call := d.last()
				call.report(call.sub.JobID, queue.Success("out"))
				_ = q.Snapshot()
			}
		}()
	}
	wg.Wait()
	assertSingleFlight(t, q)
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to queue.Status
		want     bool
	}{
		{queue.StatusPending, queue.StatusProcessing, true},
		{queue.StatusPending, queue.StatusFailed, true},
		{queue.StatusProcessing, queue.StatusCompleted, true},
		{queue.StatusProcessing, queue.StatusFailed, true},
		{queue.StatusPending, queue.StatusCompleted, false},
		{queue.StatusCompleted, queue.StatusFailed, false},
		{queue.StatusFailed, queue.StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := queue.CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	if s, ok := queue.ParseStatus(" Processing "); !ok || s != queue.StatusProcessing {
		t.Fatalf("ParseStatus = %q, %v", s, ok)
	}
}
