package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vidmill/internal/api"
	"vidmill/internal/config"
	"vidmill/internal/executor"
	"vidmill/internal/media"
	"vidmill/internal/metrics"
	"vidmill/internal/queue"
	"vidmill/internal/testsupport"
	"vidmill/internal/transform"
)

type harness struct {
	cfg    *config.Config
	engine *testsupport.Engine
	queue  *queue.Queue
	server *httptest.Server
	client *api.Client
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	engine := testsupport.NewEngine()
	q := queue.New(executor.NewAdapter(engine, 0, nil), queue.WithRecorder(st))
	t.Cleanup(q.Close)

	srv := api.NewServer(api.Options{
		Queue:        q,
		Store:        st,
		Library:      media.NewLibrary(cfg.Paths.DownloadsDir),
		CheckLibrary: true,
		UploadDir:    cfg.Paths.UploadDir,
		Token:        cfg.API.Token,
		Engine:       "test",
		Metrics:      metrics.New(prometheus.NewRegistry()),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := api.NewClient(ts.URL, api.WithToken(cfg.API.Token))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return &harness{cfg: cfg, engine: engine, queue: q, server: ts, client: client}
}

func (h *harness) awaitStart(t *testing.T) queue.Submission {
	t.Helper()
	select {
	case sub := <-h.engine.Started():
		return sub
	case <-time.After(5 * time.Second):
		t.Fatal("engine was never started")
		return queue.Submission{}
	}
}

func (h *harness) awaitStatus(t *testing.T, id string, status queue.Status) api.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := h.client.Job(context.Background(), id)
		if err == nil && job.Status == string(status) {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, status)
	return api.Job{}
}

func TestSubmitReportsPerItemResults(t *testing.T) {
	h := newHarness(t, testsupport.WithLibrary("trip/a.mp4"))
	bad := transform.Default()
	bad.Color.Saturation = -400

	resp, err := h.client.Submit(context.Background(), []api.SubmitItem{
		{Media: media.FolderFile("trip", "a.mp4")},
		{Media: media.FolderFile("trip", "a.mp4"), Spec: &bad},
		{Media: media.FolderFile("trip", "missing.mp4")},
		{Media: media.FolderFile("trip", "a.mp4"), Preset: "nope"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Accepted != 1 || resp.Rejected != 3 || len(resp.Results) != 4 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Results[0].JobID == "" {
		t.Fatalf("first item should be accepted: %+v", resp.Results[0])
	}
	invalid := resp.Results[1]
	if invalid.Reason != "validation" || len(invalid.Fields) != 1 || invalid.Fields[0].Field != "colorAdjustment.saturation" {
		t.Fatalf("unexpected validation result: %+v", invalid)
	}
	if resp.Results[2].Reason != "media" {
		t.Fatalf("missing library file should be a media rejection: %+v", resp.Results[2])
	}
	if resp.Results[3].Error == "" || resp.Results[3].Index != 3 {
		t.Fatalf("unknown preset should be rejected: %+v", resp.Results[3])
	}
}

func TestSubmitAllRejectedStillReturnsResults(t *testing.T) {
	h := newHarness(t)
	resp, err := h.client.Submit(context.Background(), []api.SubmitItem{{Media: media.FolderFile("", "a.mp4")}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Accepted != 0 || resp.Results[0].Reason != "media" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCancelLifecycle(t *testing.T) {
	h := newHarness(t, testsupport.WithLibrary("trip/a.mp4", "trip/b.mp4"))
	ctx := context.Background()
	resp, err := h.client.Submit(ctx, []api.SubmitItem{
		{Media: media.FolderFile("trip", "a.mp4")},
		{Media: media.FolderFile("trip", "b.mp4")},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	first, second := resp.Results[0].JobID, resp.Results[1].JobID
	h.awaitStart(t)

	var apiErr *api.Error
	if err := h.client.Cancel(ctx, second); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("cancelling a pending job should conflict, got %v", err)
	}
	if err := h.client.Cancel(ctx, "unknown"); !api.IsNotFound(err) {
		t.Fatalf("expected 404, got %v", err)
	}
	if err := h.client.Cancel(ctx, first); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	job := h.awaitStatus(t, first, queue.StatusFailed)
	if !job.Cancelled || job.Error != queue.CancelledMessage {
		t.Fatalf("unexpected cancelled job: %+v", job)
	}
	if sub := h.awaitStart(t); sub.JobID != second {
		t.Fatalf("next job should start after cancel, got %s", sub.JobID)
	}
}

func TestCancelPendingAndPurge(t *testing.T) {
	h := newHarness(t, testsupport.WithLibrary("trip/a.mp4", "trip/b.mp4", "trip/c.mp4"))
	ctx := context.Background()
	resp, err := h.client.Submit(ctx, []api.SubmitItem{
		{Media: media.FolderFile("trip", "a.mp4")},
		{Media: media.FolderFile("trip", "b.mp4")},
		{Media: media.FolderFile("trip", "c.mp4")},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.awaitStart(t)

	count, err := h.client.CancelPending(ctx)
	if err != nil || count != 2 {
		t.Fatalf("CancelPending = %d, %v", count, err)
	}

	first := resp.Results[0].JobID
	h.engine.Finish(first, "/out/trip/a_edited.mp4", nil)
	done := h.awaitStatus(t, first, queue.StatusCompleted)
	if done.Progress != 100 || done.Result != "/out/trip/a_edited.mp4" {
		t.Fatalf("unexpected completed job: %+v", done)
	}

	list, err := h.client.Jobs(ctx, "failed")
	if err != nil || len(list.Jobs) != 2 || list.Counts["completed"] != 1 {
		t.Fatalf("Jobs(failed) = %+v, %v", list, err)
	}

	history, err := h.client.History(ctx, 0)
	if err != nil || len(history.Jobs) != 3 {
		t.Fatalf("History = %+v, %v", history, err)
	}

	purged, err := h.client.PurgeTerminal(ctx, true)
	if err != nil {
		t.Fatalf("PurgeTerminal: %v", err)
	}
	if purged.Count != 3 || purged.Journal != 3 {
		t.Fatalf("unexpected purge counts: %+v", purged)
	}
	if _, err := h.client.Job(ctx, first); !api.IsNotFound(err) {
		t.Fatalf("purged job should be gone, got %v", err)
	}
}

func TestPresetEndpoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	spec := transform.Default()
	spec.Transform.Rotation = 90

	saved, err := h.client.SavePreset(ctx, "Rotate", spec)
	if err != nil {
		t.Fatalf("SavePreset: %v", err)
	}
	if saved.Name != "Rotate" || saved.Spec.Transform.Rotation != 90 {
		t.Fatalf("unexpected preset: %+v", saved)
	}
	got, err := h.client.Preset(ctx, "Rotate")
	if err != nil || got.Spec.Transform.Rotation != 90 {
		t.Fatalf("Preset = %+v, %v", got, err)
	}
	list, err := h.client.Presets(ctx)
	if err != nil || len(list.Presets) != 1 {
		t.Fatalf("Presets = %+v, %v", list, err)
	}

	bad := transform.Default()
	bad.Transform.Rotation = 45
	var apiErr *api.Error
	if _, err := h.client.SavePreset(ctx, "Bad", bad); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity || len(apiErr.Fields) == 0 {
		t.Fatalf("invalid spec should be 422 with fields, got %v", err)
	}

	if err := h.client.DeletePreset(ctx, "Rotate"); err != nil {
		t.Fatalf("DeletePreset: %v", err)
	}
	if err := h.client.DeletePreset(ctx, "Rotate"); !api.IsNotFound(err) {
		t.Fatalf("second delete should 404, got %v", err)
	}
}

func TestSubmitWithPreset(t *testing.T) {
	h := newHarness(t, testsupport.WithLibrary("trip/a.mp4"))
	ctx := context.Background()
	spec := transform.Default()
	spec.Transform.FlipV = true
	if _, err := h.client.SavePreset(ctx, "flip", spec); err != nil {
		t.Fatalf("SavePreset: %v", err)
	}
	if _, err := h.client.Submit(ctx, []api.SubmitItem{{Media: media.FolderFile("trip", "a.mp4"), Preset: "flip"}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub := h.awaitStart(t); !sub.Spec.Transform.FlipV {
		t.Fatalf("preset spec not applied: %+v", sub.Spec.Transform)
	}
}

func TestUploadThenSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	local := filepath.Join(t.TempDir(), "holiday clip.mp4")
	if err := os.WriteFile(local, []byte("frames"), 0o644); err != nil {
		t.Fatal(err)
	}

	up, err := h.client.Upload(ctx, local)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if up.Size != 6 || up.Media.Kind != media.KindUpload || up.Media.Filename != "holiday clip.mp4" {
		t.Fatalf("unexpected upload: %+v", up)
	}
	if !strings.HasPrefix(up.Media.UploadPath, h.cfg.Paths.UploadDir) {
		t.Fatalf("upload stored outside upload dir: %s", up.Media.UploadPath)
	}

	resp, err := h.client.Submit(ctx, []api.SubmitItem{
		{Media: up.Media},
		{Media: media.Upload(local)},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Results[0].JobID == "" || resp.Results[1].Reason != "media" {
		t.Fatalf("only uploads inside the upload dir are accepted: %+v", resp.Results)
	}
}

func TestUploadRejectsNonVideo(t *testing.T) {
	h := newHarness(t)
	local := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var apiErr *api.Error
	if _, err := h.client.Upload(context.Background(), local); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestLibraryEndpoints(t *testing.T) {
	h := newHarness(t, testsupport.WithLibrary("trip/a.mp4", "trip/b.mkv", "trip/a.txt", "beach/c.mov"))
	ctx := context.Background()

	lib, err := h.client.Library(ctx)
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if len(lib.Folders) != 2 || lib.Folders[0].Name != "beach" || lib.Folders[1].VideoCount != 2 {
		t.Fatalf("unexpected folders: %+v", lib.Folders)
	}
	folder, err := h.client.Folder(ctx, "trip")
	if err != nil || len(folder.Videos) != 2 || folder.Videos[0] != "a.mp4" {
		t.Fatalf("Folder = %+v, %v", folder, err)
	}
	if _, err := h.client.Folder(ctx, "nowhere"); !api.IsNotFound(err) {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	health, err := h.client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Status != "ok" || !health.Database.IntegrityCheck || health.Engine != "test" {
		t.Fatalf("unexpected health: %+v", health)
	}

	resp, err := http.Get(h.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
}

func TestBearerToken(t *testing.T) {
	h := newHarness(t, testsupport.WithToken("s3cret"))
	ctx := context.Background()
	if _, err := h.client.Jobs(ctx); err != nil {
		t.Fatalf("authorized request failed: %v", err)
	}

	anonymous, err := api.NewClient(h.server.URL)
	if err != nil {
		t.Fatal(err)
	}
	var apiErr *api.Error
	if _, err := anonymous.Jobs(ctx); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	resp, err := http.Get(h.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics should not require the token, got %d", resp.StatusCode)
	}
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/api/jobs", nil)
	req.Header.Set(api.CorrelationHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(api.CorrelationHeader); got != "req-42" {
		t.Fatalf("correlation id = %q", got)
	}
}

func TestNewClientAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "127.0.0.1:7590", want: "http://127.0.0.1:7590"},
		{in: "https://mill.local/", want: "https://mill.local"},
		{in: "  ", wantErr: true},
	}
	for _, tt := range tests {
		client, err := api.NewClient(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewClient(%q) should fail", tt.in)
			}
			continue
		}
		if err != nil || client.BaseURL() != tt.want {
			t.Errorf("NewClient(%q) = %v, %v; want %s", tt.in, client, err, tt.want)
		}
	}
}

func TestSubmitPartialSpecFillsDefaults(t *testing.T) {
	h := newHarness(t, testsupport.WithLibrary("trip/a.mp4"))
	body := `{"items":[{"mediaRef":{"kind":"folder_file","folder":"trip","filename":"a.mp4"},"spec":{"transform":{"flipH":true}}}]}`
	resp, err := http.Post(h.server.URL+"/api/jobs", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	sub := h.awaitStart(t)
	if !sub.Spec.Transform.FlipH || sub.Spec.Resolution.Width.Pixels != 1280 {
		t.Fatalf("partial spec should keep defaults: %+v", sub.Spec)
	}
}
