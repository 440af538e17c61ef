package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"vidmill/internal/media"
	"vidmill/internal/queue"
	"vidmill/internal/transform"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	// fail maps an input path substring to stderr returned with an error.
	fail map[string]string
}

func (r *fakeRunner) Run(_ context.Context, args []string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), args...))
	r.mu.Unlock()

	input := argAfter(args, "-i")
	for key, stderr := range r.fail {
		if strings.Contains(input, key) {
			return stderr, errors.New("exit status 1")
		}
	}
	if argAfter(args, "-filter_complex") == "" {
		return sampleProbe, nil
	}
	return "", os.WriteFile(args[len(args)-1], []byte("video"), 0o644)
}

func (r *fakeRunner) encodeCalls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, c := range r.calls {
		if argAfter(c, "-filter_complex") != "" {
			out = append(out, c)
		}
	}
	return out
}

func plentyOfSpace(string) (uint64, uint64, error) { return 100 << 30, 50 << 30, nil }

type fixture struct {
	library string
	output  string
	runner  *fakeRunner
	engine  *Engine
}

func newFixture(t *testing.T, files ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		library: filepath.Join(root, "downloads"),
		output:  filepath.Join(root, "output"),
		runner:  &fakeRunner{fail: map[string]string{}},
	}
	for _, name := range files {
		path := filepath.Join(f.library, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	f.engine = New(Options{
		LibraryRoot:  f.library,
		OutputRoot:   f.output,
		MinFreeBytes: 1 << 30,
		CopySidecars: true,
	}, WithRunner(f.runner), WithStatfs(plentyOfSpace))
	return f
}

func submission(ref media.Ref, spec transform.Spec) queue.Submission {
	return queue.Submission{JobID: "job-1", Label: ref.Label(), Media: ref, Spec: spec}
}

func TestEngineTransformsBatchAndCopiesSidecars(t *testing.T) {
	f := newFixture(t, "trip/a.mp4", "trip/a.txt", "trip/a.png", "trip/a.jpg", "trip/b.avi")
	ref := media.FolderFiles("trip", "a.mp4", "b.avi")

	res, err := f.engine.Run(context.Background(), submission(ref, transform.Default()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantA := filepath.Join(f.output, "trip", "a_edited.mp4")
	wantB := filepath.Join(f.output, "trip", "b_edited.mp4")
	if res.Artifact != wantA || len(res.Outputs) != 2 || res.Outputs[1] != wantB {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, path := range []string{wantA, wantB, filepath.Join(f.output, "trip", "a_edited.txt"), filepath.Join(f.output, "trip", "a_edited.jpg")} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
	}
	if _, err := os.Stat(filepath.Join(f.output, "trip", "a_edited.png")); !os.IsNotExist(err) {
		t.Fatal("only the first cover image should be copied")
	}
	if len(f.runner.calls) != 2 {
		t.Fatalf("default spec should not probe, got %d calls", len(f.runner.calls))
	}
}

func TestEngineFailsJobWhenAnyInputFails(t *testing.T) {
	f := newFixture(t, "trip/a.mp4", "trip/b.mp4")
	f.runner.fail["b.mp4"] = "Stream map '' matches no streams.\nConversion failed!"

	_, err := f.engine.Run(context.Background(), submission(media.FolderFiles("trip", "a.mp4", "b.mp4"), transform.Default()))
	if err == nil {
		t.Fatal("expected failure")
	}
	msg := err.Error()
	if !strings.Contains(msg, "1 of 2 inputs failed") || !strings.Contains(msg, "Conversion failed!") {
		t.Fatalf("failure should summarize inputs and stderr, got %q", msg)
	}
	if _, err := os.Stat(filepath.Join(f.output, "trip", "b_edited.mp4")); !os.IsNotExist(err) {
		t.Fatal("failed output should not be left behind")
	}
}

func TestEngineMissingInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Run(context.Background(), submission(media.FolderFile("trip", "gone.mp4"), transform.Default()))
	if err == nil || !strings.Contains(err.Error(), "gone.mp4") {
		t.Fatalf("expected missing input error, got %v", err)
	}
	if len(f.runner.calls) != 0 {
		t.Fatal("ffmpeg should not run for a missing input")
	}
}

func TestEngineRejectsLowDiskSpace(t *testing.T) {
	f := newFixture(t, "trip/a.mp4")
	f.engine = New(Options{LibraryRoot: f.library, OutputRoot: f.output, MinFreeBytes: 2 << 30},
		WithRunner(f.runner),
		WithStatfs(func(string) (uint64, uint64, error) { return 10 << 30, 1 << 20, nil }))

	_, err := f.engine.Run(context.Background(), submission(media.FolderFile("trip", "a.mp4"), transform.Default()))
	if err == nil || !strings.Contains(err.Error(), "GiB free") {
		t.Fatalf("expected free space error, got %v", err)
	}
	if len(f.runner.calls) != 0 {
		t.Fatal("ffmpeg should not run without disk space")
	}
}

func TestEngineProbesForZoomAndFusion(t *testing.T) {
	f := newFixture(t, "trip/a.mp4", "overlays/b.mp4")
	spec := transform.Default()
	spec.DynamicZoom.Enabled = true
	spec.Fusion = transform.Fusion{Enabled: true, Method: transform.FusionTransparency, SecondaryMedia: "overlays/b.mp4", Opacity: 0.1}

	if _, err := f.engine.Run(context.Background(), submission(media.FolderFile("trip", "a.mp4"), spec)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.runner.calls) != 2 || !containsSeq(f.runner.calls[0], "-frames:v", "1") {
		t.Fatalf("expected a probe pass before encoding: %v", f.runner.calls)
	}
	encode := f.runner.encodeCalls()[0]
	if !containsSeq(encode, "-stream_loop", "-1", "-i", filepath.Join(f.library, "overlays", "b.mp4")) {
		t.Fatalf("secondary clip should resolve inside the library: %v", encode)
	}
}

func TestEngineRejectsEscapingSecondary(t *testing.T) {
	f := newFixture(t, "trip/a.mp4")
	spec := transform.Default()
	spec.Fusion = transform.Fusion{Enabled: true, Method: transform.FusionTransparency, SecondaryMedia: "../secret.mp4", Opacity: 0.1}

	_, err := f.engine.Run(context.Background(), submission(media.FolderFile("trip", "a.mp4"), spec))
	if err == nil || !strings.Contains(err.Error(), "escapes the library") {
		t.Fatalf("expected escape rejection, got %v", err)
	}
}

func TestEngineUploadsLandInOutputRoot(t *testing.T) {
	f := newFixture(t)
	upload := filepath.Join(t.TempDir(), "clip.mov")
	if err := os.WriteFile(upload, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := f.engine.Run(context.Background(), submission(media.Upload(upload), transform.Default()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Artifact != filepath.Join(f.output, "clip_edited.mov") {
		t.Fatalf("artifact = %s", res.Artifact)
	}
}

func TestEngineStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t, "trip/a.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.engine.Run(ctx, submission(media.FolderFile("trip", "a.mp4"), transform.Default())); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOutputName(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":  "clip_edited.mp4",
		"clip.AVI":  "clip_edited.mp4",
		"a:b.webm":  "a-b_edited.webm",
		"movie.mkv": "movie_edited.mkv",
		"noext":     "noext_edited.mp4",
		"?.mp4":     "video_edited.mp4",
	}
	for in, want := range cases {
		if got := OutputName(in); got != want {
			t.Fatalf("OutputName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCopySidecarsPrefersDecodedName(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "my%20clip.mp4")
	for _, name := range []string{"my clip.txt", "my%20clip.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	out := t.TempDir()
	written, err := copySidecars(input, out, "my clip_edited")
	if err != nil {
		t.Fatalf("copySidecars: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("written = %v", written)
	}
	data, _ := os.ReadFile(written[0])
	if string(data) != "my clip.txt" {
		t.Fatalf("expected decoded sidecar, got %q", data)
	}
}
