package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidmill/internal/config"
	"vidmill/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedFFmpeg())
	if result := CheckBinary("FFmpeg", cfg.Executor.FFmpegBinary); !result.Passed {
		t.Fatalf("stub should resolve: %s", result.Detail)
	}
	if result := CheckBinary("FFmpeg", filepath.Join(t.TempDir(), "ffmpeg")); result.Passed {
		t.Fatal("missing binary should fail")
	}
	if result := CheckBinary("FFmpeg", " "); result.Passed || result.Detail != "command not configured" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckRemoteEngine(t *testing.T) {
	tests := []struct {
		name   string
		status int
		passed bool
	}{
		{"not found is reachable", http.StatusNotFound, true},
		{"ok", http.StatusOK, true},
		{"server error", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			if got := CheckRemoteEngine(context.Background(), srv.URL); got.Passed != tt.passed {
				t.Fatalf("passed = %v (%s)", got.Passed, got.Detail)
			}
		})
	}
	if got := CheckRemoteEngine(context.Background(), ""); got.Passed || got.Detail != "missing url" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestRunAllFollowsEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedFFmpeg())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	results := RunAll(context.Background(), cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("ffmpeg setup should pass: %s", Summary(failed))
	}
	if names := Summary(results); !strings.Contains(names, "FFmpeg") || strings.Contains(names, "Remote engine") {
		t.Fatalf("unexpected checks: %s", names)
	}

	cfg.Executor.Engine = config.EngineRemote
	cfg.Executor.RemoteURL = ""
	results = RunAll(context.Background(), cfg)
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Remote engine" {
		t.Fatalf("expected only the remote check to fail, got %+v", failed)
	}
}
