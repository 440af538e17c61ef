package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidmill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Progress ticks fast and the API binds an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.DownloadsDir = filepath.Join(base, "downloads")
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Queue.ProgressIntervalMS = 10
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithToken sets the API bearer token.
func WithToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithRemoteEngine points the executor at a remote transcoding service.
func WithRemoteEngine(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Executor.Engine = config.EngineRemote
		b.cfg.Executor.RemoteURL = baseURL
	}
}

// WithLibrary creates the named files under the downloads directory.
func WithLibrary(files ...string) ConfigOption {
	return func(b *configBuilder) {
		for _, name := range files {
			WriteFile(b.t, filepath.Join(b.cfg.Paths.DownloadsDir, name), 16)
		}
	}
}

// WithStubbedFFmpeg writes a stub ffmpeg executable and points the config at
// it. The stub exits with status 0 and writes nothing.
func WithStubbedFFmpeg() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "ffmpeg")
		if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			b.t.Fatalf("write stub ffmpeg: %v", err)
		}
		b.cfg.Executor.FFmpegBinary = target
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
