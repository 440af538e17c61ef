package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vidmill/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "vidmill")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "vidmill.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Queue.JobTimeoutSeconds != 3600 {
		t.Fatalf("unexpected job timeout: %d", cfg.Queue.JobTimeoutSeconds)
	}
	if cfg.Queue.ProgressCap != 90 || cfg.Queue.ProgressIntervalMS != 500 {
		t.Fatalf("unexpected progress defaults: %+v", cfg.Queue)
	}
	if cfg.Executor.Engine != config.EngineFFmpeg {
		t.Fatalf("unexpected engine: %q", cfg.Executor.Engine)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.LogDir(), cfg.Paths.OutputDir, cfg.Paths.UploadDir, cfg.Paths.DownloadsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vidmill.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Queue struct {
			JobTimeoutSeconds int `toml:"job_timeout_seconds"`
		} `toml:"queue"`
		Executor struct {
			Engine    string `toml:"engine"`
			RemoteURL string `toml:"remote_url"`
		} `toml:"executor"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Queue.JobTimeoutSeconds = 0
	custom.Executor.Engine = "Remote"
	custom.Executor.RemoteURL = "http://engine.local:5000/api/video/edit/"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.DataDir != custom.Paths.DataDir {
		t.Fatalf("expected data dir from file, got %q", cfg.Paths.DataDir)
	}
	if cfg.JobTimeout() != 0 {
		t.Fatalf("expected timeout disabled, got %v", cfg.JobTimeout())
	}
	if cfg.Executor.Engine != config.EngineRemote {
		t.Fatalf("expected engine normalized to remote, got %q", cfg.Executor.Engine)
	}
	if cfg.Executor.RemoteURL != "http://engine.local:5000/api/video/edit" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Executor.RemoteURL)
	}
}

func TestEnvVarOverridesConfigFileForSecrets(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vidmill.toml")
	content := "[api]\ntoken = \"file-token\"\n[executor]\nremote_url = \"http://file.local\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VIDMILL_API_TOKEN", "env-token")
	t.Setenv("VIDMILL_REMOTE_URL", "http://env.local")
	t.Setenv("VIDMILL_NTFY_TOPIC", "https://ntfy.example/env")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Token != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.API.Token)
	}
	if cfg.Executor.RemoteURL != "http://env.local" {
		t.Fatalf("expected env remote url, got %q", cfg.Executor.RemoteURL)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/env" {
		t.Fatalf("expected env ntfy topic, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.NotifyTimeout() != 10*time.Second {
		t.Fatalf("expected default notify timeout, got %v", cfg.NotifyTimeout())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vidmill.toml")
	if err := os.WriteFile(configPath, []byte("[queue]\nworkers = 4\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{
			name:    "remote without url",
			mutate:  func(c *config.Config) { c.Executor.Engine = config.EngineRemote },
			wantErr: "executor.remote_url",
		},
		{
			name: "remote with relative url",
			mutate: func(c *config.Config) {
				c.Executor.Engine = config.EngineRemote
				c.Executor.RemoteURL = "engine/edit"
			},
			wantErr: "not an absolute URL",
		},
		{
			name:    "unknown engine",
			mutate:  func(c *config.Config) { c.Executor.Engine = "handbrake" },
			wantErr: "executor.engine",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *config.Config) { c.Queue.JobTimeoutSeconds = -1 },
			wantErr: "job_timeout_seconds",
		},
		{
			name:    "progress cap reaches completion",
			mutate:  func(c *config.Config) { c.Queue.ProgressCap = 100 },
			wantErr: "progress_cap",
		},
		{
			name: "output inside downloads",
			mutate: func(c *config.Config) {
				c.Paths.OutputDir = "/srv/videos"
				c.Paths.DownloadsDir = "/srv/videos"
			},
			wantErr: "output_dir",
		},
		{
			name:    "ntfy topic without scheme",
			mutate:  func(c *config.Config) { c.Notifications.NtfyTopic = "vidmill-alerts" },
			wantErr: "notifications.ntfy_topic",
		},
		{
			name:   "ntfy topic url",
			mutate: func(c *config.Config) { c.Notifications.NtfyTopic = "https://ntfy.sh/vidmill" },
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "nested", "config.toml")

	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Executor.Engine != config.EngineFFmpeg {
		t.Fatalf("unexpected engine in sample: %q", cfg.Executor.Engine)
	}
}

func TestEncodeRoundTrips(t *testing.T) {
	cfg := config.Default()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(string(data), "[queue]") || !strings.Contains(string(data), "job_timeout_seconds = 3600") {
		t.Fatalf("unexpected encoding:\n%s", data)
	}
}
