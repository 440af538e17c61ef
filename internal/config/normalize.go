package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeExecutor()
	c.normalizeAPI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.downloads_dir", &c.Paths.DownloadsDir, defaultDownloadsDir},
		{"paths.upload_dir", &c.Paths.UploadDir, defaultUploadDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeQueue() {
	if c.Queue.ProgressIntervalMS <= 0 {
		c.Queue.ProgressIntervalMS = defaultProgressIntervalMS
	}
	if c.Queue.ProgressCap <= 0 {
		c.Queue.ProgressCap = defaultProgressCap
	}
	if c.Queue.ProgressMaxStep <= 0 {
		c.Queue.ProgressMaxStep = defaultProgressMaxStep
	}
	if c.Queue.HistoryLimit < 0 {
		c.Queue.HistoryLimit = 0
	}
}

func (c *Config) normalizeExecutor() {
	c.Executor.Engine = strings.ToLower(strings.TrimSpace(c.Executor.Engine))
	if c.Executor.Engine == "" {
		c.Executor.Engine = defaultEngine
	}
	c.Executor.FFmpegBinary = strings.TrimSpace(c.Executor.FFmpegBinary)
	if c.Executor.FFmpegBinary == "" {
		c.Executor.FFmpegBinary = defaultFFmpegBinary
	}
	if value, ok := os.LookupEnv("VIDMILL_REMOTE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Executor.RemoteURL = value
	}
	c.Executor.RemoteURL = strings.TrimRight(strings.TrimSpace(c.Executor.RemoteURL), "/")
	if c.Executor.RemoteTimeoutSeconds <= 0 {
		c.Executor.RemoteTimeoutSeconds = defaultRemoteTimeoutSeconds
	}
	if c.Executor.MinFreeGiB < 0 {
		c.Executor.MinFreeGiB = 0
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if value, ok := os.LookupEnv("VIDMILL_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.API.Token = value
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv("VIDMILL_NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
