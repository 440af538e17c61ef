package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.OutputDir == c.Paths.DownloadsDir {
		return errors.New("paths.output_dir must differ from paths.downloads_dir")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.JobTimeoutSeconds < 0 {
		return errors.New("queue.job_timeout_seconds must be >= 0 (0 disables the timeout)")
	}
	if c.Queue.ProgressCap >= 100 {
		return fmt.Errorf("queue.progress_cap must be below 100, got %d", c.Queue.ProgressCap)
	}
	if c.Queue.ProgressMaxStep > c.Queue.ProgressCap {
		return fmt.Errorf("queue.progress_max_step %d exceeds queue.progress_cap %d", c.Queue.ProgressMaxStep, c.Queue.ProgressCap)
	}
	return nil
}

func (c *Config) validateExecutor() error {
	switch c.Executor.Engine {
	case EngineFFmpeg:
		return nil
	case EngineRemote:
		if c.Executor.RemoteURL == "" {
			return errors.New("executor.remote_url must be set when executor.engine is \"remote\" (or set VIDMILL_REMOTE_URL)")
		}
		parsed, err := url.Parse(c.Executor.RemoteURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("executor.remote_url %q is not an absolute URL", c.Executor.RemoteURL)
		}
		return nil
	default:
		return fmt.Errorf("executor.engine must be %q or %q, got %q", EngineFFmpeg, EngineRemote, c.Executor.Engine)
	}
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic %q must be a full topic URL such as https://ntfy.sh/my-topic", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}
