package config

const (
	defaultConfigPath           = "~/.config/vidmill/config.toml"
	defaultDataDir              = "~/.local/share/vidmill"
	defaultOutputDir            = "~/.local/share/vidmill/output"
	defaultDownloadsDir         = "~/Videos/downloads"
	defaultUploadDir            = "~/.local/share/vidmill/uploads"
	defaultJobTimeoutSeconds    = 3600
	defaultProgressIntervalMS   = 500
	defaultProgressCap          = 90
	defaultProgressMaxStep      = 10
	defaultEngine               = EngineFFmpeg
	defaultFFmpegBinary         = "ffmpeg"
	defaultRemoteTimeoutSeconds = 1800
	defaultMinFreeGiB           = 2
	defaultAPIBind              = "127.0.0.1:7590"
	defaultNotifyTimeoutSeconds = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Engine names accepted by executor.engine.
const (
	EngineFFmpeg = "ffmpeg"
	EngineRemote = "remote"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			OutputDir:    defaultOutputDir,
			DownloadsDir: defaultDownloadsDir,
			UploadDir:    defaultUploadDir,
		},
		Queue: Queue{
			JobTimeoutSeconds:  defaultJobTimeoutSeconds,
			ProgressIntervalMS: defaultProgressIntervalMS,
			ProgressCap:        defaultProgressCap,
			ProgressMaxStep:    defaultProgressMaxStep,
		},
		Executor: Executor{
			Engine:               defaultEngine,
			FFmpegBinary:         defaultFFmpegBinary,
			RemoteTimeoutSeconds: defaultRemoteTimeoutSeconds,
			MinFreeGiB:           defaultMinFreeGiB,
			CopySidecars:         true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
			NotifyCompleted:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
