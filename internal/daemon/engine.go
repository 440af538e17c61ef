package daemon

import (
	"fmt"
	"log/slog"

	"vidmill/internal/config"
	"vidmill/internal/executor"
	"vidmill/internal/executor/ffmpeg"
	"vidmill/internal/executor/remote"
)

// newEngine builds the transcoding engine selected by cfg.Executor.Engine.
func newEngine(cfg *config.Config, logger *slog.Logger) (executor.Engine, error) {
	switch cfg.Executor.Engine {
	case config.EngineRemote:
		engine, err := remote.New(remote.Config{
			BaseURL: cfg.Executor.RemoteURL,
			Timeout: cfg.RemoteTimeout(),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return engine, nil
	case config.EngineFFmpeg, "":
		return ffmpeg.New(ffmpeg.Options{
			Binary:       cfg.Executor.FFmpegBinary,
			LibraryRoot:  cfg.Paths.DownloadsDir,
			OutputRoot:   cfg.Paths.OutputDir,
			MinFreeBytes: uint64(cfg.Executor.MinFreeGiB) << 30,
			CopySidecars: cfg.Executor.CopySidecars,
			Logger:       logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown executor engine %q", cfg.Executor.Engine)
	}
}
