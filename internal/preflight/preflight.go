package preflight

import (
	"context"
	"strings"

	"vidmill/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check that applies to the configured engine.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir),
	}

	switch cfg.Executor.Engine {
	case config.EngineRemote:
		results = append(results, CheckRemoteEngine(ctx, cfg.Executor.RemoteURL))
	default:
		results = append(results,
			CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
			CheckReadableDirectory("Downloads directory", cfg.Paths.DownloadsDir),
			CheckBinary("FFmpeg", cfg.Executor.FFmpegBinary),
		)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Summary renders results as "name: detail" pairs joined by "; ".
func Summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return strings.Join(parts, "; ")
}
