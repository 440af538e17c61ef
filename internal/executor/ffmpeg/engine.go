package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidmill/internal/executor"
	"vidmill/internal/logging"
	"vidmill/internal/media"
	"vidmill/internal/queue"
	"vidmill/internal/textutil"
	"vidmill/internal/transform"
)

// EngineName identifies this engine in config and logs.
const EngineName = "ffmpeg"

// Options configures an Engine.
type Options struct {
	Binary string
	// LibraryRoot is the download library folder refs resolve against.
	LibraryRoot string
	// OutputRoot receives <folder>/<name>_edited<ext>.
	OutputRoot   string
	MinFreeBytes uint64
	CopySidecars bool
	Logger       *slog.Logger
}

// Engine transforms every input of a submission sequentially with ffmpeg.
type Engine struct {
	opts   Options
	runner Runner
	statfs statfsFunc
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(e *Engine) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithStatfs replaces the free-space probe.
func WithStatfs(fn func(path string) (total, free uint64, err error)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.statfs = fn
		}
	}
}

// WithClock replaces the clock used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds an Engine.
func New(opts Options, options ...Option) *Engine {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "ffmpeg"
	}
	e := &Engine{
		opts:   opts,
		runner: ExecRunner{},
		statfs: realStatfs,
		now:    time.Now,
		logger: logging.NewComponentLogger(opts.Logger, "ffmpeg"),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return EngineName }

// Run processes each input of sub in order. Any failed input fails the job;
// the error lists every failure with its ffmpeg stderr tail.
func (e *Engine) Run(ctx context.Context, sub queue.Submission) (executor.Result, error) {
	inputs, err := sub.Media.Inputs(e.opts.LibraryRoot)
	if err != nil {
		return executor.Result{}, err
	}
	if len(inputs) == 0 {
		return executor.Result{}, errors.New("no input files")
	}
	if err := checkOutputDir(e.opts.OutputRoot, e.opts.MinFreeBytes, e.statfs); err != nil {
		return executor.Result{}, err
	}
	secondary, err := e.resolveSecondary(sub.Spec)
	if err != nil {
		return executor.Result{}, err
	}

	logger := logging.WithContext(ctx, e.logger)
	var (
		outputs  []string
		failures []string
	)
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return executor.Result{}, err
		}
		start := time.Now()
		out, err := e.transcode(ctx, in, secondary, sub.Spec)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", in.Filename, err))
			logging.WarnWithContext(logger, "input failed", "ffmpeg_input_failed",
				logging.String("input", in.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the input file and ffmpeg stderr"),
			)
			continue
		}
		outputs = append(outputs, out)
		logger.Info("input transformed",
			logging.String("input", in.Path),
			logging.String("output", out),
			logging.Duration("elapsed", time.Since(start)),
		)
	}
	if len(failures) > 0 {
		return executor.Result{}, fmt.Errorf("%d of %d inputs failed: %s", len(failures), len(inputs), strings.Join(failures, "; "))
	}
	return executor.Result{Artifact: outputs[0], Outputs: outputs}, nil
}

func (e *Engine) transcode(ctx context.Context, in media.Input, secondary string, spec transform.Spec) (string, error) {
	if _, err := os.Stat(in.Path); err != nil {
		return "", fmt.Errorf("input: %w", err)
	}
	outDir := e.opts.OutputRoot
	if in.Folder != "" {
		outDir = filepath.Join(outDir, in.Folder)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := OutputName(in.Filename)
	output := filepath.Join(outDir, name)

	var probe Probe
	if needsProbe(spec) {
		detect := spec.Transform.RemoveBlackBars && !spec.Transform.KeepOriginal
		stderr, err := e.runner.Run(ctx, ProbeArgs(e.opts.Binary, in.Path, detect))
		if err != nil {
			return "", fmt.Errorf("probe: %w: %s", err, stderrTail(stderr))
		}
		probe = ParseProbe(stderr)
	}

	args, err := Build(e.opts.Binary, Plan{
		Input:        in.Path,
		Secondary:    secondary,
		Output:       output,
		Spec:         spec,
		Probe:        probe,
		CreationTime: e.now(),
	})
	if err != nil {
		return "", err
	}
	e.logger.Debug("ffmpeg command", logging.String("args", strings.Join(args, " ")))
	if stderr, err := e.runner.Run(ctx, args); err != nil {
		_ = os.Remove(output)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %s", err, stderrTail(stderr))
	}

	if e.opts.CopySidecars && in.Folder != "" {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if _, err := copySidecars(in.Path, outDir, stem); err != nil {
			e.logger.Warn("sidecar copy failed",
				logging.String("input", in.Path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "sidecar_copy_failed"),
				logging.String(logging.FieldErrorHint, "check permissions on the output folder"),
			)
		}
	}
	return output, nil
}

// needsProbe reports whether Build needs source geometry for spec.
func needsProbe(spec transform.Spec) bool {
	if spec.Transform.RemoveBlackBars && !spec.Transform.KeepOriginal {
		return true
	}
	if spec.DynamicZoom.Enabled || spec.Fusion.Enabled {
		return true
	}
	if spec.SplitScreen.Enabled && spec.SplitScreen.Direction == transform.SplitAuto {
		return true
	}
	r := spec.Resolution
	return r.Width.Original != r.Height.Original
}

// OutputName maps a source filename to its edited name. Containers that
// cannot carry H.264 cleanly are rewritten to .mp4.
func OutputName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	stem := textutil.SanitizeFileName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	if stem == "" {
		stem = "video"
	}
	switch ext {
	case ".mp4", ".mov", ".mkv", ".m4v", ".webm":
	default:
		ext = ".mp4"
	}
	return stem + "_edited" + ext
}

// resolveSecondary finds the fusion clip: absolute paths are used as is,
// relative ones resolve inside the library and may not escape it.
func (e *Engine) resolveSecondary(spec transform.Spec) (string, error) {
	if !spec.Fusion.Enabled {
		return "", nil
	}
	ref := strings.TrimSpace(spec.Fusion.SecondaryMedia)
	if ref == "" {
		return "", errors.New("fusion: secondary media is required")
	}
	path := ref
	if !filepath.IsAbs(ref) {
		clean := filepath.Clean(ref)
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("fusion: secondary media %q escapes the library", ref)
		}
		path = filepath.Join(e.opts.LibraryRoot, clean)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("fusion: secondary media: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("fusion: secondary media %s is a directory", path)
	}
	return path, nil
}
