package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidmill/internal/executor"
	"vidmill/internal/logging"
	"vidmill/internal/media"
	"vidmill/internal/queue"
	"vidmill/internal/transform"
)

const (
	// EngineName identifies this engine in config and logs.
	EngineName = "remote"

	processPath     = "/api/video/process"
	defaultTimeout  = 30 * time.Minute
	maxResponseSize = 1 << 20
)

// Config captures the settings needed to reach the service.
type Config struct {
	BaseURL string
	// Timeout bounds one HTTP exchange. Zero uses 30 minutes.
	Timeout time.Duration
	Logger  *slog.Logger
}

// StatusError reports a non-2xx reply whose body was not a service response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote engine: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Engine forwards submissions to the service.
type Engine struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the engine.
type Option func(*Engine)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// New builds an engine for the service at cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Engine, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("remote engine: base url %q must be absolute", cfg.BaseURL)
	}
	endpoint, err := url.JoinPath(base, processPath)
	if err != nil {
		return nil, fmt.Errorf("remote engine: build url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	e := &Engine{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(cfg.Logger, "remote"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Name() string { return EngineName }

// Endpoint is the URL submissions are posted to.
func (e *Engine) Endpoint() string { return e.endpoint }

// Run posts sub and waits for the service reply.
func (e *Engine) Run(ctx context.Context, sub queue.Submission) (executor.Result, error) {
	req, err := e.newRequest(ctx, sub)
	if err != nil {
		return executor.Result{}, err
	}
	logger := logging.WithContext(ctx, e.logger)
	logger.Debug("submitting to remote engine",
		logging.String("endpoint", e.endpoint),
		logging.String("media", sub.Label),
	)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return executor.Result{}, ctxErr
		}
		return executor.Result{}, fmt.Errorf("remote engine: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return executor.Result{}, fmt.Errorf("remote engine: read response: %w", err)
	}
	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return executor.Result{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return executor.Result{}, fmt.Errorf("remote engine: decode response: %w", err)
	}
	if parsed.Success && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return executor.Result{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	res, err := parsed.Result()
	if err != nil {
		return executor.Result{}, err
	}
	logger.Info("remote engine finished",
		logging.String("artifact", res.Artifact),
		logging.Int("outputs", len(res.Outputs)),
		logging.Bool("batch", parsed.IsBatch()),
	)
	return res, nil
}

func (e *Engine) newRequest(ctx context.Context, sub queue.Submission) (*http.Request, error) {
	if err := sub.Media.Validate(); err != nil {
		return nil, err
	}
	if sub.Media.Kind == media.KindUpload {
		return e.uploadRequest(ctx, sub.Media.UploadPath, sub.Spec)
	}
	encoded, err := json.Marshal(Request{MediaRef: NewWireRef(sub.Media), Spec: sub.Spec})
	if err != nil {
		return nil, fmt.Errorf("remote engine: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("remote engine: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// uploadRequest streams the file so large uploads are never buffered.
func (e *Engine) uploadRequest(ctx context.Context, path string, spec transform.Spec) (*http.Request, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("remote engine: open upload: %w", err)
	}
	settings, err := json.Marshal(spec)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("remote engine: encode settings: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer file.Close()
		pw.CloseWithError(writeUpload(mw, file, filepath.Base(path), settings))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("remote engine: new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func writeUpload(mw *multipart.Writer, file io.Reader, name string, settings []byte) error {
	if err := mw.WriteField("settings", string(settings)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("video", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
