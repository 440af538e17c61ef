package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vidmill/internal/store"
	"vidmill/internal/transform"
)

// Error is a non-2xx daemon reply.
type Error struct {
	StatusCode    int
	Message       string
	Fields        []FieldError
	CorrelationID string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
	for _, f := range e.Fields {
		msg += fmt.Sprintf("\n  %s: %s", f.Field, f.Message)
	}
	return msg
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to a running daemon.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sends a bearer token with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// NewClient builds a client for the daemon at baseURL. A bare host:port is
// treated as http.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("daemon address is empty")
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid daemon address %q", baseURL)
	}
	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the daemon address requests are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// Jobs returns the in-memory queue, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, statuses ...string) (JobListResponse, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	var resp JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", query, nil, &resp)
	return resp, err
}

// Job fetches one job from the queue or the journal.
func (c *Client) Job(ctx context.Context, id string) (Job, error) {
	var resp JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &resp)
	return resp.Job, err
}

// History returns journal rows newest first.
func (c *Client) History(ctx context.Context, limit int, statuses ...string) (JobListResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	for _, status := range statuses {
		query.Add("status", status)
	}
	var resp JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/history", query, nil, &resp)
	return resp, err
}

// Submit enqueues a batch. Per-item rejections are reported in the response,
// not as an error.
func (c *Client) Submit(ctx context.Context, items []SubmitItem) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", nil, SubmitRequest{Items: items}, &resp)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity && len(resp.Results) > 0 {
		return resp, nil
	}
	return resp, err
}

// Cancel cancels the processing job.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, nil)
}

// CancelPending fails every pending job and returns how many there were.
func (c *Client) CancelPending(ctx context.Context) (int, error) {
	var resp CountResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs/cancel-pending", nil, nil, &resp)
	return resp.Count, err
}

// PurgeTerminal drops finished jobs from the queue, and from the journal when
// history is set.
func (c *Client) PurgeTerminal(ctx context.Context, history bool) (CountResponse, error) {
	query := url.Values{}
	if history {
		query.Set("history", "1")
	}
	var resp CountResponse
	err := c.do(ctx, http.MethodDelete, "/api/jobs/terminal", query, nil, &resp)
	return resp, err
}

// Presets lists saved presets.
func (c *Client) Presets(ctx context.Context) (PresetListResponse, error) {
	var resp PresetListResponse
	err := c.do(ctx, http.MethodGet, "/api/presets", nil, nil, &resp)
	return resp, err
}

// Preset fetches one preset.
func (c *Client) Preset(ctx context.Context, name string) (store.Preset, error) {
	var resp store.Preset
	err := c.do(ctx, http.MethodGet, "/api/presets/"+url.PathEscape(name), nil, nil, &resp)
	return resp, err
}

// SavePreset stores spec under name.
func (c *Client) SavePreset(ctx context.Context, name string, spec transform.Spec) (store.Preset, error) {
	var resp store.Preset
	err := c.do(ctx, http.MethodPut, "/api/presets/"+url.PathEscape(name), nil, spec, &resp)
	return resp, err
}

// DeletePreset removes a preset.
func (c *Client) DeletePreset(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/presets/"+url.PathEscape(name), nil, nil, nil)
}

// Library lists download folders.
func (c *Client) Library(ctx context.Context) (LibraryResponse, error) {
	var resp LibraryResponse
	err := c.do(ctx, http.MethodGet, "/api/library", nil, nil, &resp)
	return resp, err
}

// Folder lists the videos in one download folder.
func (c *Client) Folder(ctx context.Context, folder string) (FolderResponse, error) {
	var resp FolderResponse
	err := c.do(ctx, http.MethodGet, "/api/library/"+url.PathEscape(folder), nil, nil, &resp)
	return resp, err
}

// Health returns daemon health. A degraded daemon answers 503 with a full
// body, which is returned alongside the error.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &resp)
	return resp, err
}

// Upload streams a local video to the daemon's upload directory.
func (c *Client) Upload(ctx context.Context, path string) (UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("open upload: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer file.Close()
		part, err := mw.CreateFormFile(UploadField, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/uploads", pr)
	if err != nil {
		pr.CloseWithError(err)
		return UploadResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	// Uploads can outlive the default request timeout.
	client := *c.httpClient
	client.Timeout = 0
	var resp UploadResponse
	err = c.send(&client, req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(c.httpClient, req, dest)
}

func (c *Client) send(client *http.Client, req *http.Request, dest any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	hasBody := dest != nil && len(bytes.TrimSpace(data)) > 0
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if hasBody {
			if err := json.Unmarshal(data, dest); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	if hasBody {
		// Some error replies (422 submit, 503 health) carry a full payload.
		_ = json.Unmarshal(data, dest)
	}
	apiErr := &Error{StatusCode: resp.StatusCode, CorrelationID: resp.Header.Get(CorrelationHeader)}
	var payload ErrorResponse
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Fields = payload.Fields
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
