package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"vidmill/internal/logging"
	"vidmill/internal/media"
	"vidmill/internal/metrics"
	"vidmill/internal/queue"
	"vidmill/internal/store"
	"vidmill/internal/transform"
)

const (
	maxSubmitBody         = 4 << 20
	maxPresetBody         = 1 << 20
	defaultMaxUploadBytes = 8 << 30
)

// Queue is the slice of queue.Queue the API drives.
type Queue interface {
	EnqueueBatch(items []queue.Item) ([]queue.EnqueueResult, error)
	Cancel(jobID string) bool
	CancelAllPending() int
	PurgeTerminal() int
	Snapshot() []queue.Job
	Get(jobID string) (queue.Job, error)
}

// Store is the journal and preset persistence the API reads and writes.
type Store interface {
	GetJob(ctx context.Context, id string) (queue.Job, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]queue.Job, error)
	PurgeJobs(ctx context.Context) (int64, error)
	SavePreset(ctx context.Context, name string, spec transform.Spec) (store.Preset, error)
	Preset(ctx context.Context, name string) (store.Preset, error)
	ListPresets(ctx context.Context) ([]store.Preset, error)
	DeletePreset(ctx context.Context, name string) (bool, error)
	CheckHealth(ctx context.Context) (store.DatabaseHealth, error)
}

// Options wires the server to the rest of the daemon.
type Options struct {
	Queue   Queue
	Store   Store
	Library *media.Library
	// CheckLibrary rejects library references whose files are missing at
	// submit time. It only makes sense when the library is local.
	CheckLibrary   bool
	UploadDir      string
	MaxUploadBytes int64
	Token          string
	Engine         string
	// Checks reports readiness probes for /api/health.
	Checks  func(ctx context.Context) []Check
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server serves the control surface.
type Server struct {
	opts    Options
	logger  *slog.Logger
	started time.Time
	router  *mux.Router
}

// NewServer builds the router for opts.
func NewServer(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "api-server"),
		started: time.Now(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(correlationMiddleware)
	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware)
		r.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.Use(s.logMiddleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware(s.opts.Token))

	api.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/jobs/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/jobs/cancel-pending", s.handleCancelPending).Methods(http.MethodPost)
	api.HandleFunc("/jobs/terminal", s.handlePurgeTerminal).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/cancel", s.handleCancel).Methods(http.MethodPost)

	api.HandleFunc("/presets", s.handleListPresets).Methods(http.MethodGet)
	api.HandleFunc("/presets/{name}", s.handleGetPreset).Methods(http.MethodGet)
	api.HandleFunc("/presets/{name}", s.handleSavePreset).Methods(http.MethodPut)
	api.HandleFunc("/presets/{name}", s.handleDeletePreset).Methods(http.MethodDelete)

	api.HandleFunc("/uploads", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/library", s.handleLibrary).Methods(http.MethodGet)
	api.HandleFunc("/library/{folder}", s.handleFolder).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.opts.Queue.Snapshot()
	if raw := r.URL.Query()["status"]; len(raw) > 0 {
		statuses, err := parseStatuses(raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		jobs = filterJobs(jobs, statuses)
	}
	s.writeJSON(w, r, http.StatusOK, JobListResponse{Jobs: FromJobs(jobs), Counts: CountStatuses(s.opts.Queue.Snapshot())})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.opts.Queue.Get(id)
	if errors.Is(err, queue.ErrJobNotFound) && s.opts.Store != nil {
		job, err = s.opts.Store.GetJob(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) || errors.Is(err, store.ErrNotFound) {
			s.writeError(w, r, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, JobResponse{Job: FromJob(job)})
}

// submitWire mirrors SubmitRequest but keeps specs raw so omitted fields
// take the editor defaults.
type submitWire struct {
	Items []struct {
		Media  media.Ref       `json:"mediaRef"`
		Spec   json.RawMessage `json:"spec,omitempty"`
		Preset string          `json:"preset,omitempty"`
		Label  string          `json:"label,omitempty"`
	} `json:"items"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitWire
	if !s.decodeBody(w, r, maxSubmitBody, &req) {
		return
	}
	if len(req.Items) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "items: at least one item is required")
		return
	}

	results := make([]SubmitResult, len(req.Items))
	var (
		items   []queue.Item
		indexes []int
	)
	for i, item := range req.Items {
		results[i].Index = i
		spec, err := s.resolveSpec(r.Context(), item.Spec, item.Preset)
		if err == nil {
			err = s.checkMedia(item.Media)
		}
		if err != nil {
			results[i] = submitResult(queue.EnqueueResult{Index: i, Err: err})
			continue
		}
		items = append(items, queue.Item{Media: item.Media, Spec: spec, Label: item.Label})
		indexes = append(indexes, i)
	}

	if len(items) > 0 {
		enqueued, err := s.opts.Queue.EnqueueBatch(items)
		if err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, err.Error())
			return
		}
		for _, res := range enqueued {
			original := indexes[res.Index]
			res.Index = original
			results[original] = submitResult(res)
		}
	}

	resp := SubmitResponse{Results: results}
	for _, res := range results {
		if res.JobID != "" {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
	}
	status := http.StatusAccepted
	if resp.Accepted == 0 {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, r, status, resp)
}

func (s *Server) resolveSpec(ctx context.Context, raw json.RawMessage, preset string) (transform.Spec, error) {
	preset = strings.TrimSpace(preset)
	hasSpec := len(raw) > 0 && string(raw) != "null"
	switch {
	case hasSpec && preset != "":
		return transform.Spec{}, errors.New("spec and preset are mutually exclusive")
	case hasSpec:
		return transform.Parse(raw)
	case preset != "":
		if s.opts.Store == nil {
			return transform.Spec{}, errors.New("presets are unavailable")
		}
		p, err := s.opts.Store.Preset(ctx, preset)
		if err != nil {
			return transform.Spec{}, err
		}
		return p.Spec, nil
	default:
		return transform.Default(), nil
	}
}

// checkMedia keeps upload references inside the upload directory and,
// when enabled, confirms library files exist.
func (s *Server) checkMedia(ref media.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if ref.Kind == media.KindUpload {
		if s.opts.UploadDir == "" {
			return fmt.Errorf("%w: uploads are disabled", media.ErrInvalidRef)
		}
		if !within(s.opts.UploadDir, ref.UploadPath) {
			return fmt.Errorf("%w: upload path must be inside the upload directory", media.ErrInvalidRef)
		}
		if _, err := os.Stat(ref.UploadPath); err != nil {
			return fmt.Errorf("%w: upload %s: %v", media.ErrInvalidRef, filepath.Base(ref.UploadPath), err)
		}
		return nil
	}
	if s.opts.CheckLibrary && s.opts.Library != nil {
		return s.opts.Library.Exists(ref)
	}
	return nil
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.opts.Queue.Get(id)
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, "job not found")
		return
	}
	if !s.opts.Queue.Cancel(id) {
		s.writeError(w, r, http.StatusConflict, fmt.Sprintf("job is %s, only the processing job can be cancelled", job.Status))
		return
	}
	s.writeJSON(w, r, http.StatusOK, CountResponse{Count: 1})
}

func (s *Server) handleCancelPending(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, CountResponse{Count: s.opts.Queue.CancelAllPending()})
}

func (s *Server) handlePurgeTerminal(w http.ResponseWriter, r *http.Request) {
	resp := CountResponse{Count: s.opts.Queue.PurgeTerminal()}
	if truthy(r.URL.Query().Get("history")) && s.opts.Store != nil {
		purged, err := s.opts.Store.PurgeJobs(r.Context())
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Journal = purged
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "job journal unavailable")
		return
	}
	filter := store.JobFilter{}
	if raw := r.URL.Query()["status"]; len(raw) > 0 {
		statuses, err := parseStatuses(raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		filter.Statuses = statuses
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var limit int
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 0 {
			s.writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	jobs, err := s.opts.Store.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, JobListResponse{Jobs: FromJobs(jobs), Counts: CountStatuses(jobs)})
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	presets, err := s.opts.Store.ListPresets(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if presets == nil {
		presets = []store.Preset{}
	}
	s.writeJSON(w, r, http.StatusOK, PresetListResponse{Presets: presets})
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	preset, err := s.opts.Store.Preset(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, preset)
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxPresetBody)
	data, err := io.ReadAll(body)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := transform.Parse(data)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	preset, err := s.opts.Store.SavePreset(r.Context(), mux.Vars(r)["name"], spec)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.Info("preset saved", logging.String("preset", preset.Name))
	s.writeJSON(w, r, http.StatusOK, preset)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	deleted, err := s.opts.Store.DeletePreset(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !deleted {
		s.writeError(w, r, http.StatusNotFound, "preset not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if s.opts.Library == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "library unavailable")
		return
	}
	folders, err := s.opts.Library.Folders()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if folders == nil {
		folders = []media.Folder{}
	}
	s.writeJSON(w, r, http.StatusOK, LibraryResponse{Root: s.opts.Library.Root(), Folders: folders})
}

func (s *Server) handleFolder(w http.ResponseWriter, r *http.Request) {
	if s.opts.Library == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "library unavailable")
		return
	}
	folder := mux.Vars(r)["folder"]
	videos, err := s.opts.Library.Videos(folder)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, media.ErrInvalidRef) {
			status = http.StatusNotFound
		}
		s.writeError(w, r, status, err.Error())
		return
	}
	if videos == nil {
		videos = []string{}
	}
	s.writeJSON(w, r, http.StatusOK, FolderResponse{Folder: folder, Videos: videos})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		PID:    os.Getpid(),
		Engine: s.opts.Engine,
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Counts: CountStatuses(s.opts.Queue.Snapshot()),
	}
	if s.opts.Store != nil {
		health, err := s.opts.Store.CheckHealth(r.Context())
		resp.Database = health
		if err != nil || !health.IntegrityCheck {
			resp.Status = "degraded"
		}
	}
	if s.opts.Checks != nil {
		resp.Checks = s.opts.Checks(r.Context())
		for _, check := range resp.Checks {
			if !check.Ready {
				resp.Status = "degraded"
			}
		}
	}
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, status, resp)
}

func (s *Server) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.Store == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "preset store unavailable")
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidPreset):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, transform.ErrInvalidSpec):
		s.writeJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{
			Error:         "invalid transform spec",
			Fields:        FieldErrors(err),
			CorrelationID: correlationID(r),
		})
	default:
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.WithContext(r.Context(), s.logger).Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, ErrorResponse{Error: message, CorrelationID: correlationID(r)})
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var out []queue.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", strings.TrimSpace(part))
			}
			out = append(out, status)
		}
	}
	return out, nil
}

func filterJobs(jobs []queue.Job, statuses []queue.Status) []queue.Job {
	if len(statuses) == 0 {
		return jobs
	}
	keep := make(map[queue.Status]bool, len(statuses))
	for _, status := range statuses {
		keep[status] = true
	}
	out := jobs[:0]
	for _, job := range jobs {
		if keep[job.Status] {
			out = append(out, job)
		}
	}
	return out
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
