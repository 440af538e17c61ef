package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"vidmill/internal/logging"
	"vidmill/internal/media"
	"vidmill/internal/textutil"
)

// UploadField is the multipart field carrying the video.
const UploadField = "video"

// handleUpload streams one video into the upload directory. Submitting it is
// a separate POST /api/jobs with the returned reference.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(s.opts.UploadDir) == "" {
		s.writeError(w, r, http.StatusServiceUnavailable, "uploads are disabled")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("expected multipart form: %v", err))
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("missing %q file part", UploadField))
			return
		}
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("read multipart: %v", err))
			return
		}
		if part.FormName() != UploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		name := textutil.SanitizeFileName(filepath.Base(part.FileName()))
		if name == "" || !media.IsVideoFile(name) {
			_ = part.Close()
			s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unsupported video file %q", part.FileName()))
			return
		}
		path, size, err := s.saveUpload(part, name)
		_ = part.Close()
		if err != nil {
			status := http.StatusInternalServerError
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			s.writeError(w, r, status, err.Error())
			return
		}
		logging.WithContext(r.Context(), s.logger).Info("upload stored",
			logging.String("path", path),
			logging.Int("bytes", int(size)),
		)
		ref := media.Upload(path)
		ref.Filename = name
		s.writeJSON(w, r, http.StatusCreated, UploadResponse{Media: ref, Size: size})
		return
	}
}

func (s *Server) saveUpload(src io.Reader, name string) (string, int64, error) {
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.opts.UploadDir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create upload: %w", err)
	}
	size, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return "", 0, fmt.Errorf("write upload: %w", copyErr)
		}
		return "", 0, fmt.Errorf("close upload: %w", closeErr)
	}
	final := filepath.Join(s.opts.UploadDir, uuid.NewString()[:8]+"_"+name)
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("store upload: %w", err)
	}
	return final, size, nil
}
