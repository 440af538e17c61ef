package remote

import (
	"errors"
	"strings"

	"vidmill/internal/executor"
	"vidmill/internal/media"
	"vidmill/internal/transform"
)

// WireRef is the service's media reference shape. Exactly one form is set:
// {folder, filename}, {folder, filenames}, or {allFolders, videos}.
type WireRef struct {
	Folder     string        `json:"folder,omitempty"`
	Filename   string        `json:"filename,omitempty"`
	Filenames  []string      `json:"filenames,omitempty"`
	AllFolders bool          `json:"allFolders,omitempty"`
	Videos     []media.Video `json:"videos,omitempty"`
}

// NewWireRef converts a library reference. Uploads have no wire form; they
// travel as multipart bodies instead.
func NewWireRef(ref media.Ref) WireRef {
	switch ref.Kind {
	case media.KindFolderFiles:
		return WireRef{Folder: ref.Folder, Filenames: append([]string(nil), ref.Filenames...)}
	case media.KindAllFolders:
		return WireRef{AllFolders: true, Videos: append([]media.Video(nil), ref.Videos...)}
	default:
		return WireRef{Folder: ref.Folder, Filename: ref.Filename}
	}
}

// Request is the JSON body for library references.
type Request struct {
	MediaRef WireRef        `json:"mediaRef"`
	Spec     transform.Spec `json:"spec"`
}

// ProcessedFile is one entry of a batch response.
type ProcessedFile struct {
	Processed string `json:"processed"`
}

// Response is the service reply.
type Response struct {
	Success        bool            `json:"success"`
	OutputFile     string          `json:"output_file,omitempty"`
	ProcessedFiles []ProcessedFile `json:"processed_files,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// IsBatch reports whether the reply carries per-file results.
func (r Response) IsBatch() bool {
	return r.ProcessedFiles != nil
}

// Result converts the reply into an engine result or error.
func (r Response) Result() (executor.Result, error) {
	if !r.Success {
		msg := strings.TrimSpace(r.Error)
		if msg == "" {
			msg = "remote engine reported failure"
		}
		return executor.Result{}, errors.New(msg)
	}
	if !r.IsBatch() {
		res := executor.Result{Artifact: r.OutputFile}
		if r.OutputFile != "" {
			res.Outputs = []string{r.OutputFile}
		}
		return res, nil
	}
	outputs := make([]string, 0, len(r.ProcessedFiles))
	for _, f := range r.ProcessedFiles {
		if p := strings.TrimSpace(f.Processed); p != "" {
			outputs = append(outputs, p)
		}
	}
	artifact := r.OutputFile
	if artifact == "" && len(outputs) > 0 {
		artifact = outputs[0]
	}
	return executor.Result{Artifact: artifact, Outputs: outputs}, nil
}
