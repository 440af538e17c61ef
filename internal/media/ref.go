package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"vidmill/internal/textutil"
)

// Kind discriminates the Ref union.
type Kind string

const (
	KindUpload      Kind = "upload"
	KindFolderFile  Kind = "folder_file"
	KindFolderFiles Kind = "folder_files"
	KindAllFolders  Kind = "all_folders"
)

// ErrInvalidRef marks media reference validation failures.
var ErrInvalidRef = errors.New("invalid media reference")

// Video names one file inside a library folder.
type Video struct {
	Folder   string `json:"folder"`
	Filename string `json:"filename"`
}

// Ref identifies the media a job transforms. Which fields are meaningful
// depends on Kind.
type Ref struct {
	Kind       Kind     `json:"kind"`
	UploadPath string   `json:"uploadPath,omitempty"`
	Folder     string   `json:"folder,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Filenames  []string `json:"filenames,omitempty"`
	Videos     []Video  `json:"videos,omitempty"`
}

// Input is one resolved source file.
type Input struct {
	Folder   string
	Filename string
	Path     string
}

// Upload references a file already saved to the upload directory.
func Upload(path string) Ref {
	return Ref{Kind: KindUpload, UploadPath: path, Filename: filepath.Base(path)}
}

// FolderFile references a single library file.
func FolderFile(folder, filename string) Ref {
	return Ref{Kind: KindFolderFile, Folder: folder, Filename: filename}
}

// FolderFiles references several files in one library folder.
func FolderFiles(folder string, filenames ...string) Ref {
	return Ref{Kind: KindFolderFiles, Folder: folder, Filenames: append([]string(nil), filenames...)}
}

// AllFolders references an explicit list of videos across folders.
func AllFolders(videos ...Video) Ref {
	return Ref{Kind: KindAllFolders, Videos: append([]Video(nil), videos...)}
}

// Clone returns a deep copy so callers cannot mutate a captured reference.
func (r Ref) Clone() Ref {
	r.Filenames = append([]string(nil), r.Filenames...)
	r.Videos = append([]Video(nil), r.Videos...)
	return r
}

// Validate checks the reference is structurally sound.
func (r Ref) Validate() error {
	switch r.Kind {
	case KindUpload:
		if strings.TrimSpace(r.UploadPath) == "" {
			return fmt.Errorf("%w: upload path required", ErrInvalidRef)
		}
	case KindFolderFile:
		if err := checkSegment("folder", r.Folder); err != nil {
			return err
		}
		return checkSegment("filename", r.Filename)
	case KindFolderFiles:
		if err := checkSegment("folder", r.Folder); err != nil {
			return err
		}
		if len(r.Filenames) == 0 {
			return fmt.Errorf("%w: at least one filename required", ErrInvalidRef)
		}
		for _, name := range r.Filenames {
			if err := checkSegment("filename", name); err != nil {
				return err
			}
		}
	case KindAllFolders:
		if len(r.Videos) == 0 {
			return fmt.Errorf("%w: at least one video required", ErrInvalidRef)
		}
		for _, v := range r.Videos {
			if err := checkSegment("folder", v.Folder); err != nil {
				return err
			}
			if err := checkSegment("filename", v.Filename); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRef, r.Kind)
	}
	return nil
}

func checkSegment(field, value string) error {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return fmt.Errorf("%w: %s required", ErrInvalidRef, field)
	case value == "." || value == "..":
		return fmt.Errorf("%w: %s %q not allowed", ErrInvalidRef, field, value)
	case strings.ContainsAny(value, `/\`):
		return fmt.Errorf("%w: %s %q must be a single path segment", ErrInvalidRef, field, value)
	}
	return nil
}

// Count returns the number of source files the reference expands to.
func (r Ref) Count() int {
	switch r.Kind {
	case KindUpload, KindFolderFile:
		return 1
	case KindFolderFiles:
		return len(r.Filenames)
	case KindAllFolders:
		return len(r.Videos)
	default:
		return 0
	}
}

// IsBatch reports whether the reference covers more than a single file slot.
func (r Ref) IsBatch() bool {
	return r.Kind == KindFolderFiles || r.Kind == KindAllFolders
}

// Label returns the display name shown for a job.
func (r Ref) Label() string {
	switch r.Kind {
	case KindUpload:
		name := r.Filename
		if name == "" {
			name = filepath.Base(r.UploadPath)
		}
		return textutil.NormalizeLabel(name)
	case KindFolderFile:
		return textutil.NormalizeLabel(r.Filename)
	case KindFolderFiles:
		if len(r.Filenames) == 1 {
			return textutil.NormalizeLabel(r.Filenames[0])
		}
		return fmt.Sprintf("%s (%d files)", textutil.NormalizeLabel(r.Folder), len(r.Filenames))
	case KindAllFolders:
		return fmt.Sprintf("all folders (%d videos)", len(r.Videos))
	default:
		return "unknown media"
	}
}

// Inputs resolves the reference against the library root. Upload paths are
// returned as given.
func (r Ref) Inputs(libraryRoot string) ([]Input, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch r.Kind {
	case KindUpload:
		name := r.Filename
		if name == "" {
			name = filepath.Base(r.UploadPath)
		}
		return []Input{{Filename: name, Path: r.UploadPath}}, nil
	case KindFolderFile:
		return []Input{libraryInput(libraryRoot, r.Folder, r.Filename)}, nil
	case KindFolderFiles:
		out := make([]Input, 0, len(r.Filenames))
		for _, name := range r.Filenames {
			out = append(out, libraryInput(libraryRoot, r.Folder, name))
		}
		return out, nil
	default:
		out := make([]Input, 0, len(r.Videos))
		for _, v := range r.Videos {
			out = append(out, libraryInput(libraryRoot, v.Folder, v.Filename))
		}
		return out, nil
	}
}

func libraryInput(root, folder, filename string) Input {
	folder = strings.TrimSpace(folder)
	filename = strings.TrimSpace(filename)
	return Input{
		Folder:   folder,
		Filename: filename,
		Path:     filepath.Join(root, folder, filename),
	}
}
