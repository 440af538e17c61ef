package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".avi":  {},
	".mov":  {},
	".mkv":  {},
	".flv":  {},
	".wmv":  {},
	".webm": {},
	".m4v":  {},
}

// IsVideoFile reports whether name has a recognised video extension.
func IsVideoFile(name string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Folder summarises one library folder.
type Folder struct {
	Name       string `json:"name"`
	VideoCount int    `json:"videoCount"`
}

// Library browses the download directory jobs pick their sources from.
type Library struct {
	root string
}

// NewLibrary returns a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{root: dir}
}

// Root returns the library directory.
func (l *Library) Root() string {
	return l.root
}

// Folders lists the top-level folders with their video counts, sorted by name.
// A missing root yields an empty list.
func (l *Library) Folders() ([]Folder, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read library: %w", err)
	}
	folders := make([]Folder, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		videos, err := l.Videos(entry.Name())
		if err != nil {
			return nil, err
		}
		folders = append(folders, Folder{Name: entry.Name(), VideoCount: len(videos)})
	}
	return folders, nil
}

// Videos lists the video files directly inside folder, sorted by name.
func (l *Library) Videos(folder string) ([]string, error) {
	if err := checkSegment("folder", folder); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(l.root, folder))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: folder %q not found", ErrInvalidRef, folder)
		}
		return nil, fmt.Errorf("read folder %s: %w", folder, err)
	}
	var videos []string
	for _, entry := range entries {
		if entry.IsDir() || !IsVideoFile(entry.Name()) {
			continue
		}
		videos = append(videos, entry.Name())
	}
	sort.Strings(videos)
	return videos, nil
}

// AllVideos expands every folder into an AllFolders reference.
func (l *Library) AllVideos() (Ref, error) {
	folders, err := l.Folders()
	if err != nil {
		return Ref{}, err
	}
	var videos []Video
	for _, folder := range folders {
		names, err := l.Videos(folder.Name)
		if err != nil {
			return Ref{}, err
		}
		for _, name := range names {
			videos = append(videos, Video{Folder: folder.Name, Filename: name})
		}
	}
	return AllFolders(videos...), nil
}

// Exists reports whether every input of ref is present on disk.
func (l *Library) Exists(ref Ref) error {
	inputs, err := ref.Inputs(l.root)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		info, err := os.Stat(in.Path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRef, in.Path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", ErrInvalidRef, in.Path)
		}
	}
	return nil
}
