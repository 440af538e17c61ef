package ffmpeg

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var coverExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// copySidecars copies the description text and the first cover image found
// beside input so they follow the renamed output. Both the URL-decoded and
// the raw stem are tried, decoded first. It returns the files written.
func copySidecars(input, outDir, outStem string) ([]string, error) {
	dir := filepath.Dir(input)
	stems := candidateStems(strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)))

	var written []string
	if src := firstExisting(dir, stems, []string{".txt"}); src != "" {
		dst := filepath.Join(outDir, outStem+".txt")
		if err := copyFile(src, dst); err != nil {
			return written, fmt.Errorf("copy description: %w", err)
		}
		written = append(written, dst)
	}
	if src := firstExisting(dir, stems, coverExtensions); src != "" {
		dst := filepath.Join(outDir, outStem+strings.ToLower(filepath.Ext(src)))
		if err := copyFile(src, dst); err != nil {
			return written, fmt.Errorf("copy cover: %w", err)
		}
		written = append(written, dst)
	}
	return written, nil
}

func candidateStems(stem string) []string {
	if decoded, err := url.PathUnescape(stem); err == nil && decoded != stem {
		return []string{decoded, stem}
	}
	return []string{stem}
}

func firstExisting(dir string, stems, exts []string) string {
	for _, stem := range stems {
		for _, ext := range exts {
			path := filepath.Join(dir, stem+ext)
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return path
			}
		}
	}
	return ""
}

// copyFile copies src to dst, keeping the source modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
