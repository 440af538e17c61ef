package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// fakeVideoHeader makes fixtures look like an MP4 to anything sniffing the
// first bytes.
var fakeVideoHeader = []byte("\x00\x00\x00\x18ftypmp42")

// WriteFile creates a fixture video of size bytes at path, creating parent
// directories. Sizes smaller than the header still write the full header.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	content := append([]byte(nil), fakeVideoHeader...)
	if pad := size - int64(len(content)); pad > 0 {
		content = append(content, bytes.Repeat([]byte{0}, int(pad))...)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
