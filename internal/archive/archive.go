// Package archive exposes zip payloads as read-only in-memory file systems
// and packs named byte slices into zip payloads. Nothing touches the disk.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// epoch is the modification time stamped on packed entries so that equal
// inputs produce byte-identical archives.
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// IsZip reports whether data starts with a zip local file or empty archive
// signature.
func IsZip(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04")) || bytes.HasPrefix(data, []byte("PK\x05\x06"))
}

// Open returns the archive contents as a file system.
func Open(data []byte) (fs.FS, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return zr, nil
}

// Files lists the regular files of fsys in lexicographic order, skipping
// macOS resource forks.
func Files(fsys fs.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "__MACOSX" {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), "._") {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// WithExt returns the files whose extension matches ext case-insensitively.
func WithExt(files []string, ext string) []string {
	var out []string
	for _, f := range files {
		if strings.EqualFold(path.Ext(f), ext) {
			out = append(out, f)
		}
	}
	return out
}

// Sibling finds the file sharing base (a path without extension) with
// extension ext, ignoring case.
func Sibling(files []string, base, ext string) (string, bool) {
	want := strings.ToLower(base + ext)
	for _, f := range files {
		if strings.ToLower(f) == want {
			return f, true
		}
	}
	return "", false
}

// ReadFile reads one file of fsys fully.
func ReadFile(fsys fs.FS, name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", name, err)
	}
	return b, nil
}

// Entry is one member of an archive being packed.
type Entry struct {
	Name string
	Data []byte
}

// Pack writes entries, in order, into a deflate-compressed zip payload.
func Pack(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: epoch,
		})
		if err != nil {
			return nil, fmt.Errorf("archive: create %s: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("archive: write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return buf.Bytes(), nil
}
