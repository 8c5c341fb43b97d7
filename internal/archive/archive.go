// ABOUTME: Zip extraction for uploaded or downloaded vendor exports.
// ABOUTME: Rejects entries escaping the target and finds the real export root.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrUnsafePath is returned for entries that would land outside the target.
var ErrUnsafePath = errors.New("unsafe path in archive")

// MaxEntrySize bounds a single decompressed entry.
const MaxEntrySize = 2 << 30

// IsZip reports whether path names a zip file by extension.
func IsZip(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}

// Extract unpacks zipPath into dst and returns the number of files written.
func Extract(zipPath, dst string) (int, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	root, err := filepath.Abs(dst)
	if err != nil {
		return 0, fmt.Errorf("resolve target: %w", err)
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return 0, fmt.Errorf("create target: %w", err)
	}

	n := 0
	for _, f := range r.File {
		target, err := safeJoin(root, f.Name)
		if err != nil {
			return n, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0750); err != nil {
				return n, fmt.Errorf("create %s: %w", f.Name, err)
			}
			continue
		}
		if err := writeEntry(f, target); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(f.Name), err)
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Name, err)
	}
	written, err := io.Copy(out, io.LimitReader(src, MaxEntrySize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if written > MaxEntrySize {
		return fmt.Errorf("extract %s: entry exceeds %d bytes", f.Name, int64(MaxEntrySize))
	}
	return nil
}

// DataRoot descends from dir while it holds exactly one entry and that
// entry is a directory. Archives usually wrap the export in one folder.
func DataRoot(dir string) string {
	for {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) != 1 || !entries[0].IsDir() {
			return dir
		}
		dir = filepath.Join(dir, entries[0].Name())
	}
}

// Prepare turns an input path into something an adapter can read: zips are
// extracted under workDir and their export root returned, anything else is
// returned unchanged.
func Prepare(path, workDir string) (string, error) {
	if !IsZip(path) {
		return path, nil
	}
	dst := filepath.Join(workDir, "extracted")
	if _, err := Extract(path, dst); err != nil {
		return "", err
	}
	return DataRoot(dst), nil
}
