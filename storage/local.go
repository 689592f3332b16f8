package storage

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Local implements Provider on the native filesystem.
type Local struct{}

// NewLocal creates a local-disk provider.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) ListDirectories(path string) ([]DirEntry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "/"
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if errors.Is(err, fs.ErrPermission) {
			slog.Warn("storage: permission denied", "path", path)
			return nil, nil
		}
		return nil, err
	}

	var result []DirEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		full := filepath.Join(path, e.Name())
		entry := DirEntry{Name: e.Name(), Path: full, HasChildren: true}
		// Probe readability so the browser can grey out locked folders.
		if _, err := os.ReadDir(full); errors.Is(err, fs.ErrPermission) {
			entry.AccessDenied = true
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result, nil
}

func (l *Local) CreateDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (l *Local) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (l *Local) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (l *Local) ListFiles(path, pattern string) ([]string, error) {
	if !l.Exists(path) {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (l *Local) MoveFile(src, dst string) error {
	if dir := filepath.Dir(dst); !l.Exists(dir) {
		if err := l.CreateDirectory(dir); err != nil {
			return err
		}
	}
	return os.Rename(src, dst)
}

func (l *Local) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (l *Local) FullPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func (l *Local) JoinPath(parts ...string) string {
	return filepath.Join(parts...)
}
