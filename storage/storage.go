// Package storage abstracts directory and file operations so the pipeline
// can run unchanged over a local disk or an SMB network share. Callers
// always pass forward-slash-joined paths; backslash/UNC handling is an
// implementation detail of the SMB backend.
package storage

import (
	"fmt"
	"strings"
)

// DirEntry describes one subdirectory of a listed path. AccessDenied marks
// entries a browsing caller may display but not descend into.
type DirEntry struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	HasChildren  bool   `json:"has_children"`
	AccessDenied bool   `json:"access_denied"`
}

// Provider is the backend-neutral file access contract.
//
// Contracts shared by all implementations:
//   - ListFiles never fails for a missing path; it returns an empty slice.
//   - MoveFile creates the destination directory if absent and never
//     crosses backends (the pipeline never mixes providers in one run).
//   - Listing a partially readable directory returns the readable entries
//     and flags the rest, instead of failing the whole listing.
type Provider interface {
	ListDirectories(path string) ([]DirEntry, error)
	CreateDirectory(path string) error
	Exists(path string) bool
	IsDir(path string) bool
	ListFiles(path, pattern string) ([]string, error)
	MoveFile(src, dst string) error
	ReadFile(path string) ([]byte, error)
	FullPath(path string) string
	JoinPath(parts ...string) string
}

// Config selects and parameterizes a backend.
type Config struct {
	Type string `yaml:"type"` // "local" or "smb"

	SMBHost     string `yaml:"smb_host"`
	SMBShare    string `yaml:"smb_share"`
	SMBUsername string `yaml:"smb_username"`
	SMBPassword string `yaml:"smb_password"`
	SMBDomain   string `yaml:"smb_domain"`
}

// New builds the configured Provider. SMB providers hold a live session;
// callers owning one should close it via the returned io.Closer shape.
func New(cfg Config) (Provider, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocal(), nil
	case "smb":
		return NewSMB(cfg)
	default:
		return nil, fmt.Errorf("storage: unknown backend type %q", cfg.Type)
	}
}

// joinSlash joins path segments with forward slashes, collapsing doubles.
func joinSlash(parts ...string) string {
	joined := strings.Join(parts, "/")
	for strings.Contains(joined, "//") {
		joined = strings.ReplaceAll(joined, "//", "/")
	}
	return joined
}
