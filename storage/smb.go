package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"
)

// SMB implements Provider over an SMB/CIFS share. One provider instance
// owns one authenticated session; the pipeline creates it at batch start
// and closes it when the batch ends.
type SMB struct {
	host    string
	share   string
	conn    net.Conn
	session *smb2.Session
	fs      *smb2.Share
}

// NewSMB dials the share eagerly so misconfiguration fails at pipeline
// start, not in the middle of a batch.
func NewSMB(cfg Config) (*SMB, error) {
	if cfg.SMBHost == "" || cfg.SMBShare == "" {
		return nil, errors.New("storage: smb host and share must be set")
	}
	if cfg.SMBUsername == "" || cfg.SMBPassword == "" {
		return nil, errors.New("storage: smb username and password must not be empty")
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(cfg.SMBHost, "445"), 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("storage: dial %s: %w", cfg.SMBHost, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.SMBUsername,
			Password: cfg.SMBPassword,
			Domain:   cfg.SMBDomain,
		},
	}
	session, err := d.Dial(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: smb session: %w", err)
	}
	fs, err := session.Mount(cfg.SMBShare)
	if err != nil {
		session.Logoff()
		conn.Close()
		return nil, fmt.Errorf("storage: mount %s: %w", cfg.SMBShare, err)
	}

	return &SMB{host: cfg.SMBHost, share: cfg.SMBShare, conn: conn, session: session, fs: fs}, nil
}

// Close unmounts the share and tears down the session.
func (s *SMB) Close() error {
	if s.fs != nil {
		s.fs.Umount()
	}
	if s.session != nil {
		s.session.Logoff()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// rel converts a caller path to the share-relative backslash form go-smb2
// expects. The share root maps to ".".
func (s *SMB) rel(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}
	return strings.ReplaceAll(p, "/", `\`)
}

func (s *SMB) ListDirectories(p string) ([]DirEntry, error) {
	infos, err := s.fs.ReadDir(s.rel(p))
	if err != nil {
		slog.Warn("storage: smb list", "path", p, "error", err)
		return nil, nil
	}
	var result []DirEntry
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		result = append(result, DirEntry{
			Name:        info.Name(),
			Path:        joinSlash(p, info.Name()),
			HasChildren: true,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result, nil
}

func (s *SMB) CreateDirectory(p string) error {
	return s.fs.MkdirAll(s.rel(p), 0o755)
}

func (s *SMB) Exists(p string) bool {
	_, err := s.fs.Stat(s.rel(p))
	return err == nil
}

func (s *SMB) IsDir(p string) bool {
	info, err := s.fs.Stat(s.rel(p))
	return err == nil && info.IsDir()
}

func (s *SMB) ListFiles(p, pattern string) ([]string, error) {
	infos, err := s.fs.ReadDir(s.rel(p))
	if err != nil {
		// Missing paths are not an error by contract.
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		slog.Warn("storage: smb list files", "path", p, "error", err)
		return nil, nil
	}
	var files []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		ok, err := path.Match(pattern, info.Name())
		if err != nil {
			return nil, fmt.Errorf("storage: bad pattern %q: %w", pattern, err)
		}
		if ok {
			files = append(files, joinSlash(p, info.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *SMB) MoveFile(src, dst string) error {
	if dir := path.Dir(strings.ReplaceAll(dst, "\\", "/")); dir != "." && !s.Exists(dir) {
		if err := s.CreateDirectory(dir); err != nil {
			return err
		}
	}
	return s.fs.Rename(s.rel(src), s.rel(dst))
}

func (s *SMB) ReadFile(p string) ([]byte, error) {
	return s.fs.ReadFile(s.rel(p))
}

// FullPath renders the UNC form for display and logs.
func (s *SMB) FullPath(p string) string {
	return `\\` + s.host + `\` + s.share + `\` + s.rel(p)
}

func (s *SMB) JoinPath(parts ...string) string {
	return joinSlash(parts...)
}
