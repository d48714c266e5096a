// Package security enforces the filesystem allow-list for workbook sources
// and export targets.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinodismyname/sheetboard/config"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// Manager resolves and stores canonical absolute directory roots and validates
// that requested file paths are within these roots and have supported extensions.
type Manager struct {
	allowedDirs []string
	allowedExts map[string]struct{}
}

// ErrNotAllowed indicates the requested path is outside the allow-list roots.
var ErrNotAllowed = errors.New("security: path not allowed")

// ErrUnsupportedExtension indicates the requested file extension is not supported.
var ErrUnsupportedExtension = errors.New("security: unsupported file extension")

// ErrNotFound indicates the requested file does not exist or is not accessible.
var ErrNotFound = errors.New("security: file not found")

func init() {
	dasherr.RegisterClassifier(func(err error) (dasherr.Code, bool) {
		switch {
		case errors.Is(err, ErrNotAllowed):
			return dasherr.PermissionDenied, true
		case errors.Is(err, ErrUnsupportedExtension):
			return dasherr.UnsupportedFormat, true
		case errors.Is(err, ErrNotFound):
			return dasherr.NotFound, true
		}
		return "", false
	})
}

// NewManager constructs a security manager given an allow-list of directories
// and a list of allowed file extensions (case-insensitive, with leading dot).
// Directories are canonicalized (absolute + EvalSymlinks) and validated.
func NewManager(allowDirs []string, allowedExtensions []string) (*Manager, error) {
	if len(allowedExtensions) == 0 {
		allowedExtensions = config.SupportedExtensions
	}

	exts := make(map[string]struct{}, len(allowedExtensions))
	for _, e := range allowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || !strings.HasPrefix(e, ".") {
			return nil, fmt.Errorf("security: invalid extension: %q", e)
		}
		exts[e] = struct{}{}
	}

	seen := make(map[string]struct{}, len(allowDirs))
	canonical := make([]string, 0, len(allowDirs))
	for _, d := range allowDirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		real, err := canonicalDir(d)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[real]; dup {
			continue
		}
		seen[real] = struct{}{}
		canonical = append(canonical, real)
	}

	return &Manager{allowedDirs: canonical, allowedExts: exts}, nil
}

// ForSources builds the manager used by the loader: the data directory is
// always allowed, extra roots come from configuration.
func ForSources(dataDir string, extra []string) (*Manager, error) {
	dirs := make([]string, 0, len(extra)+1)
	dirs = append(dirs, dataDir)
	dirs = append(dirs, extra...)
	return NewManager(dirs, nil)
}

func canonicalDir(d string) (string, error) {
	abs, err := filepath.Abs(d)
	if err != nil {
		return "", fmt.Errorf("security: resolve abs for %q: %w", d, err)
	}
	// EvalSymlinks so that symlinked roots cannot be used to escape later.
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("security: eval symlinks for %q: %w", abs, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", fmt.Errorf("security: stat %q: %w", real, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("security: allow-list entry is not a directory: %q", real)
	}
	return filepath.Clean(real), nil
}

// AllowedDirectories returns the canonical allow-list roots.
func (m *Manager) AllowedDirectories() []string {
	out := make([]string, len(m.allowedDirs))
	copy(out, m.allowedDirs)
	return out
}

// ValidateConfig returns an error when no allow-list entries are configured.
func (m *Manager) ValidateConfig() error {
	if len(m.allowedDirs) == 0 {
		return errors.New("security: no allowed directories configured")
	}
	return nil
}

// SupportedExtension reports whether name carries an allowed workbook extension.
func (m *Manager) SupportedExtension(name string) bool {
	_, ok := m.allowedExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ValidateOpenPath ensures the input path refers to an existing file with an
// allowed extension inside one of the configured allow-list directories.
// It returns the canonical absolute path suitable for opening.
func (m *Manager) ValidateOpenPath(input string) (string, error) {
	if input == "" {
		return "", ErrNotAllowed
	}
	if !m.SupportedExtension(input) {
		return "", ErrUnsupportedExtension
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("security: abs path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: eval symlinks: %w", err)
	}

	info, err := os.Stat(real)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: stat: %w", err)
	}
	if info.IsDir() {
		return "", ErrNotAllowed
	}
	if !m.contains(real) {
		return "", ErrNotAllowed
	}
	return real, nil
}

// ValidateSavePath checks that a new file named name may be written into dir
// and returns its canonical path. The file itself need not exist, but dir must.
func (m *Manager) ValidateSavePath(dir, name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", ErrNotAllowed
	}
	if !m.SupportedExtension(name) {
		return "", ErrUnsupportedExtension
	}
	real, err := canonicalDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	target := filepath.Join(real, name)
	if !m.contains(target) {
		return "", ErrNotAllowed
	}
	return target, nil
}

// contains reports whether real lies strictly inside one of the roots.
func (m *Manager) contains(real string) bool {
	for _, root := range m.allowedDirs {
		rel, err := filepath.Rel(root, real)
		if err != nil || rel == "." || rel == "" {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
