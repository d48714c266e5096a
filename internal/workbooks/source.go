package workbooks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// Source names where a workbook comes from: an explicit path, uploaded bytes,
// or neither, in which case the data directory is searched.
type Source struct {
	Path string
	Name string
	Data []byte
}

// IsUpload reports whether the source carries its own bytes.
func (s Source) IsUpload() bool { return s.Data != nil }

// Label is the human-readable name used in errors and logs.
func (s Source) Label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Path != "":
		return filepath.Base(s.Path)
	case s.IsUpload():
		return "upload"
	}
	return ""
}

var discoverExts = map[string]struct{}{".xlsx": {}, ".xlsm": {}}

// Discover returns the workbook to load from dir when no source was given.
// Files are visited in name order; the first whose name contains one of hints
// (case-insensitive) wins, otherwise the first workbook found.
func Discover(dir string, hints []string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", dasherr.NewNotFound(dir, err)
	}
	var first string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, "~$") {
			continue
		}
		if _, ok := discoverExts[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		path := filepath.Join(dir, name)
		if first == "" {
			first = path
		}
		lower := strings.ToLower(name)
		for _, h := range hints {
			if h != "" && strings.Contains(lower, strings.ToLower(h)) {
				return path, nil
			}
		}
	}
	if first == "" {
		return "", dasherr.NewNotFound(dir, fmt.Errorf("no .xlsx workbook in directory"))
	}
	return first, nil
}

// fileKey identifies a file by canonical path, size and modification time so
// that a rewritten file is reloaded.
func fileKey(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("file:%s:%d:%d", path, info.Size(), info.ModTime().UnixNano()), nil
}

// dataKey identifies uploaded bytes by content.
func dataKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
