// Package artifact enforces size bounds on generated report files and
// removes invalid or stale ones.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxSizeBytes is the hard cap on a single generated file (100 MB).
const MaxSizeBytes = 100 << 20

// SizeError marks an artifact rejected by Validate. The offending file has
// already been deleted by the time the error is returned. Always terminal.
type SizeError struct {
	Path string
	Size int64
	msg  string
}

func (e *SizeError) Error() string { return e.msg }

// Validate stats the file and deletes it when it is empty or exceeds the
// size cap, returning a *SizeError in either case.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return &SizeError{Path: path, Size: 0, msg: "Generated file is empty"}
	}
	if info.Size() > MaxSizeBytes {
		_ = os.Remove(path)
		return &SizeError{Path: path, Size: info.Size(), msg: "Generated file is too large"}
	}
	return nil
}

type Info struct {
	Exists    bool   `json:"exists"`
	FileName  string `json:"fileName,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
}

// FileInfo reports existence, size and mime type for status queries. A
// missing file yields Exists=false rather than an error.
func FileInfo(path string) Info {
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}
	}
	return Info{
		Exists:    true,
		FileName:  filepath.Base(path),
		SizeBytes: stat.Size(),
		MimeType:  mimeByExt(path),
	}
}

func mimeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	}
	return "application/octet-stream"
}

// ReapOlderThan deletes regular files in dir (non-recursive) whose
// modification time predates now-maxAge and returns how many were removed.
// A missing directory is not an error: it returns 0.
func ReapOlderThan(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read output dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
