// Package generator turns report data bundles into files on disk. One
// strategy per output format, selected through a registry.
package generator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/farmledger/export-api/internal/config"
	"github.com/farmledger/export-api/internal/report"
)

// File describes one generated artifact.
type File struct {
	FileName  string
	Path      string
	SizeBytes int64
	MimeType  string
}

// Generator is one format strategy. Generate writes one or more files,
// using destPath as the primary destination; extra files (delimited-text
// sections) land next to it. Failures come back wrapped as
// *report.GenerationError.
type Generator interface {
	Format() report.Format
	Generate(ctx context.Context, bundle report.Bundle, opts report.FormatOptions, destPath string) ([]File, error)
}

type Registry struct {
	mu   sync.RWMutex
	gens map[report.Format]Generator
}

func NewRegistry() *Registry {
	return &Registry{gens: make(map[report.Format]Generator)}
}

func (r *Registry) Register(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[g.Format()] = g
}

func (r *Registry) Get(format report.Format) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gens[format]
	if !ok {
		return nil, fmt.Errorf("no generator registered for format: %s", format)
	}
	return g, nil
}

func (r *Registry) Formats() []report.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formats := make([]report.Format, 0, len(r.gens))
	for f := range r.gens {
		formats = append(formats, f)
	}
	return formats
}

// Close releases resources held by strategies that keep any (e.g. a shared
// rendering engine handle). Called once from the queue's Cleanup.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, g := range r.gens {
		if c, ok := g.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// statFile fills a File from the written artifact.
func statFile(path, mimeType string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat output: %w", err)
	}
	return File{
		FileName:  info.Name(),
		Path:      path,
		SizeBytes: info.Size(),
		MimeType:  mimeType,
	}, nil
}

// formatCellText renders a cell for text-based outputs (CSV, PDF body).
func formatCellText(v any, kind report.CellKind, style config.Style) string {
	switch kind {
	case report.KindDate:
		if t, ok := v.(time.Time); ok {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		}
	case report.KindCurrency:
		if f, ok := asFloat(v); ok {
			return fmt.Sprintf("%.2f %s", f, style.CurrencyCode)
		}
	case report.KindNumber:
		if f, ok := asFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	case report.KindInteger:
		if n, ok := asInt(v); ok {
			return strconv.FormatInt(n, 10)
		}
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
