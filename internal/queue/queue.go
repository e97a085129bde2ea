// Package queue drives the report-export pipeline: it drains pending jobs
// one at a time, orchestrates data fetch, generation and validation, and
// applies the retry policy.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farmledger/export-api/internal/artifact"
	"github.com/farmledger/export-api/internal/generator"
	"github.com/farmledger/export-api/internal/report"
)

// Progress checkpoints emitted during an attempt. The generation stages are
// not internally instrumented, so a polling client gets coarse but
// meaningful feedback.
const (
	progressFetch     = 10
	progressDispatch  = 30
	progressGenerated = 70
	progressValidated = 90
)

// Queue is the single logical worker over the job store. At most one job is
// ever mid-generation: document rendering is the resource-heavy stage, and
// the sequential drain bounds its peak cost.
type Queue struct {
	repo       report.Repository
	provider   report.DataProvider
	generators *generator.Registry

	outputDir  string
	retention  time.Duration
	drainEvery time.Duration
	reapEvery  time.Duration

	notify chan struct{}

	// procMu serializes attempts so the drain timer and an explicit
	// ProcessNext call never work the same job.
	procMu sync.Mutex

	mu     sync.Mutex // run state
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Queue)

func WithOutputDir(dir string) Option {
	return func(q *Queue) { q.outputDir = dir }
}

// WithRetention sets how long completed artifacts are kept before the
// reaper removes them.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) { q.retention = d }
}

func WithDrainInterval(d time.Duration) Option {
	return func(q *Queue) { q.drainEvery = d }
}

func WithReapInterval(d time.Duration) Option {
	return func(q *Queue) { q.reapEvery = d }
}

func New(repo report.Repository, provider report.DataProvider, generators *generator.Registry, opts ...Option) *Queue {
	q := &Queue{
		repo:       repo,
		provider:   provider,
		generators: generators,
		outputDir:  "exports",
		retention:  24 * time.Hour,
		drainEvery: 5 * time.Second,
		reapEvery:  time.Hour,
		notify:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Notify wakes the drain loop to check for pending jobs. Non-blocking.
func (q *Queue) Notify() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Add appends a new pending job. Safe for any number of concurrent
// producers; it is a pure append with no cross-job coordination.
func (q *Queue) Add(ctx context.Context, j *report.Job) error {
	j.Status = report.StatusPending
	j.Attempt = 0
	j.Progress = 0
	if err := q.repo.CreateJob(ctx, j); err != nil {
		return fmt.Errorf("add job: %w", err)
	}
	q.Notify()
	return nil
}

// Start launches the automatic drain timer (and the file reaper). Idempotent.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	q.cancel, q.done = cancel, done
	go q.loop(loopCtx, done)
}

// Stop halts the automatic drain timer and waits for any in-flight attempt
// to finish. After Stop, ProcessNext gives tests exclusive single-step
// control.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Cleanup stops the timers and releases resources held by the generators.
func (q *Queue) Cleanup() {
	q.Stop()
	if err := q.generators.Close(); err != nil {
		slog.Error("close generators", "error", err)
	}
}

func (q *Queue) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	drain := time.NewTicker(q.drainEvery)
	defer drain.Stop()
	reap := time.NewTicker(q.reapEvery)
	defer reap.Stop()

	for {
		q.drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-drain.C:
		case <-reap.C:
			if n, err := q.ReapOnce(ctx); err != nil {
				slog.Error("reaper", "error", err)
			} else if n > 0 {
				slog.Info("reaper removed stale artifacts", "count", n)
			}
		}
	}
}

func (q *Queue) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := q.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("worker: process next", "error", err)
			}
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessNext pops the oldest pending job (FIFO, no priority) and executes
// one attempt synchronously to completion or failure. Returns false when
// the queue is empty.
func (q *Queue) ProcessNext(ctx context.Context) (bool, error) {
	q.procMu.Lock()
	defer q.procMu.Unlock()

	j, err := q.repo.ClaimOldestPending(ctx)
	if err != nil {
		return false, fmt.Errorf("claim pending: %w", err)
	}
	if j == nil {
		return false, nil
	}

	slog.Info("worker: processing job",
		"job", j.ID, "template", j.Template, "format", j.Format, "attempt", j.Attempt)

	if err := q.safeAttempt(ctx, j); err != nil {
		q.finishFailure(ctx, j, err)
	}
	return true, nil
}

// safeAttempt shields the loop from panics inside a generator or one of its
// libraries: a panic fails the attempt like any other stage error instead of
// killing the process.
func (q *Queue) safeAttempt(ctx context.Context, j *report.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker: attempt panicked", "job", j.ID, "panic", r)
			err = report.NewGenerationError(j.Format, fmt.Errorf("panic: %v", r))
		}
	}()
	return q.attempt(ctx, j)
}

// attempt runs the per-attempt protocol: fetch -> generate -> validate ->
// persist, bumping progress at each checkpoint. Any returned error is
// classified by the caller.
func (q *Queue) attempt(ctx context.Context, j *report.Job) error {
	q.checkpoint(ctx, j, progressFetch)

	if err := j.Parameters.Validate(); err != nil {
		return err
	}
	bundle, err := q.fetch(ctx, j)
	if err != nil {
		return &report.DataFetchError{Cause: err}
	}
	q.checkpoint(ctx, j, progressDispatch)

	gen, err := q.generators.Get(j.Format)
	if err != nil {
		return report.NewValidationError(err.Error())
	}

	// Each attempt owns its own destination path: generate into a staging
	// dir and only move validated artifacts into the output dir.
	stage := filepath.Join(q.outputDir, "tmp", uuid.NewString())
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(stage) }()

	files, err := gen.Generate(ctx, bundle, j.FormatOptions, filepath.Join(stage, j.BaseFileName()))
	if err != nil {
		return err // already a *report.GenerationError
	}
	q.checkpoint(ctx, j, progressGenerated)

	for _, f := range files {
		if err := artifact.Validate(f.Path); err != nil {
			return err
		}
	}
	q.checkpoint(ctx, j, progressValidated)

	outFiles := make([]report.OutputFile, 0, len(files))
	for _, f := range files {
		finalPath := filepath.Join(q.outputDir, f.FileName)
		if err := os.Rename(f.Path, finalPath); err != nil {
			return fmt.Errorf("move artifact: %w", err)
		}
		outFiles = append(outFiles, report.OutputFile{
			JobID:     j.ID,
			FileName:  f.FileName,
			Path:      finalPath,
			SizeBytes: f.SizeBytes,
			MimeType:  f.MimeType,
		})
	}
	for i := range outFiles {
		// Store failures must not crash the loop; the file is on disk and
		// the row can be reconciled on a later update.
		if err := q.repo.CreateFile(ctx, &outFiles[i]); err != nil {
			slog.Error("store create file", "job", j.ID, "file", outFiles[i].FileName, "error", err)
		}
	}

	now := time.Now().UTC()
	expires := now.Add(q.retention)
	j.Status = report.StatusCompleted
	j.Progress = 100
	j.CompletedAt = &now
	j.ExpiresAt = &expires
	j.Error = ""
	if err := q.repo.UpdateJob(ctx, j); err != nil {
		slog.Error("store update job", "job", j.ID, "error", err)
	}

	slog.Info("worker: job completed", "job", j.ID, "files", len(outFiles))
	return nil
}

// fetch dispatches to the provider method matching the job's template. An
// unknown template gets the empty-bundle fallback instead of an error.
func (q *Queue) fetch(ctx context.Context, j *report.Job) (report.Bundle, error) {
	switch j.Template {
	case report.TemplateFinancial:
		b, err := q.provider.FetchFinancial(ctx, j.Parameters)
		if err != nil {
			return nil, err
		}
		return b, nil
	case report.TemplateInventory:
		b, err := q.provider.FetchInventory(ctx, j.Parameters)
		if err != nil {
			return nil, err
		}
		return b, nil
	case report.TemplateReproductive:
		b, err := q.provider.FetchReproductive(ctx, j.Parameters)
		if err != nil {
			return nil, err
		}
		return b, nil
	case report.TemplateHealth:
		b, err := q.provider.FetchHealth(ctx, j.Parameters)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		slog.Warn("worker: no provider for template, substituting empty bundle",
			"job", j.ID, "template", j.Template)
		return &report.EmptyBundle{Requested: j.Template}, nil
	}
}

func (q *Queue) finishFailure(ctx context.Context, j *report.Job, attemptErr error) {
	if retryable(attemptErr) && j.Attempt < report.MaxAttempts {
		j.Attempt++
		j.Status = report.StatusPending
		j.Error = fmt.Sprintf("Retry %d/%d: %v", j.Attempt, report.MaxAttempts, attemptErr)
		if err := q.repo.UpdateJob(ctx, j); err != nil {
			slog.Error("store requeue job", "job", j.ID, "error", err)
		}
		slog.Warn("worker: job requeued", "job", j.ID, "attempt", j.Attempt, "error", attemptErr)
		return
	}

	now := time.Now().UTC()
	j.Status = report.StatusFailed
	j.Error = attemptErr.Error()
	j.CompletedAt = &now
	if err := q.repo.UpdateJob(ctx, j); err != nil {
		slog.Error("store fail job", "job", j.ID, "error", err)
	}
	slog.Error("worker: job failed", "job", j.ID, "attempt", j.Attempt, "error", attemptErr)
}

// retryable classifies an attempt failure. Validation and file-size
// failures are terminal; provider failures are retryable unless the cause
// reads as a data/business-rule violation; everything else (generation,
// transient store/IO trouble) consumes a retry.
func retryable(err error) bool {
	var ve *report.ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var se *artifact.SizeError
	if errors.As(err, &se) {
		return false
	}
	var dfe *report.DataFetchError
	if errors.As(err, &dfe) {
		return !isDataViolation(dfe.Cause)
	}
	return true
}

func isDataViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid", "malformed", "unsupported", "out of range"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ReapOnce removes stale artifacts: output files older than the retention
// window plus files belonging to expired jobs. Returns how many were
// removed.
func (q *Queue) ReapOnce(ctx context.Context) (int, error) {
	removed, err := artifact.ReapOlderThan(q.outputDir, q.retention)
	if err != nil {
		return removed, err
	}

	jobs, err := q.repo.ListExpiredJobs(ctx, time.Now().UTC(), 100)
	if err != nil {
		return removed, fmt.Errorf("list expired jobs: %w", err)
	}
	for _, j := range jobs {
		files, err := q.repo.ListFiles(ctx, j.ID)
		if err != nil {
			slog.Error("reaper: list files", "job", j.ID, "error", err)
			continue
		}
		for _, f := range files {
			// The age sweep above may already have deleted the artifact;
			// count each disk file at most once.
			deleted := f.Path != "" && os.Remove(f.Path) == nil
			if err := q.repo.DeleteFile(ctx, f.ID); err != nil {
				slog.Error("reaper: delete file row", "file", f.ID, "error", err)
				continue
			}
			if deleted {
				removed++
			}
		}
		// Clear expiry so the job is not revisited on the next sweep.
		j.ExpiresAt = nil
		if err := q.repo.UpdateJob(ctx, &j); err != nil {
			slog.Error("reaper: clear expiry", "job", j.ID, "error", err)
		}
	}
	return removed, nil
}

func (q *Queue) checkpoint(ctx context.Context, j *report.Job, progress int) {
	j.Progress = progress
	if err := q.repo.UpdateJob(ctx, j); err != nil {
		slog.Error("store update progress", "job", j.ID, "error", err)
	}
}
