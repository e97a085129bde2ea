package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/farmledger/export-api/internal/apperror"
	"github.com/farmledger/export-api/internal/artifact"
)

type Service struct {
	repo   Repository
	notify func() // optional: wake the queue worker
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetNotify sets a callback invoked when a new pending job is created.
func (s *Service) SetNotify(fn func()) { s.notify = fn }

// Enqueue validates the request and appends a pending job. Safe for
// concurrent callers; it only appends.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	format, _ := ParseFormat(req.Format)
	j := &Job{
		Owner:         req.Owner,
		Template:      Template(req.Template),
		Format:        format,
		Status:        StatusPending,
		Parameters:    req.Parameters,
		FormatOptions: req.FormatOptions,
	}
	if err := s.repo.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if !j.Template.Known() {
		slog.Warn("enqueued job for unknown template", "job", j.ID, "template", j.Template)
	}
	if s.notify != nil {
		s.notify()
	}
	return j, nil
}

func (s *Service) Get(ctx context.Context, req GetReportRequest) (*StatusResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	j, err := s.repo.GetJob(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	files, err := s.repo.ListFiles(ctx, j.ID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	for i := range files {
		files[i].Available = artifact.FileInfo(files[i].Path).Exists
	}
	return &StatusResponse{Job: j, Files: files}, nil
}

func (s *Service) List(ctx context.Context, req ListReportsRequest) ([]Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	filter := JobFilter{
		Status:   Status(req.Status),
		Template: Template(req.Template),
		Owner:    req.Owner,
	}
	if req.Format != "" {
		filter.Format, _ = ParseFormat(req.Format)
	}
	return s.repo.ListJobs(ctx, filter)
}

// Stats scans the store for job counts by status, format and template.
// Read-only, no side effects.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

// Download resolves a file for streaming and records the download. The file
// must belong to the requested job.
func (s *Service) Download(ctx context.Context, req DownloadRequest) (*OutputFile, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f, err := s.repo.GetFile(ctx, req.FileID)
	if err != nil {
		return nil, err
	}
	if f.JobID != req.JobID {
		return nil, apperror.New(apperror.NotFound, "file does not belong to this report")
	}
	if err := s.repo.RecordDownload(ctx, f.ID); err != nil {
		slog.Error("record download", "file", f.ID, "error", err)
	}
	return f, nil
}

// RecoverStaleJobs requeues jobs a previous process left mid-attempt. The
// attempt counter is preserved so the retry budget still holds.
func (s *Service) RecoverStaleJobs(ctx context.Context) error {
	n, err := s.repo.RecoverStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("re-queued interrupted jobs", "count", n)
	}
	return nil
}
