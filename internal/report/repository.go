package report

import (
	"context"
	"time"
)

type JobFilter struct {
	Status   Status
	Format   Format
	Template Template
	Owner    string
	Limit    int
}

// Repository persists job and output-file metadata. The pipeline never owns
// persistent state directly; everything goes through this interface.
type Repository interface {
	CreateJob(ctx context.Context, j *Job) error
	UpdateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id int64) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)

	// ClaimOldestPending atomically moves the oldest pending job to
	// processing, resets its progress and stamps startedAt. Returns
	// (nil, nil) when the queue is empty.
	ClaimOldestPending(ctx context.Context) (*Job, error)

	// RecoverStale requeues jobs left in processing by a crashed worker.
	RecoverStale(ctx context.Context) (int64, error)

	CreateFile(ctx context.Context, f *OutputFile) error
	GetFile(ctx context.Context, id int64) (*OutputFile, error)
	ListFiles(ctx context.Context, jobID int64) ([]OutputFile, error)
	DeleteFile(ctx context.Context, id int64) error
	RecordDownload(ctx context.Context, id int64) error

	// ListExpiredJobs returns completed jobs whose expiresAt predates now,
	// for the reaper.
	ListExpiredJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)

	Stats(ctx context.Context) (*Stats, error)
}
