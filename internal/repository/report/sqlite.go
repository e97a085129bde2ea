// Package report implements the job store on sqlite. Parameters and format
// options are stored as JSON columns; timestamps are RFC3339 strings.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farmledger/export-api/internal/apperror"
	domain "github.com/farmledger/export-api/internal/report"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const jobColumns = `id, owner, template, format, status, parameters, format_options,
	progress, attempt, error, created_at, started_at, completed_at, expires_at`

func (r *Repository) CreateJob(ctx context.Context, j *domain.Job) error {
	params, err := json.Marshal(j.Parameters)
	if err != nil {
		return fmt.Errorf("create job: encode parameters: %w", err)
	}
	opts, err := json.Marshal(j.FormatOptions)
	if err != nil {
		return fmt.Errorf("create job: encode format options: %w", err)
	}

	const query = `INSERT INTO jobs (owner, template, format, status, parameters, format_options, progress, attempt, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		j.Owner, string(j.Template), string(j.Format), string(j.Status),
		string(params), string(opts), j.Progress, j.Attempt, j.Error,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	j.ID, _ = res.LastInsertId()
	j.CreatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) UpdateJob(ctx context.Context, j *domain.Job) error {
	const query = `UPDATE jobs SET status = ?, progress = ?, attempt = ?, error = ?,
		started_at = ?, completed_at = ?, expires_at = ?
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query,
		string(j.Status), j.Progress, j.Attempt, j.Error,
		nullTime(j.StartedAt), nullTime(j.CompletedAt), nullTime(j.ExpiresAt),
		j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *Repository) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "report job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *Repository) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`

	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Format != "" {
		query += " AND format = ?"
		args = append(args, string(filter.Format))
	}
	if filter.Template != "" {
		query += " AND template = ?"
		args = append(args, string(filter.Template))
	}
	if filter.Owner != "" {
		query += " AND owner = ?"
		args = append(args, filter.Owner)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *Repository) ClaimOldestPending(ctx context.Context) (*domain.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim pending: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE status = 'pending' ORDER BY id ASC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending: select: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'processing', progress = 0,
			started_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
			WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim pending: commit: %w", err)
	}

	return r.GetJob(ctx, id)
}

func (r *Repository) RecoverStale(ctx context.Context) (int64, error) {
	const query = `UPDATE jobs SET status = 'pending', progress = 0, started_at = NULL
		WHERE status = 'processing'`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) CreateFile(ctx context.Context, f *domain.OutputFile) error {
	const query = `INSERT INTO report_files (job_id, file_name, path, size_bytes, mime_type)
		VALUES (?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, f.JobID, f.FileName, f.Path, f.SizeBytes, f.MimeType)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	f.ID, _ = res.LastInsertId()
	f.CreatedAt = time.Now().UTC()
	return nil
}

const fileColumns = `id, job_id, file_name, path, size_bytes, mime_type,
	download_count, created_at, last_downloaded_at`

func (r *Repository) GetFile(ctx context.Context, id int64) (*domain.OutputFile, error) {
	query := `SELECT ` + fileColumns + ` FROM report_files WHERE id = ?`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "report file not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

func (r *Repository) ListFiles(ctx context.Context, jobID int64) ([]domain.OutputFile, error) {
	query := `SELECT ` + fileColumns + ` FROM report_files WHERE job_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []domain.OutputFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func (r *Repository) DeleteFile(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM report_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (r *Repository) RecordDownload(ctx context.Context, id int64) error {
	const query = `UPDATE report_files SET download_count = download_count + 1,
		last_downloaded_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

func (r *Repository) ListExpiredJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'completed' AND expires_at IS NOT NULL AND expires_at < ?
		ORDER BY id ASC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *Repository) Stats(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{
		ByFormat:   make(map[domain.Format]int64),
		ByTemplate: make(map[domain.Template]int64),
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats: by status: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("stats: scan status: %w", err)
		}
		stats.TotalJobs += count
		switch domain.Status(status) {
		case domain.StatusPending:
			stats.PendingJobs = count
		case domain.StatusProcessing:
			stats.ProcessingJobs = count
		case domain.StatusCompleted:
			stats.CompletedJobs = count
		case domain.StatusFailed:
			stats.FailedJobs = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: by status: %w", err)
	}

	fRows, err := r.db.QueryContext(ctx, `SELECT format, COUNT(*) FROM jobs GROUP BY format`)
	if err != nil {
		return nil, fmt.Errorf("stats: by format: %w", err)
	}
	defer func() { _ = fRows.Close() }()
	for fRows.Next() {
		var format string
		var count int64
		if err := fRows.Scan(&format, &count); err != nil {
			return nil, fmt.Errorf("stats: scan format: %w", err)
		}
		stats.ByFormat[domain.Format(format)] = count
	}
	if err := fRows.Err(); err != nil {
		return nil, fmt.Errorf("stats: by format: %w", err)
	}

	tRows, err := r.db.QueryContext(ctx, `SELECT template, COUNT(*) FROM jobs GROUP BY template`)
	if err != nil {
		return nil, fmt.Errorf("stats: by template: %w", err)
	}
	defer func() { _ = tRows.Close() }()
	for tRows.Next() {
		var template string
		var count int64
		if err := tRows.Scan(&template, &count); err != nil {
			return nil, fmt.Errorf("stats: scan template: %w", err)
		}
		stats.ByTemplate[domain.Template(template)] = count
	}
	if err := tRows.Err(); err != nil {
		return nil, fmt.Errorf("stats: by template: %w", err)
	}

	return stats, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*domain.Job, error) {
	j := &domain.Job{}
	var template, format, status, params, opts, createdStr string
	var dbErr, startedStr, completedStr, expiresStr sql.NullString

	if err := s.Scan(
		&j.ID, &j.Owner, &template, &format, &status, &params, &opts,
		&j.Progress, &j.Attempt, &dbErr, &createdStr, &startedStr, &completedStr, &expiresStr,
	); err != nil {
		return nil, err
	}

	j.Template = domain.Template(template)
	j.Format = domain.Format(format)
	j.Status = domain.Status(status)
	if dbErr.Valid {
		j.Error = dbErr.String
	}
	if err := json.Unmarshal([]byte(params), &j.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	if err := json.Unmarshal([]byte(opts), &j.FormatOptions); err != nil {
		return nil, fmt.Errorf("decode format options: %w", err)
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	j.StartedAt = parseNullTime(startedStr)
	j.CompletedAt = parseNullTime(completedStr)
	j.ExpiresAt = parseNullTime(expiresStr)
	return j, nil
}

func scanFile(s scanner) (*domain.OutputFile, error) {
	f := &domain.OutputFile{}
	var createdStr string
	var downloadedStr sql.NullString

	if err := s.Scan(
		&f.ID, &f.JobID, &f.FileName, &f.Path, &f.SizeBytes, &f.MimeType,
		&f.DownloadCount, &createdStr, &downloadedStr,
	); err != nil {
		return nil, err
	}

	f.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	f.LastDownloadedAt = parseNullTime(downloadedStr)
	return f, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
