package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/farmledger/export-api/internal/generator"
	"github.com/farmledger/export-api/internal/report"
)

type fakeRepo struct {
	mu         sync.Mutex
	jobs       map[int64]*report.Job
	files      map[int64]*report.OutputFile
	nextJobID  int64
	nextFileID int64
	progress   map[int64][]int // progress values seen per job, in order
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		jobs:       make(map[int64]*report.Job),
		files:      make(map[int64]*report.OutputFile),
		nextJobID:  1,
		nextFileID: 1,
		progress:   make(map[int64][]int),
	}
}

func (m *fakeRepo) CreateJob(_ context.Context, j *report.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.ID = m.nextJobID
	m.nextJobID++
	j.CreatedAt = time.Now().UTC()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *fakeRepo) UpdateJob(_ context.Context, j *report.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[j.ID] = append(m.progress[j.ID], j.Progress)
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *fakeRepo) GetJob(_ context.Context, id int64) (*report.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	cp := *j
	return &cp, nil
}

func (m *fakeRepo) ListJobs(_ context.Context, _ report.JobFilter) ([]report.Job, error) {
	return nil, nil
}

func (m *fakeRepo) ClaimOldestPending(_ context.Context) (*report.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *report.Job
	for _, j := range m.jobs {
		if j.Status != report.StatusPending {
			continue
		}
		if oldest == nil || j.ID < oldest.ID {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = report.StatusProcessing
	oldest.Progress = 0
	now := time.Now().UTC()
	oldest.StartedAt = &now
	m.progress[oldest.ID] = append(m.progress[oldest.ID], 0)
	cp := *oldest
	return &cp, nil
}

func (m *fakeRepo) RecoverStale(_ context.Context) (int64, error) { return 0, nil }

func (m *fakeRepo) CreateFile(_ context.Context, f *report.OutputFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.nextFileID
	m.nextFileID++
	cp := *f
	m.files[f.ID] = &cp
	return nil
}

func (m *fakeRepo) GetFile(_ context.Context, id int64) (*report.OutputFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, errors.New("file not found")
	}
	cp := *f
	return &cp, nil
}

func (m *fakeRepo) ListFiles(_ context.Context, jobID int64) ([]report.OutputFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []report.OutputFile
	for _, f := range m.files {
		if f.JobID == jobID {
			result = append(result, *f)
		}
	}
	return result, nil
}

func (m *fakeRepo) DeleteFile(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	return nil
}

func (m *fakeRepo) RecordDownload(_ context.Context, _ int64) error { return nil }

func (m *fakeRepo) ListExpiredJobs(_ context.Context, now time.Time, limit int) ([]report.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []report.Job
	for _, j := range m.jobs {
		if j.Status == report.StatusCompleted && j.ExpiresAt != nil && j.ExpiresAt.Before(now) {
			result = append(result, *j)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (m *fakeRepo) Stats(_ context.Context) (*report.Stats, error) { return &report.Stats{}, nil }

func (m *fakeRepo) job(t *testing.T, id int64) *report.Job {
	t.Helper()
	j, err := m.GetJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

// fakeProvider returns a fixed bundle, or a per-template error.
type fakeProvider struct {
	err   error
	calls int
}

func (p *fakeProvider) financial() (*report.FinancialBundle, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &report.FinancialBundle{
		Sales: []report.SaleRecord{
			{Date: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), Buyer: "Hillside Meats", AnimalTag: "C-041", WeightKg: 512, Amount: 1840},
		},
	}, nil
}

func (p *fakeProvider) FetchFinancial(_ context.Context, _ report.Parameters) (*report.FinancialBundle, error) {
	return p.financial()
}

func (p *fakeProvider) FetchInventory(_ context.Context, _ report.Parameters) (*report.InventoryBundle, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &report.InventoryBundle{}, nil
}

func (p *fakeProvider) FetchReproductive(_ context.Context, _ report.Parameters) (*report.ReproductiveBundle, error) {
	p.calls++
	return &report.ReproductiveBundle{}, p.err
}

func (p *fakeProvider) FetchHealth(_ context.Context, _ report.Parameters) (*report.HealthBundle, error) {
	p.calls++
	return &report.HealthBundle{}, p.err
}

// fakeGenerator writes a tiny file, or fails, panics, or writes an empty
// file, depending on its knobs.
type fakeGenerator struct {
	format     report.Format
	failWith   error
	panicWith  string
	writeEmpty bool
	lastBundle report.Bundle
}

func (g *fakeGenerator) Format() report.Format { return g.format }

func (g *fakeGenerator) Generate(_ context.Context, bundle report.Bundle, _ report.FormatOptions, destPath string) ([]generator.File, error) {
	g.lastBundle = bundle
	if g.panicWith != "" {
		panic(g.panicWith)
	}
	if g.failWith != nil {
		return nil, report.NewGenerationError(g.format, g.failWith)
	}
	content := []byte("generated report body")
	if g.writeEmpty {
		content = nil
	}
	if err := os.WriteFile(destPath, content, 0o644); err != nil {
		return nil, report.NewGenerationError(g.format, err)
	}
	return []generator.File{{
		FileName:  filepath.Base(destPath),
		Path:      destPath,
		SizeBytes: int64(len(content)),
		MimeType:  g.format.MimeType(),
	}}, nil
}

func newTestQueue(t *testing.T, repo *fakeRepo, provider report.DataProvider, gen generator.Generator) *Queue {
	t.Helper()
	registry := generator.NewRegistry()
	registry.Register(gen)
	return New(repo, provider, registry, WithOutputDir(t.TempDir()), WithRetention(time.Hour))
}

func seedJob(t *testing.T, repo *fakeRepo, template report.Template, format report.Format) *report.Job {
	t.Helper()
	j := &report.Job{Template: template, Format: format, Status: report.StatusPending}
	if err := repo.CreateJob(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	return j
}

func TestProcessNext_Empty(t *testing.T) {
	q := newTestQueue(t, newFakeRepo(), &fakeProvider{}, &fakeGenerator{format: report.FormatCSV})

	processed, err := q.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Error("empty queue must report processed=false")
	}
}

func TestProcessNext_Success(t *testing.T) {
	repo := newFakeRepo()
	gen := &fakeGenerator{format: report.FormatCSV}
	q := newTestQueue(t, repo, &fakeProvider{}, gen)
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatCSV)

	processed, err := q.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatal("expected a job to be processed")
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", got.Status, got.Error)
	}
	if got.Progress != 100 {
		t.Errorf("expected progress 100, got %d", got.Progress)
	}
	if got.CompletedAt == nil || got.ExpiresAt == nil {
		t.Error("completed job must carry completedAt and expiresAt")
	}
	if got.Attempt != 0 {
		t.Errorf("clean run must not consume retries, got attempt %d", got.Attempt)
	}

	files, _ := repo.ListFiles(context.Background(), j.ID)
	if len(files) != 1 {
		t.Fatalf("expected 1 file row, got %d", len(files))
	}
	if files[0].FileName != "financial_1.csv" {
		t.Errorf("unexpected file name: %s", files[0].FileName)
	}
	if _, err := os.Stat(files[0].Path); err != nil {
		t.Errorf("artifact must exist at final path: %v", err)
	}
}

func TestProcessNext_ProgressCheckpoints(t *testing.T) {
	repo := newFakeRepo()
	q := newTestQueue(t, repo, &fakeProvider{}, &fakeGenerator{format: report.FormatCSV})
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatCSV)

	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	seen := repo.progress[j.ID]
	want := []int{0, 10, 30, 70, 90, 100}
	if len(seen) != len(want) {
		t.Fatalf("expected checkpoints %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected checkpoints %v, got %v", want, seen)
		}
	}
}

func TestProcessNext_RetryableFailureRequeues(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{err: errors.New("connection reset")}
	q := newTestQueue(t, repo, provider, &fakeGenerator{format: report.FormatCSV})
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatCSV)

	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusPending {
		t.Fatalf("expected requeue to pending, got %s", got.Status)
	}
	if got.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", got.Attempt)
	}
	if !strings.HasPrefix(got.Error, "Retry 1/3: ") {
		t.Errorf("expected Retry 1/3 prefix, got %q", got.Error)
	}
	if !strings.Contains(got.Error, "Failed to generate report data: connection reset") {
		t.Errorf("expected wrapped fetch error, got %q", got.Error)
	}
	if got.CompletedAt != nil {
		t.Error("requeued job must not carry completedAt")
	}
}

func TestProcessNext_RetryBudgetExhausted(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{err: errors.New("connection reset")}
	q := newTestQueue(t, repo, provider, &fakeGenerator{format: report.FormatCSV})
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatCSV)

	// Initial attempt plus the full retry budget.
	for i := 0; i < report.MaxAttempts+1; i++ {
		processed, err := q.ProcessNext(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !processed {
			t.Fatalf("expected job available on attempt %d", i)
		}
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusFailed {
		t.Fatalf("expected failed after exhausting retries, got %s", got.Status)
	}
	if got.Attempt != report.MaxAttempts {
		t.Errorf("attempt counter must stop at %d, got %d", report.MaxAttempts, got.Attempt)
	}
	if got.CompletedAt == nil {
		t.Error("failed job must carry completedAt")
	}
	if provider.calls != report.MaxAttempts+1 {
		t.Errorf("expected %d fetch attempts, got %d", report.MaxAttempts+1, provider.calls)
	}

	// Nothing left to process.
	processed, _ := q.ProcessNext(context.Background())
	if processed {
		t.Error("failed job must not be claimed again")
	}
}

func TestProcessNext_ValidationErrorTerminal(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{}
	q := newTestQueue(t, repo, provider, &fakeGenerator{format: report.FormatCSV})

	j := &report.Job{
		Template: report.TemplateFinancial,
		Format:   report.FormatCSV,
		Status:   report.StatusPending,
		Parameters: report.Parameters{DateRange: &report.DateRange{
			From: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		}},
	}
	if err := repo.CreateJob(context.Background(), j); err != nil {
		t.Fatal(err)
	}

	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusFailed {
		t.Fatalf("validation failure must be terminal, got %s", got.Status)
	}
	if got.Attempt != 0 {
		t.Errorf("validation failure must not consume a retry, got attempt %d", got.Attempt)
	}
	if provider.calls != 0 {
		t.Error("provider must not be called for invalid parameters")
	}
}

func TestProcessNext_DataViolationTerminal(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{err: errors.New("Invalid data format")}
	q := newTestQueue(t, repo, provider, &fakeGenerator{format: report.FormatCSV})
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatCSV)

	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusFailed {
		t.Fatalf("data violation must be terminal, got %s", got.Status)
	}
	if got.Error != "Failed to generate report data: Invalid data format" {
		t.Errorf("unexpected error message: %q", got.Error)
	}
}

func TestProcessNext_GenerationFailureRetries(t *testing.T) {
	repo := newFakeRepo()
	gen := &fakeGenerator{format: report.FormatPDF, failWith: errors.New("render buffer overflow")}
	q := newTestQueue(t, repo, &fakeProvider{}, gen)
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatPDF)

	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusPending {
		t.Fatalf("generation failure should retry, got %s", got.Status)
	}
	if !strings.Contains(got.Error, "PDF generation failed: render buffer overflow") {
		t.Errorf("unexpected error message: %q", got.Error)
	}
}

func TestProcessNext_GeneratorPanicFailsJob(t *testing.T) {
	repo := newFakeRepo()
	gen := &fakeGenerator{format: report.FormatExcel, panicWith: "min col must be >= 1"}
	q := newTestQueue(t, repo, &fakeProvider{}, gen)
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatExcel)

	// The panic must be contained: ProcessNext returns normally and the
	// failure consumes a retry like any other generation error.
	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusPending {
		t.Fatalf("expected requeue after contained panic, got %s", got.Status)
	}
	if !strings.HasPrefix(got.Error, "Retry 1/3: ") {
		t.Errorf("expected Retry 1/3 prefix, got %q", got.Error)
	}
	if !strings.Contains(got.Error, "Excel generation failed: panic: min col must be >= 1") {
		t.Errorf("expected wrapped panic cause, got %q", got.Error)
	}

	// Exhaust the budget: the job must end up failed, never crash the loop.
	for i := 0; i < report.MaxAttempts; i++ {
		if _, err := q.ProcessNext(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	got = repo.job(t, j.ID)
	if got.Status != report.StatusFailed {
		t.Fatalf("expected failed after exhausting retries, got %s", got.Status)
	}
}

func TestProcessNext_EmptyArtifactTerminal(t *testing.T) {
	repo := newFakeRepo()
	gen := &fakeGenerator{format: report.FormatCSV, writeEmpty: true}
	q := newTestQueue(t, repo, &fakeProvider{}, gen)
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatCSV)

	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusFailed {
		t.Fatalf("empty artifact must be terminal, got %s", got.Status)
	}
	if got.Error != "Generated file is empty" {
		t.Errorf("unexpected error message: %q", got.Error)
	}

	files, _ := repo.ListFiles(context.Background(), j.ID)
	if len(files) != 0 {
		t.Error("no file rows may be recorded for a rejected artifact")
	}
}

func TestProcessNext_UnknownTemplateGetsEmptyBundle(t *testing.T) {
	repo := newFakeRepo()
	gen := &fakeGenerator{format: report.FormatCSV}
	q := newTestQueue(t, repo, &fakeProvider{}, gen)
	j := seedJob(t, repo, report.Template("pasture-rotation"), report.FormatCSV)

	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusCompleted {
		t.Fatalf("unknown template must still complete, got %s (error: %s)", got.Status, got.Error)
	}
	if _, ok := gen.lastBundle.(*report.EmptyBundle); !ok {
		t.Errorf("expected empty bundle, got %T", gen.lastBundle)
	}
}

func TestAdd_ResetsBookkeeping(t *testing.T) {
	repo := newFakeRepo()
	q := newTestQueue(t, repo, &fakeProvider{}, &fakeGenerator{format: report.FormatCSV})

	j := &report.Job{
		Template: report.TemplateHealth,
		Format:   report.FormatCSV,
		Status:   report.StatusCompleted, // caller mistakes are overwritten
		Attempt:  2,
		Progress: 80,
	}
	if err := q.Add(context.Background(), j); err != nil {
		t.Fatal(err)
	}

	got := repo.job(t, j.ID)
	if got.Status != report.StatusPending || got.Attempt != 0 || got.Progress != 0 {
		t.Errorf("Add must reset status/attempt/progress: %+v", got)
	}
}

func TestStartNotify_ProcessesJob(t *testing.T) {
	repo := newFakeRepo()
	q := newTestQueue(t, repo, &fakeProvider{}, &fakeGenerator{format: report.FormatCSV})
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatCSV)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()
	q.Notify()

	deadline := time.After(2 * time.Second)
	for {
		got := repo.job(t, j.ID)
		if got.Status.Terminal() {
			if got.Status != report.StatusCompleted {
				t.Fatalf("expected completed, got %s (error: %s)", got.Status, got.Error)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job, status %s", got.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStop_Idempotent(t *testing.T) {
	q := newTestQueue(t, newFakeRepo(), &fakeProvider{}, &fakeGenerator{format: report.FormatCSV})
	q.Start(context.Background())
	q.Stop()
	q.Stop() // second stop must be a no-op
}

func TestReapOnce_RemovesExpiredArtifacts(t *testing.T) {
	repo := newFakeRepo()
	gen := &fakeGenerator{format: report.FormatCSV}
	q := newTestQueue(t, repo, &fakeProvider{}, gen)
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatCSV)

	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Backdate the expiry so the reaper considers the job stale.
	got := repo.job(t, j.ID)
	past := time.Now().Add(-time.Minute).UTC()
	got.ExpiresAt = &past
	if err := repo.UpdateJob(context.Background(), got); err != nil {
		t.Fatal(err)
	}
	files, _ := repo.ListFiles(context.Background(), j.ID)
	if len(files) != 1 {
		t.Fatalf("expected 1 file before reap, got %d", len(files))
	}

	removed, err := q.ReapOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(files[0].Path); !os.IsNotExist(err) {
		t.Error("expired artifact must be deleted from disk")
	}
	after, _ := repo.ListFiles(context.Background(), j.ID)
	if len(after) != 0 {
		t.Error("expired file rows must be deleted")
	}

	// Second sweep finds nothing.
	removed, err = q.ReapOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("expected 0 on second sweep, got %d", removed)
	}
}

func TestReapOnce_CountsSharedFileOnce(t *testing.T) {
	repo := newFakeRepo()
	q := newTestQueue(t, repo, &fakeProvider{}, &fakeGenerator{format: report.FormatCSV})
	j := seedJob(t, repo, report.TemplateFinancial, report.FormatCSV)

	if _, err := q.ProcessNext(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Make the artifact stale for the age sweep AND its job expired, so both
	// reaper paths see the same file.
	got := repo.job(t, j.ID)
	past := time.Now().Add(-2 * time.Hour).UTC()
	got.ExpiresAt = &past
	if err := repo.UpdateJob(context.Background(), got); err != nil {
		t.Fatal(err)
	}
	files, _ := repo.ListFiles(context.Background(), j.ID)
	if len(files) != 1 {
		t.Fatalf("expected 1 file before reap, got %d", len(files))
	}
	if err := os.Chtimes(files[0].Path, past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := q.ReapOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("one disk file removed twice over: expected count 1, got %d", removed)
	}
	after, _ := repo.ListFiles(context.Background(), j.ID)
	if len(after) != 0 {
		t.Error("expired file rows must still be deleted")
	}
}

func TestRetryClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("disk hiccup"), true},
		{"validation", report.NewValidationError("bad range"), false},
		{"fetch transient", &report.DataFetchError{Cause: errors.New("timeout talking to store")}, true},
		{"fetch invalid data", &report.DataFetchError{Cause: errors.New("Invalid data format")}, false},
		{"fetch unsupported", &report.DataFetchError{Cause: errors.New("unsupported species code")}, false},
		{"generation", report.NewGenerationError(report.FormatExcel, errors.New("sheet limit")), true},
	}
	for _, c := range cases {
		if got := retryable(c.err); got != c.want {
			t.Errorf("%s: retryable=%v, want %v", c.name, got, c.want)
		}
	}
}
