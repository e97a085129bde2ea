package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MaxAttempts is the retry budget: a job whose attempt counter has reached
// this value is failed instead of being requeued.
const MaxAttempts = 3

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Format string

const (
	FormatPDF   Format = "pdf"
	FormatExcel Format = "excel"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts the wire spellings (PDF, EXCEL, CSV, plus the common
// xlsx alias) case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "pdf":
		return FormatPDF, nil
	case "excel", "xlsx":
		return FormatExcel, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported format: %q", s)
}

func (f Format) Ext() string {
	switch f {
	case FormatPDF:
		return ".pdf"
	case FormatExcel:
		return ".xlsx"
	default:
		return ".csv"
	}
}

func (f Format) MimeType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Label is the human spelling used in error messages ("PDF generation failed").
func (f Format) Label() string {
	switch f {
	case FormatPDF:
		return "PDF"
	case FormatExcel:
		return "Excel"
	default:
		return "CSV"
	}
}

type Template string

const (
	TemplateFinancial    Template = "financial"
	TemplateInventory    Template = "inventory"
	TemplateReproductive Template = "reproductive"
	TemplateHealth       Template = "health"
)

// Known reports whether t is one of the templates the data provider serves.
// Unknown templates are still accepted: the worker substitutes an empty
// bundle for them instead of failing the job.
func (t Template) Known() bool {
	switch t {
	case TemplateFinancial, TemplateInventory, TemplateReproductive, TemplateHealth:
		return true
	}
	return false
}

func (t Template) Label() string {
	switch t {
	case TemplateFinancial:
		return "Financial Report"
	case TemplateInventory:
		return "Inventory Report"
	case TemplateReproductive:
		return "Reproductive Report"
	case TemplateHealth:
		return "Health Report"
	}
	return "Report"
}

const dateFormat = "2006-01-02"

// DateRange is inclusive on both ends. It marshals as {"from":"YYYY-MM-DD",
// "to":"YYYY-MM-DD"}; malformed dates are rejected at decode time.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		From string `json:"from"`
		To   string `json:"to"`
	}{From: r.From.Format(dateFormat), To: r.To.Format(dateFormat)})
}

func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	from, err := time.Parse(dateFormat, raw.From)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw.From)
	}
	to, err := time.Parse(dateFormat, raw.To)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw.To)
	}
	r.From, r.To = from, to
	return nil
}

type Parameters struct {
	DateRange *DateRange        `json:"dateRange,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
}

// Validate enforces date-range ordering. Violations are terminal: they never
// consume a retry.
func (p Parameters) Validate() error {
	if p.DateRange != nil && p.DateRange.From.After(p.DateRange.To) {
		return NewValidationError(fmt.Sprintf("invalid date range: from %s is after to %s",
			p.DateRange.From.Format(dateFormat), p.DateRange.To.Format(dateFormat)))
	}
	return nil
}

type FormatOptions struct {
	FileName      string `json:"fileName,omitempty"`
	Orientation   string `json:"orientation,omitempty"` // portrait | landscape
	PageSize      string `json:"pageSize,omitempty"`    // A4 | Letter
	IncludeCharts bool   `json:"includeCharts,omitempty"`
	Delimiter     string `json:"delimiter,omitempty"`
}

type Job struct {
	ID            int64         `json:"id"`
	Owner         string        `json:"owner,omitempty"`
	Template      Template      `json:"template"`
	Format        Format        `json:"format"`
	Status        Status        `json:"status"`
	Parameters    Parameters    `json:"parameters"`
	FormatOptions FormatOptions `json:"formatOptions"`
	Progress      int           `json:"progress"`
	Attempt       int           `json:"attempt"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	StartedAt     *time.Time    `json:"startedAt,omitempty"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
}

// BaseFileName is the destination name handed to the format generator:
// the caller-supplied fileName option when present, otherwise
// {template}_{jobID}{ext}.
func (j *Job) BaseFileName() string {
	if name := sanitizeFileName(j.FormatOptions.FileName); name != "" {
		if !strings.HasSuffix(strings.ToLower(name), j.Format.Ext()) {
			name += j.Format.Ext()
		}
		return name
	}
	return fmt.Sprintf("%s_%d%s", j.Template, j.ID, j.Format.Ext())
}

// sanitizeFileName strips path separators and quotes so a caller-supplied
// name can never escape the output directory.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	for _, bad := range []string{"/", "\\", "..", "\"", "\x00"} {
		name = strings.ReplaceAll(name, bad, "")
	}
	return name
}

type OutputFile struct {
	ID               int64      `json:"id"`
	JobID            int64      `json:"jobId"`
	FileName         string     `json:"fileName"`
	Path             string     `json:"-"`
	SizeBytes        int64      `json:"sizeBytes"`
	MimeType         string     `json:"mimeType"`
	DownloadCount    int64      `json:"downloadCount"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastDownloadedAt *time.Time `json:"lastDownloadedAt,omitempty"`

	// Available reports whether the artifact is still on disk (the reaper may
	// have removed it). Filled in by status queries, never stored.
	Available bool `json:"available"`
}

// Stats summarizes the job store for the stats endpoint.
type Stats struct {
	TotalJobs      int64              `json:"totalJobs"`
	PendingJobs    int64              `json:"pendingJobs"`
	ProcessingJobs int64              `json:"processingJobs"`
	CompletedJobs  int64              `json:"completedJobs"`
	FailedJobs     int64              `json:"failedJobs"`
	ByFormat       map[Format]int64   `json:"byFormat"`
	ByTemplate     map[Template]int64 `json:"byTemplate"`
}
