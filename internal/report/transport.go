package report

import "github.com/farmledger/export-api/internal/apperror"

type EnqueueRequest struct {
	Owner         string        `json:"owner"`
	Template      string        `json:"templateId"`
	Format        string        `json:"format"`
	Parameters    Parameters    `json:"parameters"`
	FormatOptions FormatOptions `json:"formatOptions"`
}

func (r EnqueueRequest) Validate() *apperror.AppError {
	if r.Template == "" {
		return apperror.New(apperror.BadRequest, "templateId is required")
	}
	if _, err := ParseFormat(r.Format); err != nil {
		return apperror.New(apperror.BadRequest, err.Error())
	}
	if err := r.Parameters.Validate(); err != nil {
		return apperror.New(apperror.BadRequest, err.Error())
	}
	return nil
}

type GetReportRequest struct {
	ID int64
}

func (r GetReportRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid report id")
	}
	return nil
}

type ListReportsRequest struct {
	Status   string
	Format   string
	Template string
	Owner    string
}

func (r ListReportsRequest) Validate() *apperror.AppError {
	if r.Status != "" && !Status(r.Status).Valid() {
		return apperror.New(apperror.BadRequest, "invalid status filter")
	}
	if r.Format != "" {
		if _, err := ParseFormat(r.Format); err != nil {
			return apperror.New(apperror.BadRequest, err.Error())
		}
	}
	return nil
}

type DownloadRequest struct {
	JobID  int64
	FileID int64
}

func (r DownloadRequest) Validate() *apperror.AppError {
	if r.JobID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid report id")
	}
	if r.FileID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid file id")
	}
	return nil
}

// StatusResponse is the payload of the status query: the job plus any files
// a completed run produced.
type StatusResponse struct {
	Job   *Job         `json:"job"`
	Files []OutputFile `json:"files"`
}
