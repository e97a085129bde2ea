package report

import "fmt"

// ValidationError marks malformed parameters or an unsupported format.
// Always terminal; never consumes a retry.
type ValidationError struct {
	msg string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

func (e *ValidationError) Error() string { return e.msg }

// DataFetchError wraps a data-provider failure. Retryable by default; the
// worker treats it as terminal when the cause reads as a data or
// business-rule violation.
type DataFetchError struct {
	Cause error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("Failed to generate report data: %v", e.Cause)
}

func (e *DataFetchError) Unwrap() error { return e.Cause }

// GenerationError wraps a format strategy's internal failure with the
// strategy name and root cause.
type GenerationError struct {
	Format Format
	Cause  error
}

func NewGenerationError(f Format, cause error) *GenerationError {
	return &GenerationError{Format: f, Cause: cause}
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Format.Label(), e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// StoreError marks a failed job/file metadata write. The worker loop logs
// these and carries on; it never crashes over one.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }
