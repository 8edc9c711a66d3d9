// Package fill implements the form-fill job pipeline: bounded-concurrency
// field resolution against the oracle, job-state aggregation with
// partial-failure isolation, and application of resolved values back into
// the document.
package fill

import (
	"time"
)

// JobStatus is the overall state of a form-fill job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusFilling  JobStatus = "filling"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
)

// FieldStatus is the state of a single field within a job.
type FieldStatus string

const (
	FieldStatusPending FieldStatus = "pending"
	FieldStatusFilled  FieldStatus = "filled"
	FieldStatusSkipped FieldStatus = "skipped"
	FieldStatusError   FieldStatus = "error"
)

// Terminal reports whether the status is a final per-field outcome.
func (s FieldStatus) Terminal() bool {
	return s == FieldStatusFilled || s == FieldStatusSkipped || s == FieldStatusError
}

// FieldResult is the terminal outcome of resolving one field. Exactly one
// exists per schema field.
type FieldResult struct {
	FieldName  string      `json:"fieldName"`
	Status     FieldStatus `json:"status"`
	Value      string      `json:"value,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// JobView is an immutable point-in-time snapshot of a job. Fields are
// always in schema order regardless of completion order.
type JobView struct {
	JobID         string        `json:"jobId"`
	UserID        string        `json:"userId"`
	FormSlug      string        `json:"formSlug"`
	FormURL       string        `json:"formUrl"`
	Status        JobStatus     `json:"status"`
	Message       string        `json:"message,omitempty"`
	FilledFormURL string        `json:"filledFormUrl,omitempty"`
	TotalFields   int           `json:"totalFields"`
	FilledFields  int           `json:"filledFields"`
	SkippedFields int           `json:"skippedFields"`
	ErrorFields   int           `json:"errorFields"`
	Fields        []FieldResult `json:"fields"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
