package fill

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned for job IDs the tracker has never seen.
var ErrJobNotFound = errors.New("unknown form fill job")

// jobState is the tracker-owned mutable state of one job. All access goes
// through the tracker's lock.
type jobState struct {
	id       string
	userID   string
	formSlug string
	formURL  string

	status        JobStatus
	message       string
	filledFormURL string

	order  []string               // schema field order
	fields map[string]FieldResult // keyed by field name

	filled  int
	skipped int
	errored int

	completionClaimed bool

	createdAt time.Time
	updatedAt time.Time
}

func (j *jobState) allTerminal() bool {
	for _, name := range j.order {
		if !j.fields[name].Status.Terminal() {
			return false
		}
	}
	return true
}

// Tracker owns every job's mutable state. Counter recomputation and the
// "last field" completion check are atomic under one lock, so concurrent
// workers can never trigger duplicate completion.
type Tracker struct {
	mu     sync.Mutex
	jobs   map[string]*jobState
	logger *slog.Logger
}

// NewTracker creates an empty job tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{jobs: make(map[string]*jobState), logger: logger}
}

// Create registers a new job with status queued and returns its ID.
func (t *Tracker) Create(userID, formSlug, formURL string) string {
	now := time.Now().UTC()
	job := &jobState{
		id:        uuid.New().String(),
		userID:    userID,
		formSlug:  formSlug,
		formURL:   formURL,
		status:    JobStatusQueued,
		fields:    make(map[string]FieldResult),
		createdAt: now,
		updatedAt: now,
	}

	t.mu.Lock()
	t.jobs[job.id] = job
	t.mu.Unlock()

	t.logger.Info("fill.job.created", "job_id", job.id, "user_id", userID, "form_slug", formSlug)
	return job.id
}

// RegisterSchema fixes the job's field set and moves it to filling. Every
// field starts pending. Called exactly once, before any dispatch.
func (t *Tracker) RegisterSchema(jobID string, fieldNames []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if len(job.order) > 0 {
		return fmt.Errorf("schema already registered for job %s", jobID)
	}

	job.order = make([]string, len(fieldNames))
	copy(job.order, fieldNames)
	for _, name := range fieldNames {
		job.fields[name] = FieldResult{FieldName: name, Status: FieldStatusPending}
	}
	job.status = JobStatusFilling
	job.updatedAt = time.Now().UTC()
	return nil
}

// OnFieldResolved is the single mutation entry point for field outcomes. It
// is idempotent: a duplicate delivery for an already-terminal field changes
// nothing. The returned flag is true for exactly the one delivery that made
// every field terminal.
func (t *Tracker) OnFieldResolved(jobID string, result FieldResult) (bool, error) {
	if !result.Status.Terminal() {
		return false, fmt.Errorf("non-terminal field result %q for %s", result.Status, result.FieldName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return false, ErrJobNotFound
	}

	current, known := job.fields[result.FieldName]
	if !known {
		return false, fmt.Errorf("field %q not in schema of job %s", result.FieldName, jobID)
	}
	if current.Status.Terminal() {
		// Duplicate delivery; a terminal field never re-counts.
		return false, nil
	}

	job.fields[result.FieldName] = result
	switch result.Status {
	case FieldStatusFilled:
		job.filled++
	case FieldStatusSkipped:
		job.skipped++
	case FieldStatusError:
		job.errored++
	}
	job.updatedAt = time.Now().UTC()

	if job.allTerminal() && !job.completionClaimed {
		job.completionClaimed = true
		return true, nil
	}
	return false, nil
}

// Complete marks the job complete and records the filled-document URL.
// Completion does not require zero field-level errors or skips.
func (t *Tracker) Complete(jobID, filledFormURL string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if !job.allTerminal() {
		return fmt.Errorf("job %s still has pending fields", jobID)
	}
	job.status = JobStatusComplete
	job.filledFormURL = filledFormURL
	job.updatedAt = time.Now().UTC()
	return nil
}

// Fail marks the job as failed job-wide. This path is reserved for fatal
// pre-dispatch errors and never populates per-field results.
func (t *Tracker) Fail(jobID, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.status = JobStatusError
	job.message = message
	job.updatedAt = time.Now().UTC()
	return nil
}

// FilledValues returns the values of every filled field, keyed by name.
func (t *Tracker) FilledValues(jobID string) (map[string]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	values := make(map[string]string)
	for _, name := range job.order {
		res := job.fields[name]
		if res.Status == FieldStatusFilled && res.Value != "" {
			values[name] = res.Value
		}
	}
	return values, nil
}

// Snapshot returns a consistent point-in-time copy of the job, fields in
// schema order. The copy shares no mutable state with the tracker.
func (t *Tracker) Snapshot(jobID string) (*JobView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}

	view := &JobView{
		JobID:         job.id,
		UserID:        job.userID,
		FormSlug:      job.formSlug,
		FormURL:       job.formURL,
		Status:        job.status,
		Message:       job.message,
		TotalFields:   len(job.order),
		FilledFields:  job.filled,
		SkippedFields: job.skipped,
		ErrorFields:   job.errored,
		Fields:        make([]FieldResult, 0, len(job.order)),
		CreatedAt:     job.createdAt,
		UpdatedAt:     job.updatedAt,
	}
	if job.status == JobStatusComplete {
		view.FilledFormURL = job.filledFormURL
	}
	for _, name := range job.order {
		res := job.fields[name]
		if res.Confidence != nil {
			c := *res.Confidence
			res.Confidence = &c
		}
		view.Fields = append(view.Fields, res)
	}
	return view, nil
}
