package fill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/a3tai/pdf-form-filler/internal/facts"
	"github.com/a3tai/pdf-form-filler/internal/pdf"
	"github.com/a3tai/pdf-form-filler/internal/storage"
)

// Service orchestrates the full pipeline: loader, aggregator, resolver,
// tracker, writer.
type Service struct {
	fetcher    *pdf.Fetcher
	extractor  *pdf.SchemaExtractor
	labels     *pdf.LabelAnnotator
	writer     *pdf.Writer
	store      storage.Store
	aggregator *facts.Aggregator
	resolver   *Resolver
	tracker    *Tracker
	logger     *slog.Logger
}

// NewService wires the pipeline together.
func NewService(
	fetcher *pdf.Fetcher,
	store storage.Store,
	aggregator *facts.Aggregator,
	resolver *Resolver,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:    fetcher,
		extractor:  pdf.NewSchemaExtractor(),
		labels:     pdf.NewLabelAnnotator(logger),
		writer:     pdf.NewWriter(logger),
		store:      store,
		aggregator: aggregator,
		resolver:   resolver,
		tracker:    NewTracker(logger),
		logger:     logger,
	}
}

// Start validates the request, registers a queued job, and launches the
// pipeline in the background. The returned snapshot reflects the job
// immediately after creation; callers poll Get for progress.
func (s *Service) Start(ctx context.Context, userID, formURL string) (*JobView, error) {
	if err := pdf.ValidateURL(formURL); err != nil {
		return nil, err
	}

	userID = storage.SanitizeUserID(userID)
	formSlug := storage.Slugify(formURL)
	jobID := s.tracker.Create(userID, formSlug, formURL)

	// The job outlives the request; an abandoned poll never cancels it.
	go s.run(context.WithoutCancel(ctx), jobID, userID, formSlug, formURL)

	return s.tracker.Snapshot(jobID)
}

// Get returns a consistent snapshot of the job for polling.
func (s *Service) Get(jobID string) (*JobView, error) {
	return s.tracker.Snapshot(jobID)
}

// run executes the pipeline for one job. Fatal failures before field
// dispatch short-circuit to job status error with zero populated fields;
// everything after dispatch is contained at field granularity.
func (s *Service) run(ctx context.Context, jobID, userID, formSlug, formURL string) {
	bundle, err := s.aggregator.Build(ctx, userID)
	if err != nil {
		s.fail(jobID, "No structured facts available. Upload documents again to extract data.", err)
		return
	}

	data, err := s.fetcher.Fetch(ctx, formURL)
	if err != nil {
		s.fail(jobID, fmt.Sprintf("Failed to download form: %v", err), err)
		return
	}

	if _, err := s.store.Put(ctx, storage.FormSourceKey(userID, formSlug), data, "application/pdf"); err != nil {
		// The source copy is a convenience; the pipeline holds the bytes.
		s.logger.Warn("fill.job.source_persist_failed", "job_id", jobID, "error", err)
	}

	schema, err := s.extractor.ExtractSchema(data, formSlug)
	if err != nil {
		s.fail(jobID, "Could not read form fields from the document.", err)
		return
	}

	s.labels.Annotate(data, schema)
	s.persistSchema(ctx, userID, formSlug, schema)

	if err := s.tracker.RegisterSchema(jobID, schema.FieldNames()); err != nil {
		s.fail(jobID, "Internal job state error.", err)
		return
	}

	s.logger.Info("fill.job.filling",
		"job_id", jobID,
		"form_slug", formSlug,
		"total_fields", schema.TotalFields,
		"facts", bundle.Size(),
	)

	if schema.TotalFields > 0 {
		s.resolver.ResolveAll(ctx, schema, bundle, func(res FieldResult) {
			if _, err := s.tracker.OnFieldResolved(jobID, res); err != nil {
				s.logger.Error("fill.job.result_rejected", "job_id", jobID, "field", res.FieldName, "error", err)
			}
		})
	}

	values, err := s.tracker.FilledValues(jobID)
	if err != nil {
		s.fail(jobID, "Internal job state error.", err)
		return
	}

	filled, err := s.writer.Apply(data, schema, values)
	if err != nil {
		s.fail(jobID, "Failed to write values into the form.", err)
		return
	}

	filledURL, err := s.store.Put(ctx, storage.FormFilledKey(userID, formSlug), filled, "application/pdf")
	if err != nil {
		s.fail(jobID, "Failed to persist the filled form.", err)
		return
	}

	if err := s.tracker.Complete(jobID, filledURL); err != nil {
		s.logger.Error("fill.job.complete_failed", "job_id", jobID, "error", err)
		return
	}

	view, _ := s.tracker.Snapshot(jobID)
	s.logger.Info("fill.job.complete",
		"job_id", jobID,
		"total", view.TotalFields,
		"filled", view.FilledFields,
		"skipped", view.SkippedFields,
		"errors", view.ErrorFields,
	)
}

func (s *Service) persistSchema(ctx context.Context, userID, formSlug string, schema *pdf.FormSchema) {
	payload, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return
	}
	if _, err := s.store.Put(ctx, storage.FormSchemaKey(userID, formSlug), payload, "application/json"); err != nil {
		s.logger.Warn("fill.job.schema_persist_failed", "form_slug", formSlug, "error", err)
	}
}

func (s *Service) fail(jobID, message string, cause error) {
	s.logger.Error("fill.job.failed", "job_id", jobID, "message", message, "error", cause)
	if err := s.tracker.Fail(jobID, message); err != nil {
		s.logger.Error("fill.job.fail_state_error", "job_id", jobID, "error", err)
	}
}
