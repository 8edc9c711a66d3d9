package fill

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/a3tai/pdf-form-filler/internal/facts"
	"github.com/a3tai/pdf-form-filler/internal/oracle"
	"github.com/a3tai/pdf-form-filler/internal/pdf"
)

const (
	// DefaultMaxConcurrency bounds concurrent oracle calls per job.
	DefaultMaxConcurrency = 4
	// DefaultMaxRetries is the per-field retry budget for transient
	// oracle failures.
	DefaultMaxRetries = 2
	// DefaultRetryBaseDelay seeds the exponential backoff between
	// retries.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	factsPromptLimit = 80
)

// ResolverConfig tunes the per-job worker pool and retry policy.
type ResolverConfig struct {
	MaxConcurrency int
	MaxRetries     int
	RetryBaseDelay time.Duration
}

func (c *ResolverConfig) defaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
}

// Resolver dispatches one oracle call per field under a bounded worker
// pool. Its contract: exactly one terminal FieldResult per schema field,
// regardless of individual oracle failures.
type Resolver struct {
	oracle oracle.FieldOracle
	cfg    ResolverConfig
	logger *slog.Logger

	// sleep is swappable so retry tests don't wait on real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResolver creates a resolver over the given oracle.
func NewResolver(o oracle.FieldOracle, cfg ResolverConfig, logger *slog.Logger) *Resolver {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		oracle: o,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// ResolveAll resolves every field in schema order under the concurrency
// cap, delivering each terminal result to onResult as it completes.
// Completion order is unconstrained; consumers recover schema order from
// field names. It returns once every field is terminal.
func (r *Resolver) ResolveAll(
	ctx context.Context,
	schema *pdf.FormSchema,
	bundle *facts.ContextBundle,
	onResult func(FieldResult),
) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrency)

	factsText := bundle.FactsText(factsPromptLimit)
	for _, field := range schema.Fields {
		field := field
		g.Go(func() error {
			onResult(r.resolveOne(gctx, field, bundle.Description, factsText))
			return nil
		})
	}

	// Workers never return errors; failures are folded into per-field
	// results above.
	_ = g.Wait()
}

// resolveOne queries the oracle for a single field, retrying transient
// failures with exponential backoff, and classifies the outcome.
func (r *Resolver) resolveOne(ctx context.Context, field pdf.FormField, description, factsText string) FieldResult {
	query := oracle.FieldQuery{
		Field:               field,
		DocumentDescription: description,
		FactsText:           factsText,
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryBaseDelay << (attempt - 1)
			r.logger.Warn("fill.resolve.retry",
				"field", field.Name,
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
				"error", lastErr,
			)
			if err := r.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		decision, err := r.oracle.Decide(ctx, query)
		if err == nil {
			return r.resultFromDecision(field.Name, decision)
		}
		lastErr = err
		if !oracle.IsTransient(err) {
			break
		}
	}

	r.logger.Error("fill.resolve.failed", "field", field.Name, "error", lastErr)
	return FieldResult{
		FieldName: field.Name,
		Status:    FieldStatusError,
		Reason:    lastErr.Error(),
	}
}

func (r *Resolver) resultFromDecision(fieldName string, decision oracle.Decision) FieldResult {
	switch decision.Action {
	case oracle.ActionFill:
		confidence := decision.Confidence
		return FieldResult{
			FieldName:  fieldName,
			Status:     FieldStatusFilled,
			Value:      decision.Value,
			Confidence: &confidence,
			Reason:     decision.Reason,
		}
	case oracle.ActionSkip:
		return FieldResult{
			FieldName: fieldName,
			Status:    FieldStatusSkipped,
			Reason:    decision.Reason,
		}
	default:
		return FieldResult{
			FieldName: fieldName,
			Status:    FieldStatusError,
			Reason:    "oracle returned an unknown action",
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
