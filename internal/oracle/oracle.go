// Package oracle defines the contract with the external service that
// proposes a value for a form field given a user's context.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/a3tai/pdf-form-filler/internal/pdf"
)

// Action is the oracle's verdict for one field.
type Action string

const (
	ActionFill Action = "fill"
	ActionSkip Action = "skip"
)

// FieldQuery carries everything the oracle needs to decide one field.
type FieldQuery struct {
	Field               pdf.FormField
	DocumentDescription string
	FactsText           string
}

// Decision is the oracle's parsed response for one field. A fill decision
// always carries a non-empty value; a skip means no applicable fact exists.
type Decision struct {
	Action     Action
	Value      string
	Confidence float64
	Reason     string
}

// FieldOracle evaluates a single field against available context.
type FieldOracle interface {
	Decide(ctx context.Context, query FieldQuery) (Decision, error)
}

// TransientError marks a failure worth retrying: timeouts, rate limits,
// upstream 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient oracle failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable oracle failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
