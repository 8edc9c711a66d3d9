package fill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-form-filler/internal/facts"
	"github.com/a3tai/pdf-form-filler/internal/oracle"
	"github.com/a3tai/pdf-form-filler/internal/pdf"
)

// oracleFunc adapts a function to the FieldOracle interface.
type oracleFunc func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error)

func (f oracleFunc) Decide(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
	return f(ctx, q)
}

func textSchema(names ...string) *pdf.FormSchema {
	fields := make([]pdf.FormField, len(names))
	for i, name := range names {
		fields[i] = pdf.FormField{Name: name, Type: pdf.FormFieldTypeText}
	}
	return &pdf.FormSchema{FormSlug: "test", Fields: fields, TotalFields: len(fields)}
}

func testBundle() *facts.ContextBundle {
	return &facts.ContextBundle{
		Description: "test docs",
		Facts:       []facts.Fact{{Name: "full_name", Value: "Ada"}},
	}
}

// noSleep removes backoff waits from retry tests.
func noSleep(r *Resolver) {
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
}

func collectResults(r *Resolver, schema *pdf.FormSchema) map[string]FieldResult {
	var mu sync.Mutex
	results := make(map[string]FieldResult)
	r.ResolveAll(context.Background(), schema, testBundle(), func(res FieldResult) {
		mu.Lock()
		defer mu.Unlock()
		results[res.FieldName] = res
	})
	return results
}

func TestResolver_ResolveAll_OneResultPerField(t *testing.T) {
	o := oracleFunc(func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
		return oracle.Decision{Action: oracle.ActionFill, Value: "v-" + q.Field.Name, Confidence: 0.8}, nil
	})
	r := NewResolver(o, ResolverConfig{}, nil)

	schema := textSchema("a", "b", "c", "d", "e")
	results := collectResults(r, schema)

	require.Len(t, results, 5)
	for _, name := range schema.FieldNames() {
		res, ok := results[name]
		require.True(t, ok, "missing result for %s", name)
		assert.Equal(t, FieldStatusFilled, res.Status)
		assert.Equal(t, "v-"+name, res.Value)
		require.NotNil(t, res.Confidence)
		assert.Equal(t, 0.8, *res.Confidence)
	}
}

func TestResolver_ResolveAll_ConcurrencyCeiling(t *testing.T) {
	const limit = 3

	var inFlight, peak int64
	o := oracleFunc(func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return oracle.Decision{Action: oracle.ActionSkip, Reason: "n/a"}, nil
	})

	r := NewResolver(o, ResolverConfig{MaxConcurrency: limit}, nil)
	results := collectResults(r, textSchema("a", "b", "c", "d", "e", "f", "g", "h", "i", "j"))

	assert.Len(t, results, 10)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(limit))
	assert.Greater(t, atomic.LoadInt64(&peak), int64(0))
}

func TestResolver_ResolveOne_RetriesTransient(t *testing.T) {
	var calls int32
	o := oracleFunc(func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return oracle.Decision{}, &oracle.TransientError{Err: errors.New("rate limited")}
		}
		return oracle.Decision{Action: oracle.ActionFill, Value: "Ada", Confidence: 0.7}, nil
	})

	r := NewResolver(o, ResolverConfig{MaxRetries: 2}, nil)
	noSleep(r)

	results := collectResults(r, textSchema("full_name"))
	require.Len(t, results, 1)
	assert.Equal(t, FieldStatusFilled, results["full_name"].Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestResolver_ResolveOne_ExhaustsRetryBudget(t *testing.T) {
	var calls int32
	o := oracleFunc(func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
		atomic.AddInt32(&calls, 1)
		return oracle.Decision{}, &oracle.TransientError{Err: errors.New("still down")}
	})

	r := NewResolver(o, ResolverConfig{MaxRetries: 2}, nil)
	noSleep(r)

	results := collectResults(r, textSchema("a"))
	require.Len(t, results, 1)
	assert.Equal(t, FieldStatusError, results["a"].Status)
	assert.Contains(t, results["a"].Reason, "still down")
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestResolver_ResolveOne_PersistentErrorNoRetry(t *testing.T) {
	var calls int32
	o := oracleFunc(func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
		atomic.AddInt32(&calls, 1)
		return oracle.Decision{}, errors.New("schema mismatch")
	})

	r := NewResolver(o, ResolverConfig{MaxRetries: 2}, nil)
	noSleep(r)

	results := collectResults(r, textSchema("a"))
	assert.Equal(t, FieldStatusError, results["a"].Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResolver_FailureIsolation(t *testing.T) {
	o := oracleFunc(func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
		switch q.Field.Name {
		case "bad":
			return oracle.Decision{}, errors.New("permanently broken")
		case "empty":
			return oracle.Decision{Action: oracle.ActionSkip, Reason: "no fact"}, nil
		default:
			return oracle.Decision{Action: oracle.ActionFill, Value: "ok", Confidence: 0.9}, nil
		}
	})

	r := NewResolver(o, ResolverConfig{}, nil)
	results := collectResults(r, textSchema("good1", "bad", "empty", "good2"))

	require.Len(t, results, 4)
	assert.Equal(t, FieldStatusFilled, results["good1"].Status)
	assert.Equal(t, FieldStatusFilled, results["good2"].Status)
	assert.Equal(t, FieldStatusError, results["bad"].Status)
	assert.Equal(t, FieldStatusSkipped, results["empty"].Status)
}

func TestResolver_BackoffDoubles(t *testing.T) {
	var delays []time.Duration
	o := oracleFunc(func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
		return oracle.Decision{}, &oracle.TransientError{Err: errors.New("down")}
	})

	r := NewResolver(o, ResolverConfig{MaxRetries: 3, RetryBaseDelay: 100 * time.Millisecond}, nil)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	collectResults(r, textSchema("a"))
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, delays)
}

func TestResolver_UnknownActionBecomesError(t *testing.T) {
	o := oracleFunc(func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
		return oracle.Decision{Action: oracle.Action("guess")}, nil
	})

	r := NewResolver(o, ResolverConfig{}, nil)
	results := collectResults(r, textSchema("a"))
	assert.Equal(t, FieldStatusError, results["a"].Status)
}

func TestResolver_EmptySchema(t *testing.T) {
	o := oracleFunc(func(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
		return oracle.Decision{}, fmt.Errorf("should never be called")
	})

	r := NewResolver(o, ResolverConfig{}, nil)
	results := collectResults(r, textSchema())
	assert.Empty(t, results)
}
