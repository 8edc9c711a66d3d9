package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/pdf-form-filler/internal/oracle"
)

// decisionWire is the raw JSON shape the model returns.
type decisionWire struct {
	Action     string  `json:"action"`
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Decide implements oracle.FieldOracle using text-only chat/completions.
// Timeouts, rate limits, and upstream 5xx surface as *oracle.TransientError;
// everything else is permanent.
func (c *Client) Decide(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("oracle.decide.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"field", q.Field.Name,
		"has_label", q.Field.Label != "",
	)

	schema := BuildDecisionJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(q)},
			{"role": "user", "content": "Return your decision for this form field.\n\nJSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("oracle.decide.http_error",
			"req_id", rid, "field", q.Field.Name, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return oracle.Decision{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return oracle.Decision{}, fmt.Errorf("decode oracle response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return oracle.Decision{}, fmt.Errorf("no choices in oracle response")
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	if err := validateAgainstSchema(schema, content); err != nil {
		c.logger.Error("oracle.decide.invalid_output",
			"req_id", rid, "field", q.Field.Name, "error", err,
		)
		return oracle.Decision{}, fmt.Errorf("oracle decision invalid: %w", err)
	}

	var wire decisionWire
	if err := json.Unmarshal(content, &wire); err != nil {
		return oracle.Decision{}, fmt.Errorf("decode oracle decision: %w", err)
	}

	decision, err := c.classify(wire)
	if err != nil {
		return oracle.Decision{}, err
	}

	c.logger.Info("oracle.decide.ok",
		"req_id", rid,
		"field", q.Field.Name,
		"action", decision.Action,
		"confidence", decision.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return decision, nil
}

// classify maps the wire decision onto the domain decision. A fill without a
// usable value is a permanent error, not a skip.
func (c *Client) classify(wire decisionWire) (oracle.Decision, error) {
	switch strings.ToLower(wire.Action) {
	case "fill":
		value := strings.TrimSpace(wire.Value)
		if value == "" {
			return oracle.Decision{}, fmt.Errorf("oracle fill decision missing value")
		}
		return oracle.Decision{
			Action:     oracle.ActionFill,
			Value:      value,
			Confidence: wire.Confidence,
			Reason:     wire.Reason,
		}, nil
	case "skip":
		reason := wire.Reason
		if reason == "" {
			reason = "no applicable fact available"
		}
		return oracle.Decision{
			Action:     oracle.ActionSkip,
			Confidence: wire.Confidence,
			Reason:     reason,
		}, nil
	default:
		return oracle.Decision{}, fmt.Errorf("unknown oracle action %q", wire.Action)
	}
}

// post sends a JSON request and returns the raw response body.
func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &oracle.TransientError{Err: err}
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode/100 != 2 {
		httpErr := fmt.Errorf("non-2xx status: %d", resp.StatusCode)
		if isRetryableStatus(resp.StatusCode) {
			return nil, &oracle.TransientError{Err: httpErr}
		}
		return nil, httpErr
	}
	return raw, nil
}

func isRetryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status/100 == 5
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
