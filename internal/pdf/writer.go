package pdf

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Writer applies resolved field values into a working copy of the source
// document.
type Writer struct {
	extractor *SchemaExtractor
	logger    *slog.Logger
}

// NewWriter creates a form writer.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{extractor: NewSchemaExtractor(), logger: logger}
}

// Apply writes every value in values into the matching text widget of src
// and returns the resulting document. Fields that cannot be located are
// logged and skipped; partial output is preferred over total failure. The
// source bytes are never modified.
func (w *Writer) Apply(src []byte, schema *FormSchema, values map[string]string) ([]byte, error) {
	if len(values) == 0 {
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(src), conf)
	if err != nil {
		return nil, &SchemaExtractionError{Err: fmt.Errorf("failed to read PDF context: %w", err)}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &SchemaExtractionError{Err: fmt.Errorf("failed to ensure page count: %w", err)}
	}

	// Re-walk the AcroForm with the same ordering and fallback naming as
	// schema extraction, so names line up even for unnamed widgets.
	records, err := w.extractor.collectTextFields(ctx)
	if err != nil {
		return nil, &SchemaExtractionError{Err: err}
	}

	dictByName := make(map[string]types.Dict, len(records))
	for _, rec := range records {
		dictByName[rec.field.Name] = rec.dict
	}

	written := 0
	for _, field := range schema.Fields {
		value, ok := values[field.Name]
		if !ok {
			continue
		}
		fieldDict, ok := dictByName[field.Name]
		if !ok {
			// Widget disappeared between extraction and writing.
			werr := &WriteError{FieldName: field.Name, Err: fmt.Errorf("widget not found")}
			w.logger.Warn("form.write.field_skipped", "field", field.Name, "error", werr)
			continue
		}
		w.setTextValue(fieldDict, value)
		written++
	}

	w.setNeedAppearances(ctx)

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF context: %w", err)
	}

	w.logger.Info("form.write.ok",
		"form_slug", schema.FormSlug,
		"requested", len(values),
		"written", written,
		"bytes", buf.Len(),
	)
	return buf.Bytes(), nil
}

// setTextValue sets the field's V entry and drops any stale appearance
// stream so viewers regenerate it from the new value.
func (w *Writer) setTextValue(fieldDict types.Dict, value string) {
	fieldDict["V"] = types.StringLiteral(escapeString(value))
	delete(fieldDict, "AP")
	delete(fieldDict, "I")
}

// setNeedAppearances asks conforming readers to rebuild widget appearances.
func (w *Writer) setNeedAppearances(ctx *model.Context) {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return
	}
	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil || acroFormDict == nil {
		return
	}
	acroFormDict["NeedAppearances"] = types.Boolean(true)
}

// escapeString escapes the characters with special meaning inside a PDF
// literal string.
func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
