package pdf

import (
	"fmt"
	"time"
)

// FormFieldType represents the widget type of a form field
type FormFieldType string

const (
	FormFieldTypeText      FormFieldType = "text"
	FormFieldTypeCheckbox  FormFieldType = "checkbox"
	FormFieldTypeRadio     FormFieldType = "radio"
	FormFieldTypeSelect    FormFieldType = "select"
	FormFieldTypeButton    FormFieldType = "button"
	FormFieldTypeSignature FormFieldType = "signature"
	FormFieldTypeUnknown   FormFieldType = "unknown"
)

// Coordinate represents a point in PDF user space
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox represents the rectangle of a widget annotation
type BoundingBox struct {
	LowerLeft  Coordinate `json:"lower_left"`
	UpperRight Coordinate `json:"upper_right"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
}

// FormField is one named, positioned text input site in a form.
// Fields are immutable once extracted.
type FormField struct {
	Name      string        `json:"name"`
	Page      int           `json:"page"` // zero-based page index
	Type      FormFieldType `json:"type"`
	Bounds    *BoundingBox  `json:"bounds,omitempty"`
	Label     string        `json:"label,omitempty"` // semantic hint inferred from nearby page text
	Value     string        `json:"value,omitempty"` // pre-existing value in the source document
	MaxLength int           `json:"max_length,omitempty"`
	Required  bool          `json:"required"`
}

// FormSchema is the ordered set of text fields extracted from a blank form,
// tied to the source document's slug. Immutable after creation.
type FormSchema struct {
	FormSlug    string      `json:"form_slug"`
	Fields      []FormField `json:"fields"`
	TotalFields int         `json:"total_fields"`
	ExtractedAt time.Time   `json:"extracted_at"`
}

// FieldNames returns the field names in schema order.
func (s *FormSchema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// DownloadError indicates the source form could not be fetched.
// It is fatal to the owning job.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// SchemaExtractionError indicates the source document could not be parsed.
// It is fatal to the owning job.
type SchemaExtractionError struct {
	Err error
}

func (e *SchemaExtractionError) Error() string {
	return fmt.Sprintf("extract form schema: %v", e.Err)
}

func (e *SchemaExtractionError) Unwrap() error { return e.Err }

// WriteError indicates a single field could not be written into the output
// document. The field is skipped; the artifact is still produced.
type WriteError struct {
	FieldName string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write field %q: %v", e.FieldName, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
