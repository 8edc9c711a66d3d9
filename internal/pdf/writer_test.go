package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-form-filler/internal/pdf/pdftest"
)

func TestWriter_Apply_RoundTrip(t *testing.T) {
	src := pdftest.BuildFormPDF(1, []pdftest.Widget{
		pdftest.TextField("fullName", 0, [4]float64{100, 700, 300, 720}),
		pdftest.TextField("email", 0, [4]float64{100, 650, 300, 670}),
		pdftest.TextField("phone", 0, [4]float64{100, 600, 300, 620}),
	})

	extractor := NewSchemaExtractor()
	schema, err := extractor.ExtractSchema(src, "round-trip")
	require.NoError(t, err)

	values := map[string]string{
		"fullName": "Ada Lovelace",
		"email":    "ada@example.com",
	}

	out, err := NewWriter(nil).Apply(src, schema, values)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	// Re-extract from the written document and verify the values landed.
	filled, err := extractor.ExtractSchema(out, "round-trip")
	require.NoError(t, err)
	require.Len(t, filled.Fields, 3)

	byName := make(map[string]FormField)
	for _, f := range filled.Fields {
		byName[f.Name] = f
	}
	assert.Equal(t, "Ada Lovelace", byName["fullName"].Value)
	assert.Equal(t, "ada@example.com", byName["email"].Value)
	assert.Empty(t, byName["phone"].Value)
}

func TestWriter_Apply_FallbackNamedField(t *testing.T) {
	// A widget without a T entry gets a deterministic fallback name; the
	// writer must locate it again by re-walking the form.
	src := pdftest.BuildFormPDF(1, []pdftest.Widget{
		{Type: "Tx", Page: 0, Rect: [4]float64{100, 700, 300, 720}},
	})

	extractor := NewSchemaExtractor()
	schema, err := extractor.ExtractSchema(src, "fallback")
	require.NoError(t, err)
	require.Equal(t, []string{"field-0-0"}, schema.FieldNames())

	out, err := NewWriter(nil).Apply(src, schema, map[string]string{"field-0-0": "hello"})
	require.NoError(t, err)

	filled, err := extractor.ExtractSchema(out, "fallback")
	require.NoError(t, err)
	require.Len(t, filled.Fields, 1)
	assert.Equal(t, "hello", filled.Fields[0].Value)
}

func TestWriter_Apply_NoValues(t *testing.T) {
	src := pdftest.BuildFormPDF(1, []pdftest.Widget{
		pdftest.TextField("fullName", 0, [4]float64{100, 700, 300, 720}),
	})

	out, err := NewWriter(nil).Apply(src, &FormSchema{FormSlug: "s"}, nil)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestWriter_Apply_UnknownFieldSkipped(t *testing.T) {
	src := pdftest.BuildFormPDF(1, []pdftest.Widget{
		pdftest.TextField("fullName", 0, [4]float64{100, 700, 300, 720}),
	})

	extractor := NewSchemaExtractor()
	schema, err := extractor.ExtractSchema(src, "skip")
	require.NoError(t, err)

	// Schema claims a field the document does not have; the writer skips
	// it and still produces the artifact.
	schema.Fields = append(schema.Fields, FormField{Name: "ghost", Type: FormFieldTypeText})

	out, err := NewWriter(nil).Apply(src, schema, map[string]string{
		"fullName": "Ada",
		"ghost":    "boo",
	})
	require.NoError(t, err)

	filled, err := extractor.ExtractSchema(out, "skip")
	require.NoError(t, err)
	require.Len(t, filled.Fields, 1)
	assert.Equal(t, "Ada", filled.Fields[0].Value)
}

func TestWriter_Apply_EscapesSpecialCharacters(t *testing.T) {
	src := pdftest.BuildFormPDF(1, []pdftest.Widget{
		pdftest.TextField("note", 0, [4]float64{100, 700, 300, 720}),
	})

	extractor := NewSchemaExtractor()
	schema, err := extractor.ExtractSchema(src, "escape")
	require.NoError(t, err)

	out, err := NewWriter(nil).Apply(src, schema, map[string]string{
		"note": `paren (test) and back\slash`,
	})
	require.NoError(t, err)

	_, err = extractor.ExtractSchema(out, "escape")
	require.NoError(t, err)
}

func TestEscapeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "(parens)", want: `\(parens\)`},
		{in: `back\slash`, want: `back\\slash`},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeString(tt.in))
	}
}

func TestWriter_Apply_CorruptSource(t *testing.T) {
	_, err := NewWriter(nil).Apply([]byte("garbage"), &FormSchema{}, map[string]string{"a": "b"})
	require.Error(t, err)
}
