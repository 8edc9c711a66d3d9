package pdf

import (
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-form-filler/internal/pdf/pdftest"
)

func glyphs(s string, x, y, fontSize float64) []pdf.Text {
	items := make([]pdf.Text, 0, len(s))
	for i, r := range s {
		items = append(items, pdf.Text{
			S:        string(r),
			X:        x + float64(i)*fontSize*0.5,
			Y:        y,
			W:        fontSize * 0.5,
			FontSize: fontSize,
		})
	}
	return items
}

func TestGroupTextRuns(t *testing.T) {
	t.Run("merges_glyphs_on_one_line", func(t *testing.T) {
		runs := groupTextRuns(glyphs("Name:", 50, 700, 10))
		require.Len(t, runs, 1)
		assert.Equal(t, "Name:", runs[0].text)
		assert.InDelta(t, 50.0, runs[0].x, 0.01)
		assert.InDelta(t, 700.0, runs[0].y, 0.01)
	})

	t.Run("splits_on_wide_gap", func(t *testing.T) {
		items := append(glyphs("Name:", 50, 700, 10), glyphs("Date:", 300, 700, 10)...)
		runs := groupTextRuns(items)
		require.Len(t, runs, 2)

		texts := []string{runs[0].text, runs[1].text}
		assert.Contains(t, texts, "Name:")
		assert.Contains(t, texts, "Date:")
	})

	t.Run("tolerates_baseline_jitter", func(t *testing.T) {
		items := append(glyphs("Na", 50, 700, 10), glyphs("me", 60, 702, 10)...)
		runs := groupTextRuns(items)
		require.Len(t, runs, 1)
		assert.Equal(t, "Name", runs[0].text)
	})

	t.Run("separate_lines", func(t *testing.T) {
		items := append(glyphs("First", 50, 700, 10), glyphs("Second", 50, 650, 10)...)
		runs := groupTextRuns(items)
		assert.Len(t, runs, 2)
	})

	t.Run("empty_input", func(t *testing.T) {
		assert.Nil(t, groupTextRuns(nil))
	})
}

func TestNearestLabel(t *testing.T) {
	bounds := &BoundingBox{
		LowerLeft:  Coordinate{X: 120, Y: 695},
		UpperRight: Coordinate{X: 320, Y: 715},
		Width:      200,
		Height:     20,
	}

	t.Run("same_line_left_of_widget", func(t *testing.T) {
		runs := []textRun{
			{text: "Full Name:", x: 50, endX: 110, y: 705},
			{text: "Unrelated", x: 50, endX: 110, y: 400},
		}
		assert.Equal(t, "Full Name", nearestLabel(runs, bounds))
	})

	t.Run("closest_left_run_wins", func(t *testing.T) {
		runs := []textRun{
			{text: "Far", x: 10, endX: 30, y: 705},
			{text: "Near:", x: 80, endX: 115, y: 705},
		}
		assert.Equal(t, "Near", nearestLabel(runs, bounds))
	})

	t.Run("falls_back_to_text_above", func(t *testing.T) {
		runs := []textRun{
			{text: "Mailing Address", x: 120, endX: 250, y: 730},
		}
		assert.Equal(t, "Mailing Address", nearestLabel(runs, bounds))
	})

	t.Run("above_text_must_overlap_horizontally", func(t *testing.T) {
		runs := []textRun{
			{text: "Other column", x: 400, endX: 500, y: 730},
		}
		assert.Equal(t, "", nearestLabel(runs, bounds))
	})

	t.Run("ignores_text_right_of_widget", func(t *testing.T) {
		runs := []textRun{
			{text: "trailing hint", x: 330, endX: 420, y: 705},
		}
		assert.Equal(t, "", nearestLabel(runs, bounds))
	})

	t.Run("no_runs", func(t *testing.T) {
		assert.Equal(t, "", nearestLabel(nil, bounds))
	})
}

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Name:", want: "Name"},
		{in: "Required *", want: "Required"},
		{in: "  padded  ", want: "padded"},
		{in: "plain", want: "plain"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanLabel(tt.in))
	}
}

func TestLabelAnnotator_Annotate_UnreadableDocument(t *testing.T) {
	schema := &FormSchema{
		FormSlug: "broken",
		Fields: []FormField{
			{Name: "a", Type: FormFieldTypeText, Bounds: &BoundingBox{}},
		},
		TotalFields: 1,
	}

	NewLabelAnnotator(nil).Annotate([]byte("not a pdf"), schema)
	assert.Empty(t, schema.Fields[0].Label)
}

func TestLabelAnnotator_Annotate_NoPageText(t *testing.T) {
	data := pdftest.BuildFormPDF(1, []pdftest.Widget{
		pdftest.TextField("fullName", 0, [4]float64{100, 700, 300, 720}),
	})

	schema, err := NewSchemaExtractor().ExtractSchema(data, "plain")
	require.NoError(t, err)

	NewLabelAnnotator(nil).Annotate(data, schema)
	for _, field := range schema.Fields {
		assert.Empty(t, field.Label)
	}
}
