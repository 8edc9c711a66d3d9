package pdf

import (
	"bytes"
	"log/slog"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Label inference tolerances, in PDF points.
const (
	sameLineTolerance = 5.0
	aboveLineMaxGap   = 25.0
	leftMaxGap        = 200.0
)

// LabelAnnotator infers a semantic hint for each form field from the page
// text printed near its widget rectangle. The hint feeds the oracle prompt;
// inference is best-effort and never fails the schema.
type LabelAnnotator struct {
	logger *slog.Logger
}

// NewLabelAnnotator creates a label annotator.
func NewLabelAnnotator(logger *slog.Logger) *LabelAnnotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LabelAnnotator{logger: logger}
}

type textRun struct {
	text string
	x    float64 // left edge
	endX float64 // right edge
	y    float64 // baseline
}

// Annotate fills in the Label of every schema field that has bounds, using
// the nearest text run left of or above the widget. Parse failures leave
// labels empty.
func (la *LabelAnnotator) Annotate(data []byte, schema *FormSchema) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		la.logger.Warn("form.labels.unreadable", "error", err)
		return
	}

	runsByPage := make(map[int][]textRun)
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		runsByPage[pageNum-1] = la.pageRuns(reader, pageNum)
	}

	labeled := 0
	for i := range schema.Fields {
		field := &schema.Fields[i]
		if field.Bounds == nil {
			continue
		}
		if label := nearestLabel(runsByPage[field.Page], field.Bounds); label != "" {
			field.Label = label
			labeled++
		}
	}

	la.logger.Info("form.labels.annotated",
		"form_slug", schema.FormSlug,
		"fields", schema.TotalFields,
		"labeled", labeled,
	)
}

// pageRuns extracts the text runs of one page. The underlying parser panics
// on malformed content streams, so recovery is mandatory here.
func (la *LabelAnnotator) pageRuns(reader *pdf.Reader, pageNum int) (runs []textRun) {
	defer func() {
		if r := recover(); r != nil {
			la.logger.Warn("form.labels.page_panic", "page", pageNum, "panic", r)
			runs = nil
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return nil
	}
	return groupTextRuns(page.Content().Text)
}

// groupTextRuns merges per-glyph text items into line runs: items sharing a
// baseline are sorted by X and joined.
func groupTextRuns(items []pdf.Text) []textRun {
	if len(items) == 0 {
		return nil
	}

	byLine := make(map[float64][]pdf.Text)
	var lineKeys []float64
	for _, item := range items {
		key, found := item.Y, false
		for _, existing := range lineKeys {
			if abs(existing-item.Y) <= sameLineTolerance {
				key, found = existing, true
				break
			}
		}
		if !found {
			lineKeys = append(lineKeys, item.Y)
		}
		byLine[key] = append(byLine[key], item)
	}

	var runs []textRun
	for key, line := range byLine {
		sort.Slice(line, func(i, j int) bool { return line[i].X < line[j].X })

		var b strings.Builder
		run := textRun{x: line[0].X, y: key}
		prevEnd := line[0].X
		for _, item := range line {
			// A wide horizontal gap splits the line into separate runs,
			// so labels from adjacent columns don't bleed together.
			if item.X-prevEnd > item.FontSize*2 && b.Len() > 0 {
				run.text = strings.TrimSpace(b.String())
				run.endX = prevEnd
				if run.text != "" {
					runs = append(runs, run)
				}
				b.Reset()
				run = textRun{x: item.X, y: key}
			}
			b.WriteString(item.S)
			prevEnd = item.X + item.W
		}
		run.text = strings.TrimSpace(b.String())
		run.endX = prevEnd
		if run.text != "" {
			runs = append(runs, run)
		}
	}
	return runs
}

// nearestLabel picks the closest run on the same line to the left of the
// widget, falling back to the closest run directly above it.
func nearestLabel(runs []textRun, bounds *BoundingBox) string {
	var best string
	bestDist := leftMaxGap

	midY := (bounds.LowerLeft.Y + bounds.UpperRight.Y) / 2
	for _, run := range runs {
		if abs(run.y-midY) > (bounds.Height/2)+sameLineTolerance {
			continue
		}
		if run.endX > bounds.LowerLeft.X {
			continue
		}
		if dist := bounds.LowerLeft.X - run.endX; dist < bestDist {
			bestDist = dist
			best = run.text
		}
	}
	if best != "" {
		return cleanLabel(best)
	}

	bestDist = aboveLineMaxGap
	for _, run := range runs {
		if run.y <= bounds.UpperRight.Y {
			continue
		}
		if run.endX < bounds.LowerLeft.X || run.x > bounds.UpperRight.X {
			continue
		}
		if dist := run.y - bounds.UpperRight.Y; dist < bestDist {
			bestDist = dist
			best = run.text
		}
	}
	return cleanLabel(best)
}

func cleanLabel(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ":*"))
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
