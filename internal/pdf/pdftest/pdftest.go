// Package pdftest builds small AcroForm documents for tests.
package pdftest

import (
	"fmt"
	"strings"
)

// Widget describes one form widget annotation in a generated document.
type Widget struct {
	Name   string     // empty means the widget has no T entry
	Type   string     // PDF field type: Tx, Btn, Ch, Sig; defaults to Tx
	Page   int        // zero-based page index
	Rect   [4]float64 // llx, lly, urx, ury
	NoRect bool       // omit the Rect entry entirely
	Flags  int        // Ff bit flags
	MaxLen int        // MaxLen entry when > 0
	Value  string     // pre-filled V entry when non-empty
}

// BuildFormPDF generates a minimal but well-formed PDF with pages pages and
// the given widget annotations, with accurate cross-reference offsets.
func BuildFormPDF(pages int, widgets []Widget) []byte {
	if pages < 1 {
		pages = 1
	}

	// Object layout: 1 catalog, 2 page tree, 3..2+pages page objects,
	// then one object per widget.
	firstWidgetObj := 3 + pages

	var fieldRefs []string
	for i := range widgets {
		fieldRefs = append(fieldRefs, fmt.Sprintf("%d 0 R", firstWidgetObj+i))
	}

	annotsByPage := make(map[int][]string)
	for i, w := range widgets {
		annotsByPage[w.Page] = append(annotsByPage[w.Page], fmt.Sprintf("%d 0 R", firstWidgetObj+i))
	}

	var b strings.Builder
	var offsets []int
	b.WriteString("%PDF-1.4\n")

	writeObj := func(nr int, body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", nr, body)
	}

	writeObj(1, fmt.Sprintf("<<\n/Type /Catalog\n/Pages 2 0 R\n/AcroForm << /Fields [%s] >>\n>>",
		strings.Join(fieldRefs, " ")))

	var kids []string
	for p := 0; p < pages; p++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+p))
	}
	writeObj(2, fmt.Sprintf("<<\n/Type /Pages\n/Kids [%s]\n/Count %d\n>>",
		strings.Join(kids, " "), pages))

	for p := 0; p < pages; p++ {
		annots := ""
		if refs := annotsByPage[p]; len(refs) > 0 {
			annots = fmt.Sprintf("\n/Annots [%s]", strings.Join(refs, " "))
		}
		writeObj(3+p, fmt.Sprintf(
			"<<\n/Type /Page\n/Parent 2 0 R\n/MediaBox [0 0 612 792]\n/Resources <<>>%s\n>>", annots))
	}

	for i, w := range widgets {
		ft := w.Type
		if ft == "" {
			ft = "Tx"
		}
		var entries []string
		entries = append(entries, "/Type /Annot", "/Subtype /Widget", "/FT /"+ft)
		if w.Name != "" {
			entries = append(entries, fmt.Sprintf("/T (%s)", w.Name))
		}
		if !w.NoRect {
			entries = append(entries, fmt.Sprintf("/Rect [%g %g %g %g]",
				w.Rect[0], w.Rect[1], w.Rect[2], w.Rect[3]))
		}
		entries = append(entries, fmt.Sprintf("/P %d 0 R", 3+w.Page))
		if w.Flags != 0 {
			entries = append(entries, fmt.Sprintf("/Ff %d", w.Flags))
		}
		if w.MaxLen > 0 {
			entries = append(entries, fmt.Sprintf("/MaxLen %d", w.MaxLen))
		}
		if w.Value != "" {
			entries = append(entries, fmt.Sprintf("/V (%s)", w.Value))
		}
		writeObj(firstWidgetObj+i, "<<\n"+strings.Join(entries, "\n")+"\n>>")
	}

	xrefStart := b.Len()
	size := len(offsets) + 1
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", size)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<<\n/Size %d\n/Root 1 0 R\n>>\nstartxref\n%d\n%%%%EOF", size, xrefStart)

	return []byte(b.String())
}

// TextField is a convenience constructor for a named text widget.
func TextField(name string, page int, rect [4]float64) Widget {
	return Widget{Name: name, Type: "Tx", Page: page, Rect: rect}
}
