package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// SchemaExtractor extracts text-field schemas from PDF form documents using
// pdfcpu's AcroForm dictionaries.
type SchemaExtractor struct{}

// NewSchemaExtractor creates a new schema extractor.
func NewSchemaExtractor() *SchemaExtractor {
	return &SchemaExtractor{}
}

// ExtractSchema parses form widget annotations from data and returns a
// FormSchema containing only text-type widgets. Non-text widgets are
// dropped. A document with no text fields yields an empty schema, not an
// error. Unreadable documents fail with *SchemaExtractionError.
func (se *SchemaExtractor) ExtractSchema(data []byte, formSlug string) (*FormSchema, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &SchemaExtractionError{Err: fmt.Errorf("failed to read PDF context: %w", err)}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &SchemaExtractionError{Err: fmt.Errorf("failed to ensure page count: %w", err)}
	}

	records, err := se.collectTextFields(ctx)
	if err != nil {
		return nil, &SchemaExtractionError{Err: err}
	}

	fields := make([]FormField, len(records))
	for i, rec := range records {
		fields[i] = rec.field
	}

	return &FormSchema{
		FormSlug:    formSlug,
		Fields:      fields,
		TotalFields: len(fields),
		ExtractedAt: time.Now().UTC(),
	}, nil
}

// fieldRecord pairs an extracted field with its underlying dictionary so the
// writer can locate the same widget again, fallback names included.
type fieldRecord struct {
	field FormField
	dict  types.Dict
}

func (se *SchemaExtractor) collectTextFields(ctx *model.Context) ([]fieldRecord, error) {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	pageIndexByObjNr := se.mapPageObjects(ctx, rootDict)

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, nil
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	if acroFormDict == nil {
		return nil, nil
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, nil
	}
	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	var records []fieldRecord
	for _, fieldRef := range fieldsArray {
		rec, err := se.processField(ctx, fieldRef, pageIndexByObjNr)
		if err != nil {
			// A single malformed field dictionary never poisons the
			// whole schema.
			continue
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	se.orderFields(records)
	se.assignFallbackNames(records)
	return records, nil
}

// processField reads a single field dictionary; it returns nil for any
// widget that is not a text field.
func (se *SchemaExtractor) processField(
	ctx *model.Context,
	fieldObj types.Object,
	pageIndexByObjNr map[int]int,
) (*fieldRecord, error) {
	fieldDict, err := ctx.DereferenceDict(fieldObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference field: %w", err)
	}
	if fieldDict == nil {
		return nil, nil
	}

	if se.fieldType(ctx, fieldDict) != FormFieldTypeText {
		return nil, nil
	}

	field := &FormField{Type: FormFieldTypeText}

	if nameObj, found := fieldDict.Find("T"); found {
		if name, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil); err == nil {
			field.Name = name
		}
	}

	if valueObj, found := fieldDict.Find("V"); found {
		if val, err := ctx.DereferenceStringOrHexLiteral(valueObj, model.V10, nil); err == nil {
			field.Value = val
		}
	}

	if flagsObj, found := fieldDict.Find("Ff"); found {
		if flags, err := ctx.DereferenceInteger(flagsObj); err == nil && flags != nil {
			flagValue := *flags
			field.Required = (flagValue & 2) != 0 // Bit 2
		}
	}

	if maxLenObj, found := fieldDict.Find("MaxLen"); found {
		if maxLen, err := ctx.DereferenceInteger(maxLenObj); err == nil && maxLen != nil {
			field.MaxLength = int(*maxLen)
		}
	}

	field.Bounds = se.fieldBounds(ctx, fieldDict)
	field.Page = se.fieldPage(ctx, fieldDict, pageIndexByObjNr)

	return &fieldRecord{field: *field, dict: fieldDict}, nil
}

// fieldType determines the widget type from the FT entry, checking the
// parent for inherited FT.
func (se *SchemaExtractor) fieldType(ctx *model.Context, fieldDict types.Dict) FormFieldType {
	ftObj, found := fieldDict.Find("FT")
	if !found {
		if parentObj, found := fieldDict.Find("Parent"); found {
			if parentDict, err := ctx.DereferenceDict(parentObj); err == nil && parentDict != nil {
				return se.fieldType(ctx, parentDict)
			}
		}
		return FormFieldTypeUnknown
	}

	ftName, err := ctx.DereferenceName(ftObj, model.V10, nil)
	if err != nil {
		return FormFieldTypeUnknown
	}

	switch ftName {
	case "Btn":
		if flagsObj, found := fieldDict.Find("Ff"); found {
			if flags, err := ctx.DereferenceInteger(flagsObj); err == nil && flags != nil {
				flagValue := *flags
				if (flagValue & (1 << 15)) != 0 { // Bit 16: Radio
					return FormFieldTypeRadio
				} else if (flagValue & (1 << 16)) != 0 { // Bit 17: Pushbutton
					return FormFieldTypeButton
				}
			}
		}
		return FormFieldTypeCheckbox
	case "Tx":
		return FormFieldTypeText
	case "Ch":
		return FormFieldTypeSelect
	case "Sig":
		return FormFieldTypeSignature
	default:
		return FormFieldTypeUnknown
	}
}

// fieldBounds extracts the widget rectangle, either from the merged field
// dictionary or from the first Kids widget annotation.
func (se *SchemaExtractor) fieldBounds(ctx *model.Context, fieldDict types.Dict) *BoundingBox {
	if rectObj, found := fieldDict.Find("Rect"); found {
		if rect := se.parseRect(ctx, rectObj); rect != nil {
			return rect
		}
	}

	if kidsObj, found := fieldDict.Find("Kids"); found {
		if kidsArray, err := ctx.DereferenceArray(kidsObj); err == nil && len(kidsArray) > 0 {
			if widgetDict, err := ctx.DereferenceDict(kidsArray[0]); err == nil && widgetDict != nil {
				if rectObj, found := widgetDict.Find("Rect"); found {
					return se.parseRect(ctx, rectObj)
				}
			}
		}
	}

	return nil
}

func (se *SchemaExtractor) parseRect(ctx *model.Context, rectObj types.Object) *BoundingBox {
	rectArray, err := ctx.DereferenceArray(rectObj)
	if err != nil || len(rectArray) != 4 {
		return nil
	}

	coords := make([]float64, 4)
	for i, coord := range rectArray {
		if f, err := ctx.DereferenceNumber(coord); err == nil {
			coords[i] = f
		}
	}

	return &BoundingBox{
		LowerLeft:  Coordinate{X: coords[0], Y: coords[1]},
		UpperRight: Coordinate{X: coords[2], Y: coords[3]},
		Width:      coords[2] - coords[0],
		Height:     coords[3] - coords[1],
	}
}

// fieldPage resolves the zero-based page index via the widget's P entry,
// checking the first Kids widget when the field dictionary has none.
func (se *SchemaExtractor) fieldPage(
	ctx *model.Context,
	fieldDict types.Dict,
	pageIndexByObjNr map[int]int,
) int {
	if page, ok := se.pageFromP(fieldDict, pageIndexByObjNr); ok {
		return page
	}

	if kidsObj, found := fieldDict.Find("Kids"); found {
		if kidsArray, err := ctx.DereferenceArray(kidsObj); err == nil && len(kidsArray) > 0 {
			if widgetDict, err := ctx.DereferenceDict(kidsArray[0]); err == nil && widgetDict != nil {
				if page, ok := se.pageFromP(widgetDict, pageIndexByObjNr); ok {
					return page
				}
			}
		}
	}

	return 0
}

func (se *SchemaExtractor) pageFromP(dict types.Dict, pageIndexByObjNr map[int]int) (int, bool) {
	pObj, found := dict.Find("P")
	if !found {
		return 0, false
	}
	ir, ok := pObj.(types.IndirectRef)
	if !ok {
		return 0, false
	}
	page, ok := pageIndexByObjNr[ir.ObjectNumber.Value()]
	return page, ok
}

// mapPageObjects walks the page tree and maps page object numbers to
// zero-based page indices.
func (se *SchemaExtractor) mapPageObjects(ctx *model.Context, rootDict types.Dict) map[int]int {
	byObjNr := make(map[int]int)
	pagesObj, found := rootDict.Find("Pages")
	if !found {
		return byObjNr
	}
	index := 0
	se.walkPageTree(ctx, pagesObj, &index, byObjNr)
	return byObjNr
}

func (se *SchemaExtractor) walkPageTree(ctx *model.Context, obj types.Object, index *int, byObjNr map[int]int) {
	dict, err := ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		return
	}

	typ := dict.Type()
	if typ != nil && *typ == "Page" {
		if ir, ok := obj.(types.IndirectRef); ok {
			byObjNr[ir.ObjectNumber.Value()] = *index
		}
		*index++
		return
	}

	if kidsObj, found := dict.Find("Kids"); found {
		if kidsArray, err := ctx.DereferenceArray(kidsObj); err == nil {
			for _, kid := range kidsArray {
				se.walkPageTree(ctx, kid, index, byObjNr)
			}
		}
	}
}

// orderFields sorts fields into a deterministic reading order: by page, then
// top-to-bottom, then left-to-right. Fields without bounds sort last on
// their page.
func (se *SchemaExtractor) orderFields(records []fieldRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].field, records[j].field
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Bounds == nil || b.Bounds == nil {
			return b.Bounds == nil && a.Bounds != nil
		}
		if a.Bounds.UpperRight.Y != b.Bounds.UpperRight.Y {
			return a.Bounds.UpperRight.Y > b.Bounds.UpperRight.Y
		}
		return a.Bounds.LowerLeft.X < b.Bounds.LowerLeft.X
	})
}

// assignFallbackNames guarantees unique field identifiers. A field whose
// source name is missing or collides with an earlier field gets a
// deterministic page+position fallback.
func (se *SchemaExtractor) assignFallbackNames(records []fieldRecord) {
	seen := make(map[string]bool, len(records))
	for i := range records {
		name := records[i].field.Name
		if name == "" || seen[name] {
			name = fmt.Sprintf("field-%d-%d", records[i].field.Page, i)
		}
		for n := 2; seen[name]; n++ {
			name = fmt.Sprintf("field-%d-%d-%d", records[i].field.Page, i, n)
		}
		records[i].field.Name = name
		seen[name] = true
	}
}
