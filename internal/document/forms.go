package document

import (
	"fmt"

	"github.com/a3tai/mcp-pdf-engine/internal/engine"
)

// FormWidget is one interactive form field found on a page. Index is the
// widget's ordinal position in the page's full annotation list, not a
// form-field-only counter, so callers can correlate widgets back to
// annotations.
type FormWidget struct {
	Index     int              `json:"index"`
	Bounds    engine.Rect      `json:"bounds"`
	FieldType engine.FieldType `json:"field_type"`
	Value     string           `json:"value"`
	Checked   bool             `json:"checked"`
}

// FormWidgets walks the page's annotation list in native order and reports
// every entry that carries a form field. Text fields report their current
// value; checkboxes and radio buttons report their checked state; every
// other field kind reports the zero values. An out-of-range index yields an
// empty slice.
func (h *Handle) FormWidgets(pageIndex int) ([]FormWidget, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if !h.validPage(pageIndex) {
		return nil, nil
	}

	annotations, err := h.doc.Annotations(pageIndex)
	if err != nil {
		return nil, fmt.Errorf("reading annotations of page %d: %w", pageIndex, err)
	}
	defer func() {
		for _, a := range annotations {
			_ = a.Close()
		}
	}()

	var widgets []FormWidget
	for idx, ann := range annotations {
		if !ann.IsFormField() {
			continue
		}

		bounds, err := ann.Bounds()
		if err != nil {
			return nil, fmt.Errorf("reading bounds of annotation %d on page %d: %w", idx, pageIndex, err)
		}

		widget := FormWidget{
			Index:     idx,
			Bounds:    bounds,
			FieldType: ann.FieldType(),
		}
		switch widget.FieldType {
		case engine.FieldTypeText:
			widget.Value = ann.FieldValue()
		case engine.FieldTypeCheckbox, engine.FieldTypeRadio:
			widget.Checked = ann.IsChecked()
		}

		widgets = append(widgets, widget)
	}
	return widgets, nil
}
