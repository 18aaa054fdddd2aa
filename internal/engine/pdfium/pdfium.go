// Package pdfium binds the engine contract to the pdfium library via
// go-pdfium's single-threaded backend. The native library is initialized at
// most once per process; all calls against one document must already be
// serialized by the caller.
package pdfium

import (
	"fmt"
	"sync"
	"time"

	pdfiumlib "github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/enums"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/single_threaded"
	"github.com/klippa-app/go-pdfium/structs"

	"github.com/a3tai/mcp-pdf-engine/internal/engine"
)

var (
	initOnce sync.Once
	pool     pdfiumlib.Pool
	instance pdfiumlib.Pdfium
	initErr  error
)

// Engine is the production implementation of engine.Engine.
type Engine struct {
	inst pdfiumlib.Pdfium
}

// Init initializes the native library and returns the process-wide engine.
// Initialization happens once; later calls return the same engine or the
// original initialization error.
func Init() (*Engine, error) {
	initOnce.Do(func() {
		pool = single_threaded.Init(single_threaded.Config{})
		instance, initErr = pool.GetInstance(30 * time.Second)
	})
	if initErr != nil {
		return nil, fmt.Errorf("initializing pdfium: %w", initErr)
	}
	return &Engine{inst: instance}, nil
}

func (e *Engine) Name() string { return "pdfium" }

// Open loads a document from disk. The returned document owns a form-fill
// environment so widget annotations can be resolved to field values.
func (e *Engine) Open(path string) (engine.Document, error) {
	doc, err := e.inst.OpenDocument(&requests.OpenDocument{FilePath: &path})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	form, err := e.inst.FPDFDOC_InitFormFillEnvironment(&requests.FPDFDOC_InitFormFillEnvironment{
		Document: doc.Document,
	})
	if err != nil {
		_, _ = e.inst.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		return nil, fmt.Errorf("initializing form environment for %s: %w", path, err)
	}

	return &Document{
		inst: e.inst,
		doc:  doc.Document,
		form: form.FormHandle,
	}, nil
}

// Document wraps one open pdfium document.
type Document struct {
	inst pdfiumlib.Pdfium
	doc  references.FPDF_DOCUMENT
	form references.FPDF_FORMHANDLE
}

func (d *Document) pageRef(pageIndex int) requests.Page {
	return requests.Page{
		ByIndex: &requests.PageByIndex{
			Document: d.doc,
			Index:    pageIndex,
		},
	}
}

func (d *Document) PageCount() int {
	res, err := d.inst.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: d.doc})
	if err != nil {
		return 0
	}
	return res.PageCount
}

func (d *Document) PageSize(pageIndex int) (float64, float64, error) {
	res, err := d.inst.GetPageSize(&requests.GetPageSize{Page: d.pageRef(pageIndex)})
	if err != nil {
		return 0, 0, fmt.Errorf("reading size of page %d: %w", pageIndex, err)
	}
	return res.Width, res.Height, nil
}

// RenderPage rasterizes a page to a BGRA buffer on a white background.
// Landscape output is rotated a quarter turn clockwise so the image is
// always upright, swapping the buffer's dimensions.
func (d *Document) RenderPage(pageIndex, width, height int, withAnnotations bool) (*engine.RenderedPage, error) {
	rotation := enums.FPDF_PAGE_ROTATION_NONE
	outWidth, outHeight := width, height
	if width > height {
		rotation = enums.FPDF_PAGE_ROTATION_90_CW
		outWidth, outHeight = height, width
	}

	bitmap, err := d.inst.FPDFBitmap_Create(&requests.FPDFBitmap_Create{
		Width:  outWidth,
		Height: outHeight,
		Alpha:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("allocating %dx%d bitmap: %w", outWidth, outHeight, err)
	}
	defer func() {
		_, _ = d.inst.FPDFBitmap_Destroy(&requests.FPDFBitmap_Destroy{Bitmap: bitmap.Bitmap})
	}()

	_, err = d.inst.FPDFBitmap_FillRect(&requests.FPDFBitmap_FillRect{
		Bitmap: bitmap.Bitmap,
		Left:   0,
		Top:    0,
		Width:  outWidth,
		Height: outHeight,
		Color:  0xFFFFFFFF,
	})
	if err != nil {
		return nil, fmt.Errorf("clearing bitmap: %w", err)
	}

	var flags enums.FPDF_RENDER_FLAG
	if withAnnotations {
		flags = enums.FPDF_RENDER_FLAG_ANNOT
	}

	_, err = d.inst.FPDF_RenderPageBitmap(&requests.FPDF_RenderPageBitmap{
		Bitmap: bitmap.Bitmap,
		Page:   d.pageRef(pageIndex),
		StartX: 0,
		StartY: 0,
		SizeX:  outWidth,
		SizeY:  outHeight,
		Rotate: rotation,
		Flags:  flags,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", pageIndex, err)
	}

	buffer, err := d.inst.FPDFBitmap_GetBuffer(&requests.FPDFBitmap_GetBuffer{Bitmap: bitmap.Bitmap})
	if err != nil {
		return nil, fmt.Errorf("reading bitmap of page %d: %w", pageIndex, err)
	}

	// The buffer belongs to the bitmap; copy it out before destruction.
	pixels := make([]byte, len(buffer.Buffer))
	copy(pixels, buffer.Buffer)

	return &engine.RenderedPage{
		Width:  outWidth,
		Height: outHeight,
		Pixels: pixels,
	}, nil
}

func (d *Document) PageText(pageIndex int) (string, error) {
	res, err := d.inst.GetPageText(&requests.GetPageText{Page: d.pageRef(pageIndex)})
	if err != nil {
		return "", fmt.Errorf("reading text of page %d: %w", pageIndex, err)
	}
	return res.Text, nil
}

func (d *Document) TextSegments(pageIndex int) ([]engine.TextSegment, error) {
	res, err := d.inst.GetPageTextStructured(&requests.GetPageTextStructured{
		Page: d.pageRef(pageIndex),
		Mode: requests.GetPageTextStructuredModeRects,
	})
	if err != nil {
		return nil, fmt.Errorf("reading text runs of page %d: %w", pageIndex, err)
	}

	segments := make([]engine.TextSegment, 0, len(res.Rects))
	for _, r := range res.Rects {
		segments = append(segments, engine.TextSegment{
			Text: r.Text,
			Bounds: engine.Rect{
				Left:   r.Left,
				Top:    r.Top,
				Right:  r.Right,
				Bottom: r.Bottom,
			},
		})
	}
	return segments, nil
}

// Search drives pdfium's text search forward over the page. Each hit's
// character range is resolved to its exact bounding rectangles, one per text
// run the hit covers. The default find flags give case-insensitive matching.
func (d *Document) Search(pageIndex int, term string) ([]engine.Rect, error) {
	textPage, err := d.inst.FPDFText_LoadPage(&requests.FPDFText_LoadPage{Page: d.pageRef(pageIndex)})
	if err != nil {
		return nil, fmt.Errorf("loading text of page %d: %w", pageIndex, err)
	}
	defer func() {
		_, _ = d.inst.FPDFText_ClosePage(&requests.FPDFText_ClosePage{TextPage: textPage.TextPage})
	}()

	search, err := d.inst.FPDFText_FindStart(&requests.FPDFText_FindStart{
		TextPage: textPage.TextPage,
		Find:     term,
	})
	if err != nil {
		return nil, fmt.Errorf("starting search on page %d: %w", pageIndex, err)
	}
	defer func() {
		_, _ = d.inst.FPDFText_FindClose(&requests.FPDFText_FindClose{Search: search.Search})
	}()

	var rects []engine.Rect
	for {
		next, err := d.inst.FPDFText_FindNext(&requests.FPDFText_FindNext{Search: search.Search})
		if err != nil {
			return nil, fmt.Errorf("searching page %d: %w", pageIndex, err)
		}
		if !next.GotMatch {
			return rects, nil
		}

		start, err := d.inst.FPDFText_GetSchResultIndex(&requests.FPDFText_GetSchResultIndex{Search: search.Search})
		if err != nil {
			return nil, fmt.Errorf("reading match position on page %d: %w", pageIndex, err)
		}
		count, err := d.inst.FPDFText_GetSchCount(&requests.FPDFText_GetSchCount{Search: search.Search})
		if err != nil {
			return nil, fmt.Errorf("reading match length on page %d: %w", pageIndex, err)
		}

		boxes, err := d.inst.FPDFText_CountRects(&requests.FPDFText_CountRects{
			TextPage:   textPage.TextPage,
			StartIndex: start.Index,
			Count:      count.Count,
		})
		if err != nil {
			return nil, fmt.Errorf("counting match rectangles on page %d: %w", pageIndex, err)
		}
		for i := 0; i < boxes.Count; i++ {
			rect, err := d.inst.FPDFText_GetRect(&requests.FPDFText_GetRect{
				TextPage: textPage.TextPage,
				Index:    i,
			})
			if err != nil {
				return nil, fmt.Errorf("reading match rectangle on page %d: %w", pageIndex, err)
			}
			rects = append(rects, engine.Rect{
				Left:   rect.Left,
				Top:    rect.Top,
				Right:  rect.Right,
				Bottom: rect.Bottom,
			})
		}
	}
}

func (d *Document) AnnotationCount(pageIndex int) (int, error) {
	res, err := d.inst.FPDFPage_GetAnnotCount(&requests.FPDFPage_GetAnnotCount{Page: d.pageRef(pageIndex)})
	if err != nil {
		return 0, fmt.Errorf("counting annotations of page %d: %w", pageIndex, err)
	}
	return res.Count, nil
}

func (d *Document) Annotations(pageIndex int) ([]engine.Annotation, error) {
	count, err := d.AnnotationCount(pageIndex)
	if err != nil {
		return nil, err
	}

	annotations := make([]engine.Annotation, 0, count)
	for i := 0; i < count; i++ {
		res, err := d.inst.FPDFPage_GetAnnot(&requests.FPDFPage_GetAnnot{
			Page:  d.pageRef(pageIndex),
			Index: i,
		})
		if err != nil {
			closeAll(annotations)
			return nil, fmt.Errorf("opening annotation %d of page %d: %w", i, pageIndex, err)
		}
		annotations = append(annotations, d.newAnnotation(res.Annotation))
	}
	return annotations, nil
}

func (d *Document) CreateAnnotation(pageIndex int, subtype engine.MarkupSubtype) (engine.Annotation, error) {
	res, err := d.inst.FPDFPage_CreateAnnot(&requests.FPDFPage_CreateAnnot{
		Page:    d.pageRef(pageIndex),
		Subtype: markupSubtype(subtype),
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotation on page %d: %w", pageIndex, err)
	}
	return d.newAnnotation(res.Annotation), nil
}

func (d *Document) RemoveAnnotation(pageIndex, annotIndex int) error {
	_, err := d.inst.FPDFPage_RemoveAnnot(&requests.FPDFPage_RemoveAnnot{
		Page:  d.pageRef(pageIndex),
		Index: annotIndex,
	})
	if err != nil {
		return fmt.Errorf("removing annotation %d of page %d: %w", annotIndex, pageIndex, err)
	}
	return nil
}

func (d *Document) FlattenPage(pageIndex int) error {
	_, err := d.inst.FPDFPage_Flatten(&requests.FPDFPage_Flatten{
		Page:  d.pageRef(pageIndex),
		Usage: requests.FPDFPage_FlattenUsageNormalDisplay,
	})
	if err != nil {
		return fmt.Errorf("flattening page %d: %w", pageIndex, err)
	}
	return nil
}

func (d *Document) SaveAs(path string) error {
	_, err := d.inst.FPDF_SaveAsCopy(&requests.FPDF_SaveAsCopy{
		Document: d.doc,
		FilePath: &path,
		Flags:    requests.SaveFlagNoIncremental,
	})
	if err != nil {
		return fmt.Errorf("saving document to %s: %w", path, err)
	}
	return nil
}

func (d *Document) Close() error {
	_, _ = d.inst.FPDFDOC_ExitFormFillEnvironment(&requests.FPDFDOC_ExitFormFillEnvironment{
		FormHandle: d.form,
	})
	_, err := d.inst.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.doc})
	if err != nil {
		return fmt.Errorf("closing document: %w", err)
	}
	return nil
}

func (d *Document) newAnnotation(ref references.FPDF_ANNOTATION) *Annotation {
	a := &Annotation{inst: d.inst, form: d.form, ref: ref}
	if res, err := d.inst.FPDFAnnot_GetSubtype(&requests.FPDFAnnot_GetSubtype{Annotation: ref}); err == nil {
		a.subtype = res.Subtype
	}
	return a
}

func closeAll(annotations []engine.Annotation) {
	for _, a := range annotations {
		_ = a.Close()
	}
}

func markupSubtype(subtype engine.MarkupSubtype) enums.FPDF_ANNOTATION_SUBTYPE {
	switch subtype {
	case engine.MarkupUnderline:
		return enums.FPDF_ANNOT_SUBTYPE_UNDERLINE
	case engine.MarkupStrikeout:
		return enums.FPDF_ANNOT_SUBTYPE_STRIKEOUT
	default:
		return enums.FPDF_ANNOT_SUBTYPE_HIGHLIGHT
	}
}

// Annotation wraps one open pdfium annotation handle.
type Annotation struct {
	inst    pdfiumlib.Pdfium
	form    references.FPDF_FORMHANDLE
	ref     references.FPDF_ANNOTATION
	subtype enums.FPDF_ANNOTATION_SUBTYPE
}

func (a *Annotation) Bounds() (engine.Rect, error) {
	res, err := a.inst.FPDFAnnot_GetRect(&requests.FPDFAnnot_GetRect{Annotation: a.ref})
	if err != nil {
		return engine.Rect{}, fmt.Errorf("reading annotation bounds: %w", err)
	}
	return engine.Rect{
		Left:   float64(res.Rect.Left),
		Top:    float64(res.Rect.Top),
		Right:  float64(res.Rect.Right),
		Bottom: float64(res.Rect.Bottom),
	}, nil
}

func (a *Annotation) SetBounds(r engine.Rect) error {
	_, err := a.inst.FPDFAnnot_SetRect(&requests.FPDFAnnot_SetRect{
		Annotation: a.ref,
		Rect: structs.FPDF_FS_RECTF{
			Left:   float32(r.Left),
			Top:    float32(r.Top),
			Right:  float32(r.Right),
			Bottom: float32(r.Bottom),
		},
	})
	if err != nil {
		return fmt.Errorf("setting annotation bounds: %w", err)
	}
	return nil
}

func (a *Annotation) SetStrokeColor(r, g, b, alpha uint8) error {
	_, err := a.inst.FPDFAnnot_SetColor(&requests.FPDFAnnot_SetColor{
		Annotation: a.ref,
		ColorType:  enums.FPDFANNOT_COLORTYPE_Color,
		R:          uint(r),
		G:          uint(g),
		B:          uint(b),
		A:          uint(alpha),
	})
	if err != nil {
		return fmt.Errorf("setting annotation color: %w", err)
	}
	return nil
}

func (a *Annotation) AppendAttachmentPoints(q engine.QuadPoints) error {
	_, err := a.inst.FPDFAnnot_AppendAttachmentPoints(&requests.FPDFAnnot_AppendAttachmentPoints{
		Annotation: a.ref,
		AttachmentPoints: structs.FPDF_FS_QUADPOINTSF{
			X1: float32(q.X1), Y1: float32(q.Y1),
			X2: float32(q.X2), Y2: float32(q.Y2),
			X3: float32(q.X3), Y3: float32(q.Y3),
			X4: float32(q.X4), Y4: float32(q.Y4),
		},
	})
	if err != nil {
		return fmt.Errorf("appending attachment points: %w", err)
	}
	return nil
}

func (a *Annotation) IsFormField() bool {
	return a.subtype == enums.FPDF_ANNOT_SUBTYPE_WIDGET
}

func (a *Annotation) FieldType() engine.FieldType {
	res, err := a.inst.FPDFAnnot_GetFormFieldType(&requests.FPDFAnnot_GetFormFieldType{
		FormHandle: a.form,
		Annotation: a.ref,
	})
	if err != nil {
		return engine.FieldTypeUnknown
	}

	switch res.FormFieldType {
	case enums.FPDF_FORMFIELD_TYPE_TEXTFIELD:
		return engine.FieldTypeText
	case enums.FPDF_FORMFIELD_TYPE_CHECKBOX:
		return engine.FieldTypeCheckbox
	case enums.FPDF_FORMFIELD_TYPE_RADIOBUTTON:
		return engine.FieldTypeRadio
	case enums.FPDF_FORMFIELD_TYPE_COMBOBOX:
		return engine.FieldTypeComboBox
	case enums.FPDF_FORMFIELD_TYPE_LISTBOX:
		return engine.FieldTypeListBox
	case enums.FPDF_FORMFIELD_TYPE_PUSHBUTTON:
		return engine.FieldTypePushButton
	case enums.FPDF_FORMFIELD_TYPE_SIGNATURE:
		return engine.FieldTypeSignature
	default:
		return engine.FieldTypeUnknown
	}
}

func (a *Annotation) FieldValue() string {
	res, err := a.inst.FPDFAnnot_GetFormFieldValue(&requests.FPDFAnnot_GetFormFieldValue{
		FormHandle: a.form,
		Annotation: a.ref,
	})
	if err != nil {
		return ""
	}
	return res.Value
}

func (a *Annotation) IsChecked() bool {
	res, err := a.inst.FPDFAnnot_IsChecked(&requests.FPDFAnnot_IsChecked{
		FormHandle: a.form,
		Annotation: a.ref,
	})
	if err != nil {
		return false
	}
	return res.IsChecked
}

func (a *Annotation) Close() error {
	_, err := a.inst.FPDFPage_CloseAnnot(&requests.FPDFPage_CloseAnnot{Annotation: a.ref})
	if err != nil {
		return fmt.Errorf("closing annotation: %w", err)
	}
	return nil
}
