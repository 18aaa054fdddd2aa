// Package engine defines the contract between this server and the native PDF
// engine it drives. The engine owns parsing, rasterization, text search and
// annotation storage; everything above it (locking, post-processing, OCR)
// lives in internal/document.
//
// Implementations are not required to be safe for concurrent use. A Document
// returned by Open must only ever be touched by one goroutine at a time; the
// document handle enforces that with a lock and never lets the Document
// reference escape it.
package engine

// Rect is an axis-aligned rectangle in page coordinate units (points), with
// the PDF convention that Top > Bottom.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 { return r.Top - r.Bottom }

// QuadPoints is a quadrilateral attachment region for a markup annotation,
// listed in the corner order the native engine expects: upper-left,
// upper-right, lower-left, lower-right.
type QuadPoints struct {
	X1, Y1 float64
	X2, Y2 float64
	X3, Y3 float64
	X4, Y4 float64
}

// QuadFromRect converts an axis-aligned rectangle into its quad-point form.
func QuadFromRect(r Rect) QuadPoints {
	return QuadPoints{
		X1: r.Left, Y1: r.Top,
		X2: r.Right, Y2: r.Top,
		X3: r.Left, Y3: r.Bottom,
		X4: r.Right, Y4: r.Bottom,
	}
}

// TextSegment is one positioned text run as reported by the native engine's
// segmentation, in reading order.
type TextSegment struct {
	Text   string `json:"text"`
	Bounds Rect   `json:"bounds"`
}

// RenderedPage is a raw rasterization result. Pixels are tightly packed
// 4 bytes per pixel in the engine's native BGRA channel order, row-major,
// length Width*Height*4.
type RenderedPage struct {
	Width  int
	Height int
	Pixels []byte
}

// MarkupSubtype identifies the kind of markup annotation to create.
type MarkupSubtype string

const (
	MarkupHighlight MarkupSubtype = "highlight"
	MarkupUnderline MarkupSubtype = "underline"
	MarkupStrikeout MarkupSubtype = "strikeout"
)

// FieldType classifies a form-field widget annotation.
type FieldType string

const (
	FieldTypeText       FieldType = "text"
	FieldTypeCheckbox   FieldType = "checkbox"
	FieldTypeRadio      FieldType = "radio"
	FieldTypeComboBox   FieldType = "combobox"
	FieldTypeListBox    FieldType = "listbox"
	FieldTypePushButton FieldType = "pushbutton"
	FieldTypeSignature  FieldType = "signature"
	FieldTypeUnknown    FieldType = "unknown"
)

// Engine opens documents against one loaded native library instance. The
// instance is process-wide and shared read-only by all documents.
type Engine interface {
	// Name identifies the backing library, for logging and diagnostics.
	Name() string

	// Open loads a PDF document from a file path. The returned Document is
	// owned by the caller and must be closed exactly once.
	Open(path string) (Document, error)
}

// Document is one opened PDF document held by the native engine. Callers must
// serialize all access; see the package comment.
type Document interface {
	// PageCount reports the number of pages, fixed at load time.
	PageCount() int

	// PageSize returns the native width and height of a page in points.
	PageSize(pageIndex int) (width, height float64, err error)

	// RenderPage rasterizes a page into a BGRA buffer of the given pixel
	// dimensions. Landscape pages are rotated upright, so the returned
	// dimensions may be the transpose of the requested ones. Annotations are
	// drawn when withAnnotations is set.
	RenderPage(pageIndex, width, height int, withAnnotations bool) (*RenderedPage, error)

	// PageText returns the full extractable text of a page.
	PageText(pageIndex int) (string, error)

	// TextSegments returns the engine's granular text-run segmentation with
	// per-run bounds, in native reading order.
	TextSegments(pageIndex int) ([]TextSegment, error)

	// Search runs the engine's directional text search forward over a page
	// and returns the exact character-box bounds of every case-insensitive
	// occurrence of term. A match spanning several text runs yields one
	// rectangle per run.
	Search(pageIndex int, term string) ([]Rect, error)

	// AnnotationCount reports the number of annotations on a page.
	AnnotationCount(pageIndex int) (int, error)

	// Annotations returns the page's annotation list in native order.
	Annotations(pageIndex int) ([]Annotation, error)

	// CreateAnnotation appends a new markup annotation of the given subtype
	// to the page and returns a handle to configure it.
	CreateAnnotation(pageIndex int, subtype MarkupSubtype) (Annotation, error)

	// RemoveAnnotation deletes the annotation at the given index in the
	// page's annotation list. Used to roll back a partially configured
	// markup annotation.
	RemoveAnnotation(pageIndex, annotIndex int) error

	// FlattenPage bakes the page's annotations into its static content.
	// Irreversible through this interface.
	FlattenPage(pageIndex int) error

	// SaveAs writes the document, including any annotations created through
	// this interface, to a new file.
	SaveAs(path string) error

	// Close releases the native document. The Document must not be used
	// afterwards.
	Close() error
}

// Annotation is a handle to one annotation on a page. For form-field widgets
// the value accessors follow the defensive policy of the widget extractor:
// unreadable values degrade to zero values instead of failing.
type Annotation interface {
	// Bounds returns the annotation's outer rectangle.
	Bounds() (Rect, error)

	// SetBounds sets the annotation's outer rectangle.
	SetBounds(r Rect) error

	// SetStrokeColor sets the stroke color used to draw the markup.
	SetStrokeColor(r, g, b, a uint8) error

	// AppendAttachmentPoints adds one quad region to a markup annotation.
	AppendAttachmentPoints(q QuadPoints) error

	// IsFormField reports whether the annotation carries a form field.
	IsFormField() bool

	// FieldType classifies the form field; FieldTypeUnknown when the type
	// cannot be determined.
	FieldType() FieldType

	// FieldValue returns the current text value of a text field, or ""
	// when unset or unreadable.
	FieldValue() string

	// IsChecked reports the checked state of a checkbox or radio button,
	// or false when unreadable.
	IsChecked() bool

	// Close releases the native annotation handle.
	Close() error
}
