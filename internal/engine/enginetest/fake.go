// Package enginetest provides an in-memory engine.Engine used by tests that
// exercise the document handle without the native PDF library.
package enginetest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/a3tai/mcp-pdf-engine/internal/engine"
)

// Engine is a fake engine.Engine backed by pre-configured documents keyed by
// path.
type Engine struct {
	Docs    map[string]*Document
	OpenErr error
}

// NewEngine returns an empty fake engine.
func NewEngine() *Engine {
	return &Engine{Docs: make(map[string]*Document)}
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return "fake" }

// Open implements engine.Engine.
func (e *Engine) Open(path string) (engine.Document, error) {
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	doc, ok := e.Docs[path]
	if !ok {
		return nil, fmt.Errorf("no fake document registered for %q", path)
	}
	return doc, nil
}

// Page is one fake page with configurable content.
type Page struct {
	WidthPts  float64
	HeightPts float64
	Text      string
	Segments  []engine.TextSegment
	Annots    []*Annotation
	Flattened bool
}

// Document is a fake engine.Document. The failure knobs let tests force
// errors at specific pipeline steps.
type Document struct {
	Pages []*Page

	RenderErr   error
	TextErr     error
	SegmentsErr error
	SearchErr   error
	CreateErr   error
	RemoveErr   error
	FlattenErr  error
	SaveErr     error

	// OnCreate, when set, configures each annotation created through
	// CreateAnnotation before it is returned. Tests use it to arm failure
	// knobs on annotations that do not exist yet.
	OnCreate func(*Annotation)

	// RenderDelay stretches each render call so tests can observe lock
	// contention between concurrent callers.
	RenderDelay time.Duration

	Closed  bool
	SavedTo []string

	active        int32
	maxConcurrent int32
}

// NewDocument builds a fake document with n blank portrait pages.
func NewDocument(n int) *Document {
	doc := &Document{}
	for i := 0; i < n; i++ {
		doc.Pages = append(doc.Pages, &Page{WidthPts: 612, HeightPts: 792})
	}
	return doc
}

// MaxConcurrentRenders reports the highest number of overlapping RenderPage
// calls observed, which must stay at 1 when callers serialize correctly.
func (d *Document) MaxConcurrentRenders() int {
	return int(atomic.LoadInt32(&d.maxConcurrent))
}

func (d *Document) page(i int) (*Page, error) {
	if i < 0 || i >= len(d.Pages) {
		return nil, fmt.Errorf("page index %d out of range", i)
	}
	return d.Pages[i], nil
}

// PageCount implements engine.Document.
func (d *Document) PageCount() int { return len(d.Pages) }

// PageSize implements engine.Document.
func (d *Document) PageSize(i int) (float64, float64, error) {
	p, err := d.page(i)
	if err != nil {
		return 0, 0, err
	}
	return p.WidthPts, p.HeightPts, nil
}

// RenderPage implements engine.Document with a deterministic BGRA gradient.
// Alpha is fixed below 255 so post-processing transforms are observable.
func (d *Document) RenderPage(i, width, height int, withAnnotations bool) (*engine.RenderedPage, error) {
	cur := atomic.AddInt32(&d.active, 1)
	defer atomic.AddInt32(&d.active, -1)
	for {
		prev := atomic.LoadInt32(&d.maxConcurrent)
		if cur <= prev || atomic.CompareAndSwapInt32(&d.maxConcurrent, prev, cur) {
			break
		}
	}

	if d.RenderDelay > 0 {
		time.Sleep(d.RenderDelay)
	}
	if d.RenderErr != nil {
		return nil, d.RenderErr
	}
	if _, err := d.page(i); err != nil {
		return nil, err
	}

	// Landscape requests come out rotated upright.
	if width > height {
		width, height = height, width
	}

	pixels := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := (y*width + x) * 4
			pixels[off] = byte(x)       // B
			pixels[off+1] = byte(y)     // G
			pixels[off+2] = byte(x + y) // R
			pixels[off+3] = 200         // A
		}
	}
	return &engine.RenderedPage{Width: width, Height: height, Pixels: pixels}, nil
}

// PageText implements engine.Document.
func (d *Document) PageText(i int) (string, error) {
	if d.TextErr != nil {
		return "", d.TextErr
	}
	p, err := d.page(i)
	if err != nil {
		return "", err
	}
	return p.Text, nil
}

// Search implements engine.Document over the concatenation of the page's
// segment texts, so a term crossing a run boundary still matches. Fake
// segments lay out fixed-pitch, so each character box interpolates linearly
// within its run's bounds.
func (d *Document) Search(i int, term string) ([]engine.Rect, error) {
	if d.SearchErr != nil {
		return nil, d.SearchErr
	}
	p, err := d.page(i)
	if err != nil {
		return nil, err
	}
	if term == "" {
		return nil, nil
	}

	type span struct {
		seg        engine.TextSegment
		start, end int
	}
	var spans []span
	var joined []rune
	for _, seg := range p.Segments {
		runes := []rune(strings.ToLower(seg.Text))
		spans = append(spans, span{seg: seg, start: len(joined), end: len(joined) + len(runes)})
		joined = append(joined, runes...)
	}

	needle := string([]rune(strings.ToLower(term)))
	needleLen := len([]rune(needle))
	var rects []engine.Rect
	for at := 0; at+needleLen <= len(joined); {
		if string(joined[at:at+needleLen]) != needle {
			at++
			continue
		}
		end := at + needleLen
		for _, sp := range spans {
			lo, hi := max(at, sp.start), min(end, sp.end)
			if lo >= hi {
				continue
			}
			pitch := sp.seg.Bounds.Width() / float64(sp.end-sp.start)
			rects = append(rects, engine.Rect{
				Left:   sp.seg.Bounds.Left + pitch*float64(lo-sp.start),
				Top:    sp.seg.Bounds.Top,
				Right:  sp.seg.Bounds.Left + pitch*float64(hi-sp.start),
				Bottom: sp.seg.Bounds.Bottom,
			})
		}
		at = end
	}
	return rects, nil
}

// TextSegments implements engine.Document.
func (d *Document) TextSegments(i int) ([]engine.TextSegment, error) {
	if d.SegmentsErr != nil {
		return nil, d.SegmentsErr
	}
	p, err := d.page(i)
	if err != nil {
		return nil, err
	}
	return append([]engine.TextSegment(nil), p.Segments...), nil
}

// AnnotationCount implements engine.Document.
func (d *Document) AnnotationCount(i int) (int, error) {
	p, err := d.page(i)
	if err != nil {
		return 0, err
	}
	return len(p.Annots), nil
}

// Annotations implements engine.Document.
func (d *Document) Annotations(i int) ([]engine.Annotation, error) {
	p, err := d.page(i)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Annotation, len(p.Annots))
	for idx, a := range p.Annots {
		out[idx] = a
	}
	return out, nil
}

// CreateAnnotation implements engine.Document.
func (d *Document) CreateAnnotation(i int, subtype engine.MarkupSubtype) (engine.Annotation, error) {
	if d.CreateErr != nil {
		return nil, d.CreateErr
	}
	p, err := d.page(i)
	if err != nil {
		return nil, err
	}
	a := &Annotation{Subtype: subtype}
	if d.OnCreate != nil {
		d.OnCreate(a)
	}
	p.Annots = append(p.Annots, a)
	return a, nil
}

// RemoveAnnotation implements engine.Document.
func (d *Document) RemoveAnnotation(pageIndex, annotIndex int) error {
	if d.RemoveErr != nil {
		return d.RemoveErr
	}
	p, err := d.page(pageIndex)
	if err != nil {
		return err
	}
	if annotIndex < 0 || annotIndex >= len(p.Annots) {
		return fmt.Errorf("annotation index %d out of range", annotIndex)
	}
	p.Annots = append(p.Annots[:annotIndex], p.Annots[annotIndex+1:]...)
	return nil
}

// FlattenPage implements engine.Document.
func (d *Document) FlattenPage(i int) error {
	if d.FlattenErr != nil {
		return d.FlattenErr
	}
	p, err := d.page(i)
	if err != nil {
		return err
	}
	p.Flattened = true
	return nil
}

// SaveAs implements engine.Document.
func (d *Document) SaveAs(path string) error {
	if d.SaveErr != nil {
		return d.SaveErr
	}
	d.SavedTo = append(d.SavedTo, path)
	return nil
}

// Close implements engine.Document.
func (d *Document) Close() error {
	d.Closed = true
	return nil
}

// Annotation is a fake engine.Annotation recording every mutation.
type Annotation struct {
	Subtype engine.MarkupSubtype
	Rect    engine.Rect
	Color   [4]uint8
	Quads   []engine.QuadPoints
	Closed  bool

	// Form-field configuration for extractor tests.
	HasField bool
	FType    engine.FieldType
	Value    string
	Checked  bool

	// Failure knobs.
	BoundsErr       error
	SetBoundsErr    error
	SetColorErr     error
	FailAttachAfter int // fail the (n+1)th AppendAttachmentPoints call; 0 disables
}

// Bounds implements engine.Annotation.
func (a *Annotation) Bounds() (engine.Rect, error) {
	if a.BoundsErr != nil {
		return engine.Rect{}, a.BoundsErr
	}
	return a.Rect, nil
}

// SetBounds implements engine.Annotation.
func (a *Annotation) SetBounds(r engine.Rect) error {
	if a.SetBoundsErr != nil {
		return a.SetBoundsErr
	}
	a.Rect = r
	return nil
}

// SetStrokeColor implements engine.Annotation.
func (a *Annotation) SetStrokeColor(r, g, b, alpha uint8) error {
	if a.SetColorErr != nil {
		return a.SetColorErr
	}
	a.Color = [4]uint8{r, g, b, alpha}
	return nil
}

// AppendAttachmentPoints implements engine.Annotation.
func (a *Annotation) AppendAttachmentPoints(q engine.QuadPoints) error {
	if a.FailAttachAfter > 0 && len(a.Quads) >= a.FailAttachAfter {
		return fmt.Errorf("attachment point rejected")
	}
	a.Quads = append(a.Quads, q)
	return nil
}

// IsFormField implements engine.Annotation.
func (a *Annotation) IsFormField() bool { return a.HasField }

// FieldType implements engine.Annotation.
func (a *Annotation) FieldType() engine.FieldType {
	if !a.HasField {
		return engine.FieldTypeUnknown
	}
	return a.FType
}

// FieldValue implements engine.Annotation.
func (a *Annotation) FieldValue() string { return a.Value }

// IsChecked implements engine.Annotation.
func (a *Annotation) IsChecked() bool { return a.Checked }

// Close implements engine.Annotation.
func (a *Annotation) Close() error {
	a.Closed = true
	return nil
}
