package mcp

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/mcp-pdf-engine/internal/config"
	"github.com/a3tai/mcp-pdf-engine/internal/document"
	"github.com/a3tai/mcp-pdf-engine/internal/engine"
	"github.com/a3tai/mcp-pdf-engine/internal/engine/enginetest"
	"github.com/a3tai/mcp-pdf-engine/internal/ocr"
	"github.com/a3tai/mcp-pdf-engine/internal/pdf"
)

const testDocPath = "/docs/test.pdf"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Mode:         "stdio",
		PDFDirectory: t.TempDir(),
		Version:      "1.0.0",
		ServerName:   "test-server",
		LogLevel:     "info",
		MaxFileSize:  1024 * 1024,
	}
}

// newTestServer wires a server around an in-memory document registered under
// testDocPath.
func newTestServer(t *testing.T, doc *enginetest.Document, opts document.Options) *Server {
	t.Helper()

	eng := enginetest.NewEngine()
	eng.Docs[testDocPath] = doc

	cfg := testConfig(t)
	registry := document.NewRegistry(eng, opts, nil)
	inspector := pdf.NewInspector(cfg.MaxFileSize)

	srv, err := NewServer(cfg, registry, inspector)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

// textDoc returns a one-page document with a single positioned text run.
func textDoc() *enginetest.Document {
	doc := enginetest.NewDocument(1)
	doc.Pages[0].WidthPts = 200
	doc.Pages[0].HeightPts = 100
	doc.Pages[0].Text = "Hello World"
	doc.Pages[0].Segments = []engine.TextSegment{
		{Text: "Hello World", Bounds: engine.Rect{Left: 0, Top: 10, Right: 110, Bottom: 0}},
	}
	return doc
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestNewServer(t *testing.T) {
	cfg := testConfig(t)
	registry := document.NewRegistry(enginetest.NewEngine(), document.Options{}, nil)
	inspector := pdf.NewInspector(cfg.MaxFileSize)

	t.Run("valid", func(t *testing.T) {
		srv, err := NewServer(cfg, registry, inspector)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if srv.mcpServer == nil {
			t.Error("mcpServer should be initialized")
		}
	})

	t.Run("nil registry", func(t *testing.T) {
		if _, err := NewServer(cfg, nil, inspector); err == nil {
			t.Error("expected error for nil registry")
		}
	})

	t.Run("nil inspector", func(t *testing.T) {
		if _, err := NewServer(cfg, registry, nil); err == nil {
			t.Error("expected error for nil inspector")
		}
	})
}

func TestServer_HandleRenderPage(t *testing.T) {
	doc := enginetest.NewDocument(1)
	doc.Pages[0].WidthPts = 10
	doc.Pages[0].HeightPts = 20
	srv := newTestServer(t, doc, document.Options{})

	output := filepath.Join(t.TempDir(), "page.png")
	result, err := srv.handleRenderPage(context.Background(), callRequest(map[string]interface{}{
		"path":   testDocPath,
		"page":   float64(1),
		"scale":  float64(2),
		"output": output,
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "20x40") {
		t.Errorf("expected response to mention 20x40 image, got: %s", resultText)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("rendered PNG not written: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("output is not a valid PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 40 {
		t.Errorf("PNG is %dx%d, want 20x40", b.Dx(), b.Dy())
	}
}

func TestServer_HandleRenderPage_OutOfRange(t *testing.T) {
	srv := newTestServer(t, textDoc(), document.Options{})

	result, err := srv.handleRenderPage(context.Background(), callRequest(map[string]interface{}{
		"path":   testDocPath,
		"page":   float64(9),
		"output": filepath.Join(t.TempDir(), "page.png"),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "Nothing rendered") {
		t.Errorf("expected soft empty response, got: %s", resultText)
	}
}

func TestServer_HandlePageText(t *testing.T) {
	srv := newTestServer(t, textDoc(), document.Options{})

	result, err := srv.handlePageText(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
		"page": float64(1),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "Hello World") {
		t.Errorf("expected page text in response, got: %s", resultText)
	}
}

func TestServer_HandleSearchPage(t *testing.T) {
	srv := newTestServer(t, textDoc(), document.Options{})

	result, err := srv.handleSearchPage(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
		"page": float64(1),
		"term": "world",
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "Found 1 match(es)") {
		t.Errorf("expected one match, got: %s", resultText)
	}
	if !strings.Contains(resultText, "left=60.00") {
		t.Errorf("expected interpolated match box, got: %s", resultText)
	}
}

func TestServer_HandleSearchPage_NoMatch(t *testing.T) {
	srv := newTestServer(t, textDoc(), document.Options{})

	result, err := srv.handleSearchPage(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
		"page": float64(1),
		"term": "absent",
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "No matches") {
		t.Errorf("expected no-match response, got: %s", resultText)
	}
}

func TestServer_HandleTextSegments(t *testing.T) {
	srv := newTestServer(t, textDoc(), document.Options{})

	result, err := srv.handleTextSegments(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
		"page": float64(1),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "1 text segment(s)") {
		t.Errorf("expected one segment, got: %s", resultText)
	}
	if !strings.Contains(resultText, `"Hello World"`) {
		t.Errorf("expected segment text, got: %s", resultText)
	}
}

func TestServer_HandleCreateMarkup(t *testing.T) {
	doc := textDoc()
	srv := newTestServer(t, doc, document.Options{})

	result, err := srv.handleCreateMarkup(context.Background(), callRequest(map[string]interface{}{
		"path":    testDocPath,
		"page":    float64(1),
		"rects":   "0,10,5,0;5,10,10,0",
		"subtype": "underline",
		"color":   "#ff8000",
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "underline markup") {
		t.Errorf("expected markup confirmation, got: %s", resultText)
	}
	if !strings.Contains(resultText, "left=0.00 top=10.00 right=10.00 bottom=0.00") {
		t.Errorf("expected union bounds in response, got: %s", resultText)
	}

	if got := len(doc.Pages[0].Annots); got != 1 {
		t.Errorf("document has %d annotations, want 1", got)
	}
}

func TestServer_HandleCreateMarkup_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{
			name: "malformed rects",
			args: map[string]interface{}{
				"path": testDocPath, "page": float64(1), "rects": "1,2,3",
			},
		},
		{
			name: "empty rects",
			args: map[string]interface{}{
				"path": testDocPath, "page": float64(1), "rects": ";",
			},
		},
		{
			name: "bad color",
			args: map[string]interface{}{
				"path": testDocPath, "page": float64(1), "rects": "0,1,1,0", "color": "red",
			},
		},
		{
			name: "page before first",
			args: map[string]interface{}{
				"path": testDocPath, "page": float64(0), "rects": "0,1,1,0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, textDoc(), document.Options{})

			result, err := srv.handleCreateMarkup(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("handler failed: %v", err)
			}
			if !result.IsError {
				t.Errorf("expected error result, got: %s", extractTextFromResult(result))
			}
		})
	}
}

func TestServer_HandleFormWidgets(t *testing.T) {
	doc := textDoc()
	doc.Pages[0].Annots = []*enginetest.Annotation{
		{
			HasField: true,
			FType:    engine.FieldTypeCheckbox,
			Checked:  true,
			Rect:     engine.Rect{Left: 10, Top: 20, Right: 30, Bottom: 10},
		},
		{
			HasField: true,
			FType:    engine.FieldTypeText,
			Value:    "Jane Doe",
			Rect:     engine.Rect{Left: 10, Top: 50, Right: 90, Bottom: 40},
		},
	}
	srv := newTestServer(t, doc, document.Options{})

	result, err := srv.handleFormWidgets(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
		"page": float64(1),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "2 form widget(s)") {
		t.Errorf("expected two widgets, got: %s", resultText)
	}
	if !strings.Contains(resultText, "Checked: true") {
		t.Errorf("expected checkbox state, got: %s", resultText)
	}
	if !strings.Contains(resultText, `Value: "Jane Doe"`) {
		t.Errorf("expected text field value, got: %s", resultText)
	}
}

type stubOCR struct {
	text string
}

func (s *stubOCR) Name() string { return "stub" }

func (s *stubOCR) Recognize(_ context.Context, _ ocr.Image) (string, error) {
	return s.text, nil
}

func TestServer_HandleOCRPage(t *testing.T) {
	srv := newTestServer(t, textDoc(), document.Options{OCR: &stubOCR{text: "scanned words"}})

	result, err := srv.handleOCRPage(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
		"page": float64(1),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "scanned words") {
		t.Errorf("expected recognized text, got: %s", resultText)
	}
}

func TestServer_HandleOCRPage_NoProvider(t *testing.T) {
	srv := newTestServer(t, textDoc(), document.Options{})

	result, err := srv.handleOCRPage(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
		"page": float64(1),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !result.IsError {
		t.Errorf("expected error result without an OCR provider, got: %s", extractTextFromResult(result))
	}
}

func TestServer_HandleSaveDocument(t *testing.T) {
	doc := textDoc()
	srv := newTestServer(t, doc, document.Options{})

	output := "/tmp/copy.pdf"
	result, err := srv.handleSaveDocument(context.Background(), callRequest(map[string]interface{}{
		"path":   testDocPath,
		"output": output,
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	resultText := extractTextFromResult(result)
	if !strings.Contains(resultText, "Saved") {
		t.Errorf("expected save confirmation, got: %s", resultText)
	}
	if len(doc.SavedTo) != 1 || doc.SavedTo[0] != output {
		t.Errorf("document saved to %v, want [%s]", doc.SavedTo, output)
	}
}

func TestServer_HandleCloseDocument(t *testing.T) {
	doc := textDoc()
	srv := newTestServer(t, doc, document.Options{})

	// Open the document via another handler first.
	if _, err := srv.handlePageText(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
		"page": float64(1),
	})); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	result, err := srv.handleCloseDocument(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("close failed: %s", extractTextFromResult(result))
	}
	if !doc.Closed {
		t.Error("native document should be closed")
	}

	// Closing again must report that the document is not open.
	result, err = srv.handleCloseDocument(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for double close")
	}
}

func TestServer_HandleListDocuments(t *testing.T) {
	srv := newTestServer(t, textDoc(), document.Options{})

	result, err := srv.handleListDocuments(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if got := extractTextFromResult(result); !strings.Contains(got, "No documents") {
		t.Errorf("expected empty listing, got: %s", got)
	}

	if _, err := srv.handlePageText(context.Background(), callRequest(map[string]interface{}{
		"path": testDocPath,
		"page": float64(1),
	})); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	result, err = srv.handleListDocuments(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if got := extractTextFromResult(result); !strings.Contains(got, testDocPath) {
		t.Errorf("expected %s in listing, got: %s", testDocPath, got)
	}
}

func TestServer_HandleDocumentInfo_MissingFile(t *testing.T) {
	srv := newTestServer(t, textDoc(), document.Options{})

	result, err := srv.handleDocumentInfo(context.Background(), callRequest(map[string]interface{}{
		"path": "/non/existent/file.pdf",
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !result.IsError {
		t.Errorf("expected error result, got: %s", extractTextFromResult(result))
	}
}

func TestParseRects(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []engine.Rect
		wantErr bool
	}{
		{
			name: "single rectangle",
			in:   "0,10,5,0",
			want: []engine.Rect{{Left: 0, Top: 10, Right: 5, Bottom: 0}},
		},
		{
			name: "two rectangles with spaces",
			in:   "0,10,5,0; 5, 10, 10, 0",
			want: []engine.Rect{
				{Left: 0, Top: 10, Right: 5, Bottom: 0},
				{Left: 5, Top: 10, Right: 10, Bottom: 0},
			},
		},
		{
			name:    "too few numbers",
			in:      "1,2,3",
			wantErr: true,
		},
		{
			name:    "not a number",
			in:      "a,b,c,d",
			wantErr: true,
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRects(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rects, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("rect %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    document.Color
		wantErr bool
	}{
		{name: "plain", in: "ff8000", want: document.Color{R: 255, G: 128, B: 0}},
		{name: "leading hash", in: "#00ff00", want: document.Color{G: 255}},
		{name: "too short", in: "fff", wantErr: true},
		{name: "not hex", in: "zzzzzz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHexColor(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseHexColor(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	// Try to extract text content
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		// Handle pointer to TextContent as well
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}

	return ""
}
