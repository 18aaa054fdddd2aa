package mcp

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/a3tai/mcp-pdf-engine/internal/config"
	"github.com/a3tai/mcp-pdf-engine/internal/document"
	"github.com/a3tai/mcp-pdf-engine/internal/engine"
	"github.com/a3tai/mcp-pdf-engine/internal/imaging"
	"github.com/a3tai/mcp-pdf-engine/internal/pdf"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	registry  *document.Registry
	inspector *pdf.Inspector
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, registry *document.Registry, inspector *pdf.Inspector) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if inspector == nil {
		return nil, fmt.Errorf("inspector cannot be nil")
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
	)

	s := &Server{
		config:    cfg,
		registry:  registry,
		inspector: inspector,
		mcpServer: mcpServer,
	}

	// Register tools
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	documentInfoTool := mcp.NewTool(
		"pdf_document_info",
		mcp.WithDescription("Get page count, size and metadata of a PDF file"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	)
	s.mcpServer.AddTool(documentInfoTool, s.handleDocumentInfo)

	renderPageTool := mcp.NewTool(
		"pdf_render_page",
		mcp.WithDescription("Render one page of a PDF to a PNG image"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithNumber("page",
			mcp.Required(),
			mcp.Description("Page number, starting at 1"),
		),
		mcp.WithNumber("scale",
			mcp.Description("Scale factor applied to the page size in points (default 1.0)"),
		),
		mcp.WithString("mode",
			mcp.Description("Post-processing mode: plain, dark, composite or composite-dark"),
		),
		mcp.WithString("output",
			mcp.Required(),
			mcp.Description("Path the rendered PNG is written to"),
		),
	)
	s.mcpServer.AddTool(renderPageTool, s.handleRenderPage)

	pageTextTool := mcp.NewTool(
		"pdf_page_text",
		mcp.WithDescription("Extract the text content of one PDF page"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithNumber("page",
			mcp.Required(),
			mcp.Description("Page number, starting at 1"),
		),
	)
	s.mcpServer.AddTool(pageTextTool, s.handlePageText)

	searchPageTool := mcp.NewTool(
		"pdf_search_page",
		mcp.WithDescription("Search one PDF page for a term and return match rectangles in page coordinates"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithNumber("page",
			mcp.Required(),
			mcp.Description("Page number, starting at 1"),
		),
		mcp.WithString("term",
			mcp.Required(),
			mcp.Description("Text to search for (case-insensitive)"),
		),
	)
	s.mcpServer.AddTool(searchPageTool, s.handleSearchPage)

	textSegmentsTool := mcp.NewTool(
		"pdf_text_segments",
		mcp.WithDescription("List the positioned text runs of one PDF page"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithNumber("page",
			mcp.Required(),
			mcp.Description("Page number, starting at 1"),
		),
	)
	s.mcpServer.AddTool(textSegmentsTool, s.handleTextSegments)

	createMarkupTool := mcp.NewTool(
		"pdf_create_markup",
		mcp.WithDescription("Add a highlight, underline or strikeout annotation covering one or more rectangles"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithNumber("page",
			mcp.Required(),
			mcp.Description("Page number, starting at 1"),
		),
		mcp.WithString("rects",
			mcp.Required(),
			mcp.Description("Rectangles as 'left,top,right,bottom' in page coordinates, separated by ';'"),
		),
		mcp.WithString("subtype",
			mcp.Description("Markup kind: highlight (default), underline or strikeout"),
		),
		mcp.WithString("color",
			mcp.Description("Stroke color as hex RRGGBB (default ffff00)"),
		),
	)
	s.mcpServer.AddTool(createMarkupTool, s.handleCreateMarkup)

	formWidgetsTool := mcp.NewTool(
		"pdf_form_widgets",
		mcp.WithDescription("List the interactive form widgets of one PDF page with their values"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithNumber("page",
			mcp.Required(),
			mcp.Description("Page number, starting at 1"),
		),
	)
	s.mcpServer.AddTool(formWidgetsTool, s.handleFormWidgets)

	ocrPageTool := mcp.NewTool(
		"pdf_ocr_page",
		mcp.WithDescription("Recognize the text of one PDF page with OCR"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithNumber("page",
			mcp.Required(),
			mcp.Description("Page number, starting at 1"),
		),
		mcp.WithNumber("scale",
			mcp.Description("Rasterization scale before recognition (default 2.0)"),
		),
	)
	s.mcpServer.AddTool(ocrPageTool, s.handleOCRPage)

	saveDocumentTool := mcp.NewTool(
		"pdf_save_document",
		mcp.WithDescription("Save an open PDF document, including added annotations, to a new file"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the open PDF file"),
		),
		mcp.WithString("output",
			mcp.Required(),
			mcp.Description("Path the document copy is written to"),
		),
	)
	s.mcpServer.AddTool(saveDocumentTool, s.handleSaveDocument)

	closeDocumentTool := mcp.NewTool(
		"pdf_close_document",
		mcp.WithDescription("Close an open PDF document and release its native resources"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the open PDF file"),
		),
	)
	s.mcpServer.AddTool(closeDocumentTool, s.handleCloseDocument)

	listDocumentsTool := mcp.NewTool(
		"pdf_list_documents",
		mcp.WithDescription("List the PDF documents currently held open by the server"),
	)
	s.mcpServer.AddTool(listDocumentsTool, s.handleListDocuments)
}

// Handler functions
func (s *Server) handleDocumentInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := s.inspector.Inspect(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatDocumentInfo(info)), nil
}

func (s *Server) handleRenderPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	output, err := request.RequireString("output")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	pageIndex, err := pageIndexArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scale := floatArg(args, "scale", 1.0)
	mode := stringArg(args, "mode", "")

	h, err := s.registry.Get(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := h.RenderPage(pageIndex, scale, document.Mode(mode))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(res.Pixels) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Nothing rendered for page %d of %s (page out of range or scale not positive)",
			pageIndex+1, path)), nil
	}

	if err := writePNG(output, res); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Rendered page %d of %s\n", pageIndex+1, path)
	responseText += fmt.Sprintf("Image: %dx%d pixels\n", res.Width, res.Height)
	responseText += fmt.Sprintf("Written to: %s\n", output)

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handlePageText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pageIndex, err := pageIndexArg(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, err := s.registry.Get(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, err := h.PageText(pageIndex)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if text == "" {
		return mcp.NewToolResultText(fmt.Sprintf("No text on page %d of %s", pageIndex+1, path)), nil
	}

	responseText := fmt.Sprintf("Text of page %d of %s:\n\n", pageIndex+1, path)
	responseText += text

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleSearchPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	term, err := request.RequireString("term")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pageIndex, err := pageIndexArg(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, err := s.registry.Get(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	matches, err := h.Search(pageIndex, term)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(matches) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No matches for %q on page %d of %s", term, pageIndex+1, path)), nil
	}

	responseText := fmt.Sprintf("Found %d match(es) for %q on page %d of %s\n\n",
		len(matches), term, pageIndex+1, path)
	for i, m := range matches {
		responseText += fmt.Sprintf("%d. %s\n", i+1, formatRect(m))
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleTextSegments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pageIndex, err := pageIndexArg(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, err := s.registry.Get(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	segments, err := h.TextSegments(pageIndex)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(segments) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No text segments on page %d of %s", pageIndex+1, path)), nil
	}

	responseText := fmt.Sprintf("%d text segment(s) on page %d of %s\n\n",
		len(segments), pageIndex+1, path)
	for i, seg := range segments {
		responseText += fmt.Sprintf("%d. %q at %s\n", i+1, seg.Text, formatRect(seg.Bounds))
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleCreateMarkup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rectsArg, err := request.RequireString("rects")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	pageIndex, err := pageIndexArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	subtype := stringArg(args, "subtype", "highlight")

	rects, err := parseRects(rectsArg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	color, err := parseHexColor(stringArg(args, "color", "ffff00"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, err := s.registry.Get(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := h.CreateMarkup(pageIndex, rects, subtype, color); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Added %s markup on page %d of %s\n",
		document.ParseSubtype(subtype), pageIndex+1, path)
	responseText += fmt.Sprintf("Regions: %d\n", len(rects))
	responseText += fmt.Sprintf("Bounds: %s\n", formatRect(imaging.Union(rects)))
	if s.config.FlattenMarkup {
		responseText += "The page was flattened; the markup is now static page content.\n"
	} else {
		responseText += "Use pdf_save_document to persist the change.\n"
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleFormWidgets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pageIndex, err := pageIndexArg(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, err := s.registry.Get(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	widgets, err := h.FormWidgets(pageIndex)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(widgets) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No form widgets on page %d of %s", pageIndex+1, path)), nil
	}

	responseText := fmt.Sprintf("%d form widget(s) on page %d of %s\n\n",
		len(widgets), pageIndex+1, path)
	for i, w := range widgets {
		responseText += fmt.Sprintf("%d. %s (annotation #%d) at %s\n",
			i+1, w.FieldType, w.Index, formatRect(w.Bounds))
		switch w.FieldType {
		case engine.FieldTypeText:
			responseText += fmt.Sprintf("   Value: %q\n", w.Value)
		case engine.FieldTypeCheckbox, engine.FieldTypeRadio:
			responseText += fmt.Sprintf("   Checked: %t\n", w.Checked)
		}
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleOCRPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	pageIndex, err := pageIndexArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scale := floatArg(args, "scale", 2.0)

	h, err := s.registry.Get(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, err := h.OCRPage(ctx, pageIndex, scale)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("OCR result for page %d of %s:\n\n", pageIndex+1, path)
	responseText += text

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleSaveDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	output, err := request.RequireString("output")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, err := s.registry.Get(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := h.SaveAs(output); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Saved %s to %s", path, output)), nil
}

func (s *Server) handleCloseDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.registry.Close(path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Closed %s", path)), nil
}

func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := s.registry.Paths()
	if len(paths) == 0 {
		return mcp.NewToolResultText("No documents are currently open"), nil
	}

	responseText := fmt.Sprintf("%d open document(s):\n", len(paths))
	for i, p := range paths {
		responseText += fmt.Sprintf("%d. %s\n", i+1, p)
	}

	return mcp.NewToolResultText(responseText), nil
}

// Formatting methods
func (s *Server) formatDocumentInfo(info *pdf.DocumentInfo) string {
	text := "PDF Document Information\n"
	text += fmt.Sprintf("File: %s\n", info.Path)
	text += fmt.Sprintf("Size: %d bytes\n", info.Size)
	text += fmt.Sprintf("Pages: %d\n", info.Pages)
	text += fmt.Sprintf("Modified: %s\n", info.ModifiedDate)

	if info.Title != "" {
		text += fmt.Sprintf("Title: %s\n", info.Title)
	}
	if info.Author != "" {
		text += fmt.Sprintf("Author: %s\n", info.Author)
	}
	if info.Subject != "" {
		text += fmt.Sprintf("Subject: %s\n", info.Subject)
	}
	if info.Producer != "" {
		text += fmt.Sprintf("Producer: %s\n", info.Producer)
	}
	if info.CreatedDate != "" {
		text += fmt.Sprintf("Created: %s\n", info.CreatedDate)
	}

	return text
}

func formatRect(r engine.Rect) string {
	return fmt.Sprintf("left=%.2f top=%.2f right=%.2f bottom=%.2f", r.Left, r.Top, r.Right, r.Bottom)
}

// Argument helpers. MCP arguments arrive as JSON, so numbers are float64.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatArg(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

// pageIndexArg reads the required 1-based "page" argument and converts it to
// a 0-based page index.
func pageIndexArg(args map[string]any) (int, error) {
	v, ok := args["page"].(float64)
	if !ok {
		return 0, fmt.Errorf("required argument \"page\" not found")
	}
	page := int(v)
	if page < 1 {
		return 0, fmt.Errorf("page must be 1 or greater, got %d", page)
	}
	return page - 1, nil
}

// parseRects parses "left,top,right,bottom" rectangles separated by ';'.
func parseRects(arg string) ([]engine.Rect, error) {
	var rects []engine.Rect
	for _, part := range strings.Split(arg, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("rectangle %q must have four comma-separated numbers", part)
		}
		var vals [4]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("rectangle %q: %w", part, err)
			}
			vals[i] = v
		}
		rects = append(rects, engine.Rect{Left: vals[0], Top: vals[1], Right: vals[2], Bottom: vals[3]})
	}
	if len(rects) == 0 {
		return nil, fmt.Errorf("rects cannot be empty")
	}
	return rects, nil
}

// parseHexColor parses an RRGGBB color, with or without a leading '#'.
func parseHexColor(arg string) (document.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(arg), "#")
	if len(hex) != 6 {
		return document.Color{}, fmt.Errorf("color must be six hex digits, got %q", arg)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return document.Color{}, fmt.Errorf("invalid color %q: %w", arg, err)
	}
	return document.Color{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, nil
}

// writePNG converts a rendered page to RGBA and writes it as a PNG file.
func writePNG(path string, res *document.RenderResult) error {
	pixels := make([]byte, len(res.Pixels))
	copy(pixels, res.Pixels)
	imaging.SwapRedBlue(pixels)

	img := &image.RGBA{
		Pix:    pixels,
		Stride: res.Width * 4,
		Rect:   image.Rect(0, 0, res.Width, res.Height),
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting PDF engine MCP server in stdio mode")
		log.Printf("PDF directory: %s", s.config.PDFDirectory)
	}

	// Use the mark3labs/mcp-go server.ServeStdio function
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode runs the server in HTTP server mode
func (s *Server) runServerMode(ctx context.Context) error {
	// For now, we'll just use stdio mode since the mark3labs library
	// handles the transport differently
	log.Printf("Server mode not yet implemented with mark3labs/mcp-go")
	log.Printf("Falling back to stdio mode")
	return s.runStdioMode(ctx)
}
