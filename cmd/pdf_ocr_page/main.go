package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/a3tai/mcp-pdf-engine/internal/document"
	"github.com/a3tai/mcp-pdf-engine/internal/engine/pdfium"
	"github.com/a3tai/mcp-pdf-engine/internal/ocr"
)

var (
	page     = flag.Int("page", 1, "Page number to recognize, starting at 1")
	scale    = flag.Float64("scale", 2.0, "Rasterization scale before recognition")
	binary   = flag.String("binary", "tesseract", "Tesseract binary to run")
	language = flag.String("lang", "eng", "Tesseract language")
	timeout  = flag.Int("timeout", 120, "Recognition timeout in seconds")
	help     = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *help {
		printHelp()
		return
	}

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: PDF file path required\n\n")
		printUsage()
		os.Exit(1)
	}

	pdfPath, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stat(pdfPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found: %s\n", pdfPath)
		os.Exit(1)
	}
	if *page < 1 {
		fmt.Fprintf(os.Stderr, "Error: page must be 1 or greater\n")
		os.Exit(1)
	}

	text, err := recognizePage(pdfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(text)
}

func recognizePage(pdfPath string) (string, error) {
	eng, err := pdfium.Init()
	if err != nil {
		return "", fmt.Errorf("initializing PDF engine: %w", err)
	}

	h, err := document.Open(eng, pdfPath, document.Options{
		OCR: &ocr.Tesseract{
			Binary:   *binary,
			Language: *language,
			Timeout:  time.Duration(*timeout) * time.Second,
		},
	})
	if err != nil {
		return "", err
	}
	defer h.Close()

	if *page > h.PageCount() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", *page, h.PageCount())
	}

	return h.OCRPage(context.Background(), *page-1, *scale)
}

func printHelp() {
	fmt.Println("PDF OCR Page - Recognize the text of one PDF page with tesseract")
	fmt.Println()
	fmt.Println("The page is rasterized with the native PDF engine, encoded as PNG and")
	fmt.Println("piped to the tesseract binary on stdin. The recognized text is printed")
	fmt.Println("to stdout.")
	fmt.Println()
	printUsage()
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -page          Page number to recognize, starting at 1 (default 1)")
	fmt.Println("  -scale         Rasterization scale before recognition (default 2.0)")
	fmt.Println("  -binary        Tesseract binary to run (default tesseract)")
	fmt.Println("  -lang          Tesseract language (default eng)")
	fmt.Println("  -timeout       Recognition timeout in seconds (default 120)")
	fmt.Println("  -help          Show this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  pdf_ocr_page scan.pdf")
	fmt.Println("  pdf_ocr_page -page 3 -scale 3.0 scan.pdf")
	fmt.Println("  pdf_ocr_page -lang deu invoice.pdf")
}

func printUsage() {
	fmt.Println("USAGE:")
	fmt.Println("  pdf_ocr_page [OPTIONS] <pdf_file>")
}

func init() {
	// Custom flag usage
	flag.Usage = func() {
		printHelp()
	}
}
