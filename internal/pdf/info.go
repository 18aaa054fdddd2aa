package pdf

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DocumentInfo describes a PDF file on disk: size, page count, and the
// metadata recorded in its info dictionary.
type DocumentInfo struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	Pages        int    `json:"pages"`
	CreatedDate  string `json:"created_date,omitempty"`
	ModifiedDate string `json:"modified_date"`
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Producer     string `json:"producer,omitempty"`
}

// Inspector reads document-level information without the native engine.
type Inspector struct {
	validator *Validator
}

// NewInspector creates a new document inspector with the specified constraints
func NewInspector(maxFileSize int64) *Inspector {
	return &Inspector{
		validator: NewValidator(maxFileSize),
	}
}

// Inspect returns detailed information about a single PDF file
func (s *Inspector) Inspect(filePath string) (*DocumentInfo, error) {
	fileInfo, err := s.validator.statFile(filePath)
	if err != nil {
		return nil, err
	}

	if err := s.validator.ValidateFileInfo(filePath, fileInfo); err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	result := &DocumentInfo{
		Path:         filePath,
		Size:         fileInfo.Size(),
		Pages:        r.NumPage(),
		ModifiedDate: fileInfo.ModTime().Format("2006-01-02 15:04:05"),
	}

	s.extractMetadata(r, result)

	return result, nil
}

// extractMetadata safely extracts metadata from the PDF reader
func (s *Inspector) extractMetadata(r *pdf.Reader, result *DocumentInfo) {
	defer func() {
		// Recover from any panics during metadata extraction; metadata is
		// best effort and the basic stats already stand.
		_ = recover()
	}()

	trailer := r.Trailer()
	if trailer.IsNull() {
		return
	}

	info := trailer.Key("Info")
	if info.IsNull() {
		return
	}

	if title := info.Key("Title"); !title.IsNull() {
		result.Title = strings.TrimSpace(title.String())
	}

	if author := info.Key("Author"); !author.IsNull() {
		result.Author = strings.TrimSpace(author.String())
	}

	if subject := info.Key("Subject"); !subject.IsNull() {
		result.Subject = strings.TrimSpace(subject.String())
	}

	if producer := info.Key("Producer"); !producer.IsNull() {
		result.Producer = strings.TrimSpace(producer.String())
	}

	if creationDate := info.Key("CreationDate"); !creationDate.IsNull() {
		result.CreatedDate = strings.TrimSpace(creationDate.String())
	}
}
