package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/smartbrief/core/internal/pkg/apperr"
	"github.com/smartbrief/core/internal/pkg/textutil"
	"go.uber.org/zap"
)

// Ingestor validates uploads and turns them into plain text.
type Ingestor struct {
	archiver Archiver
	logger   *zap.Logger
}

// NewIngestor returns an ingestor. archiver may be nil.
func NewIngestor(archiver Archiver, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{archiver: archiver, logger: logger}
}

// SupportedTypes returns the accepted formats.
func SupportedTypes() []FileType {
	return append([]FileType(nil), supportedTypes...)
}

// Validate checks presence, extension and per-type size ceiling.
func Validate(fileName string, size int64) (FileType, error) {
	if strings.TrimSpace(fileName) == "" {
		return FileType{}, apperr.Validation("No file uploaded")
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	ft, ok := lookup(ext)
	if !ok {
		exts := make([]string, len(supportedTypes))
		for i, t := range supportedTypes {
			exts[i] = t.Extension
		}
		return FileType{}, apperr.Validationf("Unsupported file type: %s. Supported types: %s", ext, strings.Join(exts, ", "))
	}
	if size > ft.MaxBytes {
		return FileType{}, apperr.Validationf("File size too large. Maximum size for %s files is %s", ext, ft.MaxSize)
	}
	return ft, nil
}

// Read validates fh and loads it into memory. The header's size is checked
// before any byte is read.
func Read(fh *multipart.FileHeader) (*Upload, error) {
	if fh == nil {
		return nil, apperr.Validation("No file uploaded")
	}
	ft, err := Validate(fh.Filename, fh.Size)
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Extraction("Failed to open uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, ft.MaxBytes+1))
	if err != nil {
		return nil, apperr.Extraction("Failed to read uploaded file", err)
	}
	if int64(len(data)) > ft.MaxBytes {
		return nil, apperr.Validationf("File size too large. Maximum size for %s files is %s", ft.Extension, ft.MaxSize)
	}
	return &Upload{
		FileName: fh.Filename,
		Size:     int64(len(data)),
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

// Extract decodes up and runs the summarization text rule on the result.
func (i *Ingestor) Extract(up *Upload) (*Extracted, error) {
	if up == nil {
		return nil, apperr.Validation("No file uploaded")
	}
	ft, err := Validate(up.FileName, up.Size)
	if err != nil {
		return nil, err
	}

	var text string
	switch ft.Extension {
	case ExtTXT:
		text, err = extractTXT(up.Data)
	case ExtDOCX:
		text, err = extractDOCX(up.Data)
	}
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	words, err := checkExtracted(text)
	if err != nil {
		return nil, err
	}

	mime := up.MimeType
	if mime == "" {
		mime = ft.MimeType
	}
	return &Extracted{
		Text: text,
		Metadata: Metadata{
			FileName:       up.FileName,
			FileSize:       up.Size,
			FileType:       mime,
			Extension:      ft.Extension,
			WordCount:      words,
			CharacterCount: textutil.CharCount(text),
		},
	}, nil
}

// Ingest extracts up and archives it when an archiver is configured.
// Archival failures are logged only.
func (i *Ingestor) Ingest(ctx context.Context, userID string, up *Upload) (*Extracted, error) {
	out, err := i.Extract(up)
	if err != nil {
		return nil, err
	}
	if i.archiver == nil {
		return out, nil
	}
	key, err := i.archiver.Archive(ctx, userID, up)
	if err != nil {
		i.logger.Warn("upload archive failed",
			zap.String("user_id", userID),
			zap.String("file", up.FileName),
			zap.Error(err),
		)
		return out, nil
	}
	out.Metadata.ArchiveKey = key
	return out, nil
}

func lookup(ext string) (FileType, bool) {
	for _, t := range supportedTypes {
		if t.Extension == ext {
			return t, true
		}
	}
	return FileType{}, false
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractTXT(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", apperr.Extraction("Failed to read TXT file: content is not valid UTF-8", nil)
	}
	return string(data), nil
}

func checkExtracted(text string) (int, error) {
	if text == "" {
		return 0, apperr.Validation("File appears to be empty")
	}
	if textutil.CharCount(text) > textutil.MaxTextChars {
		return 0, apperr.Validation("File content exceeds 50,000 characters limit")
	}
	words := textutil.CountWords(text)
	if words < textutil.MinTextWords {
		return 0, apperr.Validation(fmt.Sprintf("File must contain at least %d words for meaningful summarization", textutil.MinTextWords))
	}
	return words, nil
}

var (
	excessBreaks = regexp.MustCompile(`\n{3,}`)
	anySpace     = regexp.MustCompile(`\s+`)
)

// CleanText normalizes line endings and collapses all whitespace runs to a
// single space.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = excessBreaks.ReplaceAllString(text, "\n\n")
	text = anySpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
