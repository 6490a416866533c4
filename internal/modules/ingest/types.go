package ingest

import "context"

const (
	ExtTXT  = ".txt"
	ExtDOCX = ".docx"

	mb = 1 << 20
)

// FileType describes one accepted upload format.
type FileType struct {
	Extension   string `json:"extension"`
	MimeType    string `json:"mimeType"`
	DisplayName string `json:"displayName"`
	MaxSize     string `json:"maxSize"`
	MaxBytes    int64  `json:"maxBytes"`
}

var supportedTypes = []FileType{
	{
		Extension:   ExtTXT,
		MimeType:    "text/plain",
		DisplayName: "Plain Text File",
		MaxSize:     "5MB",
		MaxBytes:    5 * mb,
	},
	{
		Extension:   ExtDOCX,
		MimeType:    "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		DisplayName: "Microsoft Word Document",
		MaxSize:     "10MB",
		MaxBytes:    10 * mb,
	},
}

// Upload is a received file held in memory.
type Upload struct {
	FileName string
	Size     int64
	MimeType string
	Data     []byte
}

// Metadata accompanies extracted text.
type Metadata struct {
	FileName       string `json:"fileName"`
	FileSize       int64  `json:"fileSize"`
	FileType       string `json:"fileType"`
	Extension      string `json:"extension"`
	WordCount      int    `json:"wordCount"`
	CharacterCount int    `json:"characterCount"`
	ArchiveKey     string `json:"archiveKey,omitempty"`
}

// Extracted is the validated plain text of an upload.
type Extracted struct {
	Text     string   `json:"-"`
	Metadata Metadata `json:"metadata"`
}

// Archiver stores a copy of an accepted upload and returns its object key.
type Archiver interface {
	Archive(ctx context.Context, userID string, up *Upload) (string, error)
}
