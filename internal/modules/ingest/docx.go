package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/smartbrief/core/internal/pkg/apperr"
)

const (
	docxBodyPath = "word/document.xml"
	// Upper bound on the inflated document part.
	maxDocumentXML = 64 << 20
)

// extractDOCX returns the raw text of a Word document: runs joined, one
// blank line between paragraphs, formatting ignored.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.Extraction("Failed to read DOCX file: not a valid document archive", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPath {
			body = f
			break
		}
	}
	if body == nil {
		return "", apperr.Extraction("Failed to read DOCX file: missing "+docxBodyPath, nil)
	}

	rc, err := body.Open()
	if err != nil {
		return "", apperr.Extraction("Failed to read DOCX file", err)
	}
	defer rc.Close()

	text, err := documentText(io.LimitReader(rc, maxDocumentXML))
	if err != nil {
		return "", apperr.Extraction("Failed to read DOCX file: malformed document body", err)
	}
	return text, nil
}

func documentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out       strings.Builder
		para      strings.Builder
		inText    bool
		paragraph int
	)
	flush := func() {
		if paragraph > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(para.String())
		para.Reset()
		paragraph++
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	if para.Len() > 0 {
		flush()
	}
	return out.String(), nil
}
