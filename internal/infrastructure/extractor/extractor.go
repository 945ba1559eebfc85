package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

const (
	mimePDF  = "application/pdf"
	mimeDOC  = "application/msword"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeTXT  = "text/plain"
)

// Decompression limits. A small archive can inflate to gigabytes, so the
// document part and the text pulled from it are both capped.
var (
	maxDocumentXMLBytes int64 = 64 << 20
	maxTextBytes              = 16 << 20
)

// Extractor turns a stored document into plain text. Failures caused by the
// document itself are reported as invalid input so they are not retried.
type Extractor struct {
	storage  ports.ObjectStorage
	maxBytes int64
}

func New(storage ports.ObjectStorage, maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Extractor{storage: storage, maxBytes: maxBytes}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", invalid(fmt.Errorf("source document exceeds %d bytes", e.maxBytes))
	}

	return FromBytes(ctx, raw, doc.MimeType, doc.OriginalName)
}

// FromBytes extracts text from an in-memory payload.
func FromBytes(ctx context.Context, data []byte, mimeType, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch normalizeMimeType(mimeType, fileName) {
	case mimeTXT:
		text, err = extractText(data)
	case mimePDF:
		text, err = extractPDF(data)
	case mimeDOCX:
		text, err = extractDOCX(data)
	case mimeDOC:
		return "", invalid(errors.New("legacy .doc files cannot be read, convert to .docx"))
	default:
		return "", invalid(fmt.Errorf("unsupported media type %q", mimeType))
	}
	if err != nil {
		return "", invalid(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", invalid(errors.New("document contains no extractable text"))
	}
	return text, nil
}

func invalid(err error) error {
	return domain.WrapError(domain.ErrInvalidInput, "extract text", err)
}

func extractText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("text file is not valid UTF-8")
	}
	return string(data), nil
}

func extractPDF(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(plain, int64(maxTextBytes)+1))
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	if n > int64(maxTextBytes) {
		return "", fmt.Errorf("pdf text exceeds %d bytes", maxTextBytes)
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("docx has no word/document.xml")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return docxText(rc)
}

func docxText(r io.Reader) (string, error) {
	limited := &io.LimitedReader{R: r, N: maxDocumentXMLBytes + 1}
	decoder := xml.NewDecoder(limited)
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if limited.N <= 0 {
			return "", fmt.Errorf("docx document part exceeds %d bytes", maxDocumentXMLBytes)
		}
		if err != nil {
			return "", fmt.Errorf("parse docx xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if buf.Len()+len(t) > maxTextBytes {
				return "", fmt.Errorf("docx text exceeds %d bytes", maxTextBytes)
			}
			buf.Write(t)
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "br") && buf.Len() > 0 {
				buf.WriteString("\n")
			}
		}
	}
	return buf.String(), nil
}

func normalizeMimeType(mimeType, fileName string) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case mimePDF, mimeDOC, mimeDOCX, mimeTXT:
		return clean
	case "application/x-pdf":
		return mimePDF
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return mimePDF
	case ".doc":
		return mimeDOC
	case ".docx":
		return mimeDOCX
	case ".txt":
		return mimeTXT
	default:
		return clean
	}
}
