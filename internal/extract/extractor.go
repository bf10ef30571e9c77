// Package extract pulls plain text out of build source documents.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lu4p/cat"
)

// Extractor turns a source file into the text the splitter consumes.
// Supported formats: txt/md/rst (and unknown extensions, treated as plain
// text), docx, pdf, odt, rtf, xlsx.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".odt", ".rtf":
		// cat works from a named file; no need to read it ourselves.
		text, err := cat.File(path)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", ext, err)
		}
		return strings.TrimSpace(text), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from in-memory content based on the given
// extension. ext includes the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractViaTempFile(content, ext)
	case ".xlsx":
		return extractExcel(content)
	default:
		// txt, md, rst, and anything unrecognized.
		return extractPlain(content)
	}
}

// extractViaTempFile spills content to a temp file carrying the right
// extension and hands it to cat, whose entry point is file based.
func extractViaTempFile(content []byte, ext string) (string, error) {
	f, err := os.CreateTemp("", "extract-*"+ext)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	name := f.Name()
	defer os.Remove(name)
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	text, err := cat.File(name)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	return strings.TrimSpace(text), nil
}

// Supported reports whether files with the given extension can be extracted
// into useful text. Unknown extensions fall back to plain text, so this is a
// filter for directory scans rather than a hard capability check.
func Supported(ext string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "txt", "md", "rst", "pdf", "docx", "odt", "rtf", "xlsx":
		return true
	}
	return false
}
