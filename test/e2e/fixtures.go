package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// FixtureExtensions lists the file types the build tests cover. PDF is
// left out: a hand-assembled xref table is too brittle to commit to,
// and the extractor's own tests cover that parser.
var FixtureExtensions = []string{".txt", ".md", ".rst", ".docx", ".odt", ".rtf", ".xlsx"}

// FixtureBytes renders text as a minimal file of the given type. The
// text must not contain XML or RTF metacharacters; plain sentences are
// safe for every format.
func FixtureBytes(ext, text string) ([]byte, error) {
	switch ext {
	case ".txt", ".md", ".rst":
		return []byte(text), nil
	case ".docx":
		return docxBytes(text)
	case ".odt":
		return odtBytes(text)
	case ".rtf":
		return []byte(`{\rtf1\ansi ` + text + `}`), nil
	case ".xlsx":
		return xlsxBytes(text)
	default:
		return nil, fmt.Errorf("no fixture builder for %q", ext)
	}
}

func docxBytes(text string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		return nil, err
	}
	body := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`
	if _, err := fw.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func odtBytes(text string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	mt, err := w.Create("mimetype")
	if err != nil {
		return nil, err
	}
	if _, err := mt.Write([]byte("application/vnd.oasis.opendocument.text")); err != nil {
		return nil, err
	}
	fw, err := w.Create("content.xml")
	if err != nil {
		return nil, err
	}
	body := `<?xml version="1.0" encoding="UTF-8"?><office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" office:version="1.2"><office:body><office:text><text:p>` + text + `</text:p></office:text></office:body></office:document-content>`
	if _, err := fw.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func xlsxBytes(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", text); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
