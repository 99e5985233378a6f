package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// Supported reports whether Load can read the file extension
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".md", ".markdown", ".txt", ".text":
		return true
	}
	return false
}

// Load reads a document as text. PDFs are read page by page with a blank
// line between pages.
func Load(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".md", ".markdown", ".txt", ".text":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func loadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

var spaceRunRe = regexp.MustCompile(`[ \t]{2,}`)

// Clean drops NUL bytes, collapses runs of spaces and tabs, and trims the text.
// Newlines are kept because they carry block boundaries.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = spaceRunRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
