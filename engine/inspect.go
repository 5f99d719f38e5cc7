package engine

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/ledongthuc/pdf"
)

// DocumentInfo describes an uploaded PDF without rendering it
type DocumentInfo struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Pages    int    `json:"pages"`
	Version  string `json:"version,omitempty"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Producer string `json:"producer,omitempty"`
}

var pdfHeader = regexp.MustCompile(`^%PDF-(\d+\.\d+)`)

// LooksLikePDF reports whether data starts with a PDF header
func LooksLikePDF(data []byte) bool {
	return pdfHeader.Match(data)
}

// Inspect reads what it can from the document structure.
// The renderer is the authority on whether a file converts; Inspect only
// fills in the file chip, so any error here is logged by the caller and ignored.
func Inspect(name string, data []byte) (info DocumentInfo, err error) {
	info = DocumentInfo{Name: name, Size: len(data)}
	if m := pdfHeader.FindSubmatch(data); m != nil {
		info.Version = string(m[1])
	}

	// the structural reader panics on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unable to read PDF structure: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return info, fmt.Errorf("unable to read PDF structure: %w", err)
	}
	info.Pages = reader.NumPage()

	meta := reader.Trailer().Key("Info")
	if !meta.IsNull() {
		info.Title = meta.Key("Title").Text()
		info.Author = meta.Key("Author").Text()
		info.Producer = meta.Key("Producer").Text()
	}
	return info, nil
}
