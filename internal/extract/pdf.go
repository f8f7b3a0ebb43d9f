package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"paperbot/internal/model"
)

// Page holds the extracted text of one PDF page. Number is 1-based, matching
// what a reader sees in a PDF viewer and what references render.
type Page struct {
	Number int
	Text   string
}

// ReadPDF extracts per-page plain text from the PDF at path. Pages that fail
// to decode individually are kept with empty text so page numbering stays
// aligned with the physical document; a document with no extractable text at
// all is an extraction error.
func ReadPDF(path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, &model.ExtractionError{Document: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	total := r.NumPage()
	if total <= 0 {
		return nil, &model.ExtractionError{Document: path, Err: fmt.Errorf("no pages")}
	}

	pages := make([]Page, 0, total)
	var extracted int
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// keep the slot so later pages keep their numbers
			pages = append(pages, Page{Number: i})
			continue
		}
		if strings.TrimSpace(text) != "" {
			extracted++
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	if extracted == 0 {
		return nil, &model.ExtractionError{Document: path, Err: fmt.Errorf("no extractable text in %d pages", total)}
	}
	return pages, nil
}
