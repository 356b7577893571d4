package ingest

import (
	"fmt"

	"github.com/ledongthuc/pdf"

	"dossier/internal/logging"
)

// loadPDF extracts one Page per PDF page. Number is the zero-based page
// index, so citations line up with the page a reader sees minus one.
// Blank pages are skipped but keep their index.
func loadPDF(path string) (pages []Page, err error) {
	// The reader panics on some malformed object graphs.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	name := DocumentName(path)
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			logging.IngestWarn("%s: page %d unreadable: %v", path, i-1, err)
			continue
		}
		if blank(text) {
			continue
		}
		pages = append(pages, Page{Document: name, Number: i - 1, Text: text})
	}
	logging.IngestDebug("%s: %d of %d pdf pages have text", path, len(pages), total)
	return pages, nil
}
