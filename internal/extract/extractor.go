// Package extract provides the reference content extractor used after sync
// to turn downloaded attachment bytes into plain text.
package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/k3a/html2text"
)

// Extraction method names recorded in the extraction cache.
const (
	MethodPlain    = "plain"
	MethodHTML     = "html2text"
	MethodMarkdown = "markdown"
	MethodPaged    = "paged"
)

// PageSeparator delimits per-page text in paged extractions, so the chunker
// can recover page numbers from position.
const PageSeparator = "\f"

// Extractor converts text-bearing attachment formats to plain text. PDFs
// come out page-delimited; binary formats it does not understand yield an
// empty result, which the sync engine treats as "nothing to extract", not
// as an error.
type Extractor struct{}

// New creates an extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the plain text of data together with the method used.
func (e *Extractor) Extract(_ context.Context, data []byte, contentType string) (string, string, error) {
	mediaType := contentType
	if i := strings.Index(mediaType, ";"); i != -1 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}

	switch mediaType {
	case "application/pdf":
		pages, err := pdfPages(data)
		if err != nil {
			return "", "", err
		}
		joined := strings.Join(pages, PageSeparator)
		if strings.TrimSpace(strings.ReplaceAll(joined, PageSeparator, " ")) == "" {
			return "", "", nil
		}
		return joined, MethodPaged, nil
	case "text/html", "application/xhtml+xml":
		return strings.TrimSpace(html2text.HTML2Text(string(data))), MethodHTML, nil
	case "text/markdown":
		return strings.TrimSpace(string(data)), MethodMarkdown, nil
	case "text/plain", "text/csv", "application/json":
		return strings.TrimSpace(string(data)), MethodPlain, nil
	}

	// Fall back to passthrough for anything that is valid UTF-8 text;
	// genuine binary formats are skipped.
	if strings.HasPrefix(mediaType, "text/") && utf8.Valid(data) {
		return strings.TrimSpace(string(data)), MethodPlain, nil
	}
	return "", "", nil
}
