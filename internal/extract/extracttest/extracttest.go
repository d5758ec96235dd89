// Package extracttest provides an in-memory Extractor for tests that do not
// need real PDF parsing.
package extracttest

import (
	"bytes"
	"context"
	"strings"

	"github.com/ziadkadry99/compliance-rag/internal/extract"
)

const header = "%PDF-1.4 extracttest\n"

// Document encodes pages so that Extractor returns them unchanged. The
// result passes extract.IsPDF when paired with a .pdf filename.
func Document(pages ...string) []byte {
	return []byte(header + strings.Join(pages, "\f"))
}

// Extractor decodes bytes produced by Document. Blank pages are skipped and
// a document without text fails with extract.ErrNoText, like the real
// extractor.
type Extractor struct {
	// Err, when set, is returned for every call.
	Err error
}

func (e Extractor) Extract(ctx context.Context, data []byte) ([]extract.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}
	if !bytes.HasPrefix(data, []byte(header)) {
		return nil, extract.ErrNoText
	}

	var pages []extract.Page
	for i, text := range strings.Split(string(data[len(header):]), "\f") {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, extract.Page{Number: i + 1, Text: text})
	}
	if len(pages) == 0 {
		return nil, extract.ErrNoText
	}
	return pages, nil
}
