// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// PDF extracts the plain text of every page, one page per line block.
type PDF struct{}

var _ Extractor = PDF{}

// NewPDF creates a PDF extractor.
func NewPDF() PDF { return PDF{} }

// Extensions implements Extractor.
func (PDF) Extensions() []string { return []string{".pdf"} }

// Extract implements Extractor. Pages are joined with "\n".
func (PDF) Extract(ctx context.Context, path string) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = ragerr.New(ragerr.CodeExtractPDFParseFailure,
				fmt.Sprintf("parsing pdf: %v", r), ragerr.FieldPath(path))
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", ragerr.Wrap(err, ragerr.CodeExtractPDFParseFailure, "opening pdf", ragerr.FieldPath(path))
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}

		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", ragerr.Wrapf(err, ragerr.CodeExtractPDFParseFailure, "reading page %d of %s", i, path)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String()), nil
}
