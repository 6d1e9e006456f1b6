// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package extract

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text reads plain text files. Content that is not valid UTF-8 is decoded
// with the fallback encoding, Windows-1251 unless overridden.
type Text struct {
	Fallback encoding.Encoding
}

var _ Extractor = Text{}

// NewText creates a text extractor with the Windows-1251 fallback.
func NewText() Text { return Text{Fallback: charmap.Windows1251} }

// Extensions implements Extractor.
func (Text) Extensions() []string { return []string{".txt"} }

// Extract implements Extractor.
func (t Text) Extract(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", ragerr.Wrap(err, ragerr.CodeExtractFileReadFailure, "reading text file", ragerr.FieldPath(path))
	}

	text, err := t.Decode(raw)
	if err != nil {
		return "", ragerr.With(err, ragerr.FieldPath(path))
	}
	return text, nil
}

// Decode converts raw bytes to trimmed text, trying UTF-8 first.
func (t Text) Decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return strings.TrimSpace(string(raw)), nil
	}

	if t.Fallback == nil {
		return "", ragerr.New(ragerr.CodeExtractDecodeFailure, "content is not valid UTF-8")
	}

	decoded, err := t.Fallback.NewDecoder().Bytes(raw)
	if err != nil {
		return "", ragerr.Wrap(err, ragerr.CodeExtractDecodeFailure, "decoding with fallback encoding")
	}
	slog.Debug("decoded text with fallback encoding", "bytes", len(raw))
	return strings.TrimSpace(string(decoded)), nil
}
