// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := ragerr.New(
		ragerr.CodeIndexAddFailure,
		"embedding batch failed",
		ragerr.FieldCollection("documents"),
		ragerr.Field("batch", 3),
	)

	require.Error(t, err)
	assert.Equal(t, ragerr.CodeIndexAddFailure, ragerr.CodeOf(err))
	assert.True(t, ragerr.HasCode(err, ragerr.CodeIndexAddFailure))

	fields := ragerr.FieldsOf(err)
	assert.Equal(t, "documents", fields["collection"])
	assert.Equal(t, 3, fields["batch"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := ragerr.Errorf(ragerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, ragerr.CodeStoreDatabaseFailure, ragerr.CodeOf(err))
	assert.Contains(t, err.Error(), "write failed")
}

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := ragerr.Wrap(root, ragerr.CodeDocumentNotFound, "loading document",
		ragerr.FieldDocumentID("doc-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, ragerr.IsNotFound(err))
	assert.Equal(t, "doc-42", ragerr.FieldsOf(err)["document_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, ragerr.Wrap(nil, ragerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, ragerr.Wrapf(nil, ragerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, ragerr.With(nil, ragerr.FieldPath("x")))
	assert.NoError(t, ragerr.Join())
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := ragerr.New(ragerr.CodeExtractDecodeFailure, "bad bytes")
	withCtx := ragerr.With(base, ragerr.FieldPath("/tmp/a.txt"))

	require.Error(t, withCtx)
	assert.Equal(t, ragerr.CodeExtractDecodeFailure, ragerr.CodeOf(withCtx))
	assert.Equal(t, "/tmp/a.txt", ragerr.FieldsOf(withCtx)["path"])
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := ragerr.With(stderrors.New("something broke"), ragerr.FieldProvider("groq"))
	assert.Equal(t, ragerr.CodeServerInternalFailure, ragerr.CodeOf(enriched))
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := ragerr.New(ragerr.CodeStoreDatabaseFailure, "db")
	outer := ragerr.Wrap(inner, ragerr.CodeServerInternalFailure, "handler")
	assert.Equal(t, ragerr.CodeStoreDatabaseFailure, ragerr.CodeOf(outer))
	assert.Equal(t, ragerr.Code(""), ragerr.CodeOf(stderrors.New("plain")))
	assert.Equal(t, ragerr.Code(""), ragerr.CodeOf(nil))
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name       string
		code       ragerr.Code
		notFound   bool
		invalid    bool
		upstream   bool
		httpStatus int
	}{
		{"document not found", ragerr.CodeDocumentNotFound, true, false, false, http.StatusNotFound},
		{"index input invalid", ragerr.CodeIndexInputInvalid, false, true, false, http.StatusBadRequest},
		{"unsupported format", ragerr.CodeExtractFormatUnsupported, false, true, false, http.StatusBadRequest},
		{"config invalid value", ragerr.CodeConfigValidateInvalidValue, false, true, false, http.StatusBadRequest},
		{"provider upstream", ragerr.CodeProviderUpstreamFailure, false, false, true, http.StatusBadGateway},
		{"embed upstream", ragerr.CodeEmbedUpstreamFailure, false, false, true, http.StatusBadGateway},
		{"rate exceeded", ragerr.CodeServerRateExceeded, false, false, false, http.StatusTooManyRequests},
		{"database failure", ragerr.CodeStoreDatabaseFailure, false, false, false, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ragerr.New(tt.code, "boom")
			assert.Equal(t, tt.notFound, ragerr.IsNotFound(err))
			assert.Equal(t, tt.invalid, ragerr.IsInvalidInput(err))
			assert.Equal(t, tt.upstream, ragerr.IsUpstreamFailure(err))
			assert.Equal(t, tt.httpStatus, ragerr.HTTPStatus(err))
		})
	}
}

func TestJoinKeepsAllErrors(t *testing.T) {
	a := stderrors.New("a")
	b := stderrors.New("b")
	err := ragerr.Join(a, nil, b)

	require.Error(t, err)
	assert.ErrorIs(t, err, a)
	assert.ErrorIs(t, err, b)
	assert.Equal(t, ragerr.CodeServerInternalFailure, ragerr.CodeOf(err))
}
