// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeExtractFormatUnsupported Code = "extract.format.unsupported"
	CodeExtractFileReadFailure   Code = "extract.file.read.failure"
	CodeExtractPDFParseFailure   Code = "extract.pdf.parse.failure"
	CodeExtractDecodeFailure     Code = "extract.decode.failure"

	CodeChunkConfigInvalid       Code = "chunk.config.invalid"
	CodeChunkDirectoryNotFound   Code = "chunk.directory.not_found"
	CodeChunkDirectoryWalkFailed Code = "chunk.directory.walk.failure"

	CodeEmbedConfigInvalid   Code = "embed.config.invalid"
	CodeEmbedUpstreamFailure Code = "embed.upstream.failure"
	CodeEmbedResponseInvalid Code = "embed.response.invalid"
	CodeEmbedBackendNotFound Code = "embed.backend.not_found"
	CodeEmbedRequestInvalid  Code = "embed.request.invalid"

	CodeIndexInputInvalid  Code = "index.input.invalid"
	CodeIndexAddFailure    Code = "index.add.failure"
	CodeIndexSearchFailure Code = "index.search.failure"
	CodeIndexUpdateFailure Code = "index.update.failure"
	CodeIndexDeleteFailure Code = "index.delete.failure"
	CodeIndexCountFailure  Code = "index.count.failure"
	CodeIndexResetFailure  Code = "index.reset.failure"
	CodeIndexPingFailure   Code = "index.ping.failure"

	CodeStoreEntityNotFound     Code = "store.entity.get.not_found"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreConflict           Code = "store.conflict"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeProviderRequestInvalid  Code = "provider.request.invalid"
	CodeProviderResponseInvalid Code = "provider.response.invalid"
	CodeProviderUpstreamFailure Code = "provider.upstream.failure"
	CodeProviderNotFound        Code = "provider.registry.not_found"
	CodeProviderAllUnavailable  Code = "provider.routing.all_unavailable"
	CodeProviderNoDefault       Code = "provider.routing.no_default"
	CodeProviderInvalidModelRef Code = "provider.routing.invalid_model_ref"
	CodeProviderKeyInvalid      Code = "provider.key.invalid"
	CodeProviderKeyCheckFailed  Code = "provider.key.check.failure"

	CodeRAGIngestNoChunks Code = "rag.ingest.no_chunks"
	CodeRAGIngestFailure  Code = "rag.ingest.failure"
	CodeRAGInputInvalid   Code = "rag.input.invalid"

	CodeDocumentNotFound     Code = "document.get.not_found"
	CodeDocumentInputInvalid Code = "document.input.invalid"
	CodeDocumentSyncFailure  Code = "document.sync.failure"
	CodeDocumentLaneClosed   Code = "document.lane.closed"
	CodeDocumentWatchFailure Code = "document.watch.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
	CodeServerRateExceeded    Code = "server.rate.exceeded"

	CodeChannelTokenInvalid    Code = "channel.telegram.token.invalid"
	CodeChannelUpstreamFailure Code = "channel.telegram.upstream.failure"

	CodeSecretInputInvalid  Code = "secret.input.invalid"
	CodeSecretStoreFailure  Code = "secret.store.failure"
	CodeSecretNotFound      Code = "secret.get.not_found"
	CodeSecretResolveFailed Code = "secret.resolve.failure"

	CodeCLIServerNotRunning Code = "cli.server.not_running"
	CodeCLIRequestFailure   Code = "cli.request.failure"
	CodeCLIResponseInvalid  Code = "cli.response.invalid"
	CodeCLISetupFailure     Code = "cli.setup.failure"
	CodeCLIInputInvalid     Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldDocumentID(value string) Attr {
	return Field("document_id", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldCollection(value string) Attr {
	return Field("collection", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain, keeping its code.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	switch reason(CodeOf(err)) {
	case "invalid", "invalid_input", "invalid_value", "invalid_format", "unsupported":
		return true
	default:
		return false
	}
}

func IsRateExceeded(err error) bool {
	return reason(CodeOf(err)) == "exceeded"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsRateExceeded(err):
		return http.StatusTooManyRequests
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
