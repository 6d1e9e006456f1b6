// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	openaisdk "github.com/openai/openai-go"
	"github.com/sigil-dev/ragbot/internal/provider"
)

// BuildParams exposes buildParams for white-box testing.
var BuildParams = func(req provider.CompletionRequest) (openaisdk.ChatCompletionNewParams, error) {
	return buildParams(req)
}
