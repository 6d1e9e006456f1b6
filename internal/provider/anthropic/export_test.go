// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/sigil-dev/ragbot/internal/provider"
)

// BuildParams exposes buildParams for white-box testing.
var BuildParams = func(req provider.CompletionRequest) (anthropicsdk.MessageNewParams, error) {
	return buildParams(req)
}
