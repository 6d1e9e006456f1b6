// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"github.com/sigil-dev/ragbot/internal/provider"
	"google.golang.org/genai"
)

// ConvertMessages exposes convertMessages for white-box testing.
var ConvertMessages = func(msgs []provider.Message) ([]*genai.Content, error) {
	return convertMessages(msgs)
}

// BuildConfig exposes buildConfig for white-box testing.
var BuildConfig = func(req provider.CompletionRequest) *genai.GenerateContentConfig {
	return buildConfig(req)
}
