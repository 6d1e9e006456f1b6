// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telegram

import (
	"context"
	"net/http"
)

// ValidateToken calls getMe to verify the bot token and returns the bot user.
func ValidateToken(ctx context.Context, client *http.Client, token string) (*User, error) {
	return ValidateTokenWithURL(ctx, client, DefaultBaseURL, token)
}

// ValidateTokenWithURL is ValidateToken against a different Bot API server.
func ValidateTokenWithURL(ctx context.Context, client *http.Client, baseURL, token string) (*User, error) {
	return NewClient(client, baseURL, token).GetMe(ctx)
}
