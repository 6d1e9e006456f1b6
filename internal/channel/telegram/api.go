// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package telegram is the Telegram Bot API front end: it long-polls for
// messages and answers them through the retrieval pipeline.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// User is the subset of the Bot API user object ragbot reads.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat identifies where a message was sent.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Update is one entry returned by getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// envelope wraps every Bot API response.
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// Client calls Bot API methods for one bot token.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

// GetMe returns the bot's own user record.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates after offset, waiting up to timeout seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"allowed_updates": []string{"message"},
	}, &updates)
	return updates, err
}

// SendMessage posts text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text}, nil)
}

// SendChatAction shows a status such as "typing" in the chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.call(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": action}, nil)
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	var body io.Reader
	httpMethod := http.MethodGet
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return ragerr.Wrapf(err, ragerr.CodeChannelUpstreamFailure, "encoding %s request", method)
		}
		body = bytes.NewReader(raw)
		httpMethod = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+"/bot"+c.token+"/"+method, body)
	if err != nil {
		return ragerr.Wrapf(err, ragerr.CodeChannelUpstreamFailure, "building %s request", method)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL embeds the token; report the method only.
		return ragerr.Errorf(ragerr.CodeChannelUpstreamFailure, "telegram %s request failed: %s", method, redact(err.Error(), c.token))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ragerr.Errorf(ragerr.CodeChannelTokenInvalid, "invalid Telegram bot token (HTTP %d)", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return ragerr.Errorf(ragerr.CodeChannelUpstreamFailure, "telegram %s: HTTP %d with unreadable body", method, resp.StatusCode)
	}
	if !env.OK {
		return ragerr.Errorf(ragerr.CodeChannelUpstreamFailure, "telegram %s failed (%d): %s", method, env.ErrorCode, env.Description)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return ragerr.Wrapf(err, ragerr.CodeChannelUpstreamFailure, "decoding %s result", method)
	}
	return nil
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<token>")
}
