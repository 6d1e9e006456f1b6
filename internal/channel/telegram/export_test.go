// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telegram

import "time"

func (b *Bot) AllowAt(chatID int64, now time.Time) bool { return b.allow(chatID, now) }

func (b *Bot) TrackedChats() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.limiters)
}
