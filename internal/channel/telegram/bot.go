// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const (
	StartText = "👋 Salom!\n\n" +
		"Men hujjatlar asosida savollaringizga javob beradigan AI assistentman.\n\n" +
		"🤖 Savolingizni yozing, men sizga yordam beraman."
	HelpText = "ℹ️ Yordam\n\n" +
		"Savolingizni oddiy matn ko'rinishida yuboring. Men faqat yuklangan hujjatlardagi " +
		"ma'lumotlar asosida javob beraman.\n\n" +
		"/start - botni ishga tushirish\n/help - yordam olish"
	ThrottledText = "🚫 Juda ko'p so'rov! Biroz kuting va qayta urinib ko'ring."
	TooShortText  = "❌ Savolingiz juda qisqa. Iltimos, batafsil yozing."
	NonTextText   = "📝 Iltimos, savolingizni matn ko'rinishida yuboring."

	DefaultPollTimeout = 30 * time.Second
	DefaultRatePerChat = 2.0

	// maxMessageLen is the Bot API limit on sendMessage text, in characters.
	maxMessageLen = 4096
	minQuestion   = 3
	retryDelay    = 3 * time.Second

	chatStaleAfter    = 10 * time.Minute
	chatSweepInterval = 5 * time.Minute
)

// Answerer produces the reply text for a question.
type Answerer interface {
	Answer(ctx context.Context, question string, threshold float64, k int) string
}

// BotConfig configures a Bot.
type BotConfig struct {
	Threshold   float64
	K           int
	PollTimeout time.Duration
	// RatePerChat is the sustained questions per second allowed per chat.
	RatePerChat float64
}

// Bot long-polls getUpdates and replies to each chat message.
type Bot struct {
	client   *Client
	answerer Answerer
	cfg      BotConfig

	mu        sync.Mutex
	limiters  map[int64]*chatLimiter
	lastSweep time.Time

	inflight sync.WaitGroup
}

// NewBot creates a Bot. Zero values in cfg select defaults.
func NewBot(client *Client, answerer Answerer, cfg BotConfig) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.RatePerChat <= 0 {
		cfg.RatePerChat = DefaultRatePerChat
	}
	return &Bot{
		client:   client,
		answerer: answerer,
		cfg:      cfg,
		limiters: make(map[int64]*chatLimiter),
	}
}

// Run polls until ctx is cancelled and then waits for in-flight replies.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return err
	}
	slog.Info("telegram bot started", "username", me.Username, "id", me.ID)

	defer b.inflight.Wait()

	var offset int64
	timeout := int(b.cfg.PollTimeout / time.Second)
	for {
		updates, err := b.client.GetUpdates(ctx, offset, timeout)
		if ctx.Err() != nil {
			slog.Info("telegram bot stopped")
			return nil
		}
		if err != nil {
			slog.Warn("telegram getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			msg := *u.Message
			b.inflight.Add(1)
			go func() {
				defer b.inflight.Done()
				b.Handle(ctx, msg)
			}()
		}
	}
}

// Handle replies to one message.
func (b *Bot) Handle(ctx context.Context, msg Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	var reply string
	switch {
	case text == "":
		reply = NonTextText
	case isCommand(text, "start"):
		reply = StartText
	case isCommand(text, "help"):
		reply = HelpText
	case !b.allow(chatID, time.Now()):
		reply = ThrottledText
	case utf8.RuneCountInString(text) < minQuestion:
		reply = TooShortText
	default:
		if err := b.client.SendChatAction(ctx, chatID, "typing"); err != nil {
			slog.Debug("telegram chat action failed", "chat_id", chatID, "error", err)
		}
		reply = b.answerer.Answer(ctx, text, b.cfg.Threshold, b.cfg.K)
	}

	for _, part := range SplitMessage(reply, maxMessageLen) {
		if err := b.client.SendMessage(ctx, chatID, part); err != nil {
			slog.Error("telegram reply failed", "chat_id", chatID, "error", err)
			return
		}
	}
}

type chatLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (b *Bot) allow(chatID int64, now time.Time) bool {
	b.mu.Lock()
	if now.Sub(b.lastSweep) >= chatSweepInterval {
		b.prune(now)
		b.lastSweep = now
	}
	c, ok := b.limiters[chatID]
	if !ok {
		c = &chatLimiter{limiter: rate.NewLimiter(rate.Limit(b.cfg.RatePerChat), 1)}
		b.limiters[chatID] = c
	}
	c.lastSeen = now
	b.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

// prune drops limiters of chats idle for longer than chatStaleAfter.
// Callers hold b.mu.
func (b *Bot) prune(now time.Time) {
	for id, c := range b.limiters {
		if now.Sub(c.lastSeen) > chatStaleAfter {
			delete(b.limiters, id)
		}
	}
}

// isCommand matches "/name" and "/name@botname" with optional arguments.
func isCommand(text, name string) bool {
	first, _, _ := strings.Cut(text, " ")
	first, _, _ = strings.Cut(first, "@")
	return strings.EqualFold(first, "/"+name)
}

// SplitMessage cuts text into parts of at most limit characters, preferring
// line breaks as cut points.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
