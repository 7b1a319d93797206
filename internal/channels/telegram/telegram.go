// Package telegram is a thin Provider Adapter publishing Telegram messages
// onto the internal bus and delivering replies back via the Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"

	"github.com/clawdbot/clawdbot/internal/bus"
	"github.com/clawdbot/clawdbot/internal/channels"
	"github.com/clawdbot/clawdbot/internal/config"
)

const (
	telegramMaxMessageLen  = 4096
	telegramCaptionMaxLen  = 1024
)

// Channel connects to Telegram via long polling.
type Channel struct {
	*channels.BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig

	ctx    context.Context
	cancel context.CancelFunc

	placeholders sync.Map // chatID string -> messageID int
}

// New creates a Telegram channel from config.
func New(cfg config.TelegramConfig, msgBus *bus.Bus) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	base := channels.NewBaseChannel("telegram", msgBus, cfg.AllowFrom)
	return &Channel{BaseChannel: base, bot: bot, config: cfg}, nil
}

// Start begins long-polling for updates.
func (c *Channel) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel

	updates, err := c.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected")

	go func() {
		for update := range updates {
			if update.Message != nil {
				c.handleMessage(update.Message)
			}
		}
	}()
	return nil
}

// Stop cancels long polling.
func (c *Channel) Stop() error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Channel) handleMessage(m *telego.Message) {
	if m.From == nil || m.From.IsBot {
		return
	}

	senderID := strconv.FormatInt(m.From.ID, 10)
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	peerKind := "direct"
	if m.Chat.Type != "private" {
		peerKind = "group"
	}

	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, senderID) {
		slog.Debug("telegram message rejected by policy", "user_id", senderID, "peer_kind", peerKind)
		return
	}
	if !c.IsAllowed(senderID) {
		slog.Debug("telegram message rejected by allowlist", "user_id", senderID)
		return
	}

	content := strings.TrimSpace(m.Text)
	if content == "" {
		content = "[non-text message]"
	}
	if peerKind == "group" && m.From.Username != "" {
		content = fmt.Sprintf("[From: %s]\n%s", m.From.Username, content)
	}

	metadata := map[string]string{
		"message_id": strconv.Itoa(m.MessageID),
		"user_id":    senderID,
		"username":   m.From.Username,
		"chat_id":    chatID,
	}
	c.HandleMessage(senderID, chatID, content, "", metadata, peerKind)
}

func parseRawChatID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
