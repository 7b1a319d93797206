package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/clawdbot/clawdbot/internal/bus"
)

var (
	parseErrRe           = regexp.MustCompile(`(?i)can't parse entities|parse entities|find end of the entity`)
	messageNotModifiedRe = regexp.MustCompile(`(?i)message is not modified`)
)

// Send delivers an outbound message to a Telegram chat, converting markdown
// to Telegram's HTML subset and chunking to respect the message length cap.
func (c *Channel) Send(msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram: bot not running")
	}

	chatID, err := parseRawChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID: %w", err)
	}

	if msg.Content == "" && msg.MediaURL == "" {
		if pID, ok := c.placeholders.LoadAndDelete(msg.ChatID); ok {
			_ = c.deleteMessage(chatID, pID.(int))
		}
		return nil
	}

	if msg.MediaURL != "" {
		if pID, ok := c.placeholders.LoadAndDelete(msg.ChatID); ok {
			_ = c.deleteMessage(chatID, pID.(int))
		}
		return c.sendDocument(chatID, msg.MediaURL, msg.Content)
	}

	htmlContent := markdownToTelegramHTML(msg.Content)

	if pID, ok := c.placeholders.LoadAndDelete(msg.ChatID); ok {
		if len(htmlContent) <= telegramMaxMessageLen {
			if err := c.editMessage(chatID, pID.(int), htmlContent); err == nil {
				return nil
			}
		}
		_ = c.deleteMessage(chatID, pID.(int))
	}

	for _, chunk := range chunkHTML(htmlContent, telegramMaxMessageLen) {
		if err := c.sendHTML(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) sendHTML(chatID int64, html string) error {
	tgMsg := tu.Message(tu.ID(chatID), html)
	tgMsg.ParseMode = telego.ModeHTML

	if _, err := c.bot.SendMessage(context.Background(), tgMsg); err != nil {
		if parseErrRe.MatchString(err.Error()) {
			slog.Warn("telegram: HTML parse failed, falling back to plain text", "error", err)
			tgMsg.ParseMode = ""
			_, err = c.bot.SendMessage(context.Background(), tgMsg)
			return err
		}
		return err
	}
	return nil
}

func (c *Channel) sendDocument(chatID int64, url, caption string) error {
	params := &telego.SendDocumentParams{
		ChatID:   tu.ID(chatID),
		Document: telego.InputFile{URL: url},
		Caption:  caption,
	}
	_, err := c.bot.SendDocument(context.Background(), params)
	return err
}

func (c *Channel) editMessage(chatID int64, messageID int, htmlText string) error {
	editMsg := tu.EditMessageText(tu.ID(chatID), messageID, htmlText)
	editMsg.ParseMode = telego.ModeHTML

	_, err := c.bot.EditMessageText(context.Background(), editMsg)
	if err != nil && messageNotModifiedRe.MatchString(err.Error()) {
		return nil
	}
	return err
}

func (c *Channel) deleteMessage(chatID int64, messageID int) error {
	return c.bot.DeleteMessage(context.Background(), &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
}
