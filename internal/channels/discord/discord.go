// Package discord is a thin Provider Adapter publishing Discord messages
// onto the internal bus and delivering replies back via the Bot API.
package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/clawdbot/clawdbot/internal/bus"
	"github.com/clawdbot/clawdbot/internal/channels"
	"github.com/clawdbot/clawdbot/internal/config"
)

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session      *discordgo.Session
	config       config.DiscordConfig
	botUserID    string
	placeholders sync.Map // channelID string -> messageID string
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, msgBus *bus.Bus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	base := channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom)

	return &Channel{
		BaseChannel: base,
		session:     session,
		config:      cfg,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start() error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("discord: fetch bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop() error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel.
func (c *Channel) Send(msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord: bot not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("discord: empty chat ID")
	}

	content := msg.Content
	if msg.MediaURL != "" {
		if content != "" {
			content += "\n"
		}
		content += msg.MediaURL
	}

	if pID, ok := c.placeholders.Load(channelID); ok {
		c.placeholders.Delete(channelID)
		msgID := pID.(string)

		editContent := content
		if len(editContent) > 2000 {
			editContent = editContent[:1997] + "..."
		}
		if _, err := c.session.ChannelMessageEdit(channelID, msgID, editContent); err == nil {
			return nil
		}
		// fall through to send a new message if the edit fails
	}

	return c.sendChunked(channelID, content)
}

// sendChunked sends a message, splitting into multiple messages if over
// Discord's 2000-char limit.
func (c *Channel) sendChunked(channelID, content string) error {
	const maxLen = 2000

	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			cutAt := maxLen
			if idx := lastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
				cutAt = idx + 1
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}

		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("discord: send message: %w", err)
		}
	}
	return nil
}

// handleMessage processes incoming Discord messages, admitting them onto
// the bus subject to the configured DM/group policy.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	senderName := m.Author.Username
	channelID := m.ChannelID
	isDM := m.GuildID == ""

	peerKind := "group"
	if isDM {
		peerKind = "direct"
	}
	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, senderID) {
		slog.Debug("discord message rejected by policy", "user_id", senderID, "peer_kind", peerKind)
		return
	}
	if !c.IsAllowed(senderID) {
		slog.Debug("discord message rejected by allowlist", "user_id", senderID)
		return
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		content = "[empty message]"
	}

	slog.Debug("discord message received", "sender_id", senderID, "channel_id", channelID,
		"is_dm", isDM, "preview", channels.Truncate(content, 50))

	_ = c.session.ChannelTyping(channelID)

	placeholder, err := c.session.ChannelMessageSend(channelID, "Thinking...")
	if err == nil {
		c.placeholders.Store(channelID, placeholder.ID)
	}

	if peerKind == "group" && senderName != "" {
		content = fmt.Sprintf("[From: %s]\n%s", senderName, content)
	}

	metadata := map[string]string{
		"message_id": m.ID,
		"user_id":    senderID,
		"username":   senderName,
		"guild_id":   m.GuildID,
		"channel_id": channelID,
	}
	c.HandleMessage(senderID, channelID, content, "", metadata, peerKind)
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}
