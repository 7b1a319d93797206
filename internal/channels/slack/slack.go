// Package slack is a thin Provider Adapter publishing Slack messages onto
// the internal bus and delivering replies back via the Web API, driven by
// Socket Mode so no public webhook endpoint is required.
package slack

import (
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/clawdbot/clawdbot/internal/bus"
	"github.com/clawdbot/clawdbot/internal/channels"
	"github.com/clawdbot/clawdbot/internal/config"
)

// Channel connects to Slack over Socket Mode.
type Channel struct {
	*channels.BaseChannel
	api    *slack.Client
	client *socketmode.Client
	config config.SlackConfig
	botID  string
}

// New creates a Slack channel from config.
func New(cfg config.SlackConfig, msgBus *bus.Bus) (*Channel, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: botToken and appToken are required for socket mode")
	}
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	client := socketmode.New(api)
	base := channels.NewBaseChannel("slack", msgBus, cfg.AllowFrom)
	return &Channel{BaseChannel: base, api: api, client: client, config: cfg}, nil
}

// Start begins the Socket Mode event loop.
func (c *Channel) Start() error {
	auth, err := c.api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	c.botID = auth.UserID

	go c.run()
	go func() {
		if err := c.client.Run(); err != nil {
			slog.Error("slack: socket mode client stopped", "error", err)
		}
	}()

	c.SetRunning(true)
	slog.Info("slack bot connected", "user_id", c.botID, "team", auth.Team)
	return nil
}

// Stop ends the Socket Mode loop (the client itself exits when its context,
// owned by the caller's process lifetime, is canceled).
func (c *Channel) Stop() error {
	c.SetRunning(false)
	return nil
}

func (c *Channel) run() {
	for evt := range c.client.Events {
		switch evt.Type {
		case socketmode.EventTypeEventsAPI:
			payload, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			c.client.Ack(*evt.Request)
			if payload.Type == slackevents.CallbackEvent {
				c.handleInnerEvent(payload.InnerEvent)
			}
		}
	}
}

func (c *Channel) handleInnerEvent(inner slackevents.EventsAPIInnerEvent) {
	ev, ok := inner.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	if ev.User == "" || ev.User == c.botID || ev.BotID != "" {
		return
	}

	peerKind := "direct"
	if ev.ChannelType != "im" {
		peerKind = "group"
	}
	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, ev.User) {
		slog.Debug("slack message rejected by policy", "user_id", ev.User, "peer_kind", peerKind)
		return
	}
	if !c.IsAllowed(ev.User) {
		slog.Debug("slack message rejected by allowlist", "user_id", ev.User)
		return
	}

	content := ev.Text
	if content == "" {
		content = "[empty message]"
	}

	metadata := map[string]string{
		"message_id": ev.TimeStamp,
		"user_id":    ev.User,
		"channel_id": ev.Channel,
	}
	c.HandleMessage(ev.User, ev.Channel, content, "", metadata, peerKind)
}

// Send delivers an outbound message to a Slack channel/DM.
func (c *Channel) Send(msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("slack: bot not running")
	}
	content := msg.Content
	if msg.MediaURL != "" {
		if content != "" {
			content += "\n"
		}
		content += msg.MediaURL
	}
	_, _, err := c.api.PostMessage(msg.ChatID, slack.MsgOptionText(content, false))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}
