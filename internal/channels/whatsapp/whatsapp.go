// Package whatsapp is a thin Provider Adapter publishing WhatsApp messages
// onto the internal bus and delivering replies back via whatsmeow's
// multi-device client. Pairing uses the same QR-code linking flow as the
// official WhatsApp clients; the device identity persists in Postgres
// across restarts.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/clawdbot/clawdbot/internal/bus"
	"github.com/clawdbot/clawdbot/internal/channels"
	"github.com/clawdbot/clawdbot/internal/config"
)

// Channel connects to WhatsApp via whatsmeow's multi-device protocol.
type Channel struct {
	*channels.BaseChannel
	client *whatsmeow.Client
	config config.WhatsAppConfig
}

// New creates a WhatsApp channel, opening (or initializing) its device
// store at cfg.SessionStoreDSN.
func New(ctx context.Context, cfg config.WhatsAppConfig, msgBus *bus.Bus) (*Channel, error) {
	if cfg.SessionStoreDSN == "" {
		return nil, fmt.Errorf("whatsapp: sessionStoreDsn is required")
	}

	dbLog := waLog.Stdout("whatsmeow/db", "WARN", true)
	container, err := sqlstore.New(ctx, "postgres", cfg.SessionStoreDSN, dbLog)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: load device: %w", err)
	}

	clientLog := waLog.Stdout("whatsmeow/client", "WARN", true)
	client := whatsmeow.NewClient(device, clientLog)

	base := channels.NewBaseChannel("whatsapp", msgBus, cfg.AllowFrom)
	return &Channel{BaseChannel: base, client: client, config: cfg}, nil
}

// Start connects the client, printing a pairing QR code to the console on
// the device's first ever run, and begins receiving events.
func (c *Channel) Start() error {
	c.client.AddEventHandler(c.handleEvent)

	if c.client.Store.ID == nil {
		qrChan, _ := c.client.GetQRChannel(context.Background())
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				printQR(evt.Code)
			} else {
				slog.Info("whatsapp pairing event", "event", evt.Event)
			}
		}
	} else {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
	}

	c.SetRunning(true)
	slog.Info("whatsapp client connected")
	return nil
}

// Stop disconnects the client.
func (c *Channel) Stop() error {
	c.SetRunning(false)
	c.client.Disconnect()
	return nil
}

func printQR(code string) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		slog.Error("whatsapp: render QR", "error", err)
		return
	}
	fmt.Fprintln(os.Stderr, "Scan this QR code with WhatsApp (Linked Devices):")
	fmt.Fprintln(os.Stderr, qr.ToSmallString(false))
}

func (c *Channel) handleEvent(evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok {
		return
	}
	c.handleMessage(msg)
}

func (c *Channel) handleMessage(m *events.Message) {
	if m.Info.IsFromMe {
		return
	}

	senderID := m.Info.Sender.User
	chatID := m.Info.Chat.String()
	peerKind := "direct"
	if m.Info.IsGroup {
		peerKind = "group"
	}

	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, senderID) {
		slog.Debug("whatsapp message rejected by policy", "user_id", senderID, "peer_kind", peerKind)
		return
	}
	if !c.IsAllowed(senderID) {
		slog.Debug("whatsapp message rejected by allowlist", "user_id", senderID)
		return
	}

	content := extractText(m.Message)
	if content == "" {
		content = "[non-text message]"
	}

	metadata := map[string]string{
		"message_id": m.Info.ID,
		"user_id":    senderID,
		"chat_id":    chatID,
	}
	c.HandleMessage(senderID, chatID, content, "", metadata, peerKind)
}

func extractText(msg *waProto.Message) string {
	if msg == nil {
		return ""
	}
	if msg.GetConversation() != "" {
		return msg.GetConversation()
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

// Send delivers an outbound message to a WhatsApp chat.
func (c *Channel) Send(msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("whatsapp: client not running")
	}

	jid, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("whatsapp: invalid chat ID %q: %w", msg.ChatID, err)
	}

	content := msg.Content
	if msg.MediaURL != "" {
		if content != "" {
			content += "\n"
		}
		content += msg.MediaURL
	}

	waMsg := &waProto.Message{
		Conversation: proto.String(content),
	}
	_, err = c.client.SendMessage(context.Background(), jid, waMsg)
	if err != nil {
		return fmt.Errorf("whatsapp: send message: %w", err)
	}
	return nil
}
