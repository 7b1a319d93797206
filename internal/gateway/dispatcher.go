package gateway

import (
	"context"

	"github.com/clawdbot/clawdbot/internal/bus"
	"github.com/clawdbot/clawdbot/internal/dispatch"
)

// dispatcherFor returns the Dispatcher for (provider, chatID), creating one
// lazily. Each pair gets its own FIFO so replies to different chats never
// block on each other.
func (gw *Gateway) dispatcherFor(ctx context.Context, provider, chatID string) *dispatch.Dispatcher {
	key := provider + "|" + chatID

	gw.dispatchMu.Lock()
	defer gw.dispatchMu.Unlock()

	if d, ok := gw.dispatchers[key]; ok {
		return d
	}

	d := dispatch.New(ctx, dispatch.Options{
		Deliver: func(_ context.Context, p dispatch.Payload, _ dispatch.Kind) error {
			gw.bus.PublishOutbound(bus.OutboundMessage{
				Provider: provider,
				ChatID:   chatID,
				Content:  p.Text,
				MediaURL: p.MediaURL,
				Metadata: p.Metadata,
			})
			return nil
		},
		OnError: func(err error, kind dispatch.Kind) {
			gw.log.Warn("dispatch delivery failed", "provider", provider, "chatId", chatID, "kind", kind, "err", err)
		},
	})
	gw.dispatchers[key] = d
	return d
}

// consumeOutbound reads replies queued by dispatchers (cron and heartbeat
// deliveries also go through dispatcherFor) and hands each to the channel
// named by its provider.
func (gw *Gateway) consumeOutbound(ctx context.Context) {
	for {
		msg, ok := gw.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		gw.channelsMu.RLock()
		ch, ok := gw.chs[msg.Provider]
		gw.channelsMu.RUnlock()
		if !ok {
			gw.log.Warn("outbound message for unknown channel", "provider", msg.Provider)
			continue
		}
		if err := ch.Send(msg); err != nil {
			gw.log.Warn("channel send failed", "provider", msg.Provider, "chatId", msg.ChatID, "err", err)
		}
	}
}
