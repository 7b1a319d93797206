// Package channels holds the thin Provider Adapter boundary: provider-specific
// wire encoding stays external, but the gateway core still needs a concrete
// Go shape to admit messages from and deliver replies through.
package channels

import (
	"sync"
	"sync/atomic"

	"github.com/clawdbot/clawdbot/internal/bus"
)

// Channel is the contract every Provider Adapter satisfies: start listening,
// stop cleanly, and deliver one outbound reply.
type Channel interface {
	Name() string
	Start() error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// BaseChannel holds the policy/state plumbing common to every adapter:
// running flag, sender allow-list, and the bus it publishes inbound
// messages onto. Concrete adapters embed it.
type BaseChannel struct {
	name      string
	bus       *bus.Bus
	allowFrom map[string]bool

	running atomic.Bool
	mu      sync.RWMutex
}

// NewBaseChannel wires a BaseChannel to its bus and static allow-list.
// An empty allowFrom means "no allow-list restriction" (policy decides).
func NewBaseChannel(name string, msgBus *bus.Bus, allowFrom []string) *BaseChannel {
	set := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		set[id] = true
	}
	return &BaseChannel{name: name, bus: msgBus, allowFrom: set}
}

func (b *BaseChannel) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// SetName overrides the adapter's display name (e.g. a per-instance label).
func (b *BaseChannel) SetName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = name
}

func (b *BaseChannel) SetRunning(running bool) { b.running.Store(running) }
func (b *BaseChannel) IsRunning() bool         { return b.running.Load() }

// IsAllowed reports whether senderID may talk to the agent. An empty
// allow-list permits everyone; policy (CheckPolicy) layers on top.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	return b.allowFrom[senderID]
}

// CheckPolicy applies the configured dm/group admission mode. "open" admits
// anyone (subject to IsAllowed); "pairing" additionally requires the sender
// already be on the allow-list (i.e. has completed pairing).
func (b *BaseChannel) CheckPolicy(peerKind, dmPolicy, groupPolicy, senderID string) bool {
	policy := dmPolicy
	if peerKind == "group" {
		policy = groupPolicy
	}
	if policy == "pairing" {
		return len(b.allowFrom) > 0 && b.allowFrom[senderID]
	}
	return true
}

// HandleMessage publishes one inbound message onto the bus for the
// admission pipeline (Provider Adapter -> Inbound Dedup).
func (b *BaseChannel) HandleMessage(senderID, chatID, content, mediaURL string, metadata map[string]string, peerKind string) {
	msg := bus.InboundMessage{
		Provider:  b.Name(),
		ChatID:    chatID,
		SenderID:  senderID,
		PeerKind:  peerKind,
		Content:   content,
		MessageID: metadata["message_id"],
		Metadata:  metadata,
	}
	if mediaURL != "" {
		if msg.Metadata == nil {
			msg.Metadata = map[string]string{}
		}
		msg.Metadata["media_url"] = mediaURL
	}
	b.bus.PublishInbound(msg)
}

// Truncate shortens s to at most n runes, appending an ellipsis if cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
