// Package bus carries inbound messages from provider adapters to the
// admission pipeline, and outbound replies back out to those adapters.
package bus

import "context"

// InboundMessage is one message arriving from a Provider Adapter, already
// normalized to the fields the admission pipeline needs.
type InboundMessage struct {
	Provider  string
	ChatID    string
	SenderID  string
	PeerKind  string // "direct" or "group"
	Content   string
	MessageID string
	Metadata  map[string]string
}

// OutboundMessage is a reply to deliver back through a Provider Adapter.
type OutboundMessage struct {
	Provider string
	ChatID   string
	Content  string
	MediaURL string
	Metadata map[string]string
}

// Bus is a pair of buffered message channels between provider adapters and
// the admission pipeline. New sets the buffer depth; the channels are never
// closed.
type Bus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a Bus with the given channel buffer depth.
func New(buffer int) *Bus {
	return &Bus{
		inbound:  make(chan InboundMessage, buffer),
		outbound: make(chan OutboundMessage, buffer),
	}
}

// PublishInbound enqueues a message for the admission pipeline. Blocks if
// the buffer is full; callers on provider goroutines should not hold locks
// across this call.
func (b *Bus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until a message is available or ctx is done. The
// second return is false when ctx was canceled.
func (b *Bus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a reply for delivery by its provider adapter.
func (b *Bus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// ConsumeOutbound blocks until a reply is available or ctx is done.
func (b *Bus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}
