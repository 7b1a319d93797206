// Package dispatch implements the Reply Dispatcher (C6): one ordered FIFO
// per surface/session pair, applying token filtering, prefixing, and
// human-paced delivery before calling back into the provider's send path.
package dispatch

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Kind discriminates the three queueable payload shapes.
type Kind string

const (
	KindTool  Kind = "tool"
	KindBlock Kind = "block"
	KindFinal Kind = "final"
)

// SilentReplyToken and HeartbeatToken mirror the Agent Runner's constants,
// duplicated here so this package has no dependency on internal/agent.
const (
	SilentReplyToken = "NO_REPLY"
	HeartbeatToken   = "HEARTBEAT_OK"
)

// Payload is one reply's content.
type Payload struct {
	Text     string
	MediaURL string
	Metadata map[string]string
}

// Task is one enqueued unit.
type Task struct {
	Kind         Kind
	Payload      Payload
	EnqueuedAtMs int64
	Attempts     int
}

// DelayMode selects the human-pacing strategy applied between block deliveries.
type DelayMode string

const (
	DelayOff     DelayMode = "off"
	DelayNatural DelayMode = "natural"
	DelayCustom  DelayMode = "custom"
)

// DelayConfig configures the human delay sampled before each block delivery
// after the first.
type DelayConfig struct {
	Mode     DelayMode
	MinMs    int
	MaxMs    int
}

func (d DelayConfig) bounds() (int, int) {
	switch d.Mode {
	case DelayNatural:
		return 800, 1600
	case DelayCustom:
		minMs, maxMs := d.MinMs, d.MaxMs
		if maxMs <= minMs {
			maxMs = minMs
		}
		return minMs, maxMs
	default:
		return 0, 0
	}
}

// DeliverFunc sends one payload to the surface. Non-nil error is treated as
// non-fatal: the dispatcher logs it via onError and continues.
type DeliverFunc func(ctx context.Context, p Payload, kind Kind) error

// Dispatcher is one FIFO reply queue for a single surface/session pair.
type Dispatcher struct {
	deliver        DeliverFunc
	onError        func(err error, kind Kind)
	onReplyStart   func()
	onHeartbeatStrip func()
	onIdle         func()
	responsePrefix string
	delay          DelayConfig
	rnd            *rand.Rand

	mu           sync.Mutex
	queue        []Task
	counts       map[Kind]int
	firstSent    bool
	prefixDone   bool
	idle         bool
	idleWaiters  []chan struct{}
	notify       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures a new Dispatcher.
type Options struct {
	Deliver          DeliverFunc
	OnError          func(err error, kind Kind)
	OnReplyStart     func()
	OnHeartbeatStrip func()
	OnIdle           func()
	ResponsePrefix   string
	Delay            DelayConfig
}

// New creates and starts a Dispatcher's delivery loop, bound to ctx. Cancel
// ctx to stop the loop and abort any in-flight human delay.
func New(ctx context.Context, opts Options) *Dispatcher {
	dctx, cancel := context.WithCancel(ctx)
	d := &Dispatcher{
		deliver:          opts.Deliver,
		onError:          opts.OnError,
		onReplyStart:     opts.OnReplyStart,
		onHeartbeatStrip: opts.OnHeartbeatStrip,
		onIdle:           opts.OnIdle,
		responsePrefix:   opts.ResponsePrefix,
		delay:            opts.Delay,
		rnd:              rand.New(rand.NewSource(time.Now().UnixNano())),
		counts:           map[Kind]int{KindTool: 0, KindBlock: 0, KindFinal: 0},
		idle:             true,
		notify:           make(chan struct{}, 1),
		ctx:              dctx,
		cancel:           cancel,
		done:             make(chan struct{}),
	}
	go d.loop()
	return d
}

// Enqueue appends a task to the FIFO queue, preserving cross-kind enqueue
// order.
func (d *Dispatcher) Enqueue(kind Kind, payload Payload) {
	d.mu.Lock()
	d.queue = append(d.queue, Task{Kind: kind, Payload: payload, EnqueuedAtMs: time.Now().UnixMilli()})
	d.counts[kind]++
	if d.idle {
		d.idle = false
	}
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// GetQueuedCounts reports the number of not-yet-processed tasks per kind.
func (d *Dispatcher) GetQueuedCounts() map[Kind]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[Kind]int, 3)
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}

// WaitForIdle blocks until the queue has fully drained, or ctx is done.
func (d *Dispatcher) WaitForIdle(ctx context.Context) {
	d.mu.Lock()
	if d.idle {
		d.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	d.idleWaiters = append(d.idleWaiters, ch)
	d.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// Stop cancels the dispatcher's context, aborting any in-flight delivery's
// pending human delay and halting the loop after the current item.
func (d *Dispatcher) Stop() {
	d.cancel()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		task, ok := d.pop()
		if !ok {
			select {
			case <-d.ctx.Done():
				return
			case <-d.notify:
				continue
			}
		}
		d.process(task)
	}
}

func (d *Dispatcher) pop() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return Task{}, false
	}
	t := d.queue[0]
	d.queue = d.queue[1:]
	return t, true
}

func (d *Dispatcher) finishItem(kind Kind) {
	d.mu.Lock()
	d.counts[kind]--
	becameIdle := len(d.queue) == 0 && !d.idle
	if becameIdle {
		d.idle = true
	}
	waiters := d.idleWaiters
	if becameIdle {
		d.idleWaiters = nil
	}
	d.mu.Unlock()

	if becameIdle {
		for _, w := range waiters {
			close(w)
		}
		if d.onIdle != nil {
			d.onIdle()
		}
	}
}

// process applies the transformation pipeline, then
// delivers or drops.
func (d *Dispatcher) process(task Task) {
	defer d.finishItem(task.Kind)

	text := task.Payload.Text
	hasMedia := task.Payload.MediaURL != ""

	// Step 1: exact SILENT_REPLY_TOKEN (optionally with "-- narration") and
	// no media => drop.
	if !hasMedia && isSilentReply(text) {
		return
	}

	// Step 2: empty/whitespace text and no media => drop.
	if !hasMedia && strings.TrimSpace(text) == "" {
		return
	}

	// Step 3: strip HEARTBEAT_TOKEN occurrences at edges.
	stripped := stripHeartbeatToken(text)
	if stripped != text && d.onHeartbeatStrip != nil {
		d.onHeartbeatStrip()
	}
	text = stripped
	if strings.TrimSpace(text) == "" {
		if !hasMedia {
			return
		}
		text = ""
	}

	// Step 4: response prefix, applied to the first non-empty outbound text.
	d.mu.Lock()
	if text != "" && !d.prefixDone {
		d.prefixDone = true
		if d.responsePrefix != "" && !strings.HasPrefix(text, d.responsePrefix) {
			text = d.responsePrefix + " " + text
		}
	}
	d.mu.Unlock()

	payload := Payload{Text: text, MediaURL: task.Payload.MediaURL, Metadata: task.Payload.Metadata}

	// Human delay: only for block kind, only after the first delivery.
	d.mu.Lock()
	needDelay := task.Kind == KindBlock && d.firstSent
	d.mu.Unlock()
	if needDelay {
		d.sleepHumanDelay()
		if d.ctx.Err() != nil {
			return
		}
	}

	if d.onReplyStart != nil {
		d.onReplyStart()
	}

	err := d.deliver(d.ctx, payload, task.Kind)

	d.mu.Lock()
	d.firstSent = true
	d.mu.Unlock()

	if err != nil && d.onError != nil {
		d.onError(err, task.Kind)
	}
}

func (d *Dispatcher) sleepHumanDelay() {
	minMs, maxMs := d.delay.bounds()
	if maxMs <= 0 {
		return
	}
	delta := minMs
	if maxMs > minMs {
		delta = minMs + d.rnd.Intn(maxMs-minMs+1)
	}
	timer := time.NewTimer(time.Duration(delta) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-d.ctx.Done():
	}
}

func isSilentReply(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == SilentReplyToken {
		return true
	}
	if idx := strings.Index(trimmed, "--"); idx > 0 {
		head := strings.TrimSpace(trimmed[:idx])
		return head == SilentReplyToken
	}
	return false
}

func stripHeartbeatToken(text string) string {
	s := strings.TrimSpace(text)
	for strings.HasPrefix(s, HeartbeatToken) {
		s = strings.TrimSpace(strings.TrimPrefix(s, HeartbeatToken))
	}
	for strings.HasSuffix(s, HeartbeatToken) {
		s = strings.TrimSpace(strings.TrimSuffix(s, HeartbeatToken))
	}
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
