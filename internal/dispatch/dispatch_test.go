package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newRecordingDispatcher(t *testing.T, opts Options) (*Dispatcher, *[]Payload) {
	t.Helper()
	var mu sync.Mutex
	var delivered []Payload

	base := opts.Deliver
	opts.Deliver = func(ctx context.Context, p Payload, kind Kind) error {
		mu.Lock()
		delivered = append(delivered, p)
		mu.Unlock()
		if base != nil {
			return base(ctx, p, kind)
		}
		return nil
	}

	d := New(context.Background(), opts)
	t.Cleanup(d.Stop)
	return d, &delivered
}

func TestDispatcher_DropsSilentReplyToken(t *testing.T) {
	d, delivered := newRecordingDispatcher(t, Options{})
	d.Enqueue(KindFinal, Payload{Text: SilentReplyToken + " -- nope"})
	d.WaitForIdle(context.Background())

	if len(*delivered) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(*delivered))
	}
	if counts := d.GetQueuedCounts(); counts[KindFinal] != 0 {
		t.Fatalf("queued final count = %d, want 0", counts[KindFinal])
	}
}

func TestDispatcher_DropsEmptyText(t *testing.T) {
	d, delivered := newRecordingDispatcher(t, Options{})
	d.Enqueue(KindTool, Payload{Text: "   "})
	d.WaitForIdle(context.Background())

	if len(*delivered) != 0 {
		t.Fatalf("expected no deliveries for blank text, got %d", len(*delivered))
	}
}

func TestDispatcher_HeartbeatStripAndPrefix(t *testing.T) {
	var stripped bool
	d, delivered := newRecordingDispatcher(t, Options{
		ResponsePrefix: "PFX",
		OnHeartbeatStrip: func() { stripped = true },
	})
	d.Enqueue(KindTool, Payload{Text: HeartbeatToken + " hello"})
	d.WaitForIdle(context.Background())

	if !stripped {
		t.Fatal("expected onHeartbeatStrip to fire")
	}
	if len(*delivered) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(*delivered))
	}
	if got := (*delivered)[0].Text; got != "PFX hello" {
		t.Fatalf("delivered text = %q, want %q", got, "PFX hello")
	}
}

func TestDispatcher_HeartbeatOnlyWithMediaDeliversEmptyText(t *testing.T) {
	d, delivered := newRecordingDispatcher(t, Options{})
	d.Enqueue(KindTool, Payload{Text: HeartbeatToken, MediaURL: "https://example.com/a.png"})
	d.WaitForIdle(context.Background())

	if len(*delivered) != 1 {
		t.Fatalf("expected one delivery when media is present, got %d", len(*delivered))
	}
	if (*delivered)[0].Text != "" {
		t.Fatalf("expected empty text, got %q", (*delivered)[0].Text)
	}
}

func TestDispatcher_PreservesEnqueueOrderAcrossKinds(t *testing.T) {
	var mu sync.Mutex
	var order []string

	d := New(context.Background(), Options{
		Deliver: func(ctx context.Context, p Payload, kind Kind) error {
			mu.Lock()
			order = append(order, p.Text)
			mu.Unlock()
			return nil
		},
	})
	t.Cleanup(d.Stop)

	d.Enqueue(KindTool, Payload{Text: "a"})
	d.Enqueue(KindBlock, Payload{Text: "b"})
	d.Enqueue(KindFinal, Payload{Text: "c"})
	d.WaitForIdle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDispatcher_DeliverErrorDoesNotStopQueue(t *testing.T) {
	var mu sync.Mutex
	var errs int
	var delivered []string

	d := New(context.Background(), Options{
		Deliver: func(ctx context.Context, p Payload, kind Kind) error {
			mu.Lock()
			delivered = append(delivered, p.Text)
			mu.Unlock()
			if p.Text == "boom" {
				return context.DeadlineExceeded
			}
			return nil
		},
		OnError: func(err error, kind Kind) {
			mu.Lock()
			errs++
			mu.Unlock()
		},
	})
	t.Cleanup(d.Stop)

	d.Enqueue(KindFinal, Payload{Text: "boom"})
	d.Enqueue(KindFinal, Payload{Text: "after"})
	d.WaitForIdle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if errs != 1 {
		t.Fatalf("errs = %d, want 1", errs)
	}
	if len(delivered) != 2 {
		t.Fatalf("expected both items delivered despite the error, got %v", delivered)
	}
}

func TestDispatcher_HumanDelayMaxLessThanMinSleepsExactlyMin(t *testing.T) {
	cfg := DelayConfig{Mode: DelayCustom, MinMs: 50, MaxMs: 10}
	min, max := cfg.bounds()
	if min != 50 || max != 50 {
		t.Fatalf("bounds = (%d, %d), want (50, 50)", min, max)
	}
}

func TestDispatcher_GetQueuedCountsTransitionsToZero(t *testing.T) {
	d, _ := newRecordingDispatcher(t, Options{})
	d.Enqueue(KindFinal, Payload{Text: "hi"})
	d.WaitForIdle(context.Background())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d.GetQueuedCounts()[KindFinal] == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected final queue count to reach 0")
}
