package dedup

import (
	"context"
	"testing"
	"time"
)

func TestShouldSkip_WithinTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	c := New(DefaultCapacity, 60*time.Second, clock)

	e := Entry{Provider: "whatsapp", OriginatingPeer: "+15555550123", MessageID: "msg-1"}

	if c.ShouldSkip(context.Background(), e) {
		t.Fatal("first sighting must not be skipped")
	}

	now = now.Add(10 * time.Second)
	if !c.ShouldSkip(context.Background(), e) {
		t.Fatal("repeat within TTL must be skipped")
	}
}

func TestShouldSkip_AfterTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	c := New(DefaultCapacity, 60*time.Second, clock)

	e := Entry{Provider: "telegram", OriginatingPeer: "123", MessageID: "abc"}

	if c.ShouldSkip(context.Background(), e) {
		t.Fatal("first sighting must not be skipped")
	}

	now = now.Add(61 * time.Second)
	if c.ShouldSkip(context.Background(), e) {
		t.Fatal("sighting after TTL must not be skipped")
	}
}

func TestShouldSkip_MissingMessageIDNeverSuppresses(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := New(DefaultCapacity, 60*time.Second, func() time.Time { return now })

	e := Entry{Provider: "signal", OriginatingPeer: "peer"}
	for i := 0; i < 3; i++ {
		if c.ShouldSkip(context.Background(), e) {
			t.Fatalf("iteration %d: missing messageId must never be suppressed", i)
		}
	}
}

func TestShouldSkip_DistinctSessionKeySeparateEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := New(DefaultCapacity, 60*time.Second, func() time.Time { return now })

	a := Entry{Provider: "discord", OriginatingPeer: "p", MessageID: "1", SessionKey: "agent:a:main"}
	b := Entry{Provider: "discord", OriginatingPeer: "p", MessageID: "1", SessionKey: "agent:a:other"}

	if c.ShouldSkip(context.Background(), a) {
		t.Fatal("first sighting of a must not be skipped")
	}
	if c.ShouldSkip(context.Background(), b) {
		t.Fatal("distinct session key must not be treated as a dup")
	}
}
