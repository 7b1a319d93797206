package pairing

import (
	"strings"
	"testing"
	"time"
)

func TestStore_RequestThenApprove(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1_700_000_000, 0)
	s := NewStore(dir, func() time.Time { return now })

	code := s.RequestCode("telegram", "user-1")
	if code.Value == "" {
		t.Fatal("expected a non-empty code")
	}
	if s.IsAuthorized("telegram", "user-1") {
		t.Fatal("must not be authorized before approval")
	}

	entry, ok := s.Approve("telegram", code.Value, "owner")
	if !ok {
		t.Fatal("expected approval to succeed")
	}
	if entry.Principal != "user-1" {
		t.Fatalf("entry principal = %q, want user-1", entry.Principal)
	}
	if !s.IsAuthorized("telegram", "user-1") {
		t.Fatal("expected authorization after approval")
	}
}

func TestStore_ApproveUnknownCodeFails(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	if _, ok := s.Approve("telegram", "nosuch", "owner"); ok {
		t.Fatal("expected approval of an unknown code to fail")
	}
}

func TestStore_ApproveWrongProviderFails(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewStore(t.TempDir(), func() time.Time { return now })
	code := s.RequestCode("telegram", "user-1")

	if _, ok := s.Approve("discord", code.Value, "owner"); ok {
		t.Fatal("expected approval to require a matching provider")
	}
}

func TestStore_ExpiredCodeCannotBeApproved(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	s := NewStore(t.TempDir(), clock)
	s.SetExpiry(10 * time.Minute)

	code := s.RequestCode("telegram", "user-1")
	now = now.Add(11 * time.Minute)

	if _, ok := s.Approve("telegram", code.Value, "owner"); ok {
		t.Fatal("expected an expired code to be rejected")
	}
}

func TestStore_CodesAreUniqueAmongPending(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		c := s.RequestCode("telegram", "user")
		if seen[c.Value] {
			t.Fatalf("duplicate pending code %q", c.Value)
		}
		seen[c.Value] = true
	}
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	code := s.RequestCode("slack", "u1")
	s.Approve("slack", code.Value, "owner")

	reloaded := NewStore(dir, nil)
	if !reloaded.IsAuthorized("slack", "u1") {
		t.Fatal("expected allow-list to survive reload from disk")
	}
}

func TestReplyText_ContainsApproverCommand(t *testing.T) {
	got := ReplyText("from: +1555", "whatsapp", "ab12cd")
	want := "clawdbot pairing approve whatsapp ab12cd"
	if !strings.Contains(got, want) {
		t.Fatalf("reply text missing approver command:\n%s", got)
	}
}

func TestStore_BridgeTokenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	if _, ok := s.BridgeToken("node-1"); ok {
		t.Fatal("expected no token before one is set")
	}
	s.SetBridgeToken("node-1", "secret")

	reloaded := NewStore(dir, nil)
	tok, ok := reloaded.BridgeToken("node-1")
	if !ok || tok != "secret" {
		t.Fatalf("token = %q, %v; want secret, true", tok, ok)
	}
}
