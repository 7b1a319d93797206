package sessions

import "testing"

func TestKey(t *testing.T) {
	if got := Key("agent-1", "main"); got != "agent:agent-1:main" {
		t.Fatalf("Key = %q", got)
	}
}

func TestBuildScopedSessionKey_PerSender(t *testing.T) {
	got := BuildScopedSessionKey("a", "whatsapp", PeerDirect, "+1555", ScopePerSender, "", "")
	want := "agent:a:whatsapp:+1555"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildScopedSessionKey_Global(t *testing.T) {
	got := BuildScopedSessionKey("a", "whatsapp", PeerDirect, "+1555", ScopeGlobal, "", "")
	want := "agent:a:global"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildScopedSessionKey_GlobalWithMainKeyOverride(t *testing.T) {
	got := BuildScopedSessionKey("a", "whatsapp", PeerDirect, "+1555", ScopeGlobal, "", "custom-main")
	want := "agent:a:custom-main"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildScopedSessionKey_DMScopeOverridesBaseScope(t *testing.T) {
	got := BuildScopedSessionKey("a", "whatsapp", PeerDirect, "+1555", ScopePerSender, ScopeGlobal, "")
	want := "agent:a:global"
	if got != want {
		t.Fatalf("dm-specific scope should override the base scope for direct peers, got %q want %q", got, want)
	}
}

func TestBuildScopedSessionKey_GroupPeerIgnoresDMScope(t *testing.T) {
	got := BuildScopedSessionKey("a", "discord", PeerGroup, "chan-1", ScopePerSender, ScopeGlobal, "")
	want := "agent:a:discord:chan-1"
	if got != want {
		t.Fatalf("group peers should not be affected by dmScope, got %q want %q", got, want)
	}
}

func TestBuildGroupTopicSessionKey(t *testing.T) {
	got := BuildGroupTopicSessionKey("a", "telegram", "chat-1", 42)
	want := "agent:a:telegram:chat-1#42"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIsMain(t *testing.T) {
	if !IsMain(MainKey("a"), "a") {
		t.Fatal("expected MainKey to satisfy IsMain")
	}
	if IsMain("agent:a:whatsapp:+1", "a") {
		t.Fatal("scoped key must not be treated as main")
	}
}
