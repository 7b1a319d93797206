package sessions

import "fmt"

// PeerKind distinguishes a direct-message peer from a group peer when
// building a scoped session key.
type PeerKind string

const (
	PeerDirect PeerKind = "direct"
	PeerGroup  PeerKind = "group"
)

// Scope controls whether each sender gets its own session or all senders
// share one session key, configured via session.scope.
type Scope string

const (
	ScopePerSender Scope = "per-sender"
	ScopeGlobal    Scope = "global"
)

// Key returns the canonical SessionKey string: agent:<agentId>:<scopeKey>.
func Key(agentID, scopeKey string) string {
	return fmt.Sprintf("agent:%s:%s", agentID, scopeKey)
}

// MainKey returns the session key for an agent's main (non-scoped) conversation.
func MainKey(agentID string) string {
	return Key(agentID, "main")
}

// BuildScopedSessionKey builds a session key for an inbound message,
// honoring the configured scope (dmScope, when set, replaces scope for
// direct peers). scope=global collapses every sender on every provider into
// one session; scope=per-sender keys by provider+peer. mainKey, when set,
// replaces the "global" scope segment.
func BuildScopedSessionKey(agentID, provider string, kind PeerKind, peer string, scope Scope, dmScope Scope, mainKey string) string {
	effectiveScope := scope
	if kind == PeerDirect && dmScope != "" {
		effectiveScope = dmScope
	}

	if effectiveScope == ScopeGlobal {
		seg := "global"
		if mainKey != "" {
			seg = mainKey
		}
		return Key(agentID, seg)
	}

	return Key(agentID, fmt.Sprintf("%s:%s", provider, peer))
}

// BuildGroupTopicSessionKey isolates a forum/topic thread within a group
// chat into its own session so topic history does not bleed together.
func BuildGroupTopicSessionKey(agentID, provider, chatID string, topicID int) string {
	return Key(agentID, fmt.Sprintf("%s:%s#%d", provider, chatID, topicID))
}

// IsMain reports whether key is the agent's literal main session.
func IsMain(key, agentID string) bool {
	return key == MainKey(agentID)
}
