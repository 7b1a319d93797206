// Package sessions owns the session-key -> session metadata mapping: token
// usage, model, thinking/verbose overrides, and transcript location.
package sessions

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clawdbot/clawdbot/internal/store"
)

// TokenUsage accumulates input/output/total token counts across a session.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// ModelRef names a resolved provider/model pair.
type ModelRef struct {
	Provider string `json:"provider"`
	ModelID  string `json:"modelId"`
}

// Session is the persisted metadata for one conversation.
type Session struct {
	ID               string     `json:"id"`
	UpdatedAtMs      int64      `json:"updatedAt"`
	ThinkingLevel    string     `json:"thinkingLevel,omitempty"`
	VerboseLevel     string     `json:"verboseLevel,omitempty"`
	ModelOverride    string     `json:"modelOverride,omitempty"`
	Cumulative       TokenUsage `json:"cumulative"`
	LastModel        ModelRef   `json:"lastModel"`
	ContextTokens    int64      `json:"contextTokens,omitempty"`
	CompactionCount  int        `json:"compactionCount,omitempty"`
	DisplayName      string     `json:"displayName,omitempty"`
}

// Patch describes a partial update to a Session. Zero-value fields are
// left untouched except for the explicit token-usage deltas, which are
// always additive.
type Patch struct {
	ThinkingLevel   *string
	VerboseLevel    *string
	ModelOverride   *string
	AddInputTokens  int64
	AddOutputTokens int64
	LastModel       *ModelRef
	ContextTokens   *int64
	CompactionCount *int
	DisplayName     *string
}

// Clock is injected for deterministic tests.
type Clock func() time.Time

// Store is the durable session-key -> Session map for one agent, backed by
// sessions.json under the agent's state directory with the shared atomic
// write discipline (tmp + rename + best-effort .bak).
type Store struct {
	mu      sync.Mutex
	path    string
	dir     string
	data    map[string]*Session
	now     Clock
}

// NewStore loads (or initializes empty) the session store rooted at
// stateDir/agents/<agentID>/sessions/sessions.json.
func NewStore(stateDir, agentID string, now Clock) *Store {
	if now == nil {
		now = time.Now
	}
	dir := filepath.Join(stateDir, "agents", agentID, "sessions")
	s := &Store{
		path: filepath.Join(dir, "sessions.json"),
		dir:  dir,
		data: make(map[string]*Session),
		now:  now,
	}
	var loaded map[string]*Session
	store.ReadJSONOrEmpty(s.path, &loaded)
	if loaded != nil {
		s.data = loaded
	}
	return s
}

// TranscriptPath returns the append-only transcript file for a session id.
func (s *Store) TranscriptPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}

// GetOrCreate returns the session for key, creating one with a fresh UUID
// if absent. Lock-protected so concurrent callers observe the same id.
func (s *Store) GetOrCreate(key string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[key]; ok {
		return cloneSession(existing)
	}

	sess := &Session{
		ID:          uuid.NewString(),
		UpdatedAtMs: s.now().UnixMilli(),
	}
	s.data[key] = sess
	s.persistLocked()
	return cloneSession(sess)
}

// Get returns the session for key without creating it.
func (s *Store) Get(key string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return cloneSession(sess), true
}

// Update merges patch into the session for key, bumping UpdatedAtMs and
// adding token deltas additively. Creates the session if absent.
func (s *Store) Update(key string, patch Patch) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.data[key]
	if !ok {
		sess = &Session{ID: uuid.NewString()}
		s.data[key] = sess
	}

	if patch.ThinkingLevel != nil {
		sess.ThinkingLevel = *patch.ThinkingLevel
	}
	if patch.VerboseLevel != nil {
		sess.VerboseLevel = *patch.VerboseLevel
	}
	if patch.ModelOverride != nil {
		sess.ModelOverride = *patch.ModelOverride
	}
	if patch.LastModel != nil {
		sess.LastModel = *patch.LastModel
	}
	if patch.ContextTokens != nil {
		sess.ContextTokens = *patch.ContextTokens
	}
	if patch.CompactionCount != nil {
		sess.CompactionCount = *patch.CompactionCount
	}
	if patch.DisplayName != nil {
		sess.DisplayName = *patch.DisplayName
	}

	sess.Cumulative.Input += patch.AddInputTokens
	sess.Cumulative.Output += patch.AddOutputTokens
	sess.Cumulative.Total += patch.AddInputTokens + patch.AddOutputTokens

	sess.UpdatedAtMs = s.now().UnixMilli()
	s.persistLocked()
	return cloneSession(sess)
}

// Reset allocates a new session id and zeroes counters, preserving the key.
func (s *Store) Reset(key string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		ID:          uuid.NewString(),
		UpdatedAtMs: s.now().UnixMilli(),
	}
	s.data[key] = sess
	s.persistLocked()
	return cloneSession(sess)
}

// List returns a shallow copy of every (key, session) pair, for the
// `sessions` CLI subcommand.
func (s *Store) List() map[string]*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Session, len(s.data))
	for k, v := range s.data {
		out[k] = cloneSession(v)
	}
	return out
}

func (s *Store) persistLocked() {
	_ = store.WriteJSONAtomic(s.path, s.data)
}

func cloneSession(s *Session) *Session {
	cp := *s
	return &cp
}
