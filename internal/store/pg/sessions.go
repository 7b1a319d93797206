package pg

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clawdbot/clawdbot/internal/sessions"
)

// SessionStore is a Postgres-backed alternative to sessions.Store. It has
// GetOrCreate/Get/Update/Reset/List but no TranscriptPath, and nothing in
// the gateway constructs it: the gateway always uses sessions.Store.
type SessionStore struct {
	db  *sqlx.DB
	now func() time.Time

	mu sync.Mutex
}

// NewSessionStore wraps an already-migrated Postgres connection.
func NewSessionStore(db *sqlx.DB, now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{db: db, now: now}
}

func (s *SessionStore) GetOrCreate(key string) *sessions.Session {
	sess, ok := s.load(key)
	if ok {
		return sess
	}
	sess = &sessions.Session{ID: uuid.NewString(), UpdatedAtMs: s.now().UnixMilli()}
	_ = s.save(key, sess)
	return sess
}

func (s *SessionStore) Get(key string) (*sessions.Session, bool) {
	return s.load(key)
}

func (s *SessionStore) Update(key string, patch sessions.Patch) *sessions.Session {
	sess, ok := s.load(key)
	if !ok {
		sess = &sessions.Session{ID: uuid.NewString()}
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

	_ = s.save(key, sess)
	return sess
}

func (s *SessionStore) Reset(key string) *sessions.Session {
	sess := &sessions.Session{ID: uuid.NewString(), UpdatedAtMs: s.now().UnixMilli()}
	_ = s.save(key, sess)
	return sess
}

func (s *SessionStore) List() map[string]*sessions.Session {
	rows, err := s.db.Queryx(`SELECT session_key, data FROM sessions`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	out := make(map[string]*sessions.Session)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			continue
		}
		var sess sessions.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			continue
		}
		out[key] = &sess
	}
	return out
}

func (s *SessionStore) load(key string) (*sessions.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw []byte
	err := s.db.Get(&raw, `SELECT data FROM sessions WHERE session_key = $1`, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false
		}
		return nil, false
	}
	var sess sessions.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false
	}
	return &sess, true
}

func (s *SessionStore) save(key string, sess *sessions.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("pg: marshal session %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (session_key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key, data)
	return err
}
