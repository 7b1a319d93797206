package pg

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clawdbot/clawdbot/internal/pairing"
)

const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
const codeLength = 6

type pairingDocument struct {
	Pending      []pairing.Code    `json:"pending"`
	Allow        []pairing.AllowEntry `json:"allow"`
	BridgeTokens map[string]string `json:"bridgeTokens,omitempty"`
}

// PairingStore is the Postgres-backed alternative to pairing.Store. It
// keeps the same single-document shape (pending codes, allow-list, bridge
// tokens) as pairing.json, just persisted in one JSONB row.
type PairingStore struct {
	db     *sqlx.DB
	now    func() time.Time
	expiry time.Duration

	mu sync.Mutex
}

// NewPairingStore wraps an already-migrated Postgres connection.
func NewPairingStore(db *sqlx.DB, now func() time.Time) *PairingStore {
	if now == nil {
		now = time.Now
	}
	return &PairingStore{db: db, now: now, expiry: pairing.DefaultExpiry}
}

func (s *PairingStore) RequestCode(provider, principal string) pairing.Code {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.loadLocked()
	now := s.now()
	doc.Pending = evictExpired(doc.Pending, now)

	var value string
	for {
		value = randomCode()
		if !codeExists(doc.Pending, value) {
			break
		}
	}
	c := pairing.Code{
		Value:       value,
		Provider:    provider,
		Principal:   principal,
		CreatedAtMs: now.UnixMilli(),
		ExpiresAtMs: now.Add(s.expiry).UnixMilli(),
	}
	doc.Pending = append(doc.Pending, c)
	s.saveLocked(doc)
	return c
}

func (s *PairingStore) Approve(provider, code, approvedBy string) (pairing.AllowEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.loadLocked()
	doc.Pending = evictExpired(doc.Pending, s.now())

	for i, p := range doc.Pending {
		if p.Provider != provider || p.Value != code {
			continue
		}
		entry := pairing.AllowEntry{Provider: p.Provider, Principal: p.Principal}
		doc.Allow = append(doc.Allow, entry)
		doc.Pending = append(doc.Pending[:i], doc.Pending[i+1:]...)
		s.saveLocked(doc)
		return entry, true
	}
	return pairing.AllowEntry{}, false
}

func (s *PairingStore) IsAuthorized(provider, principal string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.loadLocked()
	for _, e := range doc.Allow {
		if e.Provider == provider && e.Principal == principal {
			return true
		}
	}
	return false
}

func (s *PairingStore) BridgeToken(nodeID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.loadLocked()
	tok, ok := doc.BridgeTokens[nodeID]
	return tok, ok
}

func (s *PairingStore) SetBridgeToken(nodeID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.loadLocked()
	if doc.BridgeTokens == nil {
		doc.BridgeTokens = make(map[string]string)
	}
	doc.BridgeTokens[nodeID] = token
	s.saveLocked(doc)
}

func (s *PairingStore) loadLocked() pairingDocument {
	var raw []byte
	err := s.db.Get(&raw, `SELECT data FROM pairing_state WHERE singleton = true`)
	if err != nil {
		return pairingDocument{}
	}
	var doc pairingDocument
	_ = json.Unmarshal(raw, &doc)
	return doc
}

func (s *PairingStore) saveLocked(doc pairingDocument) {
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(`
		INSERT INTO pairing_state (singleton, data, updated_at) VALUES (true, $1, now())
		ON CONFLICT (singleton) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		data)
}

func evictExpired(codes []pairing.Code, now time.Time) []pairing.Code {
	kept := codes[:0]
	for _, c := range codes {
		if now.UnixMilli() < c.ExpiresAtMs {
			kept = append(kept, c)
		}
	}
	return kept
}

func codeExists(codes []pairing.Code, value string) bool {
	for _, c := range codes {
		if c.Value == value {
			return true
		}
	}
	return false
}

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
