// Package pairing owns the pending pairing codes and approved allow-list
// that gate which external principals may command an agent.
package pairing

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/clawdbot/clawdbot/internal/store"
)

const (
	codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	codeLength   = 6
	// DefaultExpiry matches codes expire after 10 minutes unless configured otherwise.
	DefaultExpiry = 10 * time.Minute
)

// Code is a pending pairing code.
type Code struct {
	Value      string `json:"code"`
	Provider   string `json:"provider"`
	Principal  string `json:"principal"`
	CreatedAtMs int64  `json:"createdAtMs"`
	ExpiresAtMs int64  `json:"expiresAtMs"`
	ApprovedBy  string `json:"approvedBy,omitempty"`
}

// AllowEntry is one authorized (provider, principal) pair.
type AllowEntry struct {
	Provider  string `json:"provider"`
	Principal string `json:"principal"`
}

type document struct {
	Pending      []Code            `json:"pending"`
	Allow        []AllowEntry      `json:"allow"`
	BridgeTokens map[string]string `json:"bridgeTokens,omitempty"`
}

// Clock is injected for deterministic expiry tests.
type Clock func() time.Time

// Store owns pairing.json: pending codes plus the approved allow-list.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
	now  Clock
	expiry time.Duration
}

// NewStore loads (or initializes) the pairing store at stateDir/pairing.json.
func NewStore(stateDir string, now Clock) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		path:   filepath.Join(stateDir, "pairing.json"),
		now:    now,
		expiry: DefaultExpiry,
	}
	store.ReadJSONOrEmpty(s.path, &s.doc)
	return s
}

// SetExpiry overrides the default 10-minute pairing code expiry.
func (s *Store) SetExpiry(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = d
}

// RequestCode creates a new pending pairing code for (provider, principal),
// retrying on collision against currently pending codes.
func (s *Store) RequestCode(provider, principal string) Code {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictExpiredLocked(now)

	var value string
	for {
		value = randomCode()
		if !s.codeExistsLocked(value) {
			break
		}
	}

	c := Code{
		Value:       value,
		Provider:    provider,
		Principal:   principal,
		CreatedAtMs: now.UnixMilli(),
		ExpiresAtMs: now.Add(s.expiry).UnixMilli(),
	}
	s.doc.Pending = append(s.doc.Pending, c)
	s.persistLocked()
	return c
}

// Approve moves a pending (provider, code) pair into the allow-list. It
// returns false if the code is unknown, expired, or the provider mismatches.
func (s *Store) Approve(provider, code, approvedBy string) (AllowEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictExpiredLocked(now)

	for i, p := range s.doc.Pending {
		if p.Provider != provider || p.Value != code {
			continue
		}
		entry := AllowEntry{Provider: p.Provider, Principal: p.Principal}
		s.doc.Allow = append(s.doc.Allow, entry)
		s.doc.Pending = append(s.doc.Pending[:i], s.doc.Pending[i+1:]...)
		s.persistLocked()
		return entry, true
	}
	return AllowEntry{}, false
}

// IsAuthorized reports whether (provider, principal) is on the allow-list.
func (s *Store) IsAuthorized(provider, principal string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.doc.Allow {
		if e.Provider == provider && e.Principal == principal {
			return true
		}
	}
	return false
}

// ReplyText renders the pairing reply sent back to an unpaired sender.
func ReplyText(idLine, provider, code string) string {
	return fmt.Sprintf(
		"Clawdbot: access not configured.\n\n%s\n\nPairing code: %s\n\nAsk the bot owner to approve with:\nclawdbot pairing approve %s %s\n",
		idLine, code, provider, code,
	)
}

// BridgeToken returns the bearer token issued for nodeId, if any.
func (s *Store) BridgeToken(nodeID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.doc.BridgeTokens[nodeID]
	return tok, ok
}

// SetBridgeToken records the bearer token approved for nodeId, normally
// called once an approver accepts a pairing code for that node.
func (s *Store) SetBridgeToken(nodeID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.BridgeTokens == nil {
		s.doc.BridgeTokens = make(map[string]string)
	}
	s.doc.BridgeTokens[nodeID] = token
	s.persistLocked()
}

func (s *Store) codeExistsLocked(value string) bool {
	for _, p := range s.doc.Pending {
		if p.Value == value {
			return true
		}
	}
	return false
}

func (s *Store) evictExpiredLocked(now time.Time) {
	kept := s.doc.Pending[:0]
	for _, p := range s.doc.Pending {
		if now.UnixMilli() < p.ExpiresAtMs {
			kept = append(kept, p)
		}
	}
	s.doc.Pending = kept
}

func (s *Store) persistLocked() {
	_ = store.WriteJSONAtomic(s.path, s.doc)
}

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
