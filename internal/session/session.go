// Package session tracks in-flight onboarding flows, one per member.
// Sessions live in memory only and do not survive a restart.
package session

import (
	"strings"
	"sync"
	"time"
)

// GracePeriod is how long a finalized session stays around so duplicate
// confirm clicks are tolerated instead of rejected.
const GracePeriod = 5 * time.Minute

type Session struct {
	OwnerID   string
	OwnerName string
	ServerID  string
	ChannelID string

	// MessageID is the message currently displaying the flow.
	MessageID string

	// Page is 1 (choices) or 2 (info + confirm).
	Page int

	// Label is the categorical first answer; FreeText overrides it when
	// the member went through the "Other" branch.
	Label    string
	FreeText string

	// AwaitingText is set while the "Other" branch waits for the member's
	// next message in the flow channel.
	AwaitingText bool

	FinalizedAt time.Time
	ExpiresAt   time.Time
}

func (s *Session) Finalized() bool { return !s.FinalizedAt.IsZero() }

// FinalLabel is the value recorded in the counter store: the raw free
// text when present, else the categorical label.
func (s *Session) FinalLabel() string {
	if t := strings.TrimSpace(s.FreeText); t != "" {
		return t
	}
	return strings.TrimSpace(s.Label)
}

// Store is the session table. Implementations are keyed by owner id and
// own their entries: Get hands out a private copy and mutations only
// become visible through Put, so callers never share memory with the
// Purge sweep.
type Store interface {
	Get(ownerID string) (*Session, bool)
	Put(s *Session)
	Delete(ownerID string)
	Purge(now time.Time) int
}

// MemoryStore is the process-wide in-memory session table. Expired
// sessions are dropped lazily on Get and in bulk via Purge. Entries are
// copied on Get and Put; the map values are only ever touched under the
// mutex.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*Session{},
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(ownerID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[ownerID]
	if !ok {
		return nil, false
	}
	if !s.ExpiresAt.IsZero() && !m.now().Before(s.ExpiresAt) {
		delete(m.sessions, ownerID)
		return nil, false
	}
	cp := *s
	return &cp, true
}

func (m *MemoryStore) Put(s *Session) {
	if s == nil || strings.TrimSpace(s.OwnerID) == "" {
		return
	}
	cp := *s
	m.mu.Lock()
	m.sessions[cp.OwnerID] = &cp
	m.mu.Unlock()
}

func (m *MemoryStore) Delete(ownerID string) {
	m.mu.Lock()
	delete(m.sessions, ownerID)
	m.mu.Unlock()
}

// Purge removes every expired session and reports how many were dropped.
func (m *MemoryStore) Purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for id, s := range m.sessions {
		if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
