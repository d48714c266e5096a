package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vinodismyname/sheetboard/config"
	"github.com/vinodismyname/sheetboard/internal/edit"
	"github.com/vinodismyname/sheetboard/internal/filter"
	"github.com/vinodismyname/sheetboard/internal/workbooks"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// Session is one client's dashboard state over a loaded workbook. All fields
// below mu are guarded by it; the workbook itself is shared and immutable.
type Session struct {
	ID        string
	CreatedAt time.Time

	// usedAt is the UnixNano of the last lookup, read or write.
	usedAt atomic.Int64

	mu        sync.Mutex
	entry     *workbooks.Entry
	sheet     string
	filters   filter.Spec
	edits     edit.State
	chart     ChartSpec
	updatedAt time.Time
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID        string      `json:"session_id"`
	Source    string      `json:"source"`
	Sheet     string      `json:"sheet"`
	Sheets    []string    `json:"sheets"`
	Filters   filter.Spec `json:"filters"`
	Edits     edit.State  `json:"edits"`
	Chart     ChartSpec   `json:"chart"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	entry *workbooks.Entry
}

// Snapshot copies the session state under its lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	ops := append([]edit.Op(nil), s.edits.Ops...)
	return Snapshot{
		ID:        s.ID,
		Source:    s.entry.Name,
		Sheet:     s.sheet,
		Sheets:    s.entry.Workbook.SheetNames(),
		Filters:   s.filters.Clone(),
		Edits:     edit.State{Enabled: s.edits.Enabled, Ops: ops},
		Chart:     s.chart,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.updatedAt,
		entry:     s.entry,
	}
}

func (s *Session) touch(now time.Time) { s.usedAt.Store(now.UnixNano()) }

func (s *Session) lastUsed() time.Time { return time.Unix(0, s.usedAt.Load()) }

// Store is an in-memory, concurrency-safe set of sessions. When full, the
// session used least recently is dropped to admit a new one.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	max      int
	ttl      time.Duration
	clock    func() time.Time
}

// NewStore builds a store holding at most max sessions that expire after ttl
// without use. Non-positive values fall back to config defaults.
func NewStore(max int, ttl time.Duration, clock func() time.Time) *Store {
	if max <= 0 {
		max = config.DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = config.DefaultSessionIdleTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &Store{sessions: make(map[string]*Session), max: max, ttl: ttl, clock: clock}
}

// Create registers a new session over entry, showing sheet with its default filters.
func (s *Store) Create(entry *workbooks.Entry, sheet string, filters filter.Spec) *Session {
	now := s.clock()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		entry:     entry,
		sheet:     sheet,
		filters:   filters,
		updatedAt: now,
	}
	sess.touch(now)
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.sessions) >= s.max {
		s.dropOldestLocked()
	}
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns the session with id or an error wrapping ErrSessionNotFound.
// Every lookup counts as use and defers idle eviction.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, dasherr.ErrSessionNotFound)
	}
	sess.touch(s.clock())
	return sess, nil
}

// Delete drops the session with id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %q: %w", id, dasherr.ErrSessionNotFound)
	}
	delete(s.sessions, id)
	return nil
}

// EvictIdle drops sessions not used within the TTL and returns how many were removed.
func (s *Store) EvictIdle() int {
	cutoff := s.clock().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.lastUsed().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) dropOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, sess := range s.sessions {
		if t := sess.lastUsed(); oldestID == "" || t.Before(oldest) {
			oldestID, oldest = id, t
		}
	}
	delete(s.sessions, oldestID)
}
