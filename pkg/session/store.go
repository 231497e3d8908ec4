package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/luna/internal/observability"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// record is the live conversation. Fields are guarded by mu; removed is set
// once the record has left the map and must not be written again.
type record struct {
	mu           sync.Mutex
	id           string
	key          Key
	history      []Turn
	createdAt    time.Time
	lastActiveAt time.Time
	removed      bool
}

func (r *record) snapshot() Session {
	history := make([]Turn, len(r.history))
	copy(history, r.history)
	return Session{
		ID:           r.id,
		Key:          r.key,
		History:      history,
		CreatedAt:    r.createdAt,
		LastActiveAt: r.lastActiveAt,
	}
}

// Store owns every conversation. Locks are taken map first, then record.
type Store struct {
	mu       sync.RWMutex
	records  map[Key]*record
	maxTurns int
	now      func() time.Time
	logger   zerolog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store.
func NewStore(cfg Config, opts ...Option) *Store {
	observability.EnsureRegistered()
	cfg = cfg.withDefaults()

	s := &Store{
		records:  make(map[Key]*record),
		maxTurns: cfg.MaxTurns,
		now:      time.Now,
		logger:   log.Logger.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxTurns returns the history cap.
func (s *Store) MaxTurns() int {
	return s.maxTurns
}

// acquire returns the live record for key with its lock held, creating it
// if needed. A record that was removed between lookup and lock is skipped.
func (s *Store) acquire(key Key) *record {
	for {
		rec := s.resolve(key)
		rec.mu.Lock()
		if !rec.removed {
			return rec
		}
		rec.mu.Unlock()
	}
}

func (s *Store) resolve(key Key) *record {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		return rec
	}

	id, err := gonanoid.New()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to generate session id")
	}
	now := s.now()
	rec = &record{
		id:           id,
		key:          key,
		createdAt:    now,
		lastActiveAt: now,
	}
	s.records[key] = rec
	observability.SetActiveSessions(len(s.records))

	s.logger.Debug().
		Str("conversation", key.String()).
		Str("session_id", id).
		Msg("Session created")

	return rec
}

// GetOrCreate returns the session for key, creating an empty one if absent.
// It refreshes LastActiveAt.
func (s *Store) GetOrCreate(key Key) Session {
	rec := s.acquire(key)
	defer rec.mu.Unlock()

	rec.lastActiveAt = s.now()
	return rec.snapshot()
}

// ErrInvalidRole is returned by Append for a role other than user or assistant.
var ErrInvalidRole = errors.New("invalid turn role")

// Append records a turn and trims history to the cap from the front.
func (s *Store) Append(key Key, role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	rec := s.acquire(key)
	defer rec.mu.Unlock()

	return s.appendLocked(rec, role, content), nil
}

// AppendExchange records a question and its answer under one lock, so a
// Clear or sweep can never land between the two turns.
func (s *Store) AppendExchange(key Key, question, answer string) {
	rec := s.acquire(key)
	defer rec.mu.Unlock()

	s.appendLocked(rec, RoleUser, question)
	s.appendLocked(rec, RoleAssistant, answer)
}

// appendLocked must be called with rec.mu held.
func (s *Store) appendLocked(rec *record, role Role, content string) Turn {
	now := s.now()
	turn := Turn{Role: role, Content: content, CreatedAt: now}
	rec.history = append(rec.history, turn)
	if over := len(rec.history) - s.maxTurns; over > 0 {
		trimmed := make([]Turn, s.maxTurns)
		copy(trimmed, rec.history[over:])
		rec.history = trimmed
	}
	rec.lastActiveAt = now

	observability.RecordSessionAppend(string(role))
	return turn
}

// Clear removes the session for key. It reports whether one existed.
func (s *Store) Clear(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return false
	}

	rec.mu.Lock()
	rec.removed = true
	rec.mu.Unlock()

	delete(s.records, key)
	observability.RecordSessionClear()
	observability.SetActiveSessions(len(s.records))

	s.logger.Debug().Str("conversation", key.String()).Msg("Session cleared")
	return true
}

// SweepExpired removes every session idle for longer than idle as of now.
// A session idle for exactly idle is kept.
func (s *Store) SweepExpired(idle time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		rec.mu.Lock()
		if now.Sub(rec.lastActiveAt) > idle {
			rec.removed = true
			delete(s.records, key)
			removed++
		}
		rec.mu.Unlock()
	}

	observability.RecordSweep(removed)
	observability.SetActiveSessions(len(s.records))
	return removed
}

// TurnCount is the number of turns held for key, 0 when absent. It neither
// creates nor refreshes the session.
func (s *Store) TurnCount(key Key) int {
	sess, ok := s.Lookup(key)
	if !ok {
		return 0
	}
	return len(sess.History)
}

// Exchanges is TurnCount halved.
func (s *Store) Exchanges(key Key) int {
	return s.TurnCount(key) / 2
}

// Lookup reads a session without creating or refreshing it.
func (s *Store) Lookup(key Key) (Session, bool) {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return Session{}, false
	}
	return rec.snapshot(), true
}

// Len is the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
