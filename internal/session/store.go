// Package session tracks the conversation mode of each sender.
package session

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/dharsanguruparan/ReelDrop/internal/model"
)

type entry struct {
	mode     model.Mode
	lastSeen time.Time
}

// Store is bounded by capacity (least recently used sessions are evicted
// first) and forgets sessions idle for longer than the idle TTL. A forgotten
// session reads as model.ModeDefault.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// New constructs a Store. A zero idleTTL disables idle eviction.
func New(capacity int, idleTTL time.Duration) (*Store, error) {
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("init session cache: %w", err)
	}
	return &Store{cache: cache, ttl: idleTTL, now: time.Now}, nil
}

// Mode returns the session's mode and marks it as active.
func (s *Store) Mode(sessionID string) model.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(sessionID)
	if !ok {
		return model.ModeDefault
	}
	e := v.(entry)
	now := s.now()
	if s.ttl > 0 && now.Sub(e.lastSeen) > s.ttl {
		s.cache.Remove(sessionID)
		return model.ModeDefault
	}
	e.lastSeen = now
	s.cache.Add(sessionID, e)
	return e.mode
}

// SetMode records the mode for sessionID.
func (s *Store) SetMode(sessionID string, mode model.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(sessionID, entry{mode: mode, lastSeen: s.now()})
}

// Len is the number of tracked sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}
