package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ReelDrop/internal/logging"
)

// DeleteFunc removes one object from the content store.
type DeleteFunc func(ctx context.Context, key string) error

type pendingExpiry struct {
	timer *time.Timer
	due   time.Time
}

// TimerScheduler keeps expiries in process. Pending work is lost on restart,
// so it is meant for single-instance deployments and tests.
type TimerScheduler struct {
	mu      sync.Mutex
	pending map[string]*pendingExpiry
	del     DeleteFunc
	timeout time.Duration
	log     zerolog.Logger
}

// NewTimerScheduler returns a scheduler that calls del when a key expires.
func NewTimerScheduler(del DeleteFunc, deleteTimeout time.Duration) *TimerScheduler {
	return &TimerScheduler{
		pending: make(map[string]*pendingExpiry),
		del:     del,
		timeout: deleteTimeout,
		log:     logging.Component("scheduler"),
	}
}

func (s *TimerScheduler) Schedule(_ context.Context, key string, after time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
	}
	entry := &pendingExpiry{due: time.Now().Add(after)}
	entry.timer = time.AfterFunc(after, func() { s.fire(key, entry) })
	s.pending[key] = entry
	return nil
}

func (s *TimerScheduler) fire(key string, entry *pendingExpiry) {
	s.mu.Lock()
	if s.pending[key] != entry {
		// rescheduled or cancelled while this callback was starting
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.del(ctx, key); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Artifact expiry failed")
		return
	}
	s.log.Info().Str("key", key).Msg("Artifact expired")
}

// Cancel stops the pending expiry for key.
func (s *TimerScheduler) Cancel(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.pending[key]; ok {
		cur.timer.Stop()
		delete(s.pending, key)
	}
	return nil
}

// Pending reports whether key still has an expiry waiting and when it is due.
func (s *TimerScheduler) Pending(_ context.Context, key string) (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.pending[key]
	if !ok {
		return false, time.Time{}, nil
	}
	return true, cur.due, nil
}

// Len is the number of pending expiries.
func (s *TimerScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops every pending timer without deleting anything.
func (s *TimerScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cur := range s.pending {
		cur.timer.Stop()
		delete(s.pending, key)
	}
	return nil
}
