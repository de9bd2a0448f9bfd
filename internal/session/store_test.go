package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ReelDrop/internal/model"
)

func TestStoreDefaultsAndUpdates(t *testing.T) {
	s, err := New(10, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, model.ModeDefault, s.Mode("a"))
	s.SetMode("a", model.ModeSearch)
	assert.Equal(t, model.ModeSearch, s.Mode("a"))
	assert.Equal(t, model.ModeDefault, s.Mode("b"))
}

func TestStoreIdleExpiry(t *testing.T) {
	s, err := New(10, time.Minute)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.SetMode("a", model.ModeSearch)
	now = now.Add(30 * time.Second)
	assert.Equal(t, model.ModeSearch, s.Mode("a"))

	// the read above refreshed lastSeen
	now = now.Add(50 * time.Second)
	assert.Equal(t, model.ModeSearch, s.Mode("a"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, model.ModeDefault, s.Mode("a"))
	assert.Zero(t, s.Len())
}

func TestStoreCapacity(t *testing.T) {
	s, err := New(2, 0)
	require.NoError(t, err)

	s.SetMode("a", model.ModeSearch)
	s.SetMode("b", model.ModeSearch)
	s.SetMode("c", model.ModeSearch)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, model.ModeDefault, s.Mode("a"))
	assert.Equal(t, model.ModeSearch, s.Mode("c"))
}
