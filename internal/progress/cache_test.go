package progress

import (
	"testing"
	"time"

	"stride/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() []models.HabitWithProgress {
	return []models.HabitWithProgress{
		{Habit: models.Habit{ID: 1, Name: "Water"}, CurrentProgress: 2, Streak: 4, CompletionRate: 67},
	}
}

func TestCacheHit(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set(1, "2026-01-07", sampleSnapshot())

	got := c.Get(1, "2026-01-07")
	require.NotNil(t, got)
	assert.Equal(t, 2, got[0].CurrentProgress)
}

func TestCacheDateKeyMismatch(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set(1, "2026-01-07", sampleSnapshot())

	// A snapshot computed for yesterday is worthless today even if the
	// TTL has not elapsed.
	assert.Nil(t, c.Get(1, "2026-01-08"))
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	current := time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set(1, "2026-01-07", sampleSnapshot())
	require.NotNil(t, c.Get(1, "2026-01-07"))

	current = current.Add(time.Minute + time.Second)
	assert.Nil(t, c.Get(1, "2026-01-07"), "expired entries are not served")
}

func TestCacheGetStaleIgnoresExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	current := time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }
	c.Set(1, "2026-01-07", sampleSnapshot())

	current = current.Add(time.Hour)

	habits, dateKey, ok := c.GetStale(1)
	require.True(t, ok)
	assert.Equal(t, "2026-01-07", dateKey)
	assert.Len(t, habits, 1)

	_, _, ok = c.GetStale(2)
	assert.False(t, ok, "no entry means no stale fallback")
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set(1, "2026-01-07", sampleSnapshot())
	c.Set(2, "2026-01-07", sampleSnapshot())

	c.Invalidate(1)

	assert.Nil(t, c.Get(1, "2026-01-07"))
	assert.NotNil(t, c.Get(2, "2026-01-07"), "invalidation is per user")
}

func TestCacheLastWriteWins(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set(1, "2026-01-07", sampleSnapshot())

	updated := sampleSnapshot()
	updated[0].CurrentProgress = 3
	c.Set(1, "2026-01-07", updated)

	got := c.Get(1, "2026-01-07")
	require.NotNil(t, got)
	assert.Equal(t, 3, got[0].CurrentProgress)
}
