package progress

import (
	"log"
	"sync"
	"time"

	"stride/internal/models"
)

// DefaultCacheTTL bounds staleness from checkin mutations made by other
// concurrent sessions, independent of the date-key check.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	habits     []models.HabitWithProgress
	dateKey    string
	computedAt time.Time
}

// Cache is a best-effort per-user snapshot cache of computed progress.
// It owns no canonical state: last write wins, and entries are only valid
// for the exact date-key they were computed for and within the TTL.
type Cache struct {
	mu      sync.RWMutex
	entries map[int]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[int]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached snapshot for userID if it was computed for
// dateKey and has not expired, else nil.
func (c *Cache) Get(userID int, dateKey string) []models.HabitWithProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[userID]
	if !ok || e.dateKey != dateKey {
		return nil
	}
	if c.now().Sub(e.computedAt) > c.ttl {
		return nil
	}
	return e.habits
}

// GetStale returns whatever snapshot exists for userID regardless of
// date-key or TTL. Callers use it only when the live computation path
// failed transiently, and the fallback is always logged so it is never
// silent.
func (c *Cache) GetStale(userID int) ([]models.HabitWithProgress, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[userID]
	if !ok {
		return nil, "", false
	}
	log.Printf("progress cache: serving stale snapshot for user %d (computed for %s at %s)",
		userID, e.dateKey, e.computedAt.Format(time.RFC3339))
	return e.habits, e.dateKey, true
}

func (c *Cache) Set(userID int, dateKey string, habits []models.HabitWithProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{
		habits:     habits,
		dateKey:    dateKey,
		computedAt: c.now(),
	}
}

func (c *Cache) Invalidate(userID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
