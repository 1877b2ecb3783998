package queue

import "sync"

// State holds the client-visible per-habit progress counts that optimistic
// updates run against. Mutations go through explicit commands instead of
// closures over a mutable list, so a rollback always reverses exactly what
// was applied even if other commands landed in between.
type State struct {
	mu     sync.Mutex
	counts map[int]int
}

func NewState() *State {
	return &State{counts: make(map[int]int)}
}

// Load replaces the whole snapshot, e.g. after a reconciliation refresh.
func (s *State) Load(counts map[int]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[int]int, len(counts))
	for id, n := range counts {
		s.counts[id] = n
	}
}

// Count returns the currently displayed count for a habit.
func (s *State) Count(habitID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[habitID]
}

// Confirm replaces the optimistic count with the server-confirmed one.
// The server may know about mutations from other devices, so the local
// delta is never trusted as authoritative.
func (s *State) Confirm(habitID, serverCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[habitID] = serverCount
}

// Command records an optimistic delta that was actually applied to the
// state, clamped at zero. Rollback reverses that recorded delta — not the
// requested one — so a remove that clamped to no-op rolls back to no-op.
type Command struct {
	state   *State
	habitID int
	applied int
	once    sync.Once
}

// Apply adds delta to habitID's count, clamping at zero, and returns the
// command that undoes it.
func (s *State) Apply(habitID, delta int) *Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.counts[habitID]
	next := prev + delta
	if next < 0 {
		next = 0
	}
	s.counts[habitID] = next
	return &Command{state: s, habitID: habitID, applied: next - prev}
}

// Rollback undoes the applied delta. Safe to call at most-once semantics;
// repeated calls are no-ops.
func (c *Command) Rollback() {
	c.once.Do(func() {
		c.state.mu.Lock()
		defer c.state.mu.Unlock()
		next := c.state.counts[c.habitID] - c.applied
		if next < 0 {
			next = 0
		}
		c.state.counts[c.habitID] = next
	})
}
