package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateApplyAndConfirm(t *testing.T) {
	s := NewState()
	s.Load(map[int]int{1: 2})

	s.Apply(1, 1)
	assert.Equal(t, 3, s.Count(1))

	// The server may know about other devices; its count wins.
	s.Confirm(1, 5)
	assert.Equal(t, 5, s.Count(1))
}

func TestStateApplyClampsAtZero(t *testing.T) {
	s := NewState()

	cmd := s.Apply(1, -1)
	assert.Equal(t, 0, s.Count(1), "remove below zero is a no-op")

	// The clamped command recorded a zero delta, so rolling it back must
	// not disturb counts applied in between.
	s.Apply(1, 1)
	cmd.Rollback()
	assert.Equal(t, 1, s.Count(1))
}

func TestStateRollbackIdempotent(t *testing.T) {
	s := NewState()
	cmd := s.Apply(1, 1)
	assert.Equal(t, 1, s.Count(1))

	cmd.Rollback()
	cmd.Rollback()
	assert.Equal(t, 0, s.Count(1), "repeated rollback is a no-op")
}

func TestStateRollbackReversesOnlyOwnDelta(t *testing.T) {
	s := NewState()
	cmd1 := s.Apply(1, 1)
	s.Apply(1, 1)
	assert.Equal(t, 2, s.Count(1))

	cmd1.Rollback()
	assert.Equal(t, 1, s.Count(1), "rollback reverses its own delta, not the latest state")
}

func TestStateLoadReplacesSnapshot(t *testing.T) {
	s := NewState()
	s.Apply(1, 1)
	s.Apply(2, 1)

	s.Load(map[int]int{1: 7})
	assert.Equal(t, 7, s.Count(1))
	assert.Equal(t, 0, s.Count(2), "habits absent from the snapshot read as zero")
}
