package store

import (
	"database/sql"
	"errors"
	"testing"

	"stride/internal/apperr"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	// Already-kinded errors pass through untouched
	kinded := apperr.New(apperr.Validation, "bad period")
	assert.Same(t, kinded, Classify(kinded))

	assert.Equal(t, apperr.NotFound, apperr.KindOf(Classify(sql.ErrNoRows)))
	assert.Equal(t, apperr.TransientStore, apperr.KindOf(Classify(sqlite3.Error{Code: sqlite3.ErrBusy})))
	assert.Equal(t, apperr.TransientStore, apperr.KindOf(Classify(sqlite3.Error{Code: sqlite3.ErrLocked})))
	assert.Equal(t, apperr.TransientStore, apperr.KindOf(Classify(sql.ErrConnDone)))
	assert.Equal(t, apperr.PermanentStore, apperr.KindOf(Classify(errors.New("UNIQUE constraint failed"))))
	assert.Equal(t, apperr.PermanentStore, apperr.KindOf(Classify(sqlite3.Error{Code: sqlite3.ErrConstraint})))
}

func TestDoRetriesTransientOnce(t *testing.T) {
	h := NewHandle(":memory:")
	defer h.Close()

	calls := 0
	err := h.Do(func(db *sql.DB) error {
		calls++
		if calls == 1 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoDoesNotRetryPermanent(t *testing.T) {
	h := NewHandle(":memory:")
	defer h.Close()

	calls := 0
	err := h.Do(func(db *sql.DB) error {
		calls++
		return errors.New("UNIQUE constraint failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, apperr.PermanentStore, apperr.KindOf(err))
}

func TestDoTransientFailsAfterRetry(t *testing.T) {
	h := NewHandle(":memory:")
	defer h.Close()

	calls := 0
	err := h.Do(func(db *sql.DB) error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls, "exactly one retry, never a loop")
	assert.True(t, apperr.IsTransient(err))
}

func TestResetReopens(t *testing.T) {
	h := NewHandle(":memory:")
	defer h.Close()

	db1, err := h.DB()
	require.NoError(t, err)

	h.Reset()

	db2, err := h.DB()
	require.NoError(t, err)
	assert.NotSame(t, db1, db2)
	require.NoError(t, db2.Ping())
}
