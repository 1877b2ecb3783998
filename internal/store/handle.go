package store

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"sync"

	"stride/internal/apperr"
	"stride/internal/database"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Handle owns the process-scoped database connection. It is lazily opened
// and can be explicitly Reset after a transient failure, instead of keeping
// a module-level *sql.DB that nothing can reinitialize.
type Handle struct {
	mu   sync.Mutex
	path string
	db   *sql.DB
}

func NewHandle(path string) *Handle {
	return &Handle{path: path}
}

// DB returns the open connection, opening it on first use.
func (h *Handle) DB() (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dbLocked()
}

func (h *Handle) dbLocked() (*sql.DB, error) {
	if h.db != nil {
		return h.db, nil
	}
	db, err := database.Initialize(h.path)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransientStore, "open database", err)
	}
	h.db = db
	return h.db, nil
}

// Reset closes the current connection so the next DB call reopens it.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db != nil {
		h.db.Close()
		h.db = nil
	}
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// Do runs fn against the handle's connection. A transient failure resets
// the handle and retries exactly once; every other failure propagates
// unchanged so callers can decide by kind.
func (h *Handle) Do(fn func(db *sql.DB) error) error {
	db, err := h.DB()
	if err == nil {
		err = fn(db)
	}
	if err == nil || !apperr.IsTransient(Classify(err)) {
		return Classify(err)
	}

	h.Reset()
	db, rerr := h.DB()
	if rerr != nil {
		return rerr
	}
	return Classify(fn(db))
}

// Classify folds raw driver errors into the apperr taxonomy. Errors that
// already carry a kind pass through untouched; sql.ErrNoRows is a NotFound
// for the row the caller asked about.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, "row not found", err)
	}
	if isTransient(err) {
		return apperr.Wrap(apperr.TransientStore, "database unavailable", err)
	}
	return apperr.Wrap(apperr.PermanentStore, "database error", err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen:
			return true
		}
	}
	return false
}
