// Package chainbase is an in-memory, multiply-indexed object store with
// nested undo sessions.
//
// Every object lives in a Table under a monotonic ID. Tables carry any
// number of ordered indices keyed by typed composite keys; every index is
// unique on its key, so access patterns that are not naturally unique append
// the object ID as the final tie-break. Iteration order therefore depends
// only on object contents and is identical on every node.
//
// Mutations are only accepted inside an undo session. Each session records
// an inverse command per create, modify and remove; rolling back replays the
// commands in reverse order. Committing an inner session folds its log into
// the enclosing one. Committing the outermost session keeps it on the stack
// as a reversible revision until it is pruned or undone.
package chainbase

import (
	"fmt"
	"sort"
	"sync"
)

// ID is the identity of an object within its table.
type ID uint64

// TableInfo describes a registered table.
type TableInfo interface {
	Name() string
	Len() int
}

type undoState struct {
	revision int64
	open     bool
	log      []func()
}

// Database owns the undo stack shared by all of its tables.
type Database struct {
	mu       sync.RWMutex
	tables   map[string]TableInfo
	stack    []*undoState
	revision int64
}

// New creates an empty database at revision 0.
func New() *Database {
	return &Database{tables: make(map[string]TableInfo)}
}

func (db *Database) register(t TableInfo) error {
	if _, ok := db.tables[t.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, t.Name())
	}
	db.tables[t.Name()] = t
	return nil
}

// Tables returns the registered tables ordered by name.
func (db *Database) Tables() []TableInfo {
	out := make([]TableInfo, 0, len(db.tables))
	for _, t := range db.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ──────────────────────────────────────────────────
// Locking
// ──────────────────────────────────────────────────

// WithReadLock runs fn while holding the shared lock. Readers never observe
// the state of a write section that has not returned.
func (db *Database) WithReadLock(fn func()) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fn()
}

// WithWriteLock runs fn while holding the exclusive lock.
func (db *Database) WithWriteLock(fn func() error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn()
}

// ──────────────────────────────────────────────────
// Undo sessions
// ──────────────────────────────────────────────────

// Session is a token for one level of the undo stack.
type Session struct {
	db    *Database
	state *undoState
	done  bool
}

// BeginUndo opens a new session on top of the stack and bumps the revision.
func (db *Database) BeginUndo() *Session {
	db.revision++
	st := &undoState{revision: db.revision, open: true}
	db.stack = append(db.stack, st)
	return &Session{db: db, state: st}
}

// Revision returns the revision assigned to the session.
func (s *Session) Revision() int64 { return s.state.revision }

func (s *Session) checkTop() error {
	if s.done {
		return ErrSessionClosed
	}
	stack := s.db.stack
	if len(stack) == 0 || stack[len(stack)-1] != s.state {
		return ErrSessionOrder
	}
	return nil
}

// Commit folds the session into the enclosing open session. When there is
// none, the session stays on the stack as a reversible revision.
func (s *Session) Commit() error {
	if err := s.checkTop(); err != nil {
		return err
	}
	db := s.db
	n := len(db.stack)
	if n > 1 && db.stack[n-2].open {
		parent := db.stack[n-2]
		parent.log = append(parent.log, s.state.log...)
		db.stack = db.stack[:n-1]
		db.revision--
	} else {
		s.state.open = false
	}
	s.done = true
	return nil
}

// Rollback reverses every mutation recorded by the session, newest first.
func (s *Session) Rollback() error {
	if err := s.checkTop(); err != nil {
		return err
	}
	s.db.revert(s.state)
	s.db.stack = s.db.stack[:len(s.db.stack)-1]
	s.db.revision--
	s.done = true
	return nil
}

// Close rolls the session back unless it was already committed or rolled
// back. It is meant for defer.
func (s *Session) Close() {
	if !s.done {
		_ = s.Rollback() //nolint:errcheck // only fails when already closed or out of order
	}
}

func (db *Database) revert(st *undoState) {
	for i := len(st.log) - 1; i >= 0; i-- {
		st.log[i]()
	}
	st.log = nil
}

// UndoLast reverts the newest reversible revision.
func (db *Database) UndoLast() error {
	n := len(db.stack)
	if n == 0 || db.stack[n-1].open {
		return ErrNoRevision
	}
	db.revert(db.stack[n-1])
	db.stack = db.stack[:n-1]
	db.revision--
	return nil
}

// Prune discards the undo state of every reversible revision at or below
// rev, making them permanent.
func (db *Database) Prune(rev int64) {
	i := 0
	for i < len(db.stack) && !db.stack[i].open && db.stack[i].revision <= rev {
		i++
	}
	if i > 0 {
		db.stack = append(db.stack[:0:0], db.stack[i:]...)
	}
}

// Revision returns the current revision.
func (db *Database) Revision() int64 { return db.revision }

// SetRevision forces the revision. It fails while any undo state exists.
func (db *Database) SetRevision(rev int64) error {
	if len(db.stack) > 0 {
		return ErrPendingUndo
	}
	db.revision = rev
	return nil
}

// UndoDepth returns the number of sessions and reversible revisions on the stack.
func (db *Database) UndoDepth() int { return len(db.stack) }

// ReversibleRevisions returns the revisions that can still be undone, oldest first.
func (db *Database) ReversibleRevisions() []int64 {
	var out []int64
	for _, st := range db.stack {
		if !st.open {
			out = append(out, st.revision)
		}
	}
	return out
}

func (db *Database) active() *undoState {
	n := len(db.stack)
	if n == 0 || !db.stack[n-1].open {
		return nil
	}
	return db.stack[n-1]
}

func (db *Database) requireSession() error {
	if db.active() == nil {
		return ErrNoSession
	}
	return nil
}

// record appends an inverse command to the innermost open session. Callers
// check requireSession before mutating.
func (db *Database) record(undo func()) {
	st := db.active()
	st.log = append(st.log, undo)
}
