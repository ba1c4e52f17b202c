package chainbase

import (
	"fmt"
	"iter"

	"github.com/google/btree"
)

// Record is implemented by pointers to objects stored in a Table.
type Record[T any] interface {
	*T
	ObjectID() ID
	SetObjectID(ID)
}

// Cloner is implemented by records that hold reference types (slices, maps)
// and need a deep copy for the undo log. Other records are copied by value.
type Cloner[P any] interface {
	Clone() P
}

type indexer[P any] interface {
	indexName() string
	conflicts(P) bool
	insert(P)
	remove(P)
}

const btreeDegree = 16

// Table stores objects of one type under monotonic IDs.
type Table[T any, P Record[T]] struct {
	db      *Database
	name    string
	nextID  ID
	objects map[ID]P
	byID    *btree.BTreeG[P]
	indices []indexer[P]
}

// NewTable registers a table named name with db.
func NewTable[T any, P Record[T]](db *Database, name string) (*Table[T, P], error) {
	t := &Table[T, P]{
		db:      db,
		name:    name,
		objects: make(map[ID]P),
		byID: btree.NewG(btreeDegree, func(a, b P) bool {
			return a.ObjectID() < b.ObjectID()
		}),
	}
	if err := db.register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// MustNewTable is like NewTable but panics on a duplicate name.
func MustNewTable[T any, P Record[T]](db *Database, name string) *Table[T, P] {
	t, err := NewTable[T, P](db, name)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the table name.
func (t *Table[T, P]) Name() string { return t.name }

// Len returns the number of stored objects.
func (t *Table[T, P]) Len() int { return len(t.objects) }

// NextID returns the ID the next Create will assign.
func (t *Table[T, P]) NextID() ID { return t.nextID }

// Copy returns a detached copy of p that later mutations of the stored
// object do not reach.
func Copy[T any, P Record[T]](p P) P { return clone[T, P](p) }

func clone[T any, P Record[T]](p P) P {
	if c, ok := any(p).(Cloner[P]); ok {
		return c.Clone()
	}
	var cp P = new(T)
	*cp = *p
	return cp
}

func (t *Table[T, P]) firstConflict(p P) indexer[P] {
	for _, idx := range t.indices {
		if idx.conflicts(p) {
			return idx
		}
	}
	return nil
}

func (t *Table[T, P]) link(p P) {
	t.objects[p.ObjectID()] = p
	t.byID.ReplaceOrInsert(p)
	for _, idx := range t.indices {
		idx.insert(p)
	}
}

func (t *Table[T, P]) unlink(p P) {
	for _, idx := range t.indices {
		idx.remove(p)
	}
	t.byID.Delete(p)
	delete(t.objects, p.ObjectID())
}

// Create allocates the next ID, runs construct on a zero object and inserts
// it. The ID is set before construct runs and cannot be changed by it.
func (t *Table[T, P]) Create(construct func(P)) (P, error) {
	if err := t.db.requireSession(); err != nil {
		return nil, err
	}
	id := t.nextID
	var p P = new(T)
	p.SetObjectID(id)
	construct(p)
	p.SetObjectID(id)

	if idx := t.firstConflict(p); idx != nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateKey, t.name, idx.indexName())
	}
	t.link(p)
	t.nextID++

	t.db.record(func() {
		if cur, ok := t.objects[id]; ok {
			t.unlink(cur)
		}
		t.nextID = id
	})
	return p, nil
}

// Modify applies mutate to the stored object with p's ID and reindexes it.
// On a key collision the object is left untouched and ErrDuplicateKey is
// returned.
func (t *Table[T, P]) Modify(p P, mutate func(P)) error {
	if err := t.db.requireSession(); err != nil {
		return err
	}
	id := p.ObjectID()
	cur, ok := t.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s #%d", ErrNotFound, t.name, id)
	}
	backup := clone[T, P](cur)

	t.unlink(cur)
	mutate(cur)
	cur.SetObjectID(id)
	if idx := t.firstConflict(cur); idx != nil {
		*cur = *backup
		t.link(cur)
		return fmt.Errorf("%w: %s.%s", ErrDuplicateKey, t.name, idx.indexName())
	}
	t.link(cur)

	t.db.record(func() {
		if now, ok := t.objects[id]; ok {
			t.unlink(now)
			*now = *backup
			t.link(now)
		}
	})
	return nil
}

// Remove erases the stored object with p's ID.
func (t *Table[T, P]) Remove(p P) error {
	if err := t.db.requireSession(); err != nil {
		return err
	}
	id := p.ObjectID()
	cur, ok := t.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s #%d", ErrNotFound, t.name, id)
	}
	backup := clone[T, P](cur)
	t.unlink(cur)

	t.db.record(func() {
		t.link(backup)
	})
	return nil
}

// Get returns the object with the given ID. The returned pointer is the
// stored object and must only be changed through Modify.
func (t *Table[T, P]) Get(id ID) (P, error) {
	p, ok := t.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s #%d", ErrNotFound, t.name, id)
	}
	return p, nil
}

// Scan iterates all objects in ID order. The table must not be mutated
// during iteration.
func (t *Table[T, P]) Scan() iter.Seq[P] {
	return func(yield func(P) bool) {
		t.byID.Ascend(func(p P) bool { return yield(p) })
	}
}

// Restore inserts p under its own ID outside any undo session. It is used
// to load checkpoints into an empty database and advances NextID past p.
func (t *Table[T, P]) Restore(p P) error {
	if len(t.db.stack) > 0 {
		return ErrPendingUndo
	}
	if _, ok := t.objects[p.ObjectID()]; ok {
		return fmt.Errorf("%w: %s #%d", ErrDuplicateKey, t.name, p.ObjectID())
	}
	if idx := t.firstConflict(p); idx != nil {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateKey, t.name, idx.indexName())
	}
	t.link(p)
	if p.ObjectID() >= t.nextID {
		t.nextID = p.ObjectID() + 1
	}
	return nil
}

// SetNextID forces the next ID for checkpoint restores. It cannot move
// below an existing object.
func (t *Table[T, P]) SetNextID(id ID) error {
	if len(t.db.stack) > 0 {
		return ErrPendingUndo
	}
	if maxP, ok := t.byID.Max(); ok && id <= maxP.ObjectID() {
		return fmt.Errorf("chainbase: next id %d not above %s #%d", id, t.name, maxP.ObjectID())
	}
	t.nextID = id
	return nil
}
