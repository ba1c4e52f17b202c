package chainbase

import (
	"cmp"
	"fmt"
	"iter"

	"github.com/google/btree"
)

type entry[P any, K any] struct {
	key K
	obj P
}

// Index orders the objects of a table by a derived key K. Keys are unique
// within an index.
type Index[T any, P Record[T], K any] struct {
	table *Table[T, P]
	name  string
	key   func(P) K
	cmp   func(a, b K) int
	tree  *btree.BTreeG[entry[P, K]]
}

// AddIndex attaches a new index to t and backfills it from existing objects.
// It fails with ErrDuplicateKey if existing objects collide on the key.
func AddIndex[T any, P Record[T], K any](t *Table[T, P], name string, key func(P) K, compare func(a, b K) int) (*Index[T, P, K], error) {
	idx := &Index[T, P, K]{
		table: t,
		name:  name,
		key:   key,
		cmp:   compare,
	}
	idx.tree = btree.NewG(btreeDegree, func(a, b entry[P, K]) bool {
		return compare(a.key, b.key) < 0
	})
	for p := range t.Scan() {
		if idx.conflicts(p) {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateKey, t.name, name)
		}
		idx.insert(p)
	}
	t.indices = append(t.indices, idx)
	return idx, nil
}

// MustAddIndex is like AddIndex but panics on error. Schema setup on an
// empty table cannot fail.
func MustAddIndex[T any, P Record[T], K any](t *Table[T, P], name string, key func(P) K, compare func(a, b K) int) *Index[T, P, K] {
	idx, err := AddIndex(t, name, key, compare)
	if err != nil {
		panic(err)
	}
	return idx
}

// Name returns the index name.
func (idx *Index[T, P, K]) Name() string { return idx.name }

// Table returns the indexed table.
func (idx *Index[T, P, K]) Table() *Table[T, P] { return idx.table }

// Key returns the key p is indexed under.
func (idx *Index[T, P, K]) Key(p P) K { return idx.key(p) }

// Compare orders two keys the way the index does.
func (idx *Index[T, P, K]) Compare(a, b K) int { return idx.cmp(a, b) }

func (idx *Index[T, P, K]) indexName() string { return idx.name }

func (idx *Index[T, P, K]) conflicts(p P) bool {
	e, ok := idx.tree.Get(entry[P, K]{key: idx.key(p)})
	return ok && e.obj.ObjectID() != p.ObjectID()
}

func (idx *Index[T, P, K]) insert(p P) {
	idx.tree.ReplaceOrInsert(entry[P, K]{key: idx.key(p), obj: p})
}

func (idx *Index[T, P, K]) remove(p P) {
	idx.tree.Delete(entry[P, K]{key: idx.key(p)})
}

// Find returns the object stored under k.
func (idx *Index[T, P, K]) Find(k K) (P, error) {
	e, ok := idx.tree.Get(entry[P, K]{key: k})
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, idx.table.name, idx.name)
	}
	return e.obj, nil
}

// Contains reports whether an object is stored under k.
func (idx *Index[T, P, K]) Contains(k K) bool {
	return idx.tree.Has(entry[P, K]{key: k})
}

// First returns the object with the smallest key.
func (idx *Index[T, P, K]) First() (P, bool) {
	e, ok := idx.tree.Min()
	return e.obj, ok
}

// Len returns the number of indexed objects.
func (idx *Index[T, P, K]) Len() int { return idx.tree.Len() }

// Scan iterates every object in key order.
func (idx *Index[T, P, K]) Scan() iter.Seq[P] {
	return func(yield func(P) bool) {
		idx.tree.Ascend(func(e entry[P, K]) bool { return yield(e.obj) })
	}
}

// LowerBound iterates objects with key >= k in key order.
func (idx *Index[T, P, K]) LowerBound(k K) iter.Seq[P] {
	return func(yield func(P) bool) {
		idx.tree.AscendGreaterOrEqual(entry[P, K]{key: k}, func(e entry[P, K]) bool {
			return yield(e.obj)
		})
	}
}

// Range iterates objects with lo <= key < hi in key order.
func (idx *Index[T, P, K]) Range(lo, hi K) iter.Seq[P] {
	return func(yield func(P) bool) {
		idx.tree.AscendRange(entry[P, K]{key: lo}, entry[P, K]{key: hi}, func(e entry[P, K]) bool {
			return yield(e.obj)
		})
	}
}

// While iterates objects with key >= lo for as long as keep returns true.
// It is the prefix scan used for composite keys.
func (idx *Index[T, P, K]) While(lo K, keep func(K) bool) iter.Seq[P] {
	return func(yield func(P) bool) {
		idx.tree.AscendGreaterOrEqual(entry[P, K]{key: lo}, func(e entry[P, K]) bool {
			if !keep(e.key) {
				return false
			}
			return yield(e.obj)
		})
	}
}

// ──────────────────────────────────────────────────
// Comparator helpers for composite keys
// ──────────────────────────────────────────────────

// Compare2 orders pairs lexicographically.
func Compare2[A, B cmp.Ordered](a1 A, b1 B, a2 A, b2 B) int {
	if c := cmp.Compare(a1, a2); c != 0 {
		return c
	}
	return cmp.Compare(b1, b2)
}

// Compare3 orders triples lexicographically.
func Compare3[A, B, C cmp.Ordered](a1 A, b1 B, c1 C, a2 A, b2 B, c2 C) int {
	if c := Compare2(a1, b1, a2, b2); c != 0 {
		return c
	}
	return cmp.Compare(c1, c2)
}
