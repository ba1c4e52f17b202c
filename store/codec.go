package store

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/protocol"
)

// ErrSnapshotMismatch is returned when a snapshot does not fit the schema.
var ErrSnapshotMismatch = errors.New("store: snapshot does not match schema")

// TableSnapshot is the persisted form of one table: its objects in ID order,
// each encoded as a CBOR array in field order.
type TableSnapshot struct {
	_       struct{} `cbor:",toarray"`
	Name    string
	NextID  chainbase.ID
	Records []cbor.RawMessage
}

// Snapshot is a full copy of the committed state.
type Snapshot struct {
	_        struct{} `cbor:",toarray"`
	Revision int64
	Tables   []TableSnapshot
}

type tableCodec interface {
	name() string
	dump() (TableSnapshot, error)
	load(TableSnapshot) error
	empty() bool
}

type codec[T any, P chainbase.Record[T]] struct {
	table *chainbase.Table[T, P]
}

func codecFor[T any, P chainbase.Record[T]](t *chainbase.Table[T, P]) tableCodec {
	return codec[T, P]{table: t}
}

func (c codec[T, P]) name() string { return c.table.Name() }

func (c codec[T, P]) empty() bool { return c.table.Len() == 0 }

func (c codec[T, P]) dump() (TableSnapshot, error) {
	ts := TableSnapshot{Name: c.table.Name(), NextID: c.table.NextID()}
	ts.Records = make([]cbor.RawMessage, 0, c.table.Len())
	for p := range c.table.Scan() {
		data, err := protocol.Encode(p)
		if err != nil {
			return TableSnapshot{}, fmt.Errorf("store: encode %s #%d: %w", ts.Name, p.ObjectID(), err)
		}
		ts.Records = append(ts.Records, data)
	}
	return ts, nil
}

func (c codec[T, P]) load(ts TableSnapshot) error {
	for _, raw := range ts.Records {
		var p P = new(T)
		if err := protocol.Decode(raw, p); err != nil {
			return fmt.Errorf("store: decode %s: %w", ts.Name, err)
		}
		if err := c.table.Restore(p); err != nil {
			return err
		}
	}
	return c.table.SetNextID(ts.NextID)
}

// Snapshot encodes every table. Tables are encoded concurrently; callers
// hold the database read lock so no writer runs meanwhile.
func (s *State) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{Revision: s.DB.Revision(), Tables: make([]TableSnapshot, len(s.codecs))}
	var g errgroup.Group
	for i, c := range s.codecs {
		g.Go(func() error {
			ts, err := c.dump()
			if err != nil {
				return err
			}
			snap.Tables[i] = ts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Restore loads snap into an empty state with no undo history.
func (s *State) Restore(snap *Snapshot) error {
	if len(snap.Tables) != len(s.codecs) {
		return fmt.Errorf("%w: %d tables, want %d", ErrSnapshotMismatch, len(snap.Tables), len(s.codecs))
	}
	for i, c := range s.codecs {
		if snap.Tables[i].Name != c.name() {
			return fmt.Errorf("%w: table %d is %q, want %q", ErrSnapshotMismatch, i, snap.Tables[i].Name, c.name())
		}
		if !c.empty() {
			return fmt.Errorf("%w: table %s is not empty", chainbase.ErrNotEmpty, c.name())
		}
	}
	for i, c := range s.codecs {
		if err := c.load(snap.Tables[i]); err != nil {
			return err
		}
	}
	return s.DB.SetRevision(snap.Revision)
}

// Digest hashes the canonical encoding of the state. Two states with the
// same objects, IDs and ID counters have the same digest.
func (s *State) Digest() ([32]byte, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return [32]byte{}, err
	}
	return snap.Digest()
}

// Digest hashes the snapshot contents. The undo revision is not part of
// the digest.
func (snap *Snapshot) Digest() ([32]byte, error) {
	cp := Snapshot{Tables: snap.Tables}
	data, err := protocol.Encode(&cp)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// Table returns the snapshot of the named table.
func (snap *Snapshot) Table(name string) (TableSnapshot, bool) {
	for _, t := range snap.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSnapshot{}, false
}
