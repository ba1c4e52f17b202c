// Package id defines TypeID-based identifiers for ledger runs: block
// applications, checkpoints, invariant audits and emitted stream events.
//
// These identify work performed by a node, not chain objects. Chain objects
// are addressed by their chainbase.ID, which must be identical on every node.
// Run ids are node-local and sort by creation time. Their text form is
// "prefix_suffix", e.g. "ckpt_01h2xcejqtf2nbrexx3vqjhp41".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the kind of run an ID belongs to.
type Prefix string

const (
	PrefixApply      Prefix = "apply"
	PrefixCheckpoint Prefix = "ckpt"
	PrefixAudit      Prefix = "audit"
	PrefixEvent      Prefix = "evt"
)

// ID is a run identifier. The zero value is Nil and stores as SQL NULL.
//
//nolint:recvcheck // UnmarshalText and Scan mutate the receiver.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the zero ID.
var Nil ID

// New returns a fresh ID. An invalid prefix is a programming error and
// panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: prefix %q: %v", prefix, err))
	}
	return ID{tid: tid, set: true}
}

func NewApplyID() ID      { return New(PrefixApply) }
func NewCheckpointID() ID { return New(PrefixCheckpoint) }
func NewAuditID() ID      { return New(PrefixAudit) }
func NewEventID() ID      { return New(PrefixEvent) }

// Parse reads the text form of an ID. When want is non-empty the prefix
// must match it.
func Parse(s string, want Prefix) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: empty %s id", orAny(want))
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: %q: %w", s, err)
	}
	if want != "" && Prefix(tid.Prefix()) != want {
		return Nil, fmt.Errorf("id: %q is not a %s id", s, want)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseCheckpointID reads a checkpoint id as printed by the CLI.
func ParseCheckpointID(s string) (ID, error) { return Parse(s, PrefixCheckpoint) }

func orAny(p Prefix) string {
	if p == "" {
		return "run"
	}
	return string(p)
}

// String returns "" for Nil.
func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.set }

// ──────────────────────────────────────────────────
// Encoding
// ──────────────────────────────────────────────────

// MarshalText writes the text form; Nil encodes as an empty string.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText accepts any prefix. An empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data), "")
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value stores the text form in a TEXT column, Nil as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.set {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.tid.String(), nil
}

// Scan reads a TEXT column written by Value.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}
