package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/xraph/chainledger/types"
)

// BlockID identifies a block. The first four bytes hold the block number
// big-endian, the rest is the block digest.
type BlockID [20]byte

// Number returns the block number encoded in the ID.
func (id BlockID) Number() uint32 { return binary.BigEndian.Uint32(id[:4]) }

// IsZero reports whether id is the genesis parent.
func (id BlockID) IsZero() bool { return id == BlockID{} }

func (id BlockID) String() string { return hex.EncodeToString(id[:]) }

// MarshalText implements encoding.TextMarshaler.
func (id BlockID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *BlockID) UnmarshalText(data []byte) error {
	return decodeHex20("block id", data, (*[20]byte)(id))
}

// TransactionID is ripemd160(sha256(signed transaction content)).
type TransactionID [20]byte

func (id TransactionID) String() string { return hex.EncodeToString(id[:]) }

// MarshalText implements encoding.TextMarshaler.
func (id TransactionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TransactionID) UnmarshalText(data []byte) error {
	return decodeHex20("transaction id", data, (*[20]byte)(id))
}

func decodeHex20(what string, data []byte, out *[20]byte) error {
	if hex.DecodedLen(len(data)) != len(out) {
		return fmt.Errorf("protocol: %s must be %d hex bytes", what, len(out))
	}
	_, err := hex.Decode(out[:], data)
	if err != nil {
		return fmt.Errorf("protocol: %s: %w", what, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// Transaction is an ordered list of operations applied atomically.
//
// SignedKeys are the public keys whose signatures the transport layer has
// already verified. They are what authority checks are evaluated against.
type Transaction struct {
	_          struct{}          `cbor:",toarray"`
	Expiration types.Timestamp   `json:"expiration"`
	Operations Operations        `json:"operations"`
	SignedKeys []types.PublicKey `json:"signed_keys"`
}

type signedContent struct {
	_          struct{} `cbor:",toarray"`
	Expiration types.Timestamp
	Operations Operations
}

// ID digests the transaction content, excluding the verified key set.
func (tx *Transaction) ID() (TransactionID, error) {
	data, err := Encode(signedContent{Expiration: tx.Expiration, Operations: tx.Operations})
	if err != nil {
		return TransactionID{}, err
	}
	return TransactionID(digest(data)), nil
}

// Size returns the encoded size in bytes, the basis of bandwidth cost.
func (tx *Transaction) Size() (int, error) {
	data, err := Encode(tx)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// RequiredAuthorities collects the requirements of every operation.
func (tx *Transaction) RequiredAuthorities() Authorities {
	var a Authorities
	for _, op := range tx.Operations {
		op.RequiredAuthorities(&a)
	}
	return a
}

// ──────────────────────────────────────────────────
// Blocks
// ──────────────────────────────────────────────────

// Block is a signed batch of transactions on top of Previous.
type Block struct {
	_            struct{}        `cbor:",toarray"`
	Previous     BlockID         `json:"previous"`
	Timestamp    types.Timestamp `json:"timestamp"`
	Witness      string          `json:"witness"`
	SigningKey   types.PublicKey `json:"signing_key"`
	Transactions []Transaction   `json:"transactions"`
}

// Number returns the height of the block.
func (b *Block) Number() uint32 { return b.Previous.Number() + 1 }

// ID digests the block and stamps its number into the first four bytes.
func (b *Block) ID() (BlockID, error) {
	data, err := Encode(b)
	if err != nil {
		return BlockID{}, err
	}
	id := BlockID(digest(data))
	binary.BigEndian.PutUint32(id[:4], b.Number())
	return id, nil
}

// AnnotatedBlock is the public record of an applied block handed to
// observers: its identity, its signer, the transactions it contained and
// the virtual operations applying it produced.
type AnnotatedBlock struct {
	_                  struct{}           `cbor:",toarray"`
	BlockNum           uint32             `json:"block_num"`
	BlockID            BlockID            `json:"block_id"`
	Previous           BlockID            `json:"previous"`
	TimestampMsec      int64              `json:"timestamp"`
	Witness            string             `json:"witness"`
	SigningKey         types.PublicKey    `json:"signing_key"`
	TransactionIDs     []TransactionID    `json:"transaction_ids"`
	VirtualOperations  []AppliedOperation `json:"virtual_operations"`
	FailedTransactions []int              `json:"failed_transactions,omitempty"`
}

// Timestamp returns the block time.
func (b *AnnotatedBlock) Timestamp() types.Timestamp {
	return types.Timestamp(b.TimestampMsec / 1000)
}
