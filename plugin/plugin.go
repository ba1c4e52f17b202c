// Package plugin provides an extensible plugin system for the chain ledger.
// Plugins observe block application through lifecycle hooks. They run after
// the block is committed and can never change ledger state.
package plugin

import (
	"context"

	"github.com/xraph/chainledger/protocol"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, ledger any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Block hooks
// ──────────────────────────────────────────────────

// OnBlockApplied is called once a block is committed.
type OnBlockApplied interface {
	Plugin
	OnBlockApplied(ctx context.Context, block *protocol.AnnotatedBlock) error
}

// OnBlockReverted is called when the head block is popped.
type OnBlockReverted interface {
	Plugin
	OnBlockReverted(ctx context.Context, blockNum uint32, blockID protocol.BlockID) error
}

// OnIrreversible is called when blocks up to blockNum can no longer be
// popped.
type OnIrreversible interface {
	Plugin
	OnIrreversible(ctx context.Context, blockNum uint32) error
}

// ──────────────────────────────────────────────────
// Transaction hooks
// ──────────────────────────────────────────────────

// OnTransactionApplied is called for every transaction of a committed block.
type OnTransactionApplied interface {
	Plugin
	OnTransactionApplied(ctx context.Context, blockNum uint32, index int, txID protocol.TransactionID) error
}

// OnTransactionFailed is called for every transaction a block skipped.
type OnTransactionFailed interface {
	Plugin
	OnTransactionFailed(ctx context.Context, blockNum uint32, index int, err error) error
}

// OnOperationApplied is called for every signed operation of a committed
// block, in block order.
type OnOperationApplied interface {
	Plugin
	OnOperationApplied(ctx context.Context, blockNum uint32, index int, op protocol.Operation) error
}
