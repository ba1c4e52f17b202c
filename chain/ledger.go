// Package chain applies blocks to the ledger state.
//
// A Ledger owns the store and is its single writer. Each block runs inside
// one undo session: every transaction gets a nested session that is rolled
// back on failure, the end-of-block sweeps run after the transactions, and
// the block session is committed as a reversible revision that PopBlock can
// undo until SetIrreversible makes it permanent. Readers go through
// WithReadLock and only ever observe state between blocks.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/authority"
	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/evaluator"
	"github.com/xraph/chainledger/global"
	"github.com/xraph/chainledger/id"
	"github.com/xraph/chainledger/plugin"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

// Policy decides what a failing transaction does to its block.
type Policy uint8

const (
	// PolicyRejectBlock fails the whole block on the first failing
	// transaction.
	PolicyRejectBlock Policy = iota
	// PolicySkipTransaction drops failing transactions and applies the rest.
	PolicySkipTransaction
)

func (p Policy) String() string {
	switch p {
	case PolicyRejectBlock:
		return "reject_block"
	case PolicySkipTransaction:
		return "skip_transaction"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy parses the text form of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "reject_block":
		return PolicyRejectBlock, nil
	case "skip_transaction":
		return PolicySkipTransaction, nil
	default:
		return 0, fmt.Errorf("chain: unknown transaction failure policy %q", s)
	}
}

// Head describes the latest applied block.
type Head struct {
	Number         uint32
	ID             protocol.BlockID
	Time           types.Timestamp
	Witness        string
	Irreversible   uint32
	ReversibleFrom uint32
}

type revisionMark struct {
	num      uint32
	id       protocol.BlockID
	revision int64
}

// Ledger is the block application engine.
type Ledger struct {
	state      *store.State
	params     chainledger.Params
	evaluators *evaluator.Registry
	plugins    *plugin.Registry
	logger     *slog.Logger
	policy     Policy

	// Guarded by the database write lock.
	reversible   []revisionMark
	irreversible uint32

	closed atomic.Bool
}

// New creates a ledger over state, which must already hold a genesis.
func New(state *store.State, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		state:      state,
		params:     chainledger.DefaultParams(),
		evaluators: evaluator.NewRegistry(),
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if err := l.params.Validate(); err != nil {
		return nil, fmt.Errorf("chain: invalid params: %w", err)
	}
	for _, e := range Evaluators() {
		if err := l.evaluators.Register(e); err != nil {
			return nil, err
		}
	}
	props, err := state.Props()
	if err != nil {
		return nil, fmt.Errorf("chain: state has no genesis: %w", err)
	}
	l.irreversible = props.LastIrreversibleBlockNum
	return l, nil
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithParams sets the chain constants.
func WithParams(p chainledger.Params) Option {
	return func(l *Ledger) {
		l.params = p
	}
}

// WithPolicy sets the transaction failure policy.
func WithPolicy(p Policy) Option {
	return func(l *Ledger) {
		l.policy = p
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPlugins replaces the plugin registry.
func WithPlugins(r *plugin.Registry) Option {
	return func(l *Ledger) {
		l.plugins = r
	}
}

// State returns the underlying store. Readers must hold the read lock.
func (l *Ledger) State() *store.State { return l.state }

// Params returns the chain constants.
func (l *Ledger) Params() chainledger.Params { return l.params }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// WithReadLock runs fn against committed state.
func (l *Ledger) WithReadLock(fn func(*store.State)) {
	l.state.DB.WithReadLock(func() { fn(l.state) })
}

// Start initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if l.closed.Load() {
		return chainledger.ErrLedgerClosed
	}
	l.plugins.EmitInit(ctx, l)

	head := l.HeadBlock()
	l.logger.Info("ledger started",
		"head_block", head.Number,
		"irreversible", head.Irreversible,
		"policy", l.policy,
		"plugins", l.plugins.Count(),
	)
	return nil
}

// Stop shuts down plugins. Further blocks are refused.
func (l *Ledger) Stop(ctx context.Context) error {
	if l.closed.Swap(true) {
		return nil
	}
	l.plugins.EmitShutdown(ctx)
	l.logger.Info("ledger stopped")
	return nil
}

// HeadBlock returns the latest applied block.
func (l *Ledger) HeadBlock() Head {
	var h Head
	l.state.DB.WithReadLock(func() {
		props, err := l.state.Props()
		if err != nil {
			return
		}
		h = Head{
			Number:       props.HeadBlockNumber,
			ID:           props.HeadBlockID,
			Time:         props.Time,
			Witness:      props.CurrentWitness,
			Irreversible: l.irreversible,
		}
		if len(l.reversible) > 0 {
			h.ReversibleFrom = l.reversible[0].num
		}
	})
	return h
}

// ──────────────────────────────────────────────────
// Block application
// ──────────────────────────────────────────────────

type appliedTx struct {
	index int
	id    protocol.TransactionID
	ops   protocol.Operations
}

type failedTx struct {
	index int
	err   error
}

// ApplyBlock applies b on top of the head block and commits it as a
// reversible revision. Under PolicyRejectBlock any failing transaction
// leaves the state untouched and is returned as a *chainledger.TransactionError.
func (l *Ledger) ApplyBlock(ctx context.Context, b *protocol.Block) (*protocol.AnnotatedBlock, error) {
	if l.closed.Load() {
		return nil, chainledger.ErrLedgerClosed
	}
	blockID, err := b.ID()
	if err != nil {
		return nil, fmt.Errorf("chain: block id: %w", err)
	}
	runID := id.NewApplyID()

	var (
		ann     *protocol.AnnotatedBlock
		applied []appliedTx
		failed  []failedTx
	)
	err = l.state.DB.WithWriteLock(func() error {
		props, err := l.state.Props()
		if err != nil {
			return err
		}
		if err := checkLinks(props, b); err != nil {
			return err
		}

		session := l.state.DB.BeginUndo()
		defer session.Close()

		num := b.Number()
		ectx := evaluator.NewContext(l.state, &l.params, b.Timestamp, num)
		ann = &protocol.AnnotatedBlock{
			BlockNum:      num,
			BlockID:       blockID,
			Previous:      b.Previous,
			TimestampMsec: int64(b.Timestamp) * 1000,
			Witness:       b.Witness,
			SigningKey:    b.SigningKey,
		}

		for i := range b.Transactions {
			tx := &b.Transactions[i]
			txID, err := tx.ID()
			if err != nil {
				return fmt.Errorf("chain: transaction %d id: %w", i, err)
			}
			ann.TransactionIDs = append(ann.TransactionIDs, txID)

			ectx.TrxInBlock = int32(i)
			mark := ectx.Mark()
			txSession := l.state.DB.BeginUndo()
			if err := l.applyTransaction(ectx, i, tx); err != nil {
				if rbErr := txSession.Rollback(); rbErr != nil {
					return errors.Join(err, rbErr)
				}
				ectx.Truncate(mark)
				if l.policy == PolicyRejectBlock {
					return err
				}
				failed = append(failed, failedTx{index: i, err: err})
				ann.FailedTransactions = append(ann.FailedTransactions, i)
				continue
			}
			if err := txSession.Commit(); err != nil {
				return err
			}
			applied = append(applied, appliedTx{index: i, id: txID, ops: tx.Operations})
		}

		ectx.TrxInBlock, ectx.OpInTrx = protocol.BlockLevel, 0
		if err := sweep(ectx); err != nil {
			return fmt.Errorf("chain: block %d sweep: %w", num, err)
		}
		props, err = l.state.Props()
		if err != nil {
			return err
		}
		if err := l.state.Global.Properties.Modify(props, func(p *global.DynamicGlobalProperties) {
			p.HeadBlockNumber = num
			p.HeadBlockID = blockID
			p.Time = b.Timestamp
			p.CurrentWitness = b.Witness
			p.LastIrreversibleBlockNum = l.irreversible
		}); err != nil {
			return err
		}
		ann.VirtualOperations = ectx.VirtualOps()

		if err := session.Commit(); err != nil {
			return err
		}
		l.reversible = append(l.reversible, revisionMark{num: num, id: blockID, revision: session.Revision()})
		return nil
	})
	if err != nil {
		l.logger.Warn("block rejected",
			"apply_id", runID,
			"block_num", b.Number(),
			"error", err,
		)
		return nil, err
	}

	l.logger.Debug("block applied",
		"apply_id", runID,
		"block_num", ann.BlockNum,
		"block_id", ann.BlockID,
		"transactions", len(b.Transactions),
		"failed", len(failed),
		"virtual_ops", len(ann.VirtualOperations),
	)
	for _, f := range failed {
		l.logger.Warn("transaction skipped",
			"apply_id", runID,
			"block_num", ann.BlockNum,
			"index", f.index,
			"error", f.err,
		)
		l.plugins.EmitTransactionFailed(ctx, ann.BlockNum, f.index, f.err)
	}
	notifyOps := l.plugins.HasOperationObservers()
	for _, tx := range applied {
		l.plugins.EmitTransactionApplied(ctx, ann.BlockNum, tx.index, tx.id)
		if !notifyOps {
			continue
		}
		for _, op := range tx.ops {
			l.plugins.EmitOperationApplied(ctx, ann.BlockNum, tx.index, op)
		}
	}
	l.plugins.EmitBlockApplied(ctx, ann)
	return ann, nil
}

func checkLinks(props *global.DynamicGlobalProperties, b *protocol.Block) error {
	if b.Previous != props.HeadBlockID {
		return fmt.Errorf("%w: previous %s, head %s", chainledger.ErrBlockOutOfOrder, b.Previous, props.HeadBlockID)
	}
	if b.Number() != props.HeadBlockNumber+1 {
		return fmt.Errorf("%w: number %d after head %d", chainledger.ErrBlockOutOfOrder, b.Number(), props.HeadBlockNumber)
	}
	if !b.Timestamp.After(props.Time) {
		return fmt.Errorf("%w: time %s not after head time %s", chainledger.ErrBlockOutOfOrder, b.Timestamp, props.Time)
	}
	return nil
}

// applyTransaction validates, authorizes and applies tx, then bills its
// bandwidth. The caller owns the undo session.
func (l *Ledger) applyTransaction(ctx *evaluator.Context, index int, tx *protocol.Transaction) error {
	fail := func(opIndex int, op protocol.Operation, err error) error {
		te := &chainledger.TransactionError{Index: index, OpIndex: opIndex, Err: err}
		if op != nil {
			te.OpType = string(op.Type())
		}
		return te
	}

	if len(tx.Operations) == 0 {
		return fail(0, nil, chainledger.Invalid("operations", "transaction has no operations"))
	}
	if !tx.Expiration.After(ctx.Now) || tx.Expiration.After(ctx.Now.Add(l.params.MaxTimeUntilExpiration)) {
		return fail(0, nil, fmt.Errorf("%w: expiration %s at %s", chainledger.ErrTransactionExpired, tx.Expiration, ctx.Now))
	}
	size, err := tx.Size()
	if err != nil {
		return fail(0, nil, err)
	}
	if size > l.params.MaxTransactionSize {
		return fail(0, nil, fmt.Errorf("%w: %d bytes", chainledger.ErrTransactionTooLarge, size))
	}
	for i, op := range tx.Operations {
		if err := op.Validate(); err != nil {
			return fail(i, op, err)
		}
	}

	required := tx.RequiredAuthorities()
	verifier := authority.NewVerifier(l.state.Accounts.Authority, tx.SignedKeys, l.params.MaxSigCheckDepth)
	if err := verifier.Check(&required); err != nil {
		return fail(0, nil, err)
	}

	for i, op := range tx.Operations {
		ctx.OpInTrx = uint32(i)
		if err := l.evaluators.Apply(ctx, op); err != nil {
			return fail(i, op, translate(err))
		}
	}
	if err := chargeBandwidth(ctx, tx, size); err != nil {
		return fail(0, nil, err)
	}
	return nil
}

// translate maps store-level failures that escaped an evaluator onto the
// ledger taxonomy.
func translate(err error) error {
	switch {
	case errors.Is(err, chainbase.ErrNotFound):
		return fmt.Errorf("%w: %w", chainledger.ErrNotFound, err)
	case errors.Is(err, chainbase.ErrDuplicateKey):
		return fmt.Errorf("%w: %w", chainledger.ErrInvariantViolation, err)
	default:
		return err
	}
}

// ──────────────────────────────────────────────────
// Fork handling
// ──────────────────────────────────────────────────

// PopBlock reverts the head block. Only reversible blocks can be popped.
func (l *Ledger) PopBlock(ctx context.Context) (uint32, error) {
	if l.closed.Load() {
		return 0, chainledger.ErrLedgerClosed
	}
	var popped revisionMark
	err := l.state.DB.WithWriteLock(func() error {
		if len(l.reversible) == 0 {
			return chainledger.ErrNoReversibleBlock
		}
		if err := l.state.DB.UndoLast(); err != nil {
			if errors.Is(err, chainbase.ErrNoRevision) {
				return chainledger.ErrNoReversibleBlock
			}
			return err
		}
		popped = l.reversible[len(l.reversible)-1]
		l.reversible = l.reversible[:len(l.reversible)-1]
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("block popped",
		"block_num", popped.num,
		"block_id", popped.id,
	)
	l.plugins.EmitBlockReverted(ctx, popped.num, popped.id)
	return popped.num, nil
}

// SetIrreversible makes every applied block up to num permanent. Moving
// backwards is a no-op.
func (l *Ledger) SetIrreversible(ctx context.Context, num uint32) error {
	if l.closed.Load() {
		return chainledger.ErrLedgerClosed
	}
	var (
		moved bool
		last  uint32
	)
	err := l.state.DB.WithWriteLock(func() error {
		if num <= l.irreversible {
			return nil
		}
		i := 0
		for i < len(l.reversible) && l.reversible[i].num <= num {
			i++
		}
		if i == 0 {
			props, err := l.state.Props()
			if err != nil {
				return err
			}
			if num > props.HeadBlockNumber {
				return fmt.Errorf("%w: block %d is not applied", chainledger.ErrBlockOutOfOrder, num)
			}
			last = num
		} else {
			last = l.reversible[i-1].num
			l.state.DB.Prune(l.reversible[i-1].revision)
			l.reversible = append(l.reversible[:0:0], l.reversible[i:]...)
		}
		l.irreversible = last
		moved = true
		return nil
	})
	if err != nil || !moved {
		return err
	}

	l.logger.Info("irreversible block advanced", "block_num", last)
	l.plugins.EmitIrreversible(ctx, last)
	return nil
}
