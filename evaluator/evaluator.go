// Package evaluator maps operation types to the handlers that apply them.
//
// Handlers receive an explicit Context owned by the block driver. They read
// and write the ledger only through the store, never retain object pointers
// past their call, and report virtual operations through Context.Emit.
package evaluator

import (
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/global"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

// Context carries everything an evaluator may touch while one block is
// applied.
type Context struct {
	State    *store.State
	Params   *chainledger.Params
	Now      types.Timestamp
	BlockNum uint32

	// Position of the operation being applied. TrxInBlock is
	// protocol.BlockLevel during end-of-block processing.
	TrxInBlock int32
	OpInTrx    uint32

	vops []protocol.AppliedOperation
}

// NewContext starts a context for one block.
func NewContext(state *store.State, params *chainledger.Params, now types.Timestamp, blockNum uint32) *Context {
	return &Context{State: state, Params: params, Now: now, BlockNum: blockNum, TrxInBlock: protocol.BlockLevel}
}

// Props returns the global properties singleton.
func (c *Context) Props() (*global.DynamicGlobalProperties, error) {
	return c.State.Global.Get()
}

// Emit records a virtual operation at the current position.
func (c *Context) Emit(op protocol.VirtualOperation) {
	c.vops = append(c.vops, protocol.AppliedOperation{
		TrxInBlock: c.TrxInBlock,
		OpInTrx:    c.OpInTrx,
		VirtualOp:  uint32(len(c.vops)),
		Op:         op,
	})
}

// Mark returns a position for Truncate.
func (c *Context) Mark() int { return len(c.vops) }

// Truncate drops virtual operations emitted after mark. The driver calls it
// when it rolls back a transaction.
func (c *Context) Truncate(mark int) { c.vops = c.vops[:mark] }

// VirtualOps returns the operations emitted so far.
func (c *Context) VirtualOps() []protocol.AppliedOperation { return c.vops }

// ──────────────────────────────────────────────────
// Evaluators
// ──────────────────────────────────────────────────

// Evaluator applies one operation type.
type Evaluator interface {
	Type() protocol.OpType
	Apply(ctx *Context, op protocol.Operation) error
}

type typed[T protocol.Operation] struct {
	opType protocol.OpType
	apply  func(*Context, T) error
}

// New adapts a typed handler to Evaluator.
func New[T protocol.Operation](opType protocol.OpType, apply func(*Context, T) error) Evaluator {
	return typed[T]{opType: opType, apply: apply}
}

func (e typed[T]) Type() protocol.OpType { return e.opType }

func (e typed[T]) Apply(ctx *Context, op protocol.Operation) error {
	v, ok := op.(T)
	if !ok {
		return fmt.Errorf("%w: %s evaluator cannot apply %T", chainledger.ErrMalformedOperation, e.opType, op)
	}
	return e.apply(ctx, v)
}

// ──────────────────────────────────────────────────
// Registry
// ──────────────────────────────────────────────────

// Registry holds one evaluator per operation type.
type Registry struct {
	evaluators *xsync.Map[protocol.OpType, Evaluator]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: xsync.NewMap[protocol.OpType, Evaluator]()}
}

// Register adds e. A second evaluator for the same type is rejected.
func (r *Registry) Register(e Evaluator) error {
	if _, loaded := r.evaluators.LoadOrStore(e.Type(), e); loaded {
		return fmt.Errorf("evaluator: duplicate registration: %s", e.Type())
	}
	return nil
}

// MustRegister registers every evaluator and panics on a duplicate.
func (r *Registry) MustRegister(es ...Evaluator) {
	for _, e := range es {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
}

// Get returns the evaluator for t.
func (r *Registry) Get(t protocol.OpType) (Evaluator, bool) {
	return r.evaluators.Load(t)
}

// Types returns the registered operation types, sorted.
func (r *Registry) Types() []protocol.OpType {
	out := make([]protocol.OpType, 0, r.evaluators.Size())
	r.evaluators.Range(func(t protocol.OpType, _ Evaluator) bool {
		out = append(out, t)
		return true
	})
	slices.Sort(out)
	return out
}

// Apply validates op and dispatches it to its evaluator.
func (r *Registry) Apply(ctx *Context, op protocol.Operation) error {
	e, ok := r.evaluators.Load(op.Type())
	if !ok {
		return fmt.Errorf("%w: %s", chainledger.ErrUnknownOperation, op.Type())
	}
	if err := op.Validate(); err != nil {
		return err
	}
	return e.Apply(ctx, op)
}
