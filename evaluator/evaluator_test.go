package evaluator_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/evaluator"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

func TestRegistryDispatch(t *testing.T) {
	r := evaluator.NewRegistry()
	var applied []string
	require.NoError(t, r.Register(evaluator.New(protocol.OpTransfer, func(ctx *evaluator.Context, op *protocol.Transfer) error {
		applied = append(applied, op.To)
		ctx.Emit(&protocol.Interest{Owner: op.To, Interest: types.GBGs(1)})
		return nil
	})))

	params := chainledger.DefaultParams()
	ctx := evaluator.NewContext(store.New(), &params, 100, 1)
	ctx.TrxInBlock, ctx.OpInTrx = 3, 1

	require.NoError(t, r.Apply(ctx, &protocol.Transfer{From: "alice", To: "bob", Amount: types.Golos(1)}))
	assert.Equal(t, []string{"bob"}, applied)
	require.Len(t, ctx.VirtualOps(), 1)
	assert.Equal(t, int32(3), ctx.VirtualOps()[0].TrxInBlock)
	assert.Equal(t, uint32(1), ctx.VirtualOps()[0].OpInTrx)

	err := r.Apply(ctx, &protocol.Transfer{From: "alice", To: "bob", Amount: types.Golos(0)})
	assert.ErrorIs(t, err, chainledger.ErrMalformedOperation)
	assert.Len(t, applied, 1, "invalid operations never reach the evaluator")

	err = r.Apply(ctx, &protocol.CustomJSON{RequiredAuths: []string{"alice"}, ID: "x", JSON: "{}"})
	assert.ErrorIs(t, err, chainledger.ErrUnknownOperation)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := evaluator.NewRegistry()
	noop := func(*evaluator.Context, *protocol.CustomJSON) error { return nil }
	require.NoError(t, r.Register(evaluator.New(protocol.OpCustomJSON, noop)))
	assert.Error(t, r.Register(evaluator.New(protocol.OpCustomJSON, noop)))
	assert.Panics(t, func() { r.MustRegister(evaluator.New(protocol.OpCustomJSON, noop)) })

	require.NoError(t, r.Register(evaluator.New(protocol.OpAccountMetadata, func(*evaluator.Context, *protocol.AccountMetadata) error {
		return errors.New("boom")
	})))
	assert.Equal(t, []protocol.OpType{protocol.OpAccountMetadata, protocol.OpCustomJSON}, r.Types())
}

func TestEmitTruncate(t *testing.T) {
	params := chainledger.DefaultParams()
	ctx := evaluator.NewContext(store.New(), &params, 100, 1)
	ctx.Emit(&protocol.Interest{Owner: "alice"})
	mark := ctx.Mark()
	ctx.Emit(&protocol.Interest{Owner: "bob"})
	ctx.Emit(&protocol.Interest{Owner: "carol"})
	ctx.Truncate(mark)
	require.Len(t, ctx.VirtualOps(), 1)
	ctx.Emit(&protocol.Interest{Owner: "dave"})
	assert.Equal(t, uint32(1), ctx.VirtualOps()[1].VirtualOp)
	assert.Equal(t, protocol.BlockLevel, ctx.VirtualOps()[0].TrxInBlock)
}
