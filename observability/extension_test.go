package observability_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/observability"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

func value(t *testing.T, metric any) float64 {
	t.Helper()
	c, ok := metric.(prometheus.Collector)
	require.True(t, ok)
	return testutil.ToFloat64(c)
}

func TestMetricsExtension(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	require.NoError(t, m.OnBlockApplied(ctx, &protocol.AnnotatedBlock{
		BlockNum:       12,
		TransactionIDs: make([]protocol.TransactionID, 2),
		VirtualOperations: []protocol.AppliedOperation{
			{Op: &protocol.ReturnVestingDelegation{Account: "alice", VestingShares: types.Vests(1)}},
			{Op: &protocol.Interest{Owner: "bob", Interest: types.GBGs(1)}},
			{Op: &protocol.Interest{Owner: "carol", Interest: types.GBGs(1)}},
		},
	}))
	require.NoError(t, m.OnTransactionApplied(ctx, 12, 0, protocol.TransactionID{}))
	require.NoError(t, m.OnTransactionFailed(ctx, 12, 1, fmt.Errorf("op 0: %w", chainledger.ErrBandwidthExceeded)))
	require.NoError(t, m.OnBlockReverted(ctx, 12, protocol.BlockID{}))
	require.NoError(t, m.OnIrreversible(ctx, 10))

	assert.Equal(t, 1.0, value(t, m.BlocksApplied))
	assert.Equal(t, 1.0, value(t, m.BlocksReverted))
	assert.Equal(t, 11.0, value(t, m.HeadBlock))
	assert.Equal(t, 10.0, value(t, m.IrreversibleBlock))
	assert.Equal(t, 3.0, value(t, m.VirtualOps))
	assert.Equal(t, 1.0, value(t, m.DelegationReturns))
	assert.Equal(t, 2.0, value(t, m.InterestPayments))
	assert.Equal(t, 1.0, value(t, m.TransactionsApplied))
	assert.Equal(t, 1.0, value(t, m.TransactionsFailed))
	assert.Equal(t, 1.0, value(t, m.FailuresByKind[chainledger.KindInsufficientResource]))
	assert.Equal(t, 0.0, value(t, m.FailuresByKind[chainledger.KindNotFound]))

	count, err := testutil.GatherAndCount(reg, "chainledger_block_transactions")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f1 := observability.NewPrometheusFactory(reg)
	f2 := observability.NewPrometheusFactory(reg)

	c1 := f1.Counter("chainledger.test.events")
	c2 := f2.Counter("chainledger.test.events")
	c1.Inc()
	c2.Inc()

	assert.Same(t, f1.Counter("chainledger.test.events"), c1)
	assert.Equal(t, 2.0, value(t, c1))
	assert.Equal(t, 2.0, value(t, c2))
}
