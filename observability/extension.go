// Package observability provides a metrics plugin for the chain ledger that
// records block, transaction and fork events via a MetricFactory.
package observability

import (
	"context"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/plugin"
	"github.com/xraph/chainledger/protocol"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnBlockApplied       = (*MetricsExtension)(nil)
	_ plugin.OnBlockReverted      = (*MetricsExtension)(nil)
	_ plugin.OnIrreversible       = (*MetricsExtension)(nil)
	_ plugin.OnTransactionApplied = (*MetricsExtension)(nil)
	_ plugin.OnTransactionFailed  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// Gauge interface for metric gauges.
type Gauge interface {
	Set(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// failureKinds are the taxonomy kinds a failed transaction is counted under.
var failureKinds = []chainledger.ErrorKind{
	chainledger.KindMalformedOperation,
	chainledger.KindInsufficientAuthority,
	chainledger.KindInsufficientResource,
	chainledger.KindInvariantViolation,
	chainledger.KindNotFound,
	chainledger.KindDuplicateRequest,
	chainledger.KindInternal,
}

// MetricsExtension records ledger metrics.
// Register it as a ledger plugin to track block application.
type MetricsExtension struct {
	factory MetricFactory

	// Block metrics
	BlocksApplied     Counter
	BlocksReverted    Counter
	HeadBlock         Gauge
	IrreversibleBlock Gauge
	BlockTransactions Histogram
	BlockVirtualOps   Histogram

	// Transaction metrics
	TransactionsApplied Counter
	TransactionsFailed  Counter
	FailuresByKind      map[chainledger.ErrorKind]Counter

	// Virtual operation metrics
	VirtualOps        Counter
	DelegationReturns Counter
	DelegationRewards Counter
	WithdrawFills     Counter
	InterestPayments  Counter
	RecoveryChanges   Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory for a Prometheus registry.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	m := &MetricsExtension{
		factory: factory,

		// Block metrics
		BlocksApplied:     factory.Counter("chainledger.block.applied"),
		BlocksReverted:    factory.Counter("chainledger.block.reverted"),
		HeadBlock:         factory.Gauge("chainledger.block.head"),
		IrreversibleBlock: factory.Gauge("chainledger.block.irreversible"),
		BlockTransactions: factory.Histogram("chainledger.block.transactions"),
		BlockVirtualOps:   factory.Histogram("chainledger.block.virtual_ops"),

		// Transaction metrics
		TransactionsApplied: factory.Counter("chainledger.tx.applied"),
		TransactionsFailed:  factory.Counter("chainledger.tx.failed"),
		FailuresByKind:      make(map[chainledger.ErrorKind]Counter, len(failureKinds)),

		// Virtual operation metrics
		VirtualOps:        factory.Counter("chainledger.vop.emitted"),
		DelegationReturns: factory.Counter("chainledger.vop.return_vesting_delegation"),
		DelegationRewards: factory.Counter("chainledger.vop.delegation_reward"),
		WithdrawFills:     factory.Counter("chainledger.vop.fill_vesting_withdraw"),
		InterestPayments:  factory.Counter("chainledger.vop.interest"),
		RecoveryChanges:   factory.Counter("chainledger.vop.changed_recovery_account"),
	}
	for _, kind := range failureKinds {
		m.FailuresByKind[kind] = factory.Counter("chainledger.tx.failed." + string(kind))
	}
	return m
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Block hooks
// ──────────────────────────────────────────────────

// OnBlockApplied implements plugin.OnBlockApplied.
func (m *MetricsExtension) OnBlockApplied(_ context.Context, b *protocol.AnnotatedBlock) error {
	m.BlocksApplied.Inc()
	m.HeadBlock.Set(float64(b.BlockNum))
	m.BlockTransactions.Observe(float64(len(b.TransactionIDs)))
	m.BlockVirtualOps.Observe(float64(len(b.VirtualOperations)))
	m.VirtualOps.Add(float64(len(b.VirtualOperations)))

	for _, vop := range b.VirtualOperations {
		switch vop.Op.(type) {
		case *protocol.ReturnVestingDelegation:
			m.DelegationReturns.Inc()
		case *protocol.DelegationReward:
			m.DelegationRewards.Inc()
		case *protocol.FillVestingWithdraw:
			m.WithdrawFills.Inc()
		case *protocol.Interest:
			m.InterestPayments.Inc()
		case *protocol.ChangedRecoveryAccount:
			m.RecoveryChanges.Inc()
		}
	}
	return nil
}

// OnBlockReverted implements plugin.OnBlockReverted.
func (m *MetricsExtension) OnBlockReverted(_ context.Context, blockNum uint32, _ protocol.BlockID) error {
	m.BlocksReverted.Inc()
	m.HeadBlock.Set(float64(blockNum - 1))
	return nil
}

// OnIrreversible implements plugin.OnIrreversible.
func (m *MetricsExtension) OnIrreversible(_ context.Context, blockNum uint32) error {
	m.IrreversibleBlock.Set(float64(blockNum))
	return nil
}

// ──────────────────────────────────────────────────
// Transaction hooks
// ──────────────────────────────────────────────────

// OnTransactionApplied implements plugin.OnTransactionApplied.
func (m *MetricsExtension) OnTransactionApplied(_ context.Context, _ uint32, _ int, _ protocol.TransactionID) error {
	m.TransactionsApplied.Inc()
	return nil
}

// OnTransactionFailed implements plugin.OnTransactionFailed.
func (m *MetricsExtension) OnTransactionFailed(_ context.Context, _ uint32, _ int, err error) error {
	m.TransactionsFailed.Inc()
	if c, ok := m.FailuresByKind[chainledger.Kind(err)]; ok {
		c.Inc()
	}
	return nil
}
