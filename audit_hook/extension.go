// Package audithook bridges ledger events to an audit trail backend. It
// records the security relevant history of accounts: authority changes,
// recovery requests and their outcome, proxy and delegation changes, and
// transactions rejected for missing authority.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/plugin"
	"github.com/xraph/chainledger/protocol"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnOperationApplied  = (*Extension)(nil)
	_ plugin.OnBlockApplied      = (*Extension)(nil)
	_ plugin.OnTransactionFailed = (*Extension)(nil)
	_ plugin.OnBlockReverted     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	BlockNum   uint32         `json:"block_num"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Operation hooks
// ──────────────────────────────────────────────────

// OnOperationApplied implements plugin.OnOperationApplied.
func (e *Extension) OnOperationApplied(ctx context.Context, blockNum uint32, index int, op protocol.Operation) error {
	switch op := op.(type) {
	case *protocol.AccountCreate:
		return e.record(ctx, blockNum, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
			ResourceAccount, op.NewAccountName, CategoryAccount, nil,
			"creator", op.Creator,
			"fee", op.Fee.String(),
			"delegation", op.Delegation.String(),
			"trx_in_block", index,
		)

	case *protocol.AccountUpdate:
		if op.Owner != nil {
			return e.record(ctx, blockNum, ActionOwnerChanged, SeverityWarning, OutcomeSuccess,
				ResourceAccount, op.Account, CategorySecurity, nil,
				"owner_keys", len(op.Owner.KeyAuths),
				"owner_accounts", len(op.Owner.AccountAuths),
				"trx_in_block", index,
			)
		}
		return e.record(ctx, blockNum, ActionAccountUpdated, SeverityInfo, OutcomeSuccess,
			ResourceAccount, op.Account, CategoryAccount, nil,
			"active_changed", op.Active != nil,
			"posting_changed", op.Posting != nil,
			"trx_in_block", index,
		)

	case *protocol.AccountWitnessProxy:
		return e.record(ctx, blockNum, ActionProxyChanged, SeverityInfo, OutcomeSuccess,
			ResourceAccount, op.Account, CategoryAccount, nil,
			"proxy", op.Proxy,
		)

	case *protocol.DelegateVestingShares:
		return e.record(ctx, blockNum, ActionDelegationSet, SeverityInfo, OutcomeSuccess,
			ResourceDelegation, op.Delegator+"/"+op.Delegatee, CategoryStake, nil,
			"vesting_shares", op.VestingShares.String(),
			"interest_rate", op.InterestRate,
			"payout_strategy", op.PayoutStrategy.String(),
		)

	case *protocol.RequestAccountRecovery:
		action := ActionRecoveryRequested
		if op.IsCancel() {
			action = ActionRecoveryCanceled
		}
		return e.record(ctx, blockNum, action, SeverityWarning, OutcomeSuccess,
			ResourceRecovery, op.AccountToRecover, CategorySecurity, nil,
			"recovery_account", op.RecoveryAccount,
		)

	case *protocol.RecoverAccount:
		return e.record(ctx, blockNum, ActionAccountRecovered, SeverityCritical, OutcomeSuccess,
			ResourceRecovery, op.AccountToRecover, CategorySecurity, nil,
			"trx_in_block", index,
		)

	case *protocol.ChangeRecoveryAccount:
		return e.record(ctx, blockNum, ActionRecoveryChangeRequested, SeverityWarning, OutcomeSuccess,
			ResourceRecovery, op.AccountToRecover, CategorySecurity, nil,
			"new_recovery_account", op.NewRecoveryAccount,
		)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Block hooks
// ──────────────────────────────────────────────────

// OnBlockApplied records recovery account changes that took effect in the
// block sweep.
func (e *Extension) OnBlockApplied(ctx context.Context, b *protocol.AnnotatedBlock) error {
	for _, vop := range b.VirtualOperations {
		changed, ok := vop.Op.(*protocol.ChangedRecoveryAccount)
		if !ok {
			continue
		}
		if err := e.record(ctx, b.BlockNum, ActionRecoveryAccountChanged, SeverityWarning, OutcomeSuccess,
			ResourceRecovery, changed.Account, CategorySecurity, nil,
			"old_recovery_account", changed.OldRecoveryAccount,
			"new_recovery_account", changed.NewRecoveryAccount,
		); err != nil {
			return err
		}
	}
	return nil
}

// OnBlockReverted implements plugin.OnBlockReverted.
func (e *Extension) OnBlockReverted(ctx context.Context, blockNum uint32, blockID protocol.BlockID) error {
	return e.record(ctx, blockNum, ActionBlockReverted, SeverityWarning, OutcomeSuccess,
		ResourceBlock, blockID.String(), CategoryChain, nil,
	)
}

// OnTransactionFailed records authority rejections and duplicate requests.
// Other failures are not security relevant and are skipped.
func (e *Extension) OnTransactionFailed(ctx context.Context, blockNum uint32, index int, err error) error {
	var action, severity string
	switch chainledger.Kind(err) {
	case chainledger.KindInsufficientAuthority:
		action, severity = ActionAuthorityRejected, SeverityWarning
	case chainledger.KindDuplicateRequest:
		action, severity = ActionDuplicateRequest, SeverityInfo
	default:
		return nil
	}

	opType := ""
	var txErr *chainledger.TransactionError
	if errors.As(err, &txErr) {
		opType = txErr.OpType
	}
	return e.record(ctx, blockNum, action, severity, OutcomeFailure,
		ResourceTransaction, fmt.Sprintf("%d:%d", blockNum, index), CategorySecurity, err,
		"op_type", opType,
	)
}

// ──────────────────────────────────────────────────
// Internal
// ──────────────────────────────────────────────────

func (e *Extension) record(
	ctx context.Context,
	blockNum uint32,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		BlockNum:   blockNum,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
