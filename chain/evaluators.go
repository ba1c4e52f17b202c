package chain

import (
	"fmt"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/evaluator"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

// Evaluators returns the handler of every signed operation type.
func Evaluators() []evaluator.Evaluator {
	return []evaluator.Evaluator{
		evaluator.New(protocol.OpTransfer, applyTransfer),
		evaluator.New(protocol.OpTransferToVesting, applyTransferToVesting),
		evaluator.New(protocol.OpWithdrawVesting, applyWithdrawVesting),
		evaluator.New(protocol.OpAccountCreate, applyAccountCreate),
		evaluator.New(protocol.OpAccountUpdate, applyAccountUpdate),
		evaluator.New(protocol.OpAccountMetadata, applyAccountMetadata),
		evaluator.New(protocol.OpAccountWitnessProxy, applyAccountWitnessProxy),
		evaluator.New(protocol.OpDelegateVestingShares, applyDelegateVestingShares),
		evaluator.New(protocol.OpRequestAccountRecovery, applyRequestAccountRecovery),
		evaluator.New(protocol.OpRecoverAccount, applyRecoverAccount),
		evaluator.New(protocol.OpChangeRecoveryAccount, applyChangeRecoveryAccount),
		evaluator.New(protocol.OpCustomJSON, applyCustomJSON),
	}
}

// ──────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────

func applyTransfer(ctx *evaluator.Context, op *protocol.Transfer) error {
	from, err := ctx.State.Accounts.Get(op.From)
	if err != nil {
		return err
	}
	to, err := ctx.State.Accounts.Get(op.To)
	if err != nil {
		return err
	}
	if err := adjustBalance(ctx, from, op.Amount.Negate()); err != nil {
		return err
	}
	return adjustBalance(ctx, to, op.Amount)
}

func applyTransferToVesting(ctx *evaluator.Context, op *protocol.TransferToVesting) error {
	from, err := ctx.State.Accounts.Get(op.From)
	if err != nil {
		return err
	}
	to, err := ctx.State.Accounts.Get(op.Recipient())
	if err != nil {
		return err
	}
	if err := adjustBalance(ctx, from, op.Amount.Negate()); err != nil {
		return err
	}
	_, err = createVesting(ctx, to, op.Amount)
	return err
}

func applyWithdrawVesting(ctx *evaluator.Context, op *protocol.WithdrawVesting) error {
	acc, err := ctx.State.Accounts.Get(op.Account)
	if err != nil {
		return err
	}

	if op.VestingShares.IsZero() {
		if acc.VestingWithdrawRate.IsZero() {
			return chainledger.Invalid("vesting_shares", "no withdrawal to cancel")
		}
		return ctx.State.Accounts.Accounts.Modify(acc, func(a *account.Account) {
			a.VestingWithdrawRate = types.Zero(types.GESTS)
			a.NextVestingWithdrawal = types.MaxTimestamp
			a.ToWithdraw = 0
			a.Withdrawn = 0
		})
	}

	available := acc.AvailableVestingShares(false).Sub(ctx.State.Delegations.PendingReturn(acc.Name))
	if op.VestingShares.GreaterThan(available) {
		return fmt.Errorf("%w: %s can withdraw %s, requested %s",
			chainledger.ErrInsufficientVesting, acc.Name, available, op.VestingShares)
	}
	rate := op.VestingShares.Amount / int64(ctx.Params.VestingWithdrawIntervals)
	if rate == 0 {
		rate = 1
	}
	if acc.VestingWithdrawRate.Amount == rate && acc.ToWithdraw == op.VestingShares.Amount {
		return chainledger.Invalid("vesting_shares", "withdrawal unchanged")
	}
	return ctx.State.Accounts.Accounts.Modify(acc, func(a *account.Account) {
		a.VestingWithdrawRate = types.Vests(rate)
		a.NextVestingWithdrawal = ctx.Now.Add(ctx.Params.VestingWithdrawIntervalEvery)
		a.ToWithdraw = op.VestingShares.Amount
		a.Withdrawn = 0
	})
}

// ──────────────────────────────────────────────────
// Profile and proxy
// ──────────────────────────────────────────────────

func applyAccountMetadata(ctx *evaluator.Context, op *protocol.AccountMetadata) error {
	if _, err := ctx.State.Accounts.Get(op.Account); err != nil {
		return err
	}
	return setMetadata(ctx, op.Account, op.JSONMetadata)
}

func setMetadata(ctx *evaluator.Context, name, blob string) error {
	meta, err := ctx.State.Accounts.AccountMetadata(name)
	if err != nil {
		_, err = ctx.State.Accounts.Metadata.Create(func(m *account.AccountMetadata) {
			m.Account = name
			m.JSONMetadata = blob
		})
		return err
	}
	return ctx.State.Accounts.Metadata.Modify(meta, func(m *account.AccountMetadata) {
		m.JSONMetadata = blob
	})
}

func applyAccountWitnessProxy(ctx *evaluator.Context, op *protocol.AccountWitnessProxy) error {
	acc, err := ctx.State.Accounts.Get(op.Account)
	if err != nil {
		return err
	}
	if acc.Proxy == op.Proxy {
		return chainledger.Invalid("proxy", "proxy must change")
	}
	if !acc.CanVote {
		return fmt.Errorf("%w: %s cannot vote", chainledger.ErrInsufficientAuthority, acc.Name)
	}

	var proxy *account.Account
	if op.Proxy != "" {
		if proxy, err = ctx.State.Accounts.Get(op.Proxy); err != nil {
			return err
		}
		if err := checkProxyChain(ctx, acc.Name, proxy); err != nil {
			return err
		}
	}

	if acc.Proxy != "" {
		if err := propagateProxied(ctx, acc, proxyDeltaOf(acc, -1), 0); err != nil {
			return err
		}
	}
	if err := ctx.State.Accounts.Accounts.Modify(acc, func(a *account.Account) {
		a.Proxy = op.Proxy
		if proxy != nil {
			a.WitnessesVotedFor = 0
		}
	}); err != nil {
		return err
	}
	if proxy == nil {
		return nil
	}
	return propagateProxied(ctx, acc, proxyDeltaOf(acc, 1), 0)
}

func applyCustomJSON(ctx *evaluator.Context, op *protocol.CustomJSON) error {
	for _, name := range op.RequiredAuths {
		if !ctx.State.Accounts.Exists(name) {
			return fmt.Errorf("%w: %s", chainledger.ErrAccountNotFound, name)
		}
	}
	for _, name := range op.RequiredPostingAuths {
		if !ctx.State.Accounts.Exists(name) {
			return fmt.Errorf("%w: %s", chainledger.ErrAccountNotFound, name)
		}
	}
	return nil
}
