package chain

import (
	"fmt"
	"slices"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/evaluator"
	"github.com/xraph/chainledger/global"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

// sweep runs the end-of-block maintenance passes in their fixed order. Each
// pass collects the due objects before mutating, so a second run at the
// same time finds nothing to do.
func sweep(ctx *evaluator.Context) error {
	for _, pass := range []func(*evaluator.Context) error{
		sweepVestingWithdrawals,
		sweepDelegationExpirations,
		sweepRecoveryRequests,
		sweepChangeRecoveryRequests,
	} {
		if err := pass(ctx); err != nil {
			return err
		}
	}
	return nil
}

func dueBy(now types.Timestamp) func(account.TimeKey) bool {
	return func(k account.TimeKey) bool { return !k.First.After(now) }
}

var sweepStart = chainbase.MakePair(types.Timestamp(0), chainbase.ID(0))

func sweepVestingWithdrawals(ctx *evaluator.Context) error {
	accounts := ctx.State.Accounts
	due := slices.Collect(accounts.ByNextVestingWithdrawal.While(sweepStart, dueBy(ctx.Now)))
	for _, acc := range due {
		if err := fillVestingWithdraw(ctx, acc); err != nil {
			return fmt.Errorf("withdraw of %s: %w", acc.Name, err)
		}
	}
	return nil
}

func fillVestingWithdraw(ctx *evaluator.Context, acc *account.Account) error {
	remaining := acc.ToWithdraw - acc.Withdrawn
	amount := min(acc.VestingWithdrawRate.Amount, remaining)
	available := acc.AvailableVestingShares(false).Sub(ctx.State.Delegations.PendingReturn(acc.Name))
	amount = min(amount, max(available.Amount, 0))

	withdrawn := acc.Withdrawn + amount
	if withdrawn > acc.ToWithdraw {
		return fmt.Errorf("%w: %s would reach %d of %d", chainledger.ErrWithdrawExceeded, acc.Name, withdrawn, acc.ToWithdraw)
	}

	props, err := ctx.Props()
	if err != nil {
		return err
	}
	vests := types.Vests(amount)
	golos := props.GolosFor(vests)
	done := withdrawn >= acc.ToWithdraw || acc.VestingShares.Amount-amount <= 0

	if err := ctx.State.Accounts.Accounts.Modify(acc, func(a *account.Account) {
		a.VestingShares = a.VestingShares.Sub(vests)
		a.Balance = a.Balance.Add(golos)
		a.Withdrawn = withdrawn
		if done {
			a.VestingWithdrawRate = types.Zero(types.GESTS)
			a.NextVestingWithdrawal = types.MaxTimestamp
			a.ToWithdraw = 0
			a.Withdrawn = 0
		} else {
			a.NextVestingWithdrawal = a.NextVestingWithdrawal.Add(ctx.Params.VestingWithdrawIntervalEvery)
		}
	}); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if err := ctx.State.Global.Properties.Modify(props, func(p *global.DynamicGlobalProperties) {
		p.TotalVestingShares = p.TotalVestingShares.Sub(vests)
		p.TotalVestingFund = p.TotalVestingFund.Sub(golos)
	}); err != nil {
		return err
	}
	ctx.Emit(&protocol.FillVestingWithdraw{
		FromAccount: acc.Name,
		ToAccount:   acc.Name,
		Withdrawn:   vests,
		Deposited:   golos,
	})
	return adjustProxiedVotes(ctx, acc, -amount)
}

func sweepDelegationExpirations(ctx *evaluator.Context) error {
	for _, e := range ctx.State.Delegations.Due(ctx.Now) {
		if _, err := ctx.State.Accounts.Get(e.Delegator); err != nil {
			return err
		}
		if err := ctx.State.Delegations.Expirations.Remove(e); err != nil {
			return err
		}
		ctx.Emit(&protocol.ReturnVestingDelegation{Account: e.Delegator, VestingShares: e.VestingShares})
	}
	return nil
}

func sweepRecoveryRequests(ctx *evaluator.Context) error {
	accounts := ctx.State.Accounts
	expired := slices.Collect(accounts.RecoveryByExpiration.While(sweepStart, dueBy(ctx.Now)))
	for _, r := range expired {
		if err := accounts.RecoveryRequests.Remove(r); err != nil {
			return err
		}
	}

	horizon := ctx.Now.Add(-ctx.Params.OwnerAuthRecoveryPeriod)
	stale := slices.Collect(accounts.OwnerHistoryByLastValid.While(sweepStart,
		func(k account.TimeKey) bool { return k.First.Before(horizon) }))
	for _, h := range stale {
		if err := accounts.OwnerHistory.Remove(h); err != nil {
			return err
		}
	}
	return nil
}

func sweepChangeRecoveryRequests(ctx *evaluator.Context) error {
	accounts := ctx.State.Accounts
	effective := slices.Collect(accounts.ChangeRecoveryByEffectiveOn.While(sweepStart, dueBy(ctx.Now)))
	for _, r := range effective {
		acc, err := accounts.Get(r.AccountToRecover)
		if err != nil {
			return err
		}
		old := acc.RecoveryAccount
		if old != r.RecoveryAccount {
			if err := accounts.Accounts.Modify(acc, func(a *account.Account) {
				a.RecoveryAccount = r.RecoveryAccount
			}); err != nil {
				return err
			}
			ctx.Emit(&protocol.ChangedRecoveryAccount{
				Account:            acc.Name,
				OldRecoveryAccount: old,
				NewRecoveryAccount: r.RecoveryAccount,
			})
		}
		if err := accounts.ChangeRecoveryRequests.Remove(r); err != nil {
			return err
		}
	}
	return nil
}
