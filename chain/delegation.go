package chain

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/delegation"
	"github.com/xraph/chainledger/evaluator"
	"github.com/xraph/chainledger/global"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

// delegationInterest is the interest earned by amount at rate (basis points
// per year) over held seconds.
func delegationInterest(amount int64, rate uint16, held uint32) int64 {
	if amount <= 0 || rate == 0 || held == 0 {
		return 0
	}
	var v uint256.Int
	v.Mul(uint256.NewInt(uint64(amount)), uint256.NewInt(uint64(rate)))
	v.Mul(&v, uint256.NewInt(uint64(held)))
	v.Div(&v, uint256.NewInt(chainledger.Percent100*chainledger.SecondsPerYear))
	if !v.IsUint64() || v.Uint64() > 1<<62 {
		return 0
	}
	return int64(v.Uint64())
}

// settleDelegationInterest issues the interest d has earned since its last
// settlement as new vesting shares of the delegator or the delegatee and
// restarts accrual at now.
func settleDelegationInterest(ctx *evaluator.Context, d *delegation.VestingDelegation) error {
	interest := delegationInterest(d.VestingShares.Amount, d.InterestRate, ctx.Now.SecondsSince(d.Timestamp))
	if err := ctx.State.Delegations.Delegations.Modify(d, func(d *delegation.VestingDelegation) {
		d.Timestamp = ctx.Now
	}); err != nil {
		return err
	}
	if interest == 0 {
		return nil
	}

	payee := d.Delegator
	if d.PayoutStrategy == protocol.ToDelegatee {
		payee = d.Delegatee
	}
	acc, err := ctx.State.Accounts.Get(payee)
	if err != nil {
		return err
	}
	reward := types.Vests(interest)
	if err := ctx.State.Accounts.Accounts.Modify(acc, func(a *account.Account) {
		a.VestingShares = a.VestingShares.Add(reward)
		a.DelegationRewards += interest
	}); err != nil {
		return err
	}
	props, err := ctx.Props()
	if err != nil {
		return err
	}
	if err := ctx.State.Global.Properties.Modify(props, func(p *global.DynamicGlobalProperties) {
		p.TotalVestingShares = p.TotalVestingShares.Add(reward)
	}); err != nil {
		return err
	}
	ctx.Emit(&protocol.DelegationReward{
		Delegator:      d.Delegator,
		Delegatee:      d.Delegatee,
		PayoutStrategy: d.PayoutStrategy,
		VestingShares:  reward,
	})
	return adjustProxiedVotes(ctx, acc, interest)
}

// shiftDelegated moves delta between the delegated and received totals of
// the two accounts. A negative delta returns stake.
func shiftDelegated(ctx *evaluator.Context, delegator, delegatee *account.Account, delta types.Asset) error {
	if err := ctx.State.Accounts.Accounts.Modify(delegator, func(a *account.Account) {
		a.DelegatedVestingShares = a.DelegatedVestingShares.Add(delta)
	}); err != nil {
		return err
	}
	return ctx.State.Accounts.Accounts.Modify(delegatee, func(a *account.Account) {
		a.ReceivedVestingShares = a.ReceivedVestingShares.Add(delta)
	})
}

func applyDelegateVestingShares(ctx *evaluator.Context, op *protocol.DelegateVestingShares) error {
	delegator, err := ctx.State.Accounts.Get(op.Delegator)
	if err != nil {
		return err
	}
	delegatee, err := ctx.State.Accounts.Get(op.Delegatee)
	if err != nil {
		return err
	}
	if op.InterestRate > ctx.Params.MaxDelegationInterestRate {
		return chainledger.Invalid("interest_rate", "exceeds %d", ctx.Params.MaxDelegationInterestRate)
	}

	d, err := ctx.State.Delegations.Find(op.Delegator, op.Delegatee)
	switch {
	case errors.Is(err, chainledger.ErrDelegationNotFound):
		return createDelegation(ctx, delegator, delegatee, op)
	case err != nil:
		return err
	}

	if d.InterestRate != op.InterestRate || d.PayoutStrategy != op.PayoutStrategy {
		return fmt.Errorf("%w: %s -> %s", chainledger.ErrDelegationTermsChanged, op.Delegator, op.Delegatee)
	}
	current := d.VestingShares
	if op.VestingShares.Equal(current) {
		return fmt.Errorf("%w: %s", chainledger.ErrDelegationUnchanged, current)
	}

	if op.VestingShares.GreaterThan(current) {
		delta := op.VestingShares.Sub(current)
		if available := spendableVesting(ctx, delegator); delta.GreaterThan(available) {
			return fmt.Errorf("%w: %s can delegate %s more, requested %s",
				chainledger.ErrInsufficientVesting, delegator.Name, available, delta)
		}
		if err := settleDelegationInterest(ctx, d); err != nil {
			return err
		}
		if err := ctx.State.Delegations.Delegations.Modify(d, func(d *delegation.VestingDelegation) {
			d.VestingShares = op.VestingShares
		}); err != nil {
			return err
		}
		return shiftDelegated(ctx, delegator, delegatee, delta)
	}

	if op.VestingShares.IsPositive() && op.VestingShares.LessThan(ctx.Params.MinDelegation) {
		return chainledger.Invalid("vesting_shares", "below minimum delegation %s", ctx.Params.MinDelegation)
	}
	if ctx.Now.Before(d.MinDelegationTime) {
		return fmt.Errorf("%w: until %s", chainledger.ErrDelegationLocked, d.MinDelegationTime)
	}
	freed := current.Sub(op.VestingShares)
	if err := settleDelegationInterest(ctx, d); err != nil {
		return err
	}
	if err := shiftDelegated(ctx, delegator, delegatee, freed.Negate()); err != nil {
		return err
	}
	if _, err := ctx.State.Delegations.Expirations.Create(func(e *delegation.Expiration) {
		e.Delegator = op.Delegator
		e.VestingShares = freed
		e.Expiration = ctx.Now.Add(ctx.Params.DelegationReturnPeriod)
	}); err != nil {
		return err
	}
	if op.VestingShares.IsZero() {
		return ctx.State.Delegations.Delegations.Remove(d)
	}
	return ctx.State.Delegations.Delegations.Modify(d, func(d *delegation.VestingDelegation) {
		d.VestingShares = op.VestingShares
	})
}

func createDelegation(ctx *evaluator.Context, delegator, delegatee *account.Account, op *protocol.DelegateVestingShares) error {
	if op.VestingShares.IsZero() {
		return fmt.Errorf("%w: %s -> %s", chainledger.ErrDelegationNotFound, op.Delegator, op.Delegatee)
	}
	if op.VestingShares.LessThan(ctx.Params.MinDelegation) {
		return chainledger.Invalid("vesting_shares", "below minimum delegation %s", ctx.Params.MinDelegation)
	}
	if available := spendableVesting(ctx, delegator); op.VestingShares.GreaterThan(available) {
		return fmt.Errorf("%w: %s can delegate %s, requested %s",
			chainledger.ErrInsufficientVesting, delegator.Name, available, op.VestingShares)
	}
	if _, err := ctx.State.Delegations.Delegations.Create(func(d *delegation.VestingDelegation) {
		d.Delegator = op.Delegator
		d.Delegatee = op.Delegatee
		d.VestingShares = op.VestingShares
		d.InterestRate = op.InterestRate
		d.PayoutStrategy = op.PayoutStrategy
		d.MinDelegationTime = ctx.Now.Add(ctx.Params.MinDelegationLock)
		d.Timestamp = ctx.Now
	}); err != nil {
		return err
	}
	return shiftDelegated(ctx, delegator, delegatee, op.VestingShares)
}
