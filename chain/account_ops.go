package chain

import (
	"fmt"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/delegation"
	"github.com/xraph/chainledger/evaluator"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

// checkAuthorityMembers verifies that every account named by auth exists
// and that auth stays within the membership limit.
func checkAuthorityMembers(ctx *evaluator.Context, field string, auth types.Authority) error {
	if auth.Size() > ctx.Params.MaxAuthorityMembership {
		return chainledger.Invalid(field, "more than %d members", ctx.Params.MaxAuthorityMembership)
	}
	for _, aw := range auth.AccountAuths {
		if !ctx.State.Accounts.Exists(aw.Account) {
			return fmt.Errorf("%w: %s member %s", chainledger.ErrAccountNotFound, field, aw.Account)
		}
	}
	return nil
}

// updateOwner installs owner for the account of auth and records the
// superseded authority as valid until now.
func updateOwner(ctx *evaluator.Context, auth *account.AccountAuthority, owner types.Authority) error {
	if _, err := ctx.State.Accounts.OwnerHistory.Create(func(h *account.OwnerAuthorityHistory) {
		h.Account = auth.Account
		h.PreviousOwnerAuthority = auth.Owner.Clone()
		h.LastValidTime = ctx.Now
	}); err != nil {
		return err
	}
	return ctx.State.Accounts.Authorities.Modify(auth, func(a *account.AccountAuthority) {
		a.Owner = owner.Normalize()
		a.LastOwnerUpdate = ctx.Now
	})
}

func applyAccountCreate(ctx *evaluator.Context, op *protocol.AccountCreate) error {
	creator, err := ctx.State.Accounts.Get(op.Creator)
	if err != nil {
		return err
	}
	if ctx.State.Accounts.Exists(op.NewAccountName) {
		return fmt.Errorf("%w: %s", chainledger.ErrAccountExists, op.NewAccountName)
	}
	for _, f := range []struct {
		field string
		auth  types.Authority
	}{{"owner", op.Owner}, {"active", op.Active}, {"posting", op.Posting}} {
		if err := checkAuthorityMembers(ctx, f.field, f.auth); err != nil {
			return err
		}
	}

	props, err := ctx.Props()
	if err != nil {
		return err
	}
	if op.Fee.Add(props.GolosFor(op.Delegation)).LessThan(ctx.Params.AccountCreationFee) {
		return fmt.Errorf("%w: fee and delegation below account creation fee %s",
			chainledger.ErrInsufficientFunds, ctx.Params.AccountCreationFee)
	}
	if op.Delegation.IsPositive() {
		if available := spendableVesting(ctx, creator); op.Delegation.GreaterThan(available) {
			return fmt.Errorf("%w: %s can delegate %s, requested %s",
				chainledger.ErrInsufficientVesting, creator.Name, available, op.Delegation)
		}
	}
	if err := adjustBalance(ctx, creator, op.Fee.Negate()); err != nil {
		return err
	}

	created, err := ctx.State.Accounts.Create(op.NewAccountName, ctx.Now, func(a *account.Account) {
		a.MemoKey = op.MemoKey
		a.RecoveryAccount = op.Creator
		a.ReceivedVestingShares = op.Delegation
		a.GBGSecondsLastUpdate = ctx.Now
		a.GBGLastInterestPayment = ctx.Now
	})
	if err != nil {
		return err
	}
	if _, err := ctx.State.Accounts.Authorities.Create(func(a *account.AccountAuthority) {
		a.Account = op.NewAccountName
		a.Owner = op.Owner.Normalize()
		a.Active = op.Active.Normalize()
		a.Posting = op.Posting.Normalize()
	}); err != nil {
		return err
	}
	if op.JSONMetadata != "" {
		if err := setMetadata(ctx, op.NewAccountName, op.JSONMetadata); err != nil {
			return err
		}
	}
	if op.Fee.IsPositive() {
		if _, err := createVesting(ctx, created, op.Fee); err != nil {
			return err
		}
	}
	if !op.Delegation.IsPositive() {
		return nil
	}

	if err := ctx.State.Accounts.Accounts.Modify(creator, func(a *account.Account) {
		a.DelegatedVestingShares = a.DelegatedVestingShares.Add(op.Delegation)
	}); err != nil {
		return err
	}
	_, err = ctx.State.Delegations.Delegations.Create(func(d *delegation.VestingDelegation) {
		d.Delegator = op.Creator
		d.Delegatee = op.NewAccountName
		d.VestingShares = op.Delegation
		d.PayoutStrategy = protocol.ToDelegator
		d.MinDelegationTime = ctx.Now.Add(ctx.Params.CreateAccountDelegationLock)
		d.Timestamp = ctx.Now
	})
	return err
}

func applyAccountUpdate(ctx *evaluator.Context, op *protocol.AccountUpdate) error {
	acc, err := ctx.State.Accounts.Get(op.Account)
	if err != nil {
		return err
	}
	auth, err := ctx.State.Accounts.Authority(op.Account)
	if err != nil {
		return err
	}

	if op.Owner != nil {
		if auth.LastOwnerUpdate != 0 && ctx.Now.Before(auth.LastOwnerUpdate.Add(ctx.Params.OwnerUpdateLimit)) {
			return fmt.Errorf("%w: last change at %s", chainledger.ErrOwnerUpdateTooSoon, auth.LastOwnerUpdate)
		}
		if err := checkAuthorityMembers(ctx, "owner", *op.Owner); err != nil {
			return err
		}
	}
	if op.Active != nil {
		if err := checkAuthorityMembers(ctx, "active", *op.Active); err != nil {
			return err
		}
	}
	if op.Posting != nil {
		if err := checkAuthorityMembers(ctx, "posting", *op.Posting); err != nil {
			return err
		}
	}

	if op.Owner != nil {
		if err := updateOwner(ctx, auth, *op.Owner); err != nil {
			return err
		}
	}
	if op.Active != nil || op.Posting != nil {
		if err := ctx.State.Accounts.Authorities.Modify(auth, func(a *account.AccountAuthority) {
			if op.Active != nil {
				a.Active = op.Active.Normalize()
			}
			if op.Posting != nil {
				a.Posting = op.Posting.Normalize()
			}
		}); err != nil {
			return err
		}
	}
	if err := ctx.State.Accounts.Accounts.Modify(acc, func(a *account.Account) {
		if !op.MemoKey.IsZero() {
			a.MemoKey = op.MemoKey
		}
		a.LastAccountUpdate = ctx.Now
	}); err != nil {
		return err
	}
	if op.JSONMetadata == "" {
		return nil
	}
	return setMetadata(ctx, op.Account, op.JSONMetadata)
}
