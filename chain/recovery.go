package chain

import (
	"fmt"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/evaluator"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

// provesRecentOwner reports whether claimed is the current owner authority
// of auth's account or one it held within the recovery period.
func provesRecentOwner(ctx *evaluator.Context, auth *account.AccountAuthority, claimed types.Authority) bool {
	if auth.Owner.Equal(claimed) {
		return true
	}
	horizon := ctx.Now.Add(-ctx.Params.OwnerAuthRecoveryPeriod)
	for h := range ctx.State.Accounts.OwnerHistoryOf(auth.Account) {
		if h.LastValidTime.Before(horizon) {
			continue
		}
		if h.PreviousOwnerAuthority.Equal(claimed) {
			return true
		}
	}
	return false
}

func applyRequestAccountRecovery(ctx *evaluator.Context, op *protocol.RequestAccountRecovery) error {
	target, err := ctx.State.Accounts.Get(op.AccountToRecover)
	if err != nil {
		return err
	}
	if target.RecoveryAccount != op.RecoveryAccount {
		return fmt.Errorf("%w: %s for %s", chainledger.ErrNotRecoveryAccount, op.RecoveryAccount, op.AccountToRecover)
	}

	existing, err := ctx.State.Accounts.RecoveryRequest(op.AccountToRecover)
	if op.IsCancel() {
		if err != nil {
			return err
		}
		return ctx.State.Accounts.RecoveryRequests.Remove(existing)
	}
	if err == nil {
		return fmt.Errorf("%w: %s until %s", chainledger.ErrRecoveryRequestExists, op.AccountToRecover, existing.Expires)
	}

	if err := checkAuthorityMembers(ctx, "new_owner_authority", op.NewOwnerAuthority); err != nil {
		return err
	}
	auth, err := ctx.State.Accounts.Authority(op.AccountToRecover)
	if err != nil {
		return err
	}
	if !provesRecentOwner(ctx, auth, op.RecentOwnerAuthority) {
		return fmt.Errorf("%w: %s", chainledger.ErrRecoveryProofInvalid, op.AccountToRecover)
	}

	_, err = ctx.State.Accounts.RecoveryRequests.Create(func(r *account.AccountRecoveryRequest) {
		r.AccountToRecover = op.AccountToRecover
		r.NewOwnerAuthority = op.NewOwnerAuthority.Normalize()
		r.Expires = ctx.Now.Add(ctx.Params.AccountRecoveryRequestExpiry)
	})
	return err
}

func applyRecoverAccount(ctx *evaluator.Context, op *protocol.RecoverAccount) error {
	acc, err := ctx.State.Accounts.Get(op.AccountToRecover)
	if err != nil {
		return err
	}
	if acc.LastAccountRecovery != 0 && ctx.Now.Before(acc.LastAccountRecovery.Add(ctx.Params.OwnerUpdateLimit)) {
		return fmt.Errorf("%w: last recovery at %s", chainledger.ErrOwnerUpdateTooSoon, acc.LastAccountRecovery)
	}
	req, err := ctx.State.Accounts.RecoveryRequest(op.AccountToRecover)
	if err != nil {
		return err
	}
	if !req.NewOwnerAuthority.Equal(op.NewOwnerAuthority) {
		return fmt.Errorf("%w: %s", chainledger.ErrRecoveryRequestMismatch, op.AccountToRecover)
	}
	auth, err := ctx.State.Accounts.Authority(op.AccountToRecover)
	if err != nil {
		return err
	}

	if err := ctx.State.Accounts.RecoveryRequests.Remove(req); err != nil {
		return err
	}
	if err := updateOwner(ctx, auth, op.NewOwnerAuthority); err != nil {
		return err
	}
	return ctx.State.Accounts.Accounts.Modify(acc, func(a *account.Account) {
		a.LastAccountRecovery = ctx.Now
	})
}

func applyChangeRecoveryAccount(ctx *evaluator.Context, op *protocol.ChangeRecoveryAccount) error {
	if !ctx.State.Accounts.Exists(op.NewRecoveryAccount) {
		return fmt.Errorf("%w: %s", chainledger.ErrAccountNotFound, op.NewRecoveryAccount)
	}
	acc, err := ctx.State.Accounts.Get(op.AccountToRecover)
	if err != nil {
		return err
	}

	pending, ok := ctx.State.Accounts.ChangeRecoveryRequest(op.AccountToRecover)
	if op.NewRecoveryAccount == acc.RecoveryAccount {
		if !ok {
			return fmt.Errorf("%w: %s", chainledger.ErrChangeRecoveryNotPending, op.AccountToRecover)
		}
		return ctx.State.Accounts.ChangeRecoveryRequests.Remove(pending)
	}
	if ok {
		return fmt.Errorf("%w: %s to %s effective %s",
			chainledger.ErrChangeRecoveryExists, op.AccountToRecover, pending.RecoveryAccount, pending.EffectiveOn)
	}
	_, err = ctx.State.Accounts.ChangeRecoveryRequests.Create(func(r *account.ChangeRecoveryAccountRequest) {
		r.AccountToRecover = op.AccountToRecover
		r.RecoveryAccount = op.NewRecoveryAccount
		r.EffectiveOn = ctx.Now.Add(ctx.Params.ChangeRecoveryAccountDelay)
	})
	return err
}
