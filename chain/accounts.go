package chain

import (
	"fmt"

	"github.com/holiman/uint256"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/evaluator"
	"github.com/xraph/chainledger/global"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

// ──────────────────────────────────────────────────
// Liquid balances
// ──────────────────────────────────────────────────

// adjustBalance adds delta to the liquid GOLOS or GBG balance of acc.
// GBG changes first accrue the holding-time accumulator and pay interest
// once the compounding interval has passed.
func adjustBalance(ctx *evaluator.Context, acc *account.Account, delta types.Asset) error {
	switch delta.Symbol {
	case types.GOLOS:
		if acc.Balance.Amount+delta.Amount < 0 {
			return fmt.Errorf("%w: %s has %s, needs %s", chainledger.ErrInsufficientFunds, acc.Name, acc.Balance, delta.Negate())
		}
		return ctx.State.Accounts.Accounts.Modify(acc, func(a *account.Account) {
			a.Balance = a.Balance.Add(delta)
		})
	case types.GBG:
		if acc.GBGBalance.Amount+delta.Amount < 0 {
			return fmt.Errorf("%w: %s has %s, needs %s", chainledger.ErrInsufficientFunds, acc.Name, acc.GBGBalance, delta.Negate())
		}
		props, err := ctx.Props()
		if err != nil {
			return err
		}
		var interest int64
		err = ctx.State.Accounts.Accounts.Modify(acc, func(a *account.Account) {
			interest = accrueGBG(a, ctx.Now, props.GBGInterestRate, ctx.Params)
			a.GBGBalance = a.GBGBalance.Add(delta)
		})
		if err != nil || interest == 0 {
			return err
		}
		paid := types.GBGs(interest)
		if err := ctx.State.Global.Properties.Modify(props, func(p *global.DynamicGlobalProperties) {
			p.CurrentGBGSupply = p.CurrentGBGSupply.Add(paid)
		}); err != nil {
			return err
		}
		ctx.Emit(&protocol.Interest{Owner: acc.Name, Interest: paid})
		return nil
	default:
		return chainledger.Invalid("amount", "%s is not a liquid asset", delta.Symbol)
	}
}

// accrueGBG brings the GBG seconds accumulator of a up to now and, when due,
// converts it into interest credited to the balance. It returns the
// interest paid.
func accrueGBG(a *account.Account, now types.Timestamp, rate uint16, params *chainledger.Params) int64 {
	if a.GBGSecondsLastUpdate == now {
		return 0
	}
	if a.GBGBalance.IsPositive() {
		var held uint256.Int
		held.Mul(uint256.NewInt(uint64(a.GBGBalance.Amount)), uint256.NewInt(uint64(now.SecondsSince(a.GBGSecondsLastUpdate))))
		a.GBGSeconds.Add(&a.GBGSeconds, &held)
	}
	a.GBGSecondsLastUpdate = now

	if a.GBGSeconds.IsZero() || now.Before(a.GBGLastInterestPayment.Add(params.GBGCompoundingInterval)) {
		return 0
	}
	var interest uint256.Int
	interest.Div(&a.GBGSeconds, uint256.NewInt(chainledger.SecondsPerYear))
	interest.Mul(&interest, uint256.NewInt(uint64(rate)))
	interest.Div(&interest, uint256.NewInt(chainledger.Percent100))
	if !interest.IsUint64() || interest.Uint64() > 1<<62 {
		return 0
	}
	paid := int64(interest.Uint64())
	a.GBGBalance = a.GBGBalance.AddAmount(paid)
	a.GBGSeconds.Clear()
	a.GBGLastInterestPayment = now
	return paid
}

// ──────────────────────────────────────────────────
// Vesting
// ──────────────────────────────────────────────────

// createVesting converts golos into vesting shares of to at the current
// share price and returns the shares issued.
func createVesting(ctx *evaluator.Context, to *account.Account, golos types.Asset) (types.Asset, error) {
	props, err := ctx.Props()
	if err != nil {
		return types.Asset{}, err
	}
	vests := props.VestsFor(golos)
	if err := ctx.State.Accounts.Accounts.Modify(to, func(a *account.Account) {
		a.VestingShares = a.VestingShares.Add(vests)
	}); err != nil {
		return types.Asset{}, err
	}
	if err := ctx.State.Global.Properties.Modify(props, func(p *global.DynamicGlobalProperties) {
		p.TotalVestingFund = p.TotalVestingFund.Add(golos)
		p.TotalVestingShares = p.TotalVestingShares.Add(vests)
	}); err != nil {
		return types.Asset{}, err
	}
	return vests, adjustProxiedVotes(ctx, to, vests.Amount)
}

// AvailableVesting is the stake acc may still delegate: its own shares
// minus outgoing delegations, the rest of a running withdrawal and stake
// still waiting to come back from revoked delegations.
func AvailableVesting(s *store.State, acc *account.Account) types.Asset {
	return acc.AvailableVestingShares(true).Sub(s.Delegations.PendingReturn(acc.Name))
}

func spendableVesting(ctx *evaluator.Context, acc *account.Account) types.Asset {
	return AvailableVesting(ctx.State, acc)
}

// ──────────────────────────────────────────────────
// Witness proxies
// ──────────────────────────────────────────────────

// proxyDelta is the vote weight an account forwards: index 0 is its own
// stake, index i+1 the weight proxied to it at depth i.
type proxyDelta [chainledger.MaxProxyDepth + 1]int64

func proxyDeltaOf(a *account.Account, sign int64) proxyDelta {
	var d proxyDelta
	d[0] = sign * a.VestingShares.Amount
	for i, v := range a.ProxiedVSFVotes {
		d[i+1] = sign * v
	}
	return d
}

// adjustProxiedVotes forwards a change of acc's own stake up its proxy
// chain.
func adjustProxiedVotes(ctx *evaluator.Context, acc *account.Account, delta int64) error {
	if delta == 0 {
		return nil
	}
	var d proxyDelta
	d[0] = delta
	return propagateProxied(ctx, acc, d, 0)
}

// propagateProxied adds d to the proxied votes of every account up the
// proxy chain of acc, shifting one level per hop.
func propagateProxied(ctx *evaluator.Context, acc *account.Account, d proxyDelta, depth int) error {
	maxDepth := ctx.Params.MaxProxyRecursionDepth
	for cur := acc; cur.Proxy != "" && depth < maxDepth; depth++ {
		proxy, err := ctx.State.Accounts.Get(cur.Proxy)
		if err != nil {
			return err
		}
		if err := ctx.State.Accounts.Accounts.Modify(proxy, func(p *account.Account) {
			for i := maxDepth - depth - 1; i >= 0; i-- {
				p.ProxiedVSFVotes[i+depth] += d[i]
			}
		}); err != nil {
			return err
		}
		cur = proxy
	}
	return nil
}

// checkProxyChain rejects a new proxy for name that would loop back or
// exceed the recursion depth.
func checkProxyChain(ctx *evaluator.Context, name string, proxy *account.Account) error {
	path := map[string]struct{}{name: {}, proxy.Name: {}}
	for cur := proxy; cur.Proxy != ""; {
		next, err := ctx.State.Accounts.Get(cur.Proxy)
		if err != nil {
			return err
		}
		if _, seen := path[next.Name]; seen {
			return fmt.Errorf("%w: %s via %s", chainledger.ErrProxyCycle, name, next.Name)
		}
		path[next.Name] = struct{}{}
		if len(path) > ctx.Params.MaxProxyRecursionDepth {
			return fmt.Errorf("%w: %d accounts", chainledger.ErrProxyChainTooLong, len(path))
		}
		cur = next
	}
	return nil
}
