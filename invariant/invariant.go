// Package invariant audits committed ledger state for consistency between
// tables. Audits are read-only and run their checks in parallel on a worker
// pool while holding the ledger read lock, so they always see the state
// between two blocks.
package invariant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/id"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

// Reader gives access to committed state.
type Reader interface {
	WithReadLock(fn func(*store.State))
}

// Check inspects one aspect of the state and returns every violation found.
type Check struct {
	Name string
	Run  func(s *store.State) []error
}

// Violation is a failed check. It wraps ErrInvariantViolation.
type Violation struct {
	Check string
	Err   error
}

func (v *Violation) Error() string {
	return fmt.Sprintf("invariant %s: %v", v.Check, v.Err)
}

func (v *Violation) Unwrap() []error {
	return []error{chainledger.ErrInvariantViolation, v.Err}
}

// Checker runs a set of checks.
type Checker struct {
	checks  []Check
	workers int
	logger  *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithWorkers sets the pool size. Values below one mean one worker.
func WithWorkers(n int) Option {
	return func(c *Checker) { c.workers = max(n, 1) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// WithCheck adds a check to the default set.
func WithCheck(check Check) Option {
	return func(c *Checker) { c.checks = append(c.checks, check) }
}

// New creates a checker with the default checks.
func New(opts ...Option) *Checker {
	c := &Checker{
		checks:  Defaults(),
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Checks returns the names of the configured checks.
func (c *Checker) Checks() []string {
	names := make([]string, len(c.checks))
	for i, check := range c.checks {
		names[i] = check.Name
	}
	return names
}

// Audit runs every check against the committed state of r. It returns nil
// when the state is consistent and a chainledger.MultiError of *Violation
// otherwise.
func (c *Checker) Audit(ctx context.Context, r Reader) error {
	start := time.Now()
	auditID := id.NewAuditID()
	var (
		mu     sync.Mutex
		result chainledger.MultiError
	)

	pool := pond.NewPool(c.workers, pond.WithQueueSize(len(c.checks)))
	defer pool.StopAndWait()

	var waitErr error
	r.WithReadLock(func(s *store.State) {
		group := pool.NewGroupContext(ctx)
		groupCtx := group.Context()
		for _, check := range c.checks {
			group.Submit(func() {
				if groupCtx.Err() != nil {
					return
				}
				errs := check.Run(s)
				if len(errs) == 0 {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				for _, err := range errs {
					result.Add(&Violation{Check: check.Name, Err: err})
				}
			})
		}
		waitErr = group.Wait()
	})
	if waitErr != nil && !errors.Is(waitErr, pond.ErrGroupStopped) {
		return fmt.Errorf("invariant: audit: %w", waitErr)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("invariant: audit: %w", err)
	}

	c.logger.Debug("invariant audit finished",
		"audit_id", auditID.String(),
		"checks", len(c.checks),
		"violations", len(result.Errors),
		"elapsed", time.Since(start),
	)
	return result.ErrOrNil()
}

// ──────────────────────────────────────────────────
// Default checks
// ──────────────────────────────────────────────────

// Defaults returns the built-in checks.
func Defaults() []Check {
	return []Check{
		{Name: "effective_vesting", Run: checkEffectiveVesting},
		{Name: "vesting_withdrawals", Run: checkWithdrawals},
		{Name: "delegated_totals", Run: checkDelegatedTotals},
		{Name: "received_totals", Run: checkReceivedTotals},
		{Name: "total_vesting_shares", Run: checkTotalVesting},
		{Name: "pending_returns", Run: checkPendingReturns},
		{Name: "recovery_requests", Run: checkRecoveryRequests},
		{Name: "proxies", Run: checkProxies},
		{Name: "bandwidth", Run: checkBandwidth},
	}
}

func checkEffectiveVesting(s *store.State) []error {
	var errs []error
	for a := range s.Accounts.Accounts.Scan() {
		eff := a.EffectiveVestingShares()
		if eff.IsNegative() {
			errs = append(errs, fmt.Errorf("account %s: effective vesting %s is negative", a.Name, eff))
		}
		if a.DelegatedVestingShares.IsNegative() || a.ReceivedVestingShares.IsNegative() {
			errs = append(errs, fmt.Errorf("account %s: negative delegated %s or received %s",
				a.Name, a.DelegatedVestingShares, a.ReceivedVestingShares))
		}
		if a.DelegatedVestingShares.GreaterThan(a.VestingShares) {
			errs = append(errs, fmt.Errorf("account %s: delegated %s exceeds own vesting %s",
				a.Name, a.DelegatedVestingShares, a.VestingShares))
		}
	}
	return errs
}

func checkWithdrawals(s *store.State) []error {
	var errs []error
	for a := range s.Accounts.Accounts.Scan() {
		if a.Withdrawn < 0 || a.ToWithdraw < 0 {
			errs = append(errs, fmt.Errorf("account %s: negative withdrawn %d or to_withdraw %d",
				a.Name, a.Withdrawn, a.ToWithdraw))
		}
		if a.Withdrawn > a.ToWithdraw {
			errs = append(errs, fmt.Errorf("account %s: withdrawn %d exceeds to_withdraw %d",
				a.Name, a.Withdrawn, a.ToWithdraw))
		}
	}
	return errs
}

func checkDelegatedTotals(s *store.State) []error {
	sums := make(map[string]int64)
	for d := range s.Delegations.Delegations.Scan() {
		sums[d.Delegator] += d.VestingShares.Amount
	}
	var errs []error
	for a := range s.Accounts.Accounts.Scan() {
		if got := sums[a.Name]; got != a.DelegatedVestingShares.Amount {
			errs = append(errs, fmt.Errorf("account %s: delegations sum to %d but delegated_vesting_shares is %s",
				a.Name, got, a.DelegatedVestingShares))
		}
		delete(sums, a.Name)
	}
	for name := range sums {
		errs = append(errs, fmt.Errorf("delegator %s: %w", name, chainledger.ErrAccountNotFound))
	}
	return errs
}

func checkReceivedTotals(s *store.State) []error {
	sums := make(map[string]int64)
	for d := range s.Delegations.Delegations.Scan() {
		sums[d.Delegatee] += d.VestingShares.Amount
	}
	var errs []error
	for a := range s.Accounts.Accounts.Scan() {
		if got := sums[a.Name]; got != a.ReceivedVestingShares.Amount {
			errs = append(errs, fmt.Errorf("account %s: incoming delegations sum to %d but received_vesting_shares is %s",
				a.Name, got, a.ReceivedVestingShares))
		}
	}
	return errs
}

func checkTotalVesting(s *store.State) []error {
	props, err := s.Props()
	if err != nil {
		return []error{err}
	}
	total := types.Zero(types.GESTS)
	for a := range s.Accounts.Accounts.Scan() {
		total = total.Add(a.VestingShares)
	}
	if !total.Equal(props.TotalVestingShares) {
		return []error{fmt.Errorf("accounts hold %s but total_vesting_shares is %s", total, props.TotalVestingShares)}
	}
	return nil
}

func checkPendingReturns(s *store.State) []error {
	var errs []error
	for x := range s.Delegations.Expirations.Scan() {
		if !x.VestingShares.IsPositive() {
			errs = append(errs, fmt.Errorf("expiration %d of %s: non-positive amount %s", x.ID, x.Delegator, x.VestingShares))
		}
		if !s.Accounts.Exists(x.Delegator) {
			errs = append(errs, fmt.Errorf("expiration %d: delegator %s: %w", x.ID, x.Delegator, chainledger.ErrAccountNotFound))
		}
	}
	return errs
}

func checkRecoveryRequests(s *store.State) []error {
	var errs []error
	for r := range s.Accounts.RecoveryRequests.Scan() {
		if !s.Accounts.Exists(r.AccountToRecover) {
			errs = append(errs, fmt.Errorf("recovery request for %s: %w", r.AccountToRecover, chainledger.ErrAccountNotFound))
		}
	}
	for r := range s.Accounts.ChangeRecoveryRequests.Scan() {
		if !s.Accounts.Exists(r.AccountToRecover) || !s.Accounts.Exists(r.RecoveryAccount) {
			errs = append(errs, fmt.Errorf("change recovery %s -> %s: %w",
				r.AccountToRecover, r.RecoveryAccount, chainledger.ErrAccountNotFound))
		}
	}
	return errs
}

func checkProxies(s *store.State) []error {
	var errs []error
	for a := range s.Accounts.Accounts.Scan() {
		if a.Proxy == "" {
			continue
		}
		if a.Proxy == a.Name {
			errs = append(errs, fmt.Errorf("account %s proxies to itself", a.Name))
			continue
		}
		if !s.Accounts.Exists(a.Proxy) {
			errs = append(errs, fmt.Errorf("account %s: proxy %s: %w", a.Name, a.Proxy, chainledger.ErrAccountNotFound))
		}
	}
	return errs
}

func checkBandwidth(s *store.State) []error {
	var errs []error
	for b := range s.Bandwidth.Bandwidth.Scan() {
		if b.AverageBandwidth < 0 || b.LifetimeBandwidth < 0 {
			errs = append(errs, fmt.Errorf("bandwidth %s/%s: negative counters", b.Account, b.Type))
		}
		if b.AverageBandwidth > b.LifetimeBandwidth {
			errs = append(errs, fmt.Errorf("bandwidth %s/%s: average %d exceeds lifetime %d",
				b.Account, b.Type, b.AverageBandwidth, b.LifetimeBandwidth))
		}
	}
	return errs
}
