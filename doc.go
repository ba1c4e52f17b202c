// Package chainledger is the account and vesting-stake state core of a
// delegated proof-of-stake chain, packaged as a library.
//
// It applies blocks of signed transactions to an in-memory indexed object
// store and keeps every block reversible until it is declared irreversible.
// It provides:
//
//   - Accounts with weighted-threshold owner, active and posting authorities
//   - Vesting shares with delegation, interest and delayed delegation returns
//   - Scheduled vesting withdrawals and GBG interest compounding
//   - A bandwidth rate limiter priced against effective vesting shares
//   - Owner authority history with account recovery and recovery account changes
//   - Virtual operations reported per block for downstream consumers
//
// # Quick Start
//
// Build the state from a genesis description, then drive it with blocks:
//
//	state := store.New()
//	err := state.InitGenesis(&store.Genesis{
//	    Time: types.TimestampOf(time.Now()),
//	    Accounts: []store.GenesisAccount{
//	        {Name: "alice", Key: aliceKey, Balance: types.Golos(100_000), Vesting: types.Golos(1)},
//	    },
//	}, chainledger.DefaultParams())
//
//	l, err := chain.New(state, chain.WithLogger(logger))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop(ctx)
//
//	annotated, err := l.ApplyBlock(ctx, block)
//
// # Reverting blocks
//
// Every applied block is an undo revision. PopBlock restores the state that
// preceded the head block exactly, and SetIrreversible discards the undo
// history up to the given height:
//
//	popped, err := l.PopBlock(ctx)
//	if err := l.SetIrreversible(ctx, 100); err != nil { ... }
//
// # Errors
//
// Every rejection wraps one of the kind sentinels (ErrMalformedOperation,
// ErrInsufficientAuthority, ErrInsufficientResource, ErrInvariantViolation,
// ErrNotFound, ErrDuplicateRequest). Use Kind to classify an error and
// errors.Is to match a specific rule.
//
// # Integration
//
// Subsystems attach through the plugin registry: metrics in observability,
// the audit trail in audit_hook, Redis streams in stream, persisted
// checkpoints in checkpoint and the Forge extension in extension. The query
// package serves paged index reads and invariant audits the state.
package chainledger
