package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/bandwidth"
	"github.com/xraph/chainledger/chain"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

const day = 24 * time.Hour

func delegate(from, to string, amount int64) protocol.Transaction {
	return tx(signedBy(from), &protocol.DelegateVestingShares{
		Delegator:     from,
		Delegatee:     to,
		VestingShares: types.Vests(amount),
	})
}

// ──────────────────────────────────────────────────
// Delegation
// ──────────────────────────────────────────────────

func TestDelegationLifecycle(t *testing.T) {
	h := newHarness(t)

	h.mustApply(delegate("alice", "bob", 400))

	alice, bob := h.account("alice"), h.account("bob")
	assert.Equal(t, types.Vests(400), alice.DelegatedVestingShares)
	assert.Equal(t, types.Vests(400), bob.ReceivedVestingShares)
	assert.Equal(t, types.Vests(600), alice.EffectiveVestingShares())
	assert.Equal(t, types.Vests(1400), bob.EffectiveVestingShares())

	h.mustApply(delegate("alice", "bob", 100))
	decreasedAt := h.next.Add(-3 * time.Second)

	alice, bob = h.account("alice"), h.account("bob")
	assert.Equal(t, types.Vests(100), alice.DelegatedVestingShares)
	assert.Equal(t, types.Vests(100), bob.ReceivedVestingShares)
	assert.Equal(t, types.Vests(600), h.available("alice"), "returning stake is not spendable yet")

	h.ledger.WithReadLock(func(s *store.State) {
		pending := s.Delegations.PendingReturn("alice")
		assert.Equal(t, types.Vests(300), pending)
	})

	h.wait(7*day - 3*time.Second)
	ann := h.mustApply()
	require.GreaterOrEqual(t, ann.Timestamp(), decreasedAt.Add(7*day))

	returned := virtualOps[*protocol.ReturnVestingDelegation](ann)
	require.Len(t, returned, 1)
	assert.Equal(t, "alice", returned[0].Account)
	assert.Equal(t, types.Vests(300), returned[0].VestingShares)
	assert.Equal(t, types.Vests(900), h.available("alice"))
}

func TestDelegationDecreaseBelowZeroIsRejected(t *testing.T) {
	h := newHarness(t)
	h.mustApply(delegate("alice", "bob", 400))
	before := h.digest()

	_, err := h.apply(delegate("alice", "bob", -1))
	require.Error(t, err)
	assert.ErrorIs(t, err, chainledger.ErrMalformedOperation)
	assert.Equal(t, chainledger.KindMalformedOperation, chainledger.Kind(err))

	var te *chainledger.TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(protocol.OpDelegateVestingShares), te.OpType)
	assert.Equal(t, before, h.digest())
}

func TestDelegationRules(t *testing.T) {
	h := newHarness(t)

	_, err := h.apply(delegate("alice", "bob", 2000))
	assert.ErrorIs(t, err, chainledger.ErrInsufficientVesting)

	_, err = h.apply(delegate("alice", "bob", 0))
	assert.ErrorIs(t, err, chainledger.ErrDelegationNotFound)

	h.mustApply(delegate("alice", "bob", 400))

	_, err = h.apply(delegate("alice", "bob", 400))
	assert.ErrorIs(t, err, chainledger.ErrDelegationUnchanged)

	_, err = h.apply(tx(signedBy("alice"), &protocol.DelegateVestingShares{
		Delegator:     "alice",
		Delegatee:     "bob",
		VestingShares: types.Vests(500),
		InterestRate:  100,
	}))
	assert.ErrorIs(t, err, chainledger.ErrDelegationTermsChanged)

	_, err = h.apply(delegate("alice", "bob", 1100))
	assert.ErrorIs(t, err, chainledger.ErrInsufficientVesting, "600 left to delegate")

	h.mustApply(delegate("alice", "bob", 0))
	alice := h.account("alice")
	assert.True(t, alice.DelegatedVestingShares.IsZero())
	h.ledger.WithReadLock(func(s *store.State) {
		_, err := s.Delegations.Find("alice", "bob")
		assert.ErrorIs(t, err, chainledger.ErrDelegationNotFound)
	})
}

func TestDelegationLock(t *testing.T) {
	params := chainledger.DefaultParams()
	params.MinDelegationLock = day
	h := newHarness(t, withParams(params))

	h.mustApply(delegate("alice", "bob", 400))
	_, err := h.apply(delegate("alice", "bob", 100))
	assert.ErrorIs(t, err, chainledger.ErrDelegationLocked)

	h.wait(day)
	h.mustApply(delegate("alice", "bob", 100))
}

func TestDelegationInterest(t *testing.T) {
	h := newHarness(t)
	h.mustApply(tx(signedBy("alice"), &protocol.DelegateVestingShares{
		Delegator:      "alice",
		Delegatee:      "bob",
		VestingShares:  types.Vests(400),
		InterestRate:   chainledger.Percent100,
		PayoutStrategy: protocol.ToDelegator,
	}))

	h.wait(365*day - 3*time.Second)
	ann := h.mustApply(tx(signedBy("alice"), &protocol.DelegateVestingShares{
		Delegator:      "alice",
		Delegatee:      "bob",
		VestingShares:  types.Vests(500),
		InterestRate:   chainledger.Percent100,
		PayoutStrategy: protocol.ToDelegator,
	}))

	rewards := virtualOps[*protocol.DelegationReward](ann)
	require.Len(t, rewards, 1)
	assert.Equal(t, types.Vests(400), rewards[0].VestingShares, "a full year at 100%")

	alice := h.account("alice")
	assert.Equal(t, types.Vests(1400), alice.VestingShares)
	assert.Equal(t, int64(400), alice.DelegationRewards)
	assert.Equal(t, types.Vests(500), alice.DelegatedVestingShares)
}

// ──────────────────────────────────────────────────
// Determinism and forks
// ──────────────────────────────────────────────────

func scriptedBlocks() [][]protocol.Transaction {
	return [][]protocol.Transaction{
		{delegate("alice", "bob", 400)},
		{tx(signedBy("bob"), &protocol.Transfer{From: "bob", To: "carol", Amount: types.Golos(250)})},
		{delegate("alice", "bob", 100), tx(signedBy("alice"), &protocol.TransferToVesting{From: "alice", To: "carol", Amount: types.Golos(7)})},
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	a, b := newHarness(t), newHarness(t)
	for _, txs := range scriptedBlocks() {
		annA := a.mustApply(txs...)
		annB := b.mustApply(txs...)
		assert.Equal(t, annA.BlockID, annB.BlockID)
		assert.Equal(t, annA.VirtualOperations, annB.VirtualOperations)
	}
	assert.Equal(t, a.digest(), b.digest())
}

func TestPopBlockRestoresState(t *testing.T) {
	h := newHarness(t)
	blocks := scriptedBlocks()
	h.mustApply(blocks[0]...)
	afterFirst := h.digest()
	h.mustApply(blocks[1]...)
	afterSecond := h.digest()

	num, err := h.ledger.PopBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), num)
	assert.Equal(t, afterFirst, h.digest())

	// The same block applies again to the same result.
	h.next = h.next.Add(-3 * time.Second)
	h.mustApply(blocks[1]...)
	assert.Equal(t, afterSecond, h.digest())
}

func TestSetIrreversible(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, withLedgerOptions(chain.WithPlugin(rec)))
	for range 3 {
		h.mustApply()
	}

	require.NoError(t, h.ledger.SetIrreversible(context.Background(), 2))
	head := h.ledger.HeadBlock()
	assert.Equal(t, uint32(2), head.Irreversible)
	assert.Equal(t, uint32(3), head.ReversibleFrom)

	_, err := h.ledger.PopBlock(context.Background())
	require.NoError(t, err)
	_, err = h.ledger.PopBlock(context.Background())
	assert.ErrorIs(t, err, chainledger.ErrNoReversibleBlock)

	require.NoError(t, h.ledger.SetIrreversible(context.Background(), 1), "moving backwards is a no-op")
	assert.Equal(t, []uint32{2}, rec.lib)
	assert.Equal(t, []uint32{3}, rec.reverted)
}

func TestApplyBlockOutOfOrder(t *testing.T) {
	h := newHarness(t)
	h.mustApply()

	stale := h.makeBlock()
	stale.Timestamp = genesisTime
	_, err := h.ledger.ApplyBlock(context.Background(), stale)
	assert.ErrorIs(t, err, chainledger.ErrBlockOutOfOrder)

	orphan := h.makeBlock()
	orphan.Previous = protocol.BlockID{0, 0, 0, 9}
	_, err = h.ledger.ApplyBlock(context.Background(), orphan)
	assert.ErrorIs(t, err, chainledger.ErrBlockOutOfOrder)
}

func TestClosedLedgerRefusesBlocks(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Stop(context.Background()))
	_, err := h.apply()
	assert.ErrorIs(t, err, chainledger.ErrLedgerClosed)
}

// ──────────────────────────────────────────────────
// Failure policies
// ──────────────────────────────────────────────────

func TestRejectBlockPolicy(t *testing.T) {
	h := newHarness(t)
	before := h.digest()

	_, err := h.apply(
		tx(signedBy("bob"), &protocol.Transfer{From: "bob", To: "carol", Amount: types.Golos(10)}),
		tx(signedBy("carol"), &protocol.Transfer{From: "carol", To: "bob", Amount: types.Golos(100)}),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, chainledger.ErrInsufficientFunds)

	var te *chainledger.TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Index)
	assert.Equal(t, before, h.digest(), "the first transaction is rolled back with the block")
	assert.Equal(t, uint32(0), h.ledger.HeadBlock().Number)
}

func TestSkipTransactionPolicy(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, withLedgerOptions(chain.WithPolicy(chain.PolicySkipTransaction), chain.WithPlugin(rec)))

	ann := h.mustApply(
		tx(signedBy("carol"), &protocol.Transfer{From: "carol", To: "bob", Amount: types.Golos(1)}),
		tx(signedBy("bob"), &protocol.Transfer{From: "bob", To: "carol", Amount: types.Golos(10)}),
	)
	assert.Equal(t, []int{0}, ann.FailedTransactions)
	assert.Len(t, ann.TransactionIDs, 2)
	assert.Equal(t, types.Golos(10), h.account("carol").Balance)
	assert.Equal(t, []int{0}, rec.failed)
	assert.Equal(t, []protocol.OpType{protocol.OpTransfer}, rec.ops)
	assert.Equal(t, []uint32{1}, rec.applied)
}

func TestFailedOperationRollsBackWholeTransaction(t *testing.T) {
	// The delegation applies before the transfer fails on carol's empty
	// balance; none of its effects may survive.
	mixed := func() protocol.Transaction {
		return tx(signedBy("alice", "carol"),
			&protocol.DelegateVestingShares{Delegator: "alice", Delegatee: "bob", VestingShares: types.Vests(400)},
			&protocol.Transfer{From: "carol", To: "bob", Amount: types.Golos(1)},
		)
	}
	untouched := func(t *testing.T, h *harness) {
		t.Helper()
		assert.Zero(t, h.account("alice").DelegatedVestingShares.Amount)
		assert.Zero(t, h.account("bob").ReceivedVestingShares.Amount)
		assert.Equal(t, types.Vests(1000), h.available("alice"))
		h.ledger.WithReadLock(func(s *store.State) {
			assert.Zero(t, s.Delegations.Delegations.Len())
			_, charged := s.Bandwidth.Find("alice", bandwidth.Market)
			assert.False(t, charged, "bandwidth is billed with the transaction")
		})
	}

	t.Run("skip transaction", func(t *testing.T) {
		rec := &recorder{}
		h := newHarness(t, withLedgerOptions(chain.WithPolicy(chain.PolicySkipTransaction), chain.WithPlugin(rec)))

		ann := h.mustApply(mixed())
		assert.Equal(t, []int{0}, ann.FailedTransactions)
		assert.Empty(t, ann.VirtualOperations)
		assert.Empty(t, rec.ops)
		untouched(t, h)
	})

	t.Run("reject block", func(t *testing.T) {
		h := newHarness(t)
		before := h.digest()

		ann, err := h.apply(mixed())
		require.Error(t, err)
		assert.Nil(t, ann)
		assert.ErrorIs(t, err, chainledger.ErrInsufficientFunds)
		var te *chainledger.TransactionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, 0, te.Index)
		assert.Equal(t, 1, te.OpIndex)

		assert.Equal(t, before, h.digest())
		assert.Equal(t, uint32(0), h.ledger.HeadBlock().Number)
		untouched(t, h)
	})
}

func TestAuthorityIsRequired(t *testing.T) {
	h := newHarness(t)
	_, err := h.apply(tx(signedBy("carol"), &protocol.Transfer{From: "bob", To: "carol", Amount: types.Golos(10)}))
	assert.ErrorIs(t, err, chainledger.ErrInsufficientAuthority)
}

func TestTransactionExpiration(t *testing.T) {
	h := newHarness(t)

	expired := tx(signedBy("bob"), &protocol.Transfer{From: "bob", To: "carol", Amount: types.Golos(1)})
	expired.Expiration = h.next
	_, err := h.apply(expired)
	assert.ErrorIs(t, err, chainledger.ErrTransactionExpired)

	distant := tx(signedBy("bob"), &protocol.Transfer{From: "bob", To: "carol", Amount: types.Golos(1)})
	distant.Expiration = h.next.Add(2 * time.Hour)
	_, err = h.apply(distant)
	assert.ErrorIs(t, err, chainledger.ErrTransactionExpired)
}

// ──────────────────────────────────────────────────
// Recovery
// ──────────────────────────────────────────────────

func TestAccountRecovery(t *testing.T) {
	h := newHarness(t)
	stolen := keyAuth("mallory")
	fresh := keyAuth("carol-new")

	// The thief uses the compromised owner key to take the account.
	h.mustApply(tx(signedBy("carol"), &protocol.AccountUpdate{Account: "carol", Owner: &stolen}))

	h.wait(time.Hour)
	request := &protocol.RequestAccountRecovery{
		RecoveryAccount:      "alice",
		AccountToRecover:     "carol",
		NewOwnerAuthority:    fresh,
		RecentOwnerAuthority: keyAuth("carol"),
	}
	h.mustApply(tx(signedBy("alice", "carol"), request))

	_, err := h.apply(tx(signedBy("alice", "carol"), request))
	assert.ErrorIs(t, err, chainledger.ErrRecoveryRequestExists)
	assert.ErrorIs(t, err, chainledger.ErrDuplicateRequest)

	_, err = h.apply(tx(signedBy("mallory"), &protocol.RecoverAccount{AccountToRecover: "carol", NewOwnerAuthority: stolen}))
	assert.ErrorIs(t, err, chainledger.ErrRecoveryRequestMismatch)

	h.mustApply(tx(signedBy("carol-new"), &protocol.RecoverAccount{AccountToRecover: "carol", NewOwnerAuthority: fresh}))

	h.ledger.WithReadLock(func(s *store.State) {
		auth, err := s.Accounts.Authority("carol")
		require.NoError(t, err)
		assert.True(t, auth.Owner.Equal(fresh))
		_, err = s.Accounts.RecoveryRequest("carol")
		assert.ErrorIs(t, err, chainledger.ErrRecoveryRequestNotFound)
	})
}

func TestRecoveryRequiresRecentOwner(t *testing.T) {
	h := newHarness(t)
	_, err := h.apply(tx(signedBy("alice", "mallory"), &protocol.RequestAccountRecovery{
		RecoveryAccount:      "alice",
		AccountToRecover:     "carol",
		NewOwnerAuthority:    keyAuth("carol-new"),
		RecentOwnerAuthority: keyAuth("mallory"),
	}))
	assert.ErrorIs(t, err, chainledger.ErrRecoveryProofInvalid)

	_, err = h.apply(tx(signedBy("bob", "carol"), &protocol.RequestAccountRecovery{
		RecoveryAccount:      "bob",
		AccountToRecover:     "carol",
		NewOwnerAuthority:    keyAuth("carol-new"),
		RecentOwnerAuthority: keyAuth("carol"),
	}))
	assert.ErrorIs(t, err, chainledger.ErrNotRecoveryAccount)
}

func TestRecoveryRequestExpires(t *testing.T) {
	h := newHarness(t)
	h.mustApply(tx(signedBy("alice", "carol"), &protocol.RequestAccountRecovery{
		RecoveryAccount:      "alice",
		AccountToRecover:     "carol",
		NewOwnerAuthority:    keyAuth("carol-new"),
		RecentOwnerAuthority: keyAuth("carol"),
	}))

	h.wait(day)
	h.mustApply()
	_, err := h.apply(tx(signedBy("carol-new"), &protocol.RecoverAccount{AccountToRecover: "carol", NewOwnerAuthority: keyAuth("carol-new")}))
	assert.ErrorIs(t, err, chainledger.ErrRecoveryRequestNotFound)
}

func TestChangeRecoveryAccount(t *testing.T) {
	h := newHarness(t)
	change := tx(signedBy("carol"), &protocol.ChangeRecoveryAccount{AccountToRecover: "carol", NewRecoveryAccount: "bob"})
	h.mustApply(change)

	_, err := h.apply(tx(signedBy("carol"), &protocol.ChangeRecoveryAccount{AccountToRecover: "carol", NewRecoveryAccount: "bob"}))
	assert.ErrorIs(t, err, chainledger.ErrChangeRecoveryExists)
	assert.Equal(t, "alice", h.account("carol").RecoveryAccount)

	h.wait(30 * day)
	ann := h.mustApply()
	changed := virtualOps[*protocol.ChangedRecoveryAccount](ann)
	require.Len(t, changed, 1)
	assert.Equal(t, "alice", changed[0].OldRecoveryAccount)
	assert.Equal(t, "bob", changed[0].NewRecoveryAccount)
	assert.Equal(t, "bob", h.account("carol").RecoveryAccount)
}

func TestOwnerUpdateRateLimit(t *testing.T) {
	h := newHarness(t)
	first, second := keyAuth("carol-2"), keyAuth("carol-3")
	h.mustApply(tx(signedBy("carol"), &protocol.AccountUpdate{Account: "carol", Owner: &first}))

	_, err := h.apply(tx(signedBy("carol-2"), &protocol.AccountUpdate{Account: "carol", Owner: &second}))
	assert.ErrorIs(t, err, chainledger.ErrOwnerUpdateTooSoon)

	h.wait(time.Hour)
	h.mustApply(tx(signedBy("carol-2"), &protocol.AccountUpdate{Account: "carol", Owner: &second}))
}

// ──────────────────────────────────────────────────
// Bandwidth
// ──────────────────────────────────────────────────

func TestBandwidthLimit(t *testing.T) {
	follow := func() protocol.Transaction {
		return tx(signedBy("bob"), &protocol.CustomJSON{
			RequiredPostingAuths: []string{"bob"},
			ID:                   "follow",
			JSON:                 `{"follow":"alice"}`,
		})
	}
	probe := follow()
	probe.Expiration = genesisTime.Add(time.Minute)
	size, err := probe.Size()
	require.NoError(t, err)

	// Three equal stakeholders; bob may carry two and a half transactions.
	params := chainledger.DefaultParams()
	params.BandwidthPrecision = 1
	params.MaxVirtualBandwidth = int64(size) * 15 / 2
	h := newHarness(t, withParams(params))

	h.mustApply(follow())
	h.mustApply(follow())
	_, err = h.apply(follow())
	assert.ErrorIs(t, err, chainledger.ErrBandwidthExceeded)
	assert.ErrorIs(t, err, chainledger.ErrInsufficientResource)

	// Market bandwidth is tracked separately.
	h.mustApply(tx(signedBy("bob"), &protocol.Transfer{From: "bob", To: "alice", Amount: types.Golos(1)}))

	h.wait(5 * 7 * day)
	h.mustApply(follow())
	h.ledger.WithReadLock(func(s *store.State) {
		bw, ok := s.Bandwidth.Find("bob", bandwidth.CustomJSON)
		require.True(t, ok)
		assert.Equal(t, int64(3*size), bw.LifetimeBandwidth)
		assert.Less(t, bw.AverageBandwidth, int64(2*size))
	})
}

func TestBandwidthDecaysWhileIdle(t *testing.T) {
	follow := func() protocol.Transaction {
		return tx(signedBy("bob"), &protocol.CustomJSON{
			RequiredPostingAuths: []string{"bob"},
			ID:                   "follow",
			JSON:                 `{"follow":"alice"}`,
		})
	}
	sample := follow()
	sample.Expiration = genesisTime.Add(time.Minute)
	n, err := sample.Size()
	require.NoError(t, err)
	size := int64(n)

	params := chainledger.DefaultParams()
	params.BandwidthPrecision = 1
	params.MaxVirtualBandwidth = size * 1000
	window := params.BandwidthAverageWindow
	h := newHarness(t, withParams(params))

	usage := func() bandwidth.AccountBandwidth {
		var out bandwidth.AccountBandwidth
		h.ledger.WithReadLock(func(s *store.State) {
			bw, ok := s.Bandwidth.Find("bob", bandwidth.CustomJSON)
			require.True(t, ok)
			out = *bw
		})
		return out
	}
	// spend lets the average decay for idle, then charges one more follow.
	spend := func(idle time.Duration) int64 {
		h.next = usage().LastBandwidthUpdate.Add(idle)
		h.mustApply(follow())
		return usage().AverageBandwidth
	}

	h.mustApply(follow())
	avg := spend(3 * time.Second)
	require.Equal(t, 2*size, avg, "three seconds is too short to decay a few hundred bytes")

	avg = spend(window)
	assert.Equal(t, 2*size/2+size, avg, "one idle window halves the average")

	prev := avg
	avg = spend(window / 2)
	assert.Equal(t, prev-prev/4+size, avg, "half a window decays a quarter")

	prev = avg
	avg = spend(3 * window)
	assert.Equal(t, prev>>3+size, avg)
	assert.Less(t, avg, prev)

	avg = spend(64 * window)
	assert.Equal(t, size, avg, "after enough idle windows only the new charge remains")
	assert.Equal(t, 6*size, usage().LifetimeBandwidth)
}

// ──────────────────────────────────────────────────
// Vesting and balances
// ──────────────────────────────────────────────────

func TestVestingWithdrawal(t *testing.T) {
	accounts := defaultAccounts()
	accounts[0].Vesting = types.Golos(13)
	h := newHarness(t, withAccounts(accounts...))

	h.mustApply(tx(signedBy("alice"), &protocol.WithdrawVesting{Account: "alice", VestingShares: types.Vests(13_000)}))
	alice := h.account("alice")
	assert.Equal(t, types.Vests(1000), alice.VestingWithdrawRate)
	assert.Equal(t, int64(13_000), alice.ToWithdraw)

	_, err := h.apply(delegate("alice", "bob", 1))
	assert.ErrorIs(t, err, chainledger.ErrInsufficientVesting, "the whole stake is being withdrawn")

	h.wait(7 * day)
	ann := h.mustApply()
	fills := virtualOps[*protocol.FillVestingWithdraw](ann)
	require.Len(t, fills, 1)
	assert.Equal(t, types.Vests(1000), fills[0].Withdrawn)
	assert.Equal(t, types.Golos(1), fills[0].Deposited)

	alice = h.account("alice")
	assert.Equal(t, types.Vests(12_000), alice.VestingShares)
	assert.Equal(t, int64(1000), alice.Withdrawn)
	assert.Equal(t, types.Golos(100_001), alice.Balance)

	h.mustApply(tx(signedBy("alice"), &protocol.WithdrawVesting{Account: "alice", VestingShares: types.Vests(0)}))
	assert.Equal(t, types.MaxTimestamp, h.account("alice").NextVestingWithdrawal)
}

func TestTransferToVesting(t *testing.T) {
	h := newHarness(t)
	h.mustApply(tx(signedBy("bob"), &protocol.TransferToVesting{From: "bob", To: "carol", Amount: types.Golos(2)}))

	assert.Equal(t, types.Golos(9_998), h.account("bob").Balance)
	assert.Equal(t, types.Vests(3000), h.account("carol").VestingShares)
}

func TestGBGInterest(t *testing.T) {
	h := newHarness(t)
	h.wait(31 * day)
	ann := h.mustApply(tx(signedBy("bob"), &protocol.Transfer{From: "bob", To: "alice", Amount: types.GBGs(1)}))

	elapsed := int64(ann.Timestamp().SecondsSince(genesisTime))
	want := 5000 * elapsed / chainledger.SecondsPerYear * 1000 / chainledger.Percent100

	paid := virtualOps[*protocol.Interest](ann)
	require.Len(t, paid, 1)
	assert.Equal(t, "bob", paid[0].Owner)
	assert.Equal(t, types.GBGs(want), paid[0].Interest)
	assert.Equal(t, types.GBGs(5000-1+want), h.account("bob").GBGBalance)
	assert.Equal(t, types.GBGs(1), h.account("alice").GBGBalance)
}

// ──────────────────────────────────────────────────
// Accounts and proxies
// ──────────────────────────────────────────────────

func TestAccountCreate(t *testing.T) {
	h := newHarness(t)
	h.mustApply(tx(signedBy("alice"), &protocol.AccountCreate{
		Fee:            types.Golos(1000),
		Delegation:     types.Vests(200),
		Creator:        "alice",
		NewAccountName: "dave",
		Owner:          keyAuth("dave"),
		Active:         keyAuth("dave"),
		Posting:        keyAuth("dave"),
		MemoKey:        key("dave"),
	}))

	dave := h.account("dave")
	assert.Equal(t, "alice", dave.RecoveryAccount)
	assert.Equal(t, types.Vests(200), dave.ReceivedVestingShares)
	assert.True(t, dave.VestingShares.IsPositive())
	assert.Equal(t, types.Golos(99_000), h.account("alice").Balance)

	_, err := h.apply(delegate("alice", "dave", 100))
	assert.ErrorIs(t, err, chainledger.ErrDelegationLocked)

	_, err = h.apply(tx(signedBy("alice"), &protocol.AccountCreate{
		Fee:            types.Golos(1000),
		Delegation:     types.Vests(0),
		Creator:        "alice",
		NewAccountName: "dave",
		Owner:          keyAuth("dave"),
		Active:         keyAuth("dave"),
		Posting:        keyAuth("dave"),
		MemoKey:        key("dave"),
	}))
	assert.ErrorIs(t, err, chainledger.ErrAccountExists)
}

func TestWitnessProxyChain(t *testing.T) {
	h := newHarness(t)
	h.mustApply(tx(signedBy("alice"), &protocol.AccountWitnessProxy{Account: "alice", Proxy: "bob"}))
	assert.Equal(t, int64(1000), h.account("bob").ProxiedVSFVotes[0])

	h.mustApply(tx(signedBy("bob"), &protocol.AccountWitnessProxy{Account: "bob", Proxy: "carol"}))
	carol := h.account("carol")
	assert.Equal(t, int64(1000), carol.ProxiedVSFVotes[0])
	assert.Equal(t, int64(1000), carol.ProxiedVSFVotes[1])

	_, err := h.apply(tx(signedBy("carol"), &protocol.AccountWitnessProxy{Account: "carol", Proxy: "alice"}))
	assert.ErrorIs(t, err, chainledger.ErrProxyCycle)

	h.mustApply(tx(signedBy("alice"), &protocol.AccountWitnessProxy{Account: "alice"}))
	carol = h.account("carol")
	assert.Equal(t, int64(1000), carol.ProxiedVSFVotes[0])
	assert.Zero(t, carol.ProxiedVSFVotes[1])
	assert.Zero(t, h.account("bob").ProxiedVSFVotes[0])
}

func TestParsePolicy(t *testing.T) {
	p, err := chain.ParsePolicy("skip_transaction")
	require.NoError(t, err)
	assert.Equal(t, chain.PolicySkipTransaction, p)

	p, err = chain.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, chain.PolicyRejectBlock, p)

	_, err = chain.ParsePolicy("retry")
	assert.Error(t, err)
}
