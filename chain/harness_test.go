package chain_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/chain"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

const genesisTime types.Timestamp = 1_700_000_000

func key(seed string) types.PublicKey { return types.PublicKeyFromSeed(seed) }

func keyAuth(seed string) types.Authority { return types.NewKeyAuthority(key(seed)) }

// defaultAccounts gives every actor 1000 vesting shares so it can pay for
// bandwidth.
func defaultAccounts() []store.GenesisAccount {
	return []store.GenesisAccount{
		{Name: "alice", Key: key("alice"), Balance: types.Golos(100_000), Vesting: types.Golos(1)},
		{Name: "bob", Key: key("bob"), Balance: types.Golos(10_000), GBGBalance: types.GBGs(5_000), Vesting: types.Golos(1)},
		{Name: "carol", Key: key("carol"), Vesting: types.Golos(1), RecoveryAccount: "alice"},
	}
}

type harness struct {
	t      *testing.T
	ledger *chain.Ledger
	params chainledger.Params
	next   types.Timestamp
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	params   chainledger.Params
	accounts []store.GenesisAccount
	opts     []chain.Option
}

func withParams(p chainledger.Params) harnessOption {
	return func(c *harnessConfig) { c.params = p }
}

func withAccounts(accounts ...store.GenesisAccount) harnessOption {
	return func(c *harnessConfig) { c.accounts = accounts }
}

func withLedgerOptions(opts ...chain.Option) harnessOption {
	return func(c *harnessConfig) { c.opts = append(c.opts, opts...) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{params: chainledger.DefaultParams(), accounts: defaultAccounts()}
	for _, opt := range opts {
		opt(&cfg)
	}

	state := store.New()
	require.NoError(t, state.InitGenesis(&store.Genesis{Time: genesisTime, Accounts: cfg.accounts}, cfg.params))

	ledgerOpts := append([]chain.Option{
		chain.WithParams(cfg.params),
		chain.WithLogger(slog.New(slog.DiscardHandler)),
	}, cfg.opts...)
	l, err := chain.New(state, ledgerOpts...)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))

	return &harness{t: t, ledger: l, params: cfg.params, next: genesisTime.Add(3 * time.Second)}
}

// wait moves the time of the next block forward by d.
func (h *harness) wait(d time.Duration) { h.next = h.next.Add(d) }

// tx builds a transaction signed by the keys seeded from signers.
func tx(signers []string, ops ...protocol.Operation) protocol.Transaction {
	keys := make([]types.PublicKey, 0, len(signers))
	for _, s := range signers {
		keys = append(keys, key(s))
	}
	return protocol.Transaction{Operations: ops, SignedKeys: keys}
}

func signedBy(signers ...string) []string { return signers }

// makeBlock stamps txs with an expiration relative to the next block time.
func (h *harness) makeBlock(txs ...protocol.Transaction) *protocol.Block {
	head := h.ledger.HeadBlock()
	for i := range txs {
		if txs[i].Expiration == 0 {
			txs[i].Expiration = h.next.Add(time.Minute)
		}
	}
	return &protocol.Block{
		Previous:     head.ID,
		Timestamp:    h.next,
		Witness:      "alice",
		SigningKey:   key("alice"),
		Transactions: txs,
	}
}

// apply pushes a block and advances the clock only when it was accepted.
func (h *harness) apply(txs ...protocol.Transaction) (*protocol.AnnotatedBlock, error) {
	b := h.makeBlock(txs...)
	ann, err := h.ledger.ApplyBlock(context.Background(), b)
	if err == nil {
		h.next = h.next.Add(3 * time.Second)
	}
	return ann, err
}

func (h *harness) mustApply(txs ...protocol.Transaction) *protocol.AnnotatedBlock {
	h.t.Helper()
	ann, err := h.apply(txs...)
	require.NoError(h.t, err)
	return ann
}

func (h *harness) account(name string) account.Account {
	h.t.Helper()
	var (
		out account.Account
		err error
	)
	h.ledger.WithReadLock(func(s *store.State) {
		var a *account.Account
		if a, err = s.Accounts.Get(name); err == nil {
			out = *a
		}
	})
	require.NoError(h.t, err)
	return out
}

func (h *harness) available(name string) types.Asset {
	h.t.Helper()
	var (
		out types.Asset
		err error
	)
	h.ledger.WithReadLock(func(s *store.State) {
		var a *account.Account
		if a, err = s.Accounts.Get(name); err == nil {
			out = chain.AvailableVesting(s, a)
		}
	})
	require.NoError(h.t, err)
	return out
}

func (h *harness) digest() [32]byte {
	h.t.Helper()
	var (
		d   [32]byte
		err error
	)
	h.ledger.WithReadLock(func(s *store.State) { d, err = s.Digest() })
	require.NoError(h.t, err)
	return d
}

func virtualOps[T protocol.VirtualOperation](ann *protocol.AnnotatedBlock) []T {
	var out []T
	for _, v := range ann.VirtualOperations {
		if op, ok := v.Op.(T); ok {
			out = append(out, op)
		}
	}
	return out
}

// recorder captures plugin events.
type recorder struct {
	mu       sync.Mutex
	applied  []uint32
	reverted []uint32
	failed   []int
	ops      []protocol.OpType
	lib      []uint32
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnBlockApplied(_ context.Context, b *protocol.AnnotatedBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, b.BlockNum)
	return nil
}

func (r *recorder) OnBlockReverted(_ context.Context, num uint32, _ protocol.BlockID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reverted = append(r.reverted, num)
	return nil
}

func (r *recorder) OnTransactionFailed(_ context.Context, _ uint32, index int, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, index)
	return nil
}

func (r *recorder) OnOperationApplied(_ context.Context, _ uint32, _ int, op protocol.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op.Type())
	return nil
}

func (r *recorder) OnIrreversible(_ context.Context, num uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lib = append(r.lib, num)
	return nil
}
