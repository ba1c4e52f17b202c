package query_test

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/delegation"
	"github.com/xraph/chainledger/query"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

type stateReader struct{ s *store.State }

func (r stateReader) WithReadLock(fn func(*store.State)) {
	r.s.DB.WithReadLock(func() { fn(r.s) })
}

const start types.Timestamp = 1_700_000_000

func seeded(t *testing.T, n int) *store.State {
	t.Helper()
	g := &store.Genesis{Time: start}
	for i := range n {
		name := fmt.Sprintf("user%03d", i)
		g.Accounts = append(g.Accounts, store.GenesisAccount{
			Name:    name,
			Key:     types.PublicKeyFromSeed(name),
			Vesting: types.Golos(1),
		})
	}
	s := store.New()
	require.NoError(t, s.InitGenesis(g, chainledger.DefaultParams()))
	return s
}

func mutate(t *testing.T, s *store.State, fn func()) {
	t.Helper()
	require.NoError(t, s.DB.WithWriteLock(func() error {
		session := s.DB.BeginUndo()
		fn()
		return session.Commit()
	}))
}

func engine(t *testing.T, s *store.State, opts ...query.Option) *query.Engine {
	t.Helper()
	e, err := query.New(stateReader{s}, append([]query.Option{query.WithLogger(slog.New(slog.DiscardHandler))}, opts...)...)
	require.NoError(t, err)
	return e
}

func TestListAccountsPaging(t *testing.T) {
	s := seeded(t, 120)
	e := engine(t, s)

	page, err := e.List(query.Request{Index: query.AccountsByName})
	require.NoError(t, err)
	require.Len(t, page.Items, query.DefaultLimit)
	assert.Equal(t, "user000", page.Items[0].(*account.Account).Name)
	require.NotNil(t, page.Next)
	assert.Equal(t, "user050", page.Next.StartAccount)

	page, err = e.List(query.Request{Index: query.AccountsByName, StartAccount: page.Next.StartAccount, Limit: query.MaxLimit})
	require.NoError(t, err)
	assert.Len(t, page.Items, 70)
	assert.Nil(t, page.Next)
}

func TestListRejectsBadRequests(t *testing.T) {
	e := engine(t, seeded(t, 1))

	tests := []struct {
		name string
		req  query.Request
	}{
		{"unknown index", query.Request{Index: "accounts.by_balance"}},
		{"limit too large", query.Request{Index: query.AccountsByName, Limit: query.MaxLimit + 1}},
		{"negative limit", query.Request{Index: query.AccountsByName, Limit: -1}},
		{"item without account", query.Request{Index: query.DelegationsByDelegation, StartItem: "bob"}},
		{"item on single key index", query.Request{Index: query.AccountsByName, StartAccount: "a", StartItem: "b"}},
		{"malformed time cursor", query.Request{Index: query.ExpirationsByAccount, StartAccount: "a", StartItem: "soon"}},
		{"unknown bandwidth type", query.Request{Index: query.BandwidthByAccountType, StartAccount: "a", StartItem: "votes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := e.List(tt.req)
			assert.ErrorIs(t, err, chainledger.ErrInvalidQuery)
			assert.Nil(t, page)
		})
	}
}

func TestListDelegationsWithCompositeCursor(t *testing.T) {
	s := seeded(t, 4)
	mutate(t, s, func() {
		for _, to := range []string{"user001", "user002", "user003"} {
			_, err := s.Delegations.Delegations.Create(func(d *delegation.VestingDelegation) {
				d.Delegator = "user000"
				d.Delegatee = to
				d.VestingShares = types.Vests(10)
			})
			require.NoError(t, err)
		}
	})
	e := engine(t, s)

	page, err := e.List(query.Request{Index: query.DelegationsByDelegation, StartAccount: "user000", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotNil(t, page.Next)
	assert.Equal(t, query.Cursor{StartAccount: "user000", StartItem: "user003"}, *page.Next)

	page, err = e.List(query.Request{Index: query.DelegationsByDelegation, StartAccount: "user000", StartItem: "user003"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "user003", page.Items[0].(*delegation.VestingDelegation).Delegatee)

	page, err = e.List(query.Request{Index: query.DelegationsByReceived, StartAccount: "user002"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "user002", page.Items[0].(*delegation.VestingDelegation).Delegatee)
}

func TestListExpirationsCursor(t *testing.T) {
	s := seeded(t, 1)
	mutate(t, s, func() {
		for i := range 3 {
			_, err := s.Delegations.Expirations.Create(func(x *delegation.Expiration) {
				x.Delegator = "user000"
				x.VestingShares = types.Vests(int64(i + 1))
				x.Expiration = start.Add(time.Duration(i) * time.Hour)
			})
			require.NoError(t, err)
		}
	})
	e := engine(t, s)

	page, err := e.List(query.Request{Index: query.ExpirationsByAccount, StartAccount: "user000", Limit: 1})
	require.NoError(t, err)
	require.NotNil(t, page.Next)

	rest, err := e.List(query.Request{Index: query.ExpirationsByAccount, StartAccount: page.Next.StartAccount, StartItem: page.Next.StartItem})
	require.NoError(t, err)
	require.Len(t, rest.Items, 2)
	assert.Equal(t, types.Vests(2), rest.Items[0].(*delegation.Expiration).VestingShares)
}

func TestListReturnsCopies(t *testing.T) {
	s := seeded(t, 1)
	e := engine(t, s, query.WithCacheSize(0))

	page, err := e.List(query.Request{Index: query.AccountsByName})
	require.NoError(t, err)
	before := page.Items[0].(*account.Account)

	mutate(t, s, func() {
		a, err := s.Accounts.Get("user000")
		require.NoError(t, err)
		require.NoError(t, s.Accounts.Accounts.Modify(a, func(a *account.Account) {
			a.Balance = types.Golos(42)
		}))
	})

	assert.True(t, before.Balance.IsZero())
	page, err = e.List(query.Request{Index: query.AccountsByName})
	require.NoError(t, err)
	assert.Equal(t, types.Golos(42), page.Items[0].(*account.Account).Balance)
}

func TestListCachesByHead(t *testing.T) {
	s := seeded(t, 2)
	e := engine(t, s)

	first, err := e.List(query.Request{Index: query.AccountsByName})
	require.NoError(t, err)
	again, err := e.List(query.Request{Index: query.AccountsByName, Limit: query.DefaultLimit})
	require.NoError(t, err)
	assert.Same(t, first, again, "the default limit normalizes to the same cache entry")

	e.Purge()
	fresh, err := e.List(query.Request{Index: query.AccountsByName})
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, first.Items, fresh.Items)
}
