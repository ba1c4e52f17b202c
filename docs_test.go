package chainledger_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/chain"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

// TestDocumentationExamples verifies that the package documentation examples work.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()
		genesisTime := types.TimestampOf(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		aliceKey := types.PublicKeyFromSeed("alice")

		state := store.New()
		require.NoError(t, state.InitGenesis(&store.Genesis{
			Time: genesisTime,
			Accounts: []store.GenesisAccount{
				{Name: "alice", Key: aliceKey, Balance: chainledger.Golos(100_000), Vesting: chainledger.Golos(1)},
				{Name: "bob", Key: types.PublicKeyFromSeed("bob"), Vesting: chainledger.Golos(1)},
			},
		}, chainledger.DefaultParams()))

		l, err := chain.New(state, chain.WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, err)
		require.NoError(t, l.Start(ctx))
		defer l.Stop(ctx)

		blockTime := genesisTime.Add(3 * time.Second)
		block := &protocol.Block{
			Previous:   l.HeadBlock().ID,
			Timestamp:  blockTime,
			Witness:    "alice",
			SigningKey: aliceKey,
			Transactions: []protocol.Transaction{{
				Expiration: blockTime.Add(time.Minute),
				Operations: protocol.Operations{
					&protocol.Transfer{From: "alice", To: "bob", Amount: chainledger.Golos(1_500)},
				},
				SignedKeys: []types.PublicKey{aliceKey},
			}},
		}

		annotated, err := l.ApplyBlock(ctx, block)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), annotated.BlockNum)
		assert.Len(t, annotated.TransactionIDs, 1)

		l.WithReadLock(func(s *store.State) {
			bob, err := s.Accounts.Get("bob")
			require.NoError(t, err)
			assert.Equal(t, "1.500 GOLOS", bob.Balance.String())
		})

		popped, err := l.PopBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), popped)
		assert.Equal(t, uint32(0), l.HeadBlock().Number)
	})

	t.Run("AssetExamples", func(t *testing.T) {
		assert.Equal(t, "1.000 GOLOS", chainledger.Golos(1000).String())
		assert.Equal(t, "0.001 GBG", chainledger.GBGs(1).String())
		assert.Equal(t, "1.000000 GESTS", chainledger.Vests(1_000_000).String())

		parsed, err := chainledger.ParseAsset("2.500 GOLOS")
		require.NoError(t, err)
		assert.Equal(t, chainledger.Golos(2500), parsed)

		total := chainledger.Sum(types.GOLOS, chainledger.Golos(1), chainledger.Golos(2))
		assert.Equal(t, chainledger.Golos(3), total)
	})

	t.Run("ErrorKinds", func(t *testing.T) {
		err := &chainledger.TransactionError{Index: 0, OpType: "transfer", Err: chainledger.ErrInsufficientFunds}
		assert.Equal(t, chainledger.KindInsufficientResource, chainledger.Kind(err))
		assert.True(t, errors.Is(err, chainledger.ErrInsufficientFunds))
		assert.Equal(t, chainledger.KindNone, chainledger.Kind(nil))
	})
}
