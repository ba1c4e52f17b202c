package checkpoint_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/checkpoint"
	"github.com/xraph/chainledger/global"
	"github.com/xraph/chainledger/id"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/store/sqlite"
	"github.com/xraph/chainledger/types"
)

type stateReader struct{ s *store.State }

func (r stateReader) WithReadLock(fn func(*store.State)) {
	r.s.DB.WithReadLock(func() { fn(r.s) })
}

func setup(t *testing.T) (*store.State, *sqlite.Store) {
	t.Helper()
	state := store.New()
	require.NoError(t, state.InitGenesis(&store.Genesis{
		Time: 1_700_000_000,
		Accounts: []store.GenesisAccount{
			{Name: "alice", Key: types.PublicKeyFromSeed("alice"), Balance: types.Golos(100), Vesting: types.Golos(1)},
		},
	}, chainledger.DefaultParams()))

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return state, db
}

// advance moves the head as a block application would.
func advance(t *testing.T, s *store.State, num uint32) {
	t.Helper()
	require.NoError(t, s.DB.WithWriteLock(func() error {
		session := s.DB.BeginUndo()
		props, err := s.Props()
		if err != nil {
			return err
		}
		if err := s.Global.Properties.Modify(props, func(p *global.DynamicGlobalProperties) {
			p.HeadBlockNumber = num
			p.HeadBlockID[3] = byte(num)
			p.Time += 3
		}); err != nil {
			return err
		}
		return session.Commit()
	}))
}

func TestTakeAndRestore(t *testing.T) {
	ctx := context.Background()
	state, db := setup(t)
	advance(t, state, 1)

	cp, err := checkpoint.Take(stateReader{state})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cp.BlockNum)
	require.NoError(t, db.Save(ctx, cp))

	restored, got, err := checkpoint.Restore(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, cp.BlockID, got.BlockID)

	want, err := state.Digest()
	require.NoError(t, err)
	have, err := restored.Digest()
	require.NoError(t, err)
	assert.Equal(t, want, have)

	props, err := restored.Props()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), props.HeadBlockNumber)
}

func TestRestoreWithoutCheckpoint(t *testing.T) {
	_, db := setup(t)
	_, _, err := checkpoint.Restore(context.Background(), db)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestRestoreDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	state, db := setup(t)
	cp, err := checkpoint.Take(stateReader{state})
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, cp))

	_, err = db.DB().ExecContext(ctx, `UPDATE checkpoints SET digest = ?`, make([]byte, 32))
	require.NoError(t, err)

	_, _, err = checkpoint.Restore(ctx, db)
	assert.ErrorIs(t, err, checkpoint.ErrCorrupt)
}

func TestSchedulerRun(t *testing.T) {
	ctx := context.Background()
	state, db := setup(t)
	s, err := checkpoint.NewScheduler(stateReader{state}, db,
		checkpoint.WithKeep(2),
		checkpoint.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)

	first, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, id.PrefixCheckpoint, first.Prefix())

	again, err := s.Run(ctx)
	require.NoError(t, err)
	assert.True(t, again.IsNil(), "head has not moved")

	var last id.ID
	for n := uint32(1); n <= 3; n++ {
		advance(t, state, n)
		last, err = s.Run(ctx)
		require.NoError(t, err)
		assert.False(t, last.IsNil())
	}

	list, err := db.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint32(3), list[0].BlockNum)
	assert.Equal(t, last.String(), list[0].ID.String())

	cp, err := db.LoadByID(ctx, last)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), cp.BlockNum)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	state, db := setup(t)
	_, err := checkpoint.NewScheduler(stateReader{state}, db, checkpoint.WithSchedule("every tuesday"))
	assert.Error(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	state, db := setup(t)
	s, err := checkpoint.NewScheduler(stateReader{state}, db, checkpoint.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
