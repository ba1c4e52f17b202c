package extension

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/chain"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/query"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

const genesisTime types.Timestamp = 1_700_000_000

func testGenesis() *store.Genesis {
	return &store.Genesis{
		Time: genesisTime,
		Accounts: []store.GenesisAccount{
			{Name: "alice", Key: types.PublicKeyFromSeed("alice"), Balance: types.Golos(1000), Vesting: types.Golos(1)},
			{Name: "bob", Key: types.PublicKeyFromSeed("bob"), Vesting: types.Golos(1)},
		},
	}
}

func newTestExtension(opts ...Option) *Extension {
	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRegisterer(prometheus.NewRegistry()),
		WithGenesis(testGenesis()),
	}
	e := New(append(base, opts...)...)
	e.config = mergeWithDefaults(e.config)
	return e
}

func emptyBlock(l *chain.Ledger) *protocol.Block {
	head := l.HeadBlock()
	return &protocol.Block{
		Previous:   head.ID,
		Timestamp:  head.Time.Add(3 * time.Second),
		Witness:    "alice",
		SigningKey: types.PublicKeyFromSeed("alice"),
	}
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{CheckpointKeep: 3})
	defaults := DefaultConfig()

	assert.Equal(t, chainledger.DefaultParams(), cfg.Params)
	assert.Equal(t, "reject_block", cfg.Policy)
	assert.Equal(t, 3, cfg.CheckpointKeep)
	assert.Equal(t, defaults.CheckpointSchedule, cfg.CheckpointSchedule)
	assert.Equal(t, defaults.QueryCacheSize, cfg.QueryCacheSize)
	assert.Equal(t, 5*time.Second, cfg.PluginTimeout)
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{Policy: "skip_transaction", CheckpointPath: "/var/lib/chainledger.db"}
	programmatic := Config{
		Policy:                "reject_block",
		CheckpointPath:        "/tmp/other.db",
		QueryCacheSize:        16,
		DisableInvariantAudit: true,
		Genesis:               testGenesis(),
		RequireConfig:         true,
	}

	cfg := mergeConfigurations(yamlCfg, programmatic)
	assert.Equal(t, "skip_transaction", cfg.Policy, "file config wins")
	assert.Equal(t, "/var/lib/chainledger.db", cfg.CheckpointPath)
	assert.Equal(t, 16, cfg.QueryCacheSize, "programmatic fills gaps")
	assert.True(t, cfg.DisableInvariantAudit)
	assert.NotNil(t, cfg.Genesis)
	assert.True(t, cfg.RequireConfig)
}

func TestBuildFromGenesis(t *testing.T) {
	e := newTestExtension(WithPolicy(chain.PolicySkipTransaction))
	require.NoError(t, e.build(context.Background()))

	require.NotNil(t, e.Ledger())
	assert.Nil(t, e.scheduler, "no checkpoint path configured")
	assert.Equal(t, 1, e.Ledger().Plugins().Count(), "metrics plugin only")
	require.NoError(t, e.Checker().Audit(context.Background(), e.Ledger()))

	page, err := e.Queries().List(query.Request{Index: query.AccountsByName})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestBuildRejectsUnknownPolicy(t *testing.T) {
	e := newTestExtension()
	e.config.Policy = "ignore"
	assert.Error(t, e.build(context.Background()))
}

func TestBuildRequiresGenesisOrCheckpoint(t *testing.T) {
	e := New(WithLogger(slog.New(slog.DiscardHandler)), WithDisableMetrics())
	e.config = mergeWithDefaults(e.config)
	assert.Error(t, e.build(context.Background()))
}

func TestBuildRestoresCheckpoint(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	first := newTestExtension(WithCheckpoints(path, "@every 1h", 2))
	require.NoError(t, first.build(ctx))
	require.NotNil(t, first.scheduler)
	_, err := first.Ledger().ApplyBlock(ctx, emptyBlock(first.Ledger()))
	require.NoError(t, err)
	written, err := first.scheduler.Run(ctx)
	require.NoError(t, err)
	require.False(t, written.IsNil())
	head := first.Ledger().HeadBlock()
	require.NoError(t, first.checkpoints.Close())

	second := newTestExtension(WithCheckpoints(path, "@every 1h", 2), WithGenesis(nil))
	require.NoError(t, second.build(ctx))
	defer second.checkpoints.Close()

	restored := second.Ledger().HeadBlock()
	assert.Equal(t, head.Number, restored.Number)
	assert.Equal(t, head.ID, restored.ID)
	require.NoError(t, second.Health(ctx))
}
