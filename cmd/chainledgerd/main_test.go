package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/chainledger/checkpoint"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/query"
	"github.com/xraph/chainledger/types"
)

const genesisTime types.Timestamp = 1_700_000_000

func writeFixture(t *testing.T, withCheckpoints bool) string {
	t.Helper()
	dir := t.TempDir()
	alice := types.PublicKeyFromSeed("alice")

	var blocks bytes.Buffer
	enc := json.NewEncoder(&blocks)
	for i := 1; i <= 3; i++ {
		at := genesisTime.Add(time.Duration(3*i) * time.Second)
		b := protocol.Block{Timestamp: at, Witness: "alice", SigningKey: alice}
		if i == 2 {
			b.Transactions = []protocol.Transaction{{
				Expiration: at.Add(time.Minute),
				Operations: protocol.Operations{&protocol.Transfer{From: "alice", To: "bob", Amount: types.Golos(250)}},
				SignedKeys: []types.PublicKey{alice},
			}}
		}
		require.NoError(t, enc.Encode(&b))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocks.jsonl"), blocks.Bytes(), 0o600))

	cfg := fmt.Sprintf(`
policy: skip_transaction
blocks: blocks.jsonl
params:
  owner_update_limit: 2h
genesis:
  time: "%s"
  accounts:
    - name: alice
      key: %s
      balance: "100.000 GOLOS"
      vesting: "1.000 GOLOS"
    - name: bob
      key: %s
      vesting: "1.000 GOLOS"
`, genesisTime, alice, types.PublicKeyFromSeed("bob"))
	if withCheckpoints {
		cfg += "checkpoint_path: checkpoints.db\n"
	}
	path := filepath.Join(dir, "chainledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func quietLogger(t *testing.T) {
	t.Helper()
	prev := logger
	logger = slog.New(slog.DiscardHandler)
	t.Cleanup(func() { logger = prev })
}

func TestLoadConfig(t *testing.T) {
	path := writeFixture(t, true)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "skip_transaction", cfg.Policy)
	assert.Equal(t, 2*time.Hour, cfg.Params.OwnerUpdateLimit)
	assert.Equal(t, 7*24*time.Hour, cfg.Params.DelegationReturnPeriod, "unset params keep their defaults")
	assert.Equal(t, filepath.Join(filepath.Dir(path), "blocks.jsonl"), cfg.Blocks)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "checkpoints.db"), cfg.CheckpointPath)
	require.NotNil(t, cfg.Genesis)
	require.Len(t, cfg.Genesis.Accounts, 2)
	assert.Equal(t, genesisTime, cfg.Genesis.Time)
	assert.Equal(t, types.Golos(100_000), cfg.Genesis.Accounts[0].Balance)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadLedgerReplaysBlocks(t *testing.T) {
	quietLogger(t)
	ctx := context.Background()
	cfg, err := loadConfig(writeFixture(t, false))
	require.NoError(t, err)

	l, cps, err := loadLedger(ctx, cfg)
	require.NoError(t, err)
	defer l.Stop(ctx)
	assert.Nil(t, cps)

	summary := summarize(l)
	assert.Equal(t, uint32(3), summary.HeadBlock)
	assert.Equal(t, 2, summary.Accounts)
	assert.NotEmpty(t, summary.Digest)

	engine, err := query.New(l, query.WithCacheSize(0))
	require.NoError(t, err)
	page, err := engine.List(query.Request{Index: query.AccountsByName, StartAccount: "bob", Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestLoadLedgerResumesFromCheckpoint(t *testing.T) {
	quietLogger(t)
	ctx := context.Background()
	path := writeFixture(t, true)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	first, cps, err := loadLedger(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, cps)
	want := summarize(first)
	cp, err := checkpoint.Take(first)
	require.NoError(t, err)
	require.NoError(t, cps.Save(ctx, cp))
	require.NoError(t, first.Stop(ctx))
	closeStore(cps)

	cfg, err = loadConfig(path)
	require.NoError(t, err)
	second, cps, err := loadLedger(ctx, cfg)
	require.NoError(t, err)
	defer closeStore(cps)
	defer second.Stop(ctx)

	got := summarize(second)
	assert.Equal(t, want.HeadBlock, got.HeadBlock)
	assert.Equal(t, want.Digest, got.Digest)
}

func TestCheckpointsCommand(t *testing.T) {
	quietLogger(t)
	ctx := context.Background()
	path := writeFixture(t, true)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	l, cps, err := loadLedger(ctx, cfg)
	require.NoError(t, err)
	cp, err := checkpoint.Take(l)
	require.NoError(t, err)
	require.NoError(t, cps.Save(ctx, cp))
	require.NoError(t, l.Stop(ctx))
	closeStore(cps)

	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })

	run := func(args ...string) []byte {
		var out bytes.Buffer
		checkpointsCmd.SetOut(&out)
		checkpointsCmd.SetContext(ctx)
		require.NoError(t, checkpointsCmd.RunE(checkpointsCmd, args))
		return out.Bytes()
	}

	var list []checkpointInfo
	require.NoError(t, json.Unmarshal(run(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, cp.ID.String(), list[0].ID.String())
	assert.Equal(t, uint32(3), list[0].BlockNum)

	var one checkpointInfo
	require.NoError(t, json.Unmarshal(run(cp.ID.String()), &one))
	assert.Equal(t, cp.ID.String(), one.ID.String())
	assert.Positive(t, one.Tables)

	checkpointsCmd.SetContext(ctx)
	assert.Error(t, checkpointsCmd.RunE(checkpointsCmd, []string{"audit_01h2xcejqtf2nbrexx3vqjhp41"}))
}
