package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/chain"
	"github.com/xraph/chainledger/checkpoint"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/store/sqlite"
)

// fileConfig is the YAML document read by every command.
type fileConfig struct {
	Params         chainledger.Params `yaml:"params"`
	Genesis        *store.Genesis     `yaml:"genesis"`
	Policy         string             `yaml:"policy"`
	Blocks         string             `yaml:"blocks"`
	CheckpointPath string             `yaml:"checkpoint_path"`
}

// loadConfig reads path over the default params. Relative block and
// checkpoint paths are resolved against the config file directory.
func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{Params: chainledger.DefaultParams()}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if cfg.Blocks != "" && !filepath.IsAbs(cfg.Blocks) {
		cfg.Blocks = filepath.Join(dir, cfg.Blocks)
	}
	if cfg.CheckpointPath != "" && !filepath.IsAbs(cfg.CheckpointPath) {
		cfg.CheckpointPath = filepath.Join(dir, cfg.CheckpointPath)
	}
	return cfg, nil
}

// openLedger builds a ledger from the newest checkpoint when one exists and
// from genesis otherwise. The returned store is nil without a checkpoint
// path and must be closed by the caller.
func openLedger(ctx context.Context, cfg *fileConfig, logger *slog.Logger) (*chain.Ledger, *sqlite.Store, error) {
	policy, err := chain.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, nil, err
	}

	var (
		state *store.State
		cps   *sqlite.Store
	)
	if cfg.CheckpointPath != "" {
		if cps, err = sqlite.Open(ctx, cfg.CheckpointPath); err != nil {
			return nil, nil, err
		}
		restored, cp, err := checkpoint.Restore(ctx, cps)
		switch {
		case err == nil:
			logger.Info("restored checkpoint", "block", cp.BlockNum, "block_id", cp.BlockID.String())
			state = restored
		case !errors.Is(err, sqlite.ErrNotFound):
			cps.Close()
			return nil, nil, err
		}
	}

	if state == nil {
		if cfg.Genesis == nil {
			closeStore(cps)
			return nil, nil, errors.New("config has no genesis and there is no checkpoint to restore")
		}
		state = store.New()
		if err := state.InitGenesis(cfg.Genesis, cfg.Params); err != nil {
			closeStore(cps)
			return nil, nil, err
		}
	}

	l, err := chain.New(state,
		chain.WithLogger(logger),
		chain.WithParams(cfg.Params),
		chain.WithPolicy(policy),
	)
	if err != nil {
		closeStore(cps)
		return nil, nil, err
	}
	if err := l.Start(ctx); err != nil {
		closeStore(cps)
		return nil, nil, err
	}
	return l, cps, nil
}

func closeStore(s *sqlite.Store) {
	if s != nil {
		s.Close()
	}
}

// readBlocks decodes a stream of JSON blocks, one value after another.
func readBlocks(r io.Reader, fn func(*protocol.Block) error) error {
	dec := json.NewDecoder(r)
	for n := 1; ; n++ {
		var b protocol.Block
		if err := dec.Decode(&b); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode block %d: %w", n, err)
		}
		if err := fn(&b); err != nil {
			return err
		}
	}
}
