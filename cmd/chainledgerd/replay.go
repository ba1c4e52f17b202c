package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/chain"
	"github.com/xraph/chainledger/checkpoint"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/store/sqlite"
)

var (
	irreversibleLag uint32
	writeCheckpoint bool
	keepCheckpoints int
)

func init() {
	replayCmd.Flags().Uint32Var(&irreversibleLag, "irreversible-lag", 21, "blocks behind head that become irreversible")
	replayCmd.Flags().BoolVar(&writeCheckpoint, "checkpoint", true, "write a checkpoint after the replay when checkpoint_path is set")
	replayCmd.Flags().IntVar(&keepCheckpoints, "keep", 10, "checkpoints to retain")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Apply the configured blocks and report the resulting head",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		l, cps, err := loadLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore(cps)
		defer l.Stop(ctx)

		if writeCheckpoint && cps != nil {
			cp, err := checkpoint.Take(l)
			if err != nil {
				return err
			}
			if err := cps.Save(ctx, cp); err != nil {
				return err
			}
			pruned, err := cps.Prune(ctx, keepCheckpoints)
			if err != nil {
				return err
			}
			logger.Info("checkpoint written", "checkpoint_id", cp.ID.String(), "block", cp.BlockNum, "pruned", pruned)
		}
		return printJSON(cmd, summarize(l))
	},
}

// loadLedger opens the ledger and applies the configured blocks that are
// above its head. The n-th block of the file is block n; a block without
// a previous id is chained onto the current head.
func loadLedger(ctx context.Context, cfg *fileConfig) (*chain.Ledger, *sqlite.Store, error) {
	l, cps, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Blocks == "" {
		return l, cps, nil
	}

	f, err := os.Open(cfg.Blocks)
	if err != nil {
		l.Stop(ctx)
		closeStore(cps)
		return nil, nil, err
	}
	defer f.Close()

	var num uint32
	err = readBlocks(f, func(b *protocol.Block) error {
		num++
		head := l.HeadBlock()
		if num <= head.Number {
			return nil
		}
		if b.Previous.IsZero() {
			b.Previous = head.ID
		}
		ann, err := l.ApplyBlock(ctx, b)
		if err != nil {
			return fmt.Errorf("block %d: %w", num, err)
		}
		logger.Debug("block applied",
			"block", ann.BlockNum,
			"transactions", len(ann.TransactionIDs),
			"failed", len(ann.FailedTransactions),
			"virtual_ops", len(ann.VirtualOperations),
		)
		if ann.BlockNum > irreversibleLag {
			return l.SetIrreversible(ctx, ann.BlockNum-irreversibleLag)
		}
		return nil
	})
	if err != nil {
		l.Stop(ctx)
		closeStore(cps)
		return nil, nil, err
	}
	logger.Info("replay finished", slog.Uint64("head_block", uint64(l.HeadBlock().Number)))
	return l, cps, nil
}

type headSummary struct {
	HeadBlock    uint32                `json:"head_block"`
	BlockID      protocol.BlockID      `json:"block_id"`
	Time         chainledger.Timestamp `json:"time"`
	Irreversible uint32                `json:"irreversible"`
	Accounts     int                   `json:"accounts"`
	Digest       string                `json:"state_digest"`
}

func summarize(l *chain.Ledger) headSummary {
	head := l.HeadBlock()
	out := headSummary{
		HeadBlock:    head.Number,
		BlockID:      head.ID,
		Time:         head.Time,
		Irreversible: head.Irreversible,
	}
	l.WithReadLock(func(s *store.State) {
		out.Accounts = s.Accounts.Len()
		if d, err := s.Digest(); err == nil {
			out.Digest = hex.EncodeToString(d[:])
		}
	})
	return out
}
