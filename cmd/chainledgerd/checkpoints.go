package main

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/chainledger/id"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store/sqlite"
	"github.com/xraph/chainledger/types"
)

func init() {
	rootCmd.AddCommand(checkpointsCmd)
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints [checkpoint-id]",
	Short: "List stored checkpoints, or show one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.CheckpointPath == "" {
			return errors.New("config has no checkpoint_path")
		}
		cps, err := sqlite.Open(ctx, cfg.CheckpointPath)
		if err != nil {
			return err
		}
		defer cps.Close()

		if len(args) == 1 {
			cid, err := id.ParseCheckpointID(args[0])
			if err != nil {
				return err
			}
			cp, err := cps.LoadByID(ctx, cid)
			if err != nil {
				return err
			}
			info := describeCheckpoint(cp)
			info.Tables = len(cp.Snapshot.Tables)
			return printJSON(cmd, info)
		}

		list, err := cps.List(ctx)
		if err != nil {
			return err
		}
		out := make([]checkpointInfo, 0, len(list))
		for _, cp := range list {
			out = append(out, describeCheckpoint(cp))
		}
		return printJSON(cmd, out)
	},
}

type checkpointInfo struct {
	ID        id.ID            `json:"checkpoint_id"`
	BlockNum  uint32           `json:"block_num"`
	BlockID   protocol.BlockID `json:"block_id"`
	BlockTime types.Timestamp  `json:"block_time"`
	Digest    string           `json:"state_digest"`
	CreatedAt time.Time        `json:"created_at"`
	Tables    int              `json:"tables,omitempty"`
}

func describeCheckpoint(cp *sqlite.Checkpoint) checkpointInfo {
	return checkpointInfo{
		ID:        cp.ID,
		BlockNum:  cp.BlockNum,
		BlockID:   cp.BlockID,
		BlockTime: cp.BlockTime,
		Digest:    hex.EncodeToString(cp.Digest[:]),
		CreatedAt: cp.CreatedAt,
	}
}
