package main

import (
	"github.com/spf13/cobra"

	"github.com/xraph/chainledger/query"
)

var queryReq query.Request

func init() {
	queryCmd.Flags().StringVar(&queryReq.Index, "index", query.AccountsByName, "index to list")
	queryCmd.Flags().StringVar(&queryReq.StartAccount, "start-account", "", "lower bound account of the page")
	queryCmd.Flags().StringVar(&queryReq.StartItem, "start-item", "", "lower bound of the second key part; needs --start-account")
	queryCmd.Flags().IntVar(&queryReq.Limit, "limit", query.DefaultLimit, "page size, at most 100")
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "List one page of a ledger index after replaying the configured blocks",
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

		engine, err := query.New(l, query.WithCacheSize(0), query.WithLogger(logger))
		if err != nil {
			return err
		}
		page, err := engine.List(queryReq)
		if err != nil {
			return err
		}
		return printJSON(cmd, page)
	},
}
