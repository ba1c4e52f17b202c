package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/invariant"
)

var auditWorkers int

func init() {
	auditCmd.Flags().IntVar(&auditWorkers, "workers", 4, "checks run in parallel")
	rootCmd.AddCommand(auditCmd)
}

type auditReport struct {
	HeadBlock  uint32           `json:"head_block"`
	Checks     []string         `json:"checks"`
	Violations []auditViolation `json:"violations"`
}

type auditViolation struct {
	Check string `json:"check"`
	Error string `json:"error"`
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check the ledger state invariants after replaying the configured blocks",
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

		checker := invariant.New(invariant.WithWorkers(auditWorkers), invariant.WithLogger(logger))
		report := auditReport{
			HeadBlock:  l.HeadBlock().Number,
			Checks:     checker.Checks(),
			Violations: []auditViolation{},
		}

		auditErr := checker.Audit(ctx, l)
		var multi chainledger.MultiError
		if errors.As(auditErr, &multi) {
			for _, err := range multi.Errors {
				var v *invariant.Violation
				if errors.As(err, &v) {
					report.Violations = append(report.Violations, auditViolation{Check: v.Check, Error: v.Err.Error()})
				}
			}
		} else if auditErr != nil {
			return auditErr
		}

		if err := printJSON(cmd, report); err != nil {
			return err
		}
		if len(report.Violations) > 0 {
			return fmt.Errorf("%d invariant violations", len(report.Violations))
		}
		return nil
	},
}
