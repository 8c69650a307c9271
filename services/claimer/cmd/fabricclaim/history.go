package main

import (
	"github.com/spf13/cobra"

	"fabricclaim/pkg/render"
	"fabricclaim/services/ledger"
)

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent claim runs from the run ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, _, err := root.setup(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateHistory(); err != nil {
				return err
			}

			pool, store, err := openLedger(ctx, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			runs, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}

			engine, err := render.New()
			if err != nil {
				return err
			}
			return engine.Write(cmd.OutOrStdout(), "history.tmpl", runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultLimit, "Maximum number of runs to list")
	return cmd
}
