package main

import (
	"github.com/spf13/cobra"

	"fabricclaim/pkg/render"
	"fabricclaim/services/console"
)

type inspectView struct {
	Address     string
	Identifier  string
	MaskedToken string
	Systems     []map[string]any
}

func newInspectCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect ADDRESS",
		Short: "Show a device console's identity and system report without claiming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, logger, err := root.setup(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateConsole(); err != nil {
				return err
			}

			address := args[0]
			client := console.NewClient(console.Config{Timeout: cfg.Console.Timeout})

			session, err := client.Login(ctx, address, cfg.Console.Username, cfg.Console.Password)
			if err != nil {
				return err
			}
			identity, err := client.ResolveIdentity(ctx, session, address)
			if err != nil {
				return err
			}

			view := inspectView{
				Address:     address,
				Identifier:  identity.Identifier,
				MaskedToken: identity.MaskedToken(),
			}
			systems, err := client.Systems(ctx, session)
			if err != nil {
				logger.Warn().Err(err).Str("address", address).Msg("read system report")
			}
			for _, s := range systems {
				view.Systems = append(view.Systems, s.Raw)
			}

			engine, err := render.New()
			if err != nil {
				return err
			}
			return engine.Write(cmd.OutOrStdout(), "inspect.tmpl", view)
		},
	}
}
