package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"waggletag/internal/api"
	"waggletag/internal/session"
)

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the labeling UI API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.API.Bind = bind
			}

			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}

			labels, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer labels.Close()

			manager, err := cmdCtx.newLayout()
			if err != nil {
				return err
			}
			controller, err := session.NewController(labels, manager, logger)
			if err != nil {
				return err
			}

			server, err := api.NewServer(cfg, labels, controller, logger)
			if err != nil {
				return err
			}
			if server == nil {
				return fmt.Errorf("no api bind address configured")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := server.Start(ctx); err != nil {
				return err
			}
			defer server.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving labeling API on %s\n", server.Addr())
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override the configured bind address")
	return cmd
}
