package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/slotmint/internal/config"
	"github.com/example/slotmint/internal/relay"
)

func newRelayCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Forward committed booking events to the configured sinks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return withContainer(ctx, func(ctx context.Context, inj *do.Injector) error {
				cfg := do.MustInvoke[config.Config](inj)
				log := do.MustInvoke[*zap.Logger](inj)
				defer func() { _ = log.Sync() }()

				shutdown, err := setupTelemetry(ctx, cfg)
				if err != nil {
					return err
				}
				defer func() { _ = shutdown(context.Background()) }()

				r, err := do.Invoke[*relay.Relay](inj)
				if err != nil {
					return err
				}
				if once {
					n := r.Tick(ctx)
					success(cmd.OutOrStdout(), "published %d events", n)
					return nil
				}
				if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process a single batch and exit")
	return cmd
}
