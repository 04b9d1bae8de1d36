package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/slotmint/internal/application/usecases"
	"github.com/example/slotmint/internal/auth"
	"github.com/example/slotmint/internal/config"
	"github.com/example/slotmint/internal/db"
	"github.com/example/slotmint/internal/migrate"
	"github.com/example/slotmint/internal/relay"
	"github.com/example/slotmint/internal/telemetry"
	"github.com/example/slotmint/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp, withRelay bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and the event relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return withContainer(ctx, func(ctx context.Context, inj *do.Injector) error {
				cfg := do.MustInvoke[config.Config](inj)
				if err := cfg.ValidateServer(); err != nil {
					return err
				}
				log := do.MustInvoke[*zap.Logger](inj)
				defer func() { _ = log.Sync() }()

				shutdown, err := setupTelemetry(ctx, cfg)
				if err != nil {
					return err
				}
				defer func() { _ = shutdown(context.Background()) }()

				if migrateUp && cfg.StoreDriver == "postgres" {
					if err := runMigrations(ctx, inj, log); err != nil {
						return err
					}
				}

				g, ctx := errgroup.WithContext(ctx)
				if withRelay {
					r, err := do.Invoke[*relay.Relay](inj)
					if err != nil {
						return err
					}
					g.Go(func() error {
						if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
							return fmt.Errorf("relay: %w", err)
						}
						return nil
					})
				}

				ws := &web.Server{
					Auth:         auth.NewStore(cfg.CookieHashKey, cfg.CookieBlockKey, cfg.JWTSecret, cfg.JWTTTL),
					Users:        do.MustInvoke[usecases.AuthService](inj),
					Experiences:  do.MustInvoke[usecases.ExperienceManager](inj),
					Slots:        do.MustInvoke[usecases.SlotManager](inj),
					Reservations: do.MustInvoke[usecases.ReservationEngine](inj),
					Log:          log,
					Health:       do.MustInvoke[healthCheck](inj),
					ServiceName:  cfg.OTel.ServiceName,
				}
				g.Go(func() error { return web.Start(ctx, cfg.ListenAddr, ws.Routes(), log) })
				return g.Wait()
			})
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().BoolVar(&withRelay, "relay", true, "run the outbox relay in-process")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

func setupTelemetry(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	return telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.OTel.Endpoint,
		Insecure:       cfg.OTel.Insecure,
	})
}

func runMigrations(ctx context.Context, inj *do.Injector, log *zap.Logger) error {
	d, err := do.Invoke[*db.DB](inj)
	if err != nil {
		return err
	}
	applied, err := migrate.Up(ctx, d)
	if err != nil {
		return err
	}
	log.Info("migrations applied", zap.Strings("files", applied))
	return nil
}
