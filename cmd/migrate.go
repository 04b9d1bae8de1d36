package cmd

import (
	"context"
	"errors"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/example/slotmint/internal/config"
	"github.com/example/slotmint/internal/db"
	"github.com/example/slotmint/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				if do.MustInvoke[config.Config](inj).StoreDriver != "postgres" {
					return errors.New("migrate requires STORE_DRIVER=postgres")
				}
				d, err := do.Invoke[*db.DB](inj)
				if err != nil {
					return err
				}
				applied, err := migrate.Up(ctx, d)
				if err != nil {
					return err
				}
				for _, f := range applied {
					success(cmd.OutOrStdout(), "%s", f)
				}
				return nil
			})
		},
	}
}
