package cmd

import (
	"context"
	"os"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/example/slotmint/internal/application/usecases"
	"github.com/example/slotmint/internal/config"
	"github.com/example/slotmint/internal/store"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slotmint",
		Short:         "Time-slot booking with minted ownership tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newRelayCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newUserCmd())
	root.AddCommand(newAccountCmd())
	root.AddCommand(newExperienceCmd())
	root.AddCommand(newSlotCmd())
	root.AddCommand(newReservationCmd())
	root.AddCommand(newTokenCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		printErr(err)
		os.Exit(1)
	}
}

// withContainer loads the configuration, builds the service container and
// shuts it down once fn returns.
func withContainer(ctx context.Context, fn func(ctx context.Context, inj *do.Injector) error) (err error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	inj := buildContainer(cfg)
	defer func() {
		if serr := inj.Shutdown(); err == nil && serr != nil {
			err = serr
		}
	}()
	// connect up front so a broken store surfaces as an error, not a panic
	// from a later MustInvoke
	if _, err := do.Invoke[store.Store](inj); err != nil {
		return err
	}
	if _, err := do.Invoke[usecases.UserRepo](inj); err != nil {
		return err
	}
	return fn(ctx, inj)
}
