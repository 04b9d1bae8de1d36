package cmd

import (
	"context"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/example/slotmint/internal/application/usecases"
)

func newExperienceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experience",
		Aliases: []string{"exp"},
		Short:   "Create and inspect experiences",
	}
	cmd.AddCommand(newExperienceCreateCmd(), newExperienceListCmd(), newExperienceShowCmd())
	return cmd
}

func newExperienceCreateCmd() *cobra.Command {
	var organiser string
	var p usecases.CreateExperienceParams

	c := &cobra.Command{
		Use:   "create",
		Short: "Create an experience",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				e, err := do.MustInvoke[usecases.ExperienceManager](inj).Create(ctx, organiser, p)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "created experience %s", e.Address)
				return printJSON(cmd.OutOrStdout(), e)
			})
		},
	}
	c.Flags().StringVar(&organiser, "organiser", "", "organiser username")
	c.Flags().StringVar(&p.Title, "title", "", "title")
	c.Flags().StringVar(&p.Location, "location", "", "location")
	c.Flags().StringVar(&p.Description, "description", "", "description")
	c.Flags().Uint64Var(&p.Price, "price", 0, "base price per slot")
	c.Flags().Uint8Var(&p.CancellationFeePercent, "cancellation-fee", 0, "cancellation fee percent (0-100)")
	_ = c.MarkFlagRequired("organiser")
	_ = c.MarkFlagRequired("title")
	_ = c.MarkFlagRequired("price")
	return c
}

func newExperienceListCmd() *cobra.Command {
	var organiser string

	c := &cobra.Command{
		Use:   "list",
		Short: "List an organiser's experiences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				list, err := do.MustInvoke[usecases.ExperienceManager](inj).ListByOrganiser(ctx, organiser)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range list {
					heading(out, "%s  %s @ %s  price=%d fee=%d%%", e.Address, e.Title, e.Location, e.Price, e.CancellationFeePercent)
				}
				return nil
			})
		},
	}
	c.Flags().StringVar(&organiser, "organiser", "", "organiser username")
	_ = c.MarkFlagRequired("organiser")
	return c
}

func newExperienceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <address>",
		Short: "Show an experience",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				e, err := do.MustInvoke[usecases.ExperienceManager](inj).Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), e)
			})
		},
	}
}
