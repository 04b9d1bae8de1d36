package cmd

import (
	"context"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/example/slotmint/internal/application/usecases"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect minted ownership tokens",
	}
	cmd.AddCommand(newTokenListCmd())
	return cmd
}

func newTokenListCmd() *cobra.Command {
	var owner string
	var withMetadata bool

	c := &cobra.Command{
		Use:   "list",
		Short: "List tokens held by an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				eng := do.MustInvoke[usecases.ReservationEngine](inj)
				toks, err := eng.TokensByOwner(ctx, owner)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, t := range toks {
					heading(out, "%s  reservation=%s  minted=%s", t.Mint, t.Reservation, t.MintedAt.Format("2006-01-02 15:04"))
					if !withMetadata {
						continue
					}
					meta, err := eng.Metadata(ctx, t.Mint)
					if err != nil {
						return err
					}
					if err := printJSON(out, meta.Document()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	c.Flags().StringVar(&owner, "owner", "", "token owner")
	c.Flags().BoolVar(&withMetadata, "metadata", false, "print each token's metadata document")
	_ = c.MarkFlagRequired("owner")
	return c
}
