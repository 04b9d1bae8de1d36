package cmd

import (
	"context"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/example/slotmint/internal/application/usecases"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Fund accounts and inspect balances",
	}
	cmd.AddCommand(newAccountFundCmd(), newAccountBalanceCmd())
	return cmd
}

func newAccountFundCmd() *cobra.Command {
	var account string
	var amount uint64

	c := &cobra.Command{
		Use:   "fund",
		Short: "Credit an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				eng := do.MustInvoke[usecases.ReservationEngine](inj)
				if err := eng.Deposit(ctx, account, amount); err != nil {
					return err
				}
				bal, err := eng.Balance(ctx, account)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "%s balance %d", account, bal)
				return nil
			})
		},
	}
	c.Flags().StringVar(&account, "account", "", "account (username)")
	c.Flags().Uint64Var(&amount, "amount", 0, "amount to credit")
	_ = c.MarkFlagRequired("account")
	_ = c.MarkFlagRequired("amount")
	return c
}

func newAccountBalanceCmd() *cobra.Command {
	var account string

	c := &cobra.Command{
		Use:   "balance",
		Short: "Show an account balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				bal, err := do.MustInvoke[usecases.ReservationEngine](inj).Balance(ctx, account)
				if err != nil {
					return err
				}
				heading(cmd.OutOrStdout(), "%s: %d", account, bal)
				return nil
			})
		},
	}
	c.Flags().StringVar(&account, "account", "", "account (username)")
	_ = c.MarkFlagRequired("account")
	return c
}
