package cmd

import (
	"context"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/example/slotmint/internal/application/usecases"
)

func newSlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Manage an experience's time slots",
	}
	cmd.AddCommand(newSlotAddCmd(), newSlotListCmd())
	return cmd
}

func newSlotAddCmd() *cobra.Command {
	var organiser, experience, start, end string
	var price uint64

	c := &cobra.Command{
		Use:   "add",
		Short: "Add a time slot (times as unix seconds or RFC 3339)",
		RunE: func(cmd *cobra.Command, args []string) error {
			startAt, err := parseTime(start)
			if err != nil {
				return err
			}
			endAt, err := parseTime(end)
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				p := price
				if p == 0 {
					e, err := do.MustInvoke[usecases.ExperienceManager](inj).Get(ctx, experience)
					if err != nil {
						return err
					}
					p = e.Price
				}
				s, err := do.MustInvoke[usecases.SlotManager](inj).AddTimeSlot(ctx, organiser, experience, startAt, endAt, p)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "added slot %s", s.Address)
				return nil
			})
		},
	}
	c.Flags().StringVar(&organiser, "organiser", "", "organiser username")
	c.Flags().StringVar(&experience, "experience", "", "experience address")
	c.Flags().StringVar(&start, "start", "", "slot start")
	c.Flags().StringVar(&end, "end", "", "slot end")
	c.Flags().Uint64Var(&price, "price", 0, "slot price (defaults to the experience price)")
	for _, f := range []string{"organiser", "experience", "start", "end"} {
		_ = c.MarkFlagRequired(f)
	}
	return c
}

func newSlotListCmd() *cobra.Command {
	var experience string

	c := &cobra.Command{
		Use:   "list",
		Short: "List an experience's time slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				list, err := do.MustInvoke[usecases.SlotManager](inj).ListByExperience(ctx, experience)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range list {
					state := "open"
					if s.Booked {
						state = "booked by " + s.Booker
					}
					heading(out, "%d  %s - %s  price=%d  %s", s.StartTime.Unix(),
						s.StartTime.Format("2006-01-02 15:04"), s.EndTime.Format("15:04"), s.Price, state)
				}
				return nil
			})
		},
	}
	c.Flags().StringVar(&experience, "experience", "", "experience address")
	_ = c.MarkFlagRequired("experience")
	return c
}
