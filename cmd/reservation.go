package cmd

import (
	"context"
	"errors"
	"io"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/example/slotmint/internal/application/usecases"
	"github.com/example/slotmint/internal/domain/booking"
)

func newReservationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reservation",
		Aliases: []string{"res"},
		Short:   "Book, cancel and move reservations",
	}
	cmd.AddCommand(newReservationBookCmd(), newReservationCancelCmd(), newReservationUpdateCmd(), newReservationListCmd())
	return cmd
}

type reservationFlags struct {
	user, experience, start string
}

func (f *reservationFlags) bind(c *cobra.Command) {
	c.Flags().StringVar(&f.user, "user", "", "booking user")
	c.Flags().StringVar(&f.experience, "experience", "", "experience address")
	c.Flags().StringVar(&f.start, "start", "", "slot start (unix seconds or RFC 3339)")
	for _, name := range []string{"user", "experience", "start"} {
		_ = c.MarkFlagRequired(name)
	}
}

func newReservationBookCmd() *cobra.Command {
	var f reservationFlags
	c := &cobra.Command{
		Use:   "book",
		Short: "Book a time slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseTime(f.start)
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				res, tok, err := do.MustInvoke[usecases.ReservationEngine](inj).BookSlot(ctx, f.user, f.experience, start)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "booked %s, token %s", res.Address, tok.Mint)
				return nil
			})
		},
	}
	f.bind(c)
	return c
}

func newReservationCancelCmd() *cobra.Command {
	var f reservationFlags
	c := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a reservation and refund the booker",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseTime(f.start)
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				out, err := do.MustInvoke[usecases.ReservationEngine](inj).CancelReservation(ctx, f.user, f.experience, start)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "cancelled %s: refund %d, fee %d", out.Reservation.Address, out.Refund, out.Fee)
				return nil
			})
		},
	}
	f.bind(c)
	return c
}

func newReservationUpdateCmd() *cobra.Command {
	var f reservationFlags
	var newStart string
	c := &cobra.Command{
		Use:   "update",
		Short: "Move a reservation to another slot of the same experience",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseTime(f.start)
			if err != nil {
				return err
			}
			to, err := parseTime(newStart)
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				res, err := do.MustInvoke[usecases.ReservationEngine](inj).UpdateReservation(ctx, f.user, f.experience, start, to)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "moved reservation to %s (%s)", res.Address, res.StartTime.Format("2006-01-02 15:04"))
				return nil
			})
		},
	}
	f.bind(c)
	c.Flags().StringVar(&newStart, "new-start", "", "start of the target slot")
	_ = c.MarkFlagRequired("new-start")
	return c
}

func newReservationListCmd() *cobra.Command {
	var user, experience string
	c := &cobra.Command{
		Use:   "list",
		Short: "List reservations of an experience or a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (user == "") == (experience == "") {
				return errors.New("exactly one of --user or --experience is required")
			}
			return withContainer(cmd.Context(), func(ctx context.Context, inj *do.Injector) error {
				eng := do.MustInvoke[usecases.ReservationEngine](inj)
				var (
					list []booking.Reservation
					err  error
				)
				if user != "" {
					list, err = eng.ListByBooker(ctx, user)
				} else {
					list, err = eng.ListByExperience(ctx, experience)
				}
				if err != nil {
					return err
				}
				printReservations(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}
	c.Flags().StringVar(&user, "user", "", "booking user")
	c.Flags().StringVar(&experience, "experience", "", "experience address")
	return c
}

func printReservations(w io.Writer, list []booking.Reservation) {
	for _, r := range list {
		state := "active"
		if !r.Active {
			state = "cancelled"
		}
		heading(w, "%s  %s  %s  %s  token=%s", r.Address, r.User,
			r.StartTime.Format("2006-01-02 15:04"), state, r.TokenMint)
	}
}
