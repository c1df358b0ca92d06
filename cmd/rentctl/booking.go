package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"rentflow/booking"
	"rentflow/lifecycle"
	"rentflow/resource"
)

func printBookings(cmd *cobra.Command, v any, bookings ...booking.Booking) error {
	return output(cmd, v, func(w io.Writer) {
		row(w, "ID", "PROPERTY", "TENANT", "REQUESTED", "STATUS")
		for _, b := range bookings {
			row(w, b.ID, b.PropertyID, b.TenantID, b.RequestedAt.Format(time.RFC3339), b.Status)
		}
	})
}

func pageQuery(cmd *cobra.Command) resource.Query {
	page, _ := cmd.Flags().GetInt("page")
	limit, _ := cmd.Flags().GetInt("limit")
	return resource.Query{Page: page, PerPage: limit}
}

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().Int("limit", 20, "Items per page")
}

func bookingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Request and answer property viewings",
	}

	create := &cobra.Command{
		Use:   "create <property-id>",
		Short: "Request a viewing (tenants)",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			at, _ := cmd.Flags().GetString("at")
			note, _ := cmd.Flags().GetString("note")
			requested, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return err
			}
			b, err := e.app.Bookings.Create(cmd.Context(), booking.CreateParams{
				PropertyID:  args[0],
				RequestedAt: requested,
				Note:        note,
			})
			if err != nil {
				return err
			}
			return printBookings(cmd, b, b)
		}),
	}
	create.Flags().String("at", "", "Viewing time, RFC 3339")
	create.Flags().String("note", "", "Message for the landlord")
	_ = create.MarkFlagRequired("at")

	list := &cobra.Command{
		Use:   "list",
		Short: "List your bookings",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			as, _ := cmd.Flags().GetString("as")
			status, _ := cmd.Flags().GetString("status")
			page, err := e.app.Bookings.List(cmd.Context(), booking.ListParams{
				As:     lifecycle.Party(as),
				Status: lifecycle.BookingStatus(status),
				Query:  pageQuery(cmd),
			})
			if err != nil {
				return err
			}
			return printBookings(cmd, page, page.Data...)
		}),
	}
	list.Flags().String("as", "", "tenant or landlord (defaults to your role)")
	list.Flags().String("status", "", "Filter by status")
	addPageFlags(list)

	cmd.AddCommand(create, list,
		transitionCmd("confirm", "Confirm a pending booking (landlord)", lifecycle.ActionConfirm),
		transitionCmd("reject", "Reject a pending booking (landlord)", lifecycle.ActionReject),
		transitionCmd("cancel", "Cancel your pending booking (tenant)", lifecycle.ActionCancel),
	)
	return cmd
}

func transitionCmd(use, short string, action lifecycle.BookingAction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <booking-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			reason, _ := cmd.Flags().GetString("reason")
			b, err := e.app.Bookings.Transition(cmd.Context(), booking.TransitionParams{
				BookingID: args[0],
				Action:    action,
				Reason:    reason,
			})
			if err != nil {
				return err
			}
			return printBookings(cmd, b, b)
		}),
	}
	if action != lifecycle.ActionConfirm {
		cmd.Flags().String("reason", "", "Reason shown to the other party")
	}
	return cmd
}
