package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize what needs your attention",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			sum, err := e.app.Overview.Load(cmd.Context())
			if err != nil {
				return err
			}
			return output(cmd, sum, func(w io.Writer) {
				row(w, "UNREAD", sum.Unread)
				row(w, "PENDING BOOKINGS", len(sum.PendingBookings))
				for _, b := range sum.PendingBookings {
					row(w, "", b.ID, b.PropertyID, b.RequestedAt.Format("2006-01-02 15:04"))
				}
				row(w, "AWAITING SIGNATURES", len(sum.AwaitingSigning))
				for _, l := range sum.AwaitingSigning {
					row(w, "", l.ID, l.PropertyID, fmt.Sprintf("from %s", l.StartDate))
				}
				row(w, "ACTIVE LEASES", len(sum.ActiveLeases))
				for _, l := range sum.ActiveLeases {
					row(w, "", l.ID, l.PropertyID, fmt.Sprintf("until %s", l.EndDate))
				}
			})
		}),
	}
}
