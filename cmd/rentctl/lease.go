package main

import (
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"rentflow/lease"
	"rentflow/lifecycle"
)

func printLeases(cmd *cobra.Command, v any, leases ...lease.Lease) error {
	return output(cmd, v, func(w io.Writer) {
		row(w, "ID", "PROPERTY", "TENANT", "PERIOD", "RENT", "STATUS")
		for _, l := range leases {
			row(w, l.ID, l.PropertyID, l.TenantID, l.StartDate.String()+" to "+l.EndDate.String(), l.RentAmount.StringFixed(2), l.Status)
		}
	})
}

func leaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lease",
		Short: "Draft, sign and end leases",
	}

	create := &cobra.Command{
		Use:   "create <booking-id>",
		Short: "Draft a lease from a confirmed booking (landlord)",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			terms, err := leaseTerms(cmd)
			if err != nil {
				return err
			}
			conditions, _ := cmd.Flags().GetString("terms")
			l, err := e.app.Leases.CreateFromBooking(cmd.Context(), lease.CreateParams{
				BookingID:          args[0],
				Terms:              terms,
				TermsAndConditions: conditions,
			})
			if err != nil {
				return err
			}
			return printLeases(cmd, l, l)
		}),
	}
	create.Flags().String("start", "", "First day, YYYY-MM-DD")
	create.Flags().String("end", "", "Last day, YYYY-MM-DD")
	create.Flags().String("rent", "", "Monthly rent")
	create.Flags().String("deposit", "0", "Security deposit")
	create.Flags().Int("due-day", 1, "Day of month rent is due")
	create.Flags().String("terms", "", "Terms and conditions text")
	for _, f := range []string{"start", "end", "rent"} {
		_ = create.MarkFlagRequired(f)
	}

	get := &cobra.Command{
		Use:   "get <lease-id>",
		Short: "Show a lease with its current status",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			l, err := e.app.Leases.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printLeases(cmd, l, l)
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your leases",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			as, _ := cmd.Flags().GetString("as")
			status, _ := cmd.Flags().GetString("status")
			page, err := e.app.Leases.List(cmd.Context(), lease.ListParams{
				As:     lifecycle.Party(as),
				Status: lifecycle.LeaseStatus(status),
				Query:  pageQuery(cmd),
			})
			if err != nil {
				return err
			}
			return printLeases(cmd, page, page.Data...)
		}),
	}
	list.Flags().String("as", "", "tenant or landlord (defaults to your role)")
	list.Flags().String("status", "", "Filter by current status")
	addPageFlags(list)

	sign := &cobra.Command{
		Use:   "sign <lease-id>",
		Short: "Sign a lease as tenant or landlord",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			party, _ := cmd.Flags().GetString("as")
			if party == "" {
				party = string(lifecycle.PartyTenant)
				if s := e.app.Session.Current(); s.Authenticated() && s.User.Role == lifecycle.RoleLandlord {
					party = string(lifecycle.PartyLandlord)
				}
			}
			l, err := e.app.Leases.Sign(cmd.Context(), args[0], lifecycle.Party(party))
			if err != nil {
				return err
			}
			return printLeases(cmd, l, l)
		}),
	}
	sign.Flags().String("as", "", "tenant or landlord (defaults to your role)")

	terminate := &cobra.Command{
		Use:   "terminate <lease-id>",
		Short: "End a lease early",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			reason, _ := cmd.Flags().GetString("reason")
			l, err := e.app.Leases.Terminate(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return printLeases(cmd, l, l)
		}),
	}
	terminate.Flags().String("reason", "", "Why the lease ends")
	_ = terminate.MarkFlagRequired("reason")

	cmd.AddCommand(create, get, list, sign, terminate)
	return cmd
}

func leaseTerms(cmd *cobra.Command) (lifecycle.LeaseTerms, error) {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	rent, _ := cmd.Flags().GetString("rent")
	deposit, _ := cmd.Flags().GetString("deposit")
	dueDay, _ := cmd.Flags().GetInt("due-day")

	var terms lifecycle.LeaseTerms
	var err error
	if terms.StartDate, err = lifecycle.ParseDate(start); err != nil {
		return terms, err
	}
	if terms.EndDate, err = lifecycle.ParseDate(end); err != nil {
		return terms, err
	}
	if terms.MonthlyRent, err = decimal.NewFromString(rent); err != nil {
		return terms, err
	}
	if terms.SecurityDeposit, err = decimal.NewFromString(deposit); err != nil {
		return terms, err
	}
	terms.PaymentDueDay = dueDay
	return terms, nil
}
