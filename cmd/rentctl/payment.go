package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"rentflow/lifecycle"
	"rentflow/payment"
	"rentflow/resource"
	"rentflow/statement"
)

func printPayments(cmd *cobra.Command, v any, payments ...payment.Payment) error {
	return output(cmd, v, func(w io.Writer) {
		row(w, "ID", "LEASE", "AMOUNT", "METHOD", "STATUS", "KEY")
		for _, p := range payments {
			row(w, p.ID, p.LeaseID, p.Amount.StringFixed(2), p.Method, p.Status, p.IdempotencyKey)
		}
	})
}

func paymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Pay rent and follow settlement",
	}

	create := &cobra.Command{
		Use:   "create <lease-id>",
		Short: "Pay against an active lease (tenant)",
		Long: "Pay against an active lease. If the command fails without a verdict, rerun it " +
			"with --key set to the printed idempotency key; the payment is never submitted twice.",
		Args: cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			amount, _ := cmd.Flags().GetString("amount")
			method, _ := cmd.Flags().GetString("method")
			description, _ := cmd.Flags().GetString("description")
			key, _ := cmd.Flags().GetString("key")
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			if key == "" {
				key = uuid.NewString()
				fmt.Fprintf(cmd.ErrOrStderr(), "idempotency key: %s\n", key)
			}
			p, err := e.app.Payments.Create(cmd.Context(), payment.CreateParams{
				LeaseID:        args[0],
				Amount:         value,
				Method:         lifecycle.PaymentMethod(method),
				Description:    description,
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}
			return printPayments(cmd, p, p)
		}),
	}
	create.Flags().String("amount", "", "Amount to pay")
	create.Flags().String("method", string(lifecycle.MethodAlipay), "wechat_pay, alipay, credit_card or bank_transfer")
	create.Flags().String("description", "", "Free-form note")
	create.Flags().String("key", "", "Idempotency key of an earlier attempt")
	_ = create.MarkFlagRequired("amount")

	get := &cobra.Command{
		Use:   "get <payment-id>",
		Short: "Show a payment",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			p, err := e.app.Payments.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printPayments(cmd, p, p)
		}),
	}

	list := &cobra.Command{
		Use:   "list <lease-id>",
		Short: "List a lease's payments",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			page, err := e.app.Payments.ListByLease(cmd.Context(), args[0], pageQuery(cmd))
			if err != nil {
				return err
			}
			return printPayments(cmd, page, page.Data...)
		}),
	}
	addPageFlags(list)

	refund := &cobra.Command{
		Use:   "refund <payment-id>",
		Short: "Refund a successful payment (landlord)",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			reason, _ := cmd.Flags().GetString("reason")
			p, err := e.app.Payments.Refund(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return printPayments(cmd, p, p)
		}),
	}
	refund.Flags().String("reason", "", "Why the money goes back")
	_ = refund.MarkFlagRequired("reason")

	watch := &cobra.Command{
		Use:   "watch <payment-id>",
		Short: "Wait until the gateway settles a payment",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			p, err := e.app.Payments.AwaitSettlement(ctx, args[0], interval, e.nudges())
			if err != nil {
				return err
			}
			return printPayments(cmd, p, p)
		}),
	}
	watch.Flags().Duration("interval", 2*time.Second, "Polling interval")
	watch.Flags().Duration("timeout", 5*time.Minute, "Give up waiting after this long")

	export := &cobra.Command{
		Use:   "export <lease-id>",
		Short: "Write a lease's payment statement as XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = "statement-" + args[0] + ".xlsx"
			}
			l, err := e.app.Leases.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			payments, err := allPayments(cmd.Context(), e.app.Payments, l.ID)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := statement.Write(f, l, payments); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			totals := statement.Sum(payments)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d payments, net %s\n", out, len(payments), totals.Net.StringFixed(2))
			return nil
		}),
	}
	export.Flags().String("out", "", "Output file (default statement-<lease-id>.xlsx)")

	cmd.AddCommand(create, get, list, refund, watch, export)
	return cmd
}

func allPayments(ctx context.Context, svc *payment.Service, leaseID string) ([]payment.Payment, error) {
	var out []payment.Payment
	q := resource.Query{Page: 1, PerPage: 100}
	for {
		page, err := svc.ListByLease(ctx, leaseID, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		if !page.HasNext() {
			return out, nil
		}
		q.Page++
	}
}
