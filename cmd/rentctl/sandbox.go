package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rentflow/config"
	"rentflow/lifecycle"
	"rentflow/logging"
	"rentflow/notify"
	"rentflow/payment"
	"rentflow/resource"
	"rentflow/sandbox"
)

func sandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run the in-memory rental API locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "rentflow-sandbox")
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			opts := sandbox.Options{
				JWTSecret: cfg.Sandbox.JWTSecret,
				Location:  cfg.Location(),
				Logger:    logger,
			}
			if cfg.MQTT.Broker != "" {
				mq := cfg.MQTT
				mq.ClientID += "-sandbox"
				client, err := notify.Connect(mq, logger.Named("mqtt"))
				if err != nil {
					logger.Warn("settlement nudges disabled", zap.Error(err))
				} else {
					defer client.Close()
					opts.Publisher = client
				}
			}

			srv := sandbox.New(opts)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(cfg.Sandbox.Addr) }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("sandbox stopped")
			return nil
		},
	}

	settle := &cobra.Command{
		Use:   "settle <payment-id>",
		Short: "Play the payment gateway and settle a sandbox payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			txn, _ := cmd.Flags().GetString("transaction-id")

			api := resource.New(resource.Options{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout})
			var p payment.Payment
			err = api.Do(cmd.Context(), http.MethodPost, "/sandbox/payments/"+args[0]+"/settle",
				sandbox.SettleRequest{Status: lifecycle.PaymentStatus(status), TransactionID: txn},
				&p, resource.Anonymous())
			if err != nil {
				return err
			}
			return printPayments(cmd, p, p)
		},
	}
	settle.Flags().String("status", string(lifecycle.PaymentSuccessful), "successful, failed or processing")
	settle.Flags().String("transaction-id", "", "Gateway transaction id (generated when empty)")

	cmd.AddCommand(settle)
	return cmd
}
