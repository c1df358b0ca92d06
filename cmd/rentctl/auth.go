package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"rentflow/fault"
	"rentflow/lifecycle"
	"rentflow/session"
)

// password reads --password, falling back to RENTFLOW_PASSWORD so it stays
// out of shell history.
func password(cmd *cobra.Command) (string, error) {
	pw, _ := cmd.Flags().GetString("password")
	if pw == "" {
		pw = os.Getenv("RENTFLOW_PASSWORD")
	}
	if pw == "" {
		return "", fault.Validation("rentctl", "password is required (--password or RENTFLOW_PASSWORD)")
	}
	return pw, nil
}

func printSession(cmd *cobra.Command, s *session.Session) error {
	return output(cmd, s.User, func(w io.Writer) {
		row(w, "ID", "USERNAME", "EMAIL", "ROLE")
		row(w, s.User.ID, s.User.Username, s.User.Email, s.User.Role)
	})
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <username-or-email>",
		Short: "Sign in and persist the session",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			pw, err := password(cmd)
			if err != nil {
				return err
			}
			s, err := e.app.Session.Login(cmd.Context(), session.Credentials{Username: args[0], Password: pw})
			if err != nil {
				return err
			}
			return printSession(cmd, s)
		}),
	}
	cmd.Flags().String("password", "", "Account password")
	return cmd
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			pw, err := password(cmd)
			if err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")
			phone, _ := cmd.Flags().GetString("phone")
			role, _ := cmd.Flags().GetString("role")

			s, err := e.app.Session.Register(cmd.Context(), session.Registration{
				Username: args[0],
				Email:    email,
				Password: pw,
				Phone:    phone,
				Role:     lifecycle.Role(role),
			})
			if err != nil {
				return err
			}
			return printSession(cmd, s)
		}),
	}
	cmd.Flags().String("password", "", "Account password")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("phone", "", "Phone number")
	cmd.Flags().String("role", string(lifecycle.RoleTenant), "tenant or landlord")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the token and forget the session",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			if err := e.app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		}),
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			s := e.app.Session.Current()
			if !s.Authenticated() {
				return fault.Authentication("rentctl", "not logged in")
			}
			return printSession(cmd, s)
		}),
	}
}
