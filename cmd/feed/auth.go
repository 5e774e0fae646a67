package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Store a session token and verify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Login(cmd.Context(), args[0], nil); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			u, _ := a.session.User()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%d)\n", u.Name, u.ID)
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, ok := a.session.User()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d)", u.Name, u.ID)
			if u.Email != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " <%s>", u.Email)
			}
			if u.Role != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " [%s]", u.Role)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
