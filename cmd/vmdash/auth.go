package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vmdash.io/vmdash/internal/apiclient"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/view"
)

func newLoginCommand(c *cli) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var err error
			if username == "" {
				if username, err = c.prompt("Username"); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = c.prompt("Password"); err != nil {
					return err
				}
			}

			application, err := c.open(ctx)
			if err != nil {
				return err
			}
			if err := application.Guard.Login(ctx, username, password); err != nil {
				application.Notifications.Error(apperrors.Message(err))
				return reported(err)
			}
			sess := application.Guard.CheckSession(ctx)
			if !sess.Authenticated {
				return reported(fmt.Errorf("session not established"))
			}
			application.Notifications.Success("Login successful")
			fmt.Fprintf(c.io.out, "Logged in as %s\n", sess.User.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when empty)")
	return cmd
}

func newLogoutCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove the stored cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			c.quiet = true
			application.Guard.Logout(cmd.Context())
			fmt.Fprintln(c.io.out, "Logged out")
			return nil
		},
	}
}

type whoami struct {
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func newWhoamiCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			sess := application.Guard.CheckSession(cmd.Context())
			if !sess.Authenticated {
				return reported(fmt.Errorf("not logged in"))
			}

			out := whoami{Username: sess.User.Username, DisplayName: sess.User.DisplayName()}
			if info, err := application.Guard.TokenExpiry(); err == nil && !info.ExpiresAt.IsZero() {
				out.ExpiresAt = &info.ExpiresAt
			}
			if c.json() {
				return view.WriteJSON(c.io.out, out)
			}
			fmt.Fprintf(c.io.out, "%s (%s)\n", out.DisplayName, out.Username)
			if out.ExpiresAt != nil {
				fmt.Fprintf(c.io.out, "Session expires %s\n", out.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func newRegisterCommand(c *cli) *cobra.Command {
	var req apiclient.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a backend account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Password == "" {
				var err error
				if req.Password, err = c.prompt("Password"); err != nil {
					return err
				}
			}
			application, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			msg, err := application.Client.Register(cmd.Context(), req)
			if err != nil {
				application.Notifications.Error(apperrors.Message(err))
				return reported(err)
			}
			application.Notifications.Success(msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Password (prompted when empty)")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
