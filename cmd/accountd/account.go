// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create accounts, log in and check credentials",
	}
	cmd.AddCommand(
		newAccountCreateCmd(a),
		newAccountLoginCmd(a),
		newAccountCheckCmd(a),
		newAccountExistsCmd(a),
		newAccountRecoverCmd(a),
	)
	return cmd
}

func newAccountCreateCmd(a *app) *cobra.Command {
	var (
		username, password, email string
		permission                int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := a.readSecret(cmd, "password", password)
			if err != nil {
				return err
			}
			return a.withServices(cmd, func(ctx context.Context, svc *Services) error {
				acct, err := svc.Accounts.Create(ctx, username, password, email, permission)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id:       %s\n", acct.ID)
				fmt.Fprintf(out, "username: %s\n", acct.Username)
				fmt.Fprintf(out, "ticket:   %s\n", acct.SessionTicket)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", `account password ("-" reads stdin)`)
	cmd.Flags().StringVar(&email, "email", "", "account email address")
	cmd.Flags().IntVar(&permission, "permission", 0, "permission level")
	markRequired(cmd, "username", "password", "email")
	return cmd
}

func newAccountLoginCmd(a *app) *cobra.Command {
	var username, password, ip string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print the new session ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := a.readSecret(cmd, "password", password)
			if err != nil {
				return err
			}
			return a.withServices(cmd, func(ctx context.Context, svc *Services) error {
				acct, err := svc.Accounts.Login(ctx, username, password, ip)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ticket:      %s\n", acct.SessionTicket)
				fmt.Fprintf(out, "last_access: %s\n", acct.LastAccess.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", `account password ("-" reads stdin)`)
	cmd.Flags().StringVar(&ip, "ip", "", "client IP address to record")
	markRequired(cmd, "username", "password")
	return cmd
}

func newAccountCheckCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a username and password without logging in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := a.readSecret(cmd, "password", password)
			if err != nil {
				return err
			}
			return a.withServices(cmd, func(ctx context.Context, svc *Services) error {
				if !svc.Accounts.ValidateCredentials(ctx, username, password) {
					fmt.Fprintln(cmd.OutOrStdout(), "invalid")
					return oops.Code("CREDENTIALS_REJECTED").Errorf("credentials rejected")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", `account password ("-" reads stdin)`)
	markRequired(cmd, "username", "password")
	return cmd
}

func newAccountExistsCmd(a *app) *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "exists",
		Short: "Report whether a username or email is taken",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd, func(ctx context.Context, svc *Services) error {
				var (
					taken bool
					err   error
				)
				if username != "" {
					taken, err = svc.Accounts.UsernameExists(ctx, username)
				} else {
					taken, err = svc.Accounts.EmailExists(ctx, email)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), taken)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username to look up")
	cmd.Flags().StringVar(&email, "email", "", "email to look up")
	cmd.MarkFlagsMutuallyExclusive("username", "email")
	cmd.MarkFlagsOneRequired("username", "email")
	return cmd
}

func newAccountRecoverCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Print the username registered to an email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd, func(ctx context.Context, svc *Services) error {
				username, err := svc.Accounts.RecoverUsername(ctx, email)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email address")
	markRequired(cmd, "email")
	return cmd
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}
