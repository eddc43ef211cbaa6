// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newResetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Run the forgot-password token flow",
	}
	cmd.AddCommand(newResetRequestCmd(a), newResetStatusCmd(a), newResetValidateCmd(a), newResetConsumeCmd(a))
	return cmd
}

func newResetRequestCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Issue a reset token and send it to the account email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd, func(ctx context.Context, svc *Services) error {
				req, err := svc.Resets.RequestReset(ctx, email)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "username: %s\n", req.Username)
				fmt.Fprintf(out, "email:    %s\n", req.MaskedEmail)
				fmt.Fprintf(out, "expires:  %s\n", req.ExpireAt.UTC().Format(time.RFC3339))
				if !req.Dispatched() {
					cmd.PrintErrf("warning: token issued but not delivered: %v\n", req.DispatchErr)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email address")
	markRequired(cmd, "email")
	return cmd
}

func newResetStatusCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether an account has an active reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd, func(ctx context.Context, svc *Services) error {
				expireAt, pending, err := svc.Resets.PendingReset(ctx, email)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "pending: %t\n", pending)
				if pending {
					fmt.Fprintf(out, "expires: %s\n", expireAt.UTC().Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email address")
	markRequired(cmd, "email")
	return cmd
}

func newResetValidateCmd(a *app) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a reset token and print its account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.readSecret(cmd, "token", token)
			if err != nil {
				return err
			}
			return a.withServices(cmd, func(ctx context.Context, svc *Services) error {
				acct, err := svc.Resets.ValidateToken(ctx, token)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), acct.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", `reset token ("-" reads stdin)`)
	markRequired(cmd, "token")
	return cmd
}

func newResetConsumeCmd(a *app) *cobra.Command {
	var token, password string
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Spend a reset token to set a new password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.readSecret(cmd, "token", token)
			if err != nil {
				return err
			}
			password, err := a.readSecret(cmd, "password", password)
			if err != nil {
				return err
			}
			return a.withServices(cmd, func(ctx context.Context, svc *Services) error {
				if err := svc.Resets.ConsumeToken(ctx, token, password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "password updated")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", `reset token ("-" reads stdin)`)
	cmd.Flags().StringVar(&password, "password", "", `new password ("-" reads stdin)`)
	markRequired(cmd, "token", "password")
	return cmd
}
