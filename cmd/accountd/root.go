// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package main

import (
	"bufio"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/miniaccount/accountd/internal/account"
	"github.com/miniaccount/accountd/internal/config"
	"github.com/miniaccount/accountd/internal/logging"
	"github.com/miniaccount/accountd/pkg/errutil"
)

const defaultTimeout = 30 * time.Second

// app holds state shared by every subcommand of one invocation.
type app struct {
	configFile string
	timeout    time.Duration
	deps       *Deps

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	stdin    *bufio.Reader
}

// NewRootCmd creates the root command for the accountd CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	a := &app{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "accountd",
		Short: "accountd - account and password reset management",
		Long: `accountd manages user accounts backed by PostgreSQL: signup, login,
credential checks and the forgot-password token flow.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file path")
	flags.DurationVar(&a.timeout, "timeout", defaultTimeout, "deadline for one command")
	config.BindFlags(flags)

	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newAccountCmd(a))
	cmd.AddCommand(newResetCmd(a))

	return cmd
}

// setup loads configuration and builds the logger and metrics registry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.LoadOptions{File: a.configFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	logger, err := logging.SetDefault("accountd", version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.registry = prometheus.NewRegistry()
	account.RegisterMetrics(a.registry)
	return nil
}

// commandContext bounds ctx by the --timeout flag.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// withServices runs fn against freshly built services and writes the
// metrics textfile afterwards, whether fn failed or not.
func (a *app) withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *Services) error) error {
	ctx, cancel := a.commandContext(cmd)
	defer cancel()

	svc, err := a.deps.ServicesFactory(ctx, a.cfg, a.logger, a.deps.Hasher)
	if err != nil {
		errutil.LogErrorContext(ctx, a.logger, "service setup failed", err)
		return err
	}
	defer svc.Close()
	defer a.writeMetrics()

	return fn(ctx, svc)
}

func (a *app) writeMetrics() {
	path := a.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		a.logger.Warn("writing metrics textfile", "path", path, "error", err)
	}
}

// readSecret returns value, or the next line of stdin when value is "-".
func (a *app) readSecret(cmd *cobra.Command, name, value string) (string, error) {
	if value != "-" {
		return value, nil
	}
	if a.stdin == nil {
		a.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	line, err := a.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", oops.Code("INPUT_INVALID").With("flag", name).Wrapf(err, "read %s from stdin", name)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
