// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/miniaccount/accountd/internal/account"
	"github.com/miniaccount/accountd/internal/account/accounttest"
	"github.com/miniaccount/accountd/internal/config"
	"github.com/miniaccount/accountd/internal/store"
)

type fakeMigrator struct {
	calls    []string
	steps    []int
	forced   []int
	status   store.Status
	err      error
	closeErr error
}

func (f *fakeMigrator) Up() error   { f.calls = append(f.calls, "up"); return f.err }
func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return f.err }

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = append(f.steps, n)
	return f.err
}

func (f *fakeMigrator) Force(version int) error {
	f.calls = append(f.calls, "force")
	f.forced = append(f.forced, version)
	return f.err
}

func (f *fakeMigrator) Status() (store.Status, error) {
	f.calls = append(f.calls, "status")
	return f.status, f.err
}

func (f *fakeMigrator) Close() error {
	f.calls = append(f.calls, "close")
	return f.closeErr
}

// sentMail records the last token handed to the notifier.
type sentMail struct {
	to, username, token string
	count               int
	err                 error
}

// cli runs the real command tree over an in-memory store.
type cli struct {
	store       *accounttest.Store
	mail        *sentMail
	migrator    *fakeMigrator
	migratorURL string
	factoryErr  error
	stdin       io.Reader
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	return &cli{store: accounttest.New(), mail: &sentMail{}, migrator: &fakeMigrator{}}
}

func (c *cli) deps() *Deps {
	notifier := account.NotifierFunc(func(_ context.Context, to, username, token string) error {
		if c.mail.err != nil {
			return c.mail.err
		}
		c.mail.to, c.mail.username, c.mail.token = to, username, token
		c.mail.count++
		return nil
	})
	return &Deps{
		ServicesFactory: func(_ context.Context, cfg *config.Config, logger *slog.Logger, hasher account.PasswordHasher) (*Services, error) {
			if c.factoryErr != nil {
				return nil, c.factoryErr
			}
			return newServices(cfg, logger, hasher, c.store, c.store, c.store, notifier)
		},
		MigratorFactory: func(databaseURL string) (Migrator, error) {
			c.migratorURL = databaseURL
			return c.migrator, nil
		},
		Hasher: account.NewArgon2idHasherWithParams(account.Argon2Params{
			Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32,
		}),
	}
}

// run executes args and returns stdout, stderr and the command error.
func (c *cli) run(args ...string) (string, string, error) {
	cmd := newRootCmd(c.deps())
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	if c.stdin != nil {
		cmd.SetIn(c.stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func (c *cli) signup(t *testing.T) {
	t.Helper()
	_, _, err := c.run("account", "create", "--username", "alice", "--password", "pw1", "--email", "alice@x.com")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
}
