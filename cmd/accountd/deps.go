// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/miniaccount/accountd/internal/account"
	"github.com/miniaccount/accountd/internal/account/postgres"
	"github.com/miniaccount/accountd/internal/config"
	"github.com/miniaccount/accountd/internal/notify"
	"github.com/miniaccount/accountd/internal/store"
)

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// ServicesFactory builds the account services for one command.
	// Default: a PostgreSQL pool plus the configured mail backend.
	ServicesFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger, hasher account.PasswordHasher) (*Services, error)

	// MigratorFactory opens a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// Hasher hashes and verifies passwords.
	// Default: argon2id with account.DefaultArgon2Params
	Hasher account.PasswordHasher
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// Services bundles the account services a command operates on.
type Services struct {
	Accounts *account.AccountService
	Resets   *account.PasswordResetService

	closers []func()
}

// Close releases the resources behind the services in reverse order.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.ServicesFactory == nil {
		out.ServicesFactory = postgresServices
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.Hasher == nil {
		out.Hasher = account.NewArgon2idHasher()
	}
	return &out
}

// newServices wires the services over the given stores.
func newServices(
	cfg *config.Config,
	logger *slog.Logger,
	hasher account.PasswordHasher,
	accounts account.AccountStore,
	tokens account.TokenStore,
	tx account.Transactor,
	notifier account.EmailNotifier,
) (*Services, error) {
	policy, err := account.NewCredentialPolicy(hasher, account.WithMinPasswordLength(cfg.Password.MinLength))
	if err != nil {
		return nil, err
	}
	opts := []account.ServiceOption{
		account.WithLogger(logger),
		account.WithTokenTTL(cfg.Reset.TokenTTL),
	}
	accountSvc, err := account.NewAccountService(accounts, policy, opts...)
	if err != nil {
		return nil, err
	}
	resetSvc, err := account.NewPasswordResetService(accountSvc, tokens, tx, notifier, opts...)
	if err != nil {
		return nil, err
	}
	return &Services{Accounts: accountSvc, Resets: resetSvc}, nil
}

// postgresServices connects to the database and opens the mail backend.
func postgresServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, hasher account.PasswordHasher) (*Services, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
		Retries:  cfg.Database.ConnectRetries,
		Backoff:  cfg.Database.ConnectBackoff,
		MaxConns: cfg.Database.MaxConns,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	notifier, closeNotifier, err := newNotifier(cfg.Mail, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	svc, err := newServices(cfg, logger, hasher,
		postgres.NewAccountStore(pool),
		postgres.NewTokenStore(pool),
		postgres.NewTransactor(pool),
		notifier,
	)
	if err != nil {
		closeNotifier()
		pool.Close()
		return nil, err
	}
	svc.closers = []func(){pool.Close, closeNotifier}
	return svc, nil
}

// newNotifier opens the configured reset token delivery backend.
func newNotifier(cfg config.MailConfig, logger *slog.Logger) (account.EmailNotifier, func(), error) {
	switch cfg.Backend {
	case config.MailBackendLog:
		return notify.NewLogNotifier(logger), func() {}, nil
	case config.MailBackendAMQP:
		n, err := notify.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			return nil, nil, err
		}
		return n, func() {
			if err := n.Close(); err != nil {
				logger.Warn("closing amqp notifier", "error", err)
			}
		}, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").
			With("key", "mail.backend").
			Errorf("unknown mail backend %q", cfg.Backend)
	}
}
