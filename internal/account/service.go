// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/miniaccount/accountd/pkg/errutil"
)

// AccountService handles signup, login and credential checks.
type AccountService struct {
	store  AccountStore
	policy *CredentialPolicy
	opts   serviceOptions
}

// NewAccountService creates a new AccountService.
func NewAccountService(store AccountStore, policy *CredentialPolicy, opts ...ServiceOption) (*AccountService, error) {
	if store == nil {
		return nil, newError(KindInternal).Errorf("account store is required")
	}
	if policy == nil {
		return nil, newError(KindInternal).Errorf("credential policy is required")
	}
	return &AccountService{
		store:  store,
		policy: policy,
		opts:   buildOptions(opts),
	}, nil
}

// Create registers a new account and opens its first session.
// No write happens when the username or email is already taken.
func (s *AccountService) Create(ctx context.Context, username, password, email string, permission int) (acct *Account, err error) {
	ctx, span := startSpan(ctx, "account.create", attribute.String("account.username", username))
	defer func() { endSpan(span, err) }()

	if err := s.policy.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := s.policy.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := s.policy.ValidatePermission(permission); err != nil {
		return nil, err
	}
	if err := s.policy.ValidatePassword(password); err != nil {
		return nil, err
	}

	taken, err := s.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, duplicate("username", username)
	}
	taken, err = s.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, duplicate("email", email)
	}

	start := time.Now()
	hash, err := s.policy.HashPassword(password)
	observeHash("hash", start)
	if err != nil {
		return nil, err
	}

	ticket, err := NewSessionTicket()
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	created, err := s.store.Insert(ctx, &Account{
		Username:      username,
		PasswordHash:  hash,
		SessionTicket: ticket,
		DateCreated:   now,
		LastAccess:    now,
		Permission:    permission,
		Email:         email,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// lost a race with a concurrent signup
			if ConflictField(err) == "email" {
				return nil, duplicate("email", email)
			}
			return nil, duplicate("username", username)
		}
		return nil, transient("insert account", err)
	}

	AccountsCreated.Inc()
	s.opts.logger.InfoContext(ctx, "account created",
		"account_id", created.ID.String(),
		"username", created.Username,
		"email", MaskEmail(created.Email),
	)
	return created, nil
}

// ValidateCredentials reports whether password is correct for username.
// It fails closed: any lookup or storage error yields false.
func (s *AccountService) ValidateCredentials(ctx context.Context, username, password string) bool {
	ctx, span := startSpan(ctx, "account.validate_credentials", attribute.String("account.username", username))
	acct, err := s.authenticate(ctx, username, password)
	endSpan(span, err)
	return err == nil && acct != nil
}

// Login checks credentials and, on success, issues a new session ticket and
// records the access time and client address. The returned account is the
// row as persisted by this login.
func (s *AccountService) Login(ctx context.Context, username, password, clientIP string) (acct *Account, err error) {
	ctx, span := startSpan(ctx, "account.login", attribute.String("account.username", username))
	defer func() {
		Logins.WithLabelValues(resultLabel(err)).Inc()
		endSpan(span, err)
	}()

	acct, err = s.authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	ticket, err := NewSessionTicket()
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateLoginFields(ctx, LoginUpdate{
		AccountID:            acct.ID,
		ExpectedPasswordHash: acct.PasswordHash,
		SessionTicket:        ticket,
		LastAccess:           s.opts.now(),
		IPAddress:            clientIP,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// password changed (or account vanished) between check and write
			return nil, errInvalidCredentials()
		}
		return nil, transient("update login fields", err)
	}

	s.opts.logger.InfoContext(ctx, "login succeeded",
		"account_id", updated.ID.String(),
		"ip_address", clientIP,
	)
	return updated, nil
}

// UsernameExists reports whether an account holds username (case-insensitive).
func (s *AccountService) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := s.store.FindByUsername(ctx, username)
	return exists(err, "find account by username")
}

// EmailExists reports whether an account holds email (case-insensitive).
func (s *AccountService) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := s.store.FindByEmail(ctx, email)
	return exists(err, "find account by email")
}

// Get returns the account for username.
func (s *AccountService) Get(ctx context.Context, username string) (*Account, error) {
	acct, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(KindAccountNotFound).
				With("username", username).
				Errorf("account not found")
		}
		return nil, transient("find account by username", err)
	}
	return acct, nil
}

// RecoverUsername returns the username of the account owning email.
func (s *AccountService) RecoverUsername(ctx context.Context, email string) (string, error) {
	acct, err := s.accountByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return acct.Username, nil
}

// authenticate returns the account when password matches. Unknown users and
// wrong passwords produce the same error after the same hashing work.
func (s *AccountService) authenticate(ctx context.Context, username, password string) (*Account, error) {
	acct, err := s.store.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, transient("find account by username", err)
	}

	start := time.Now()
	var valid bool
	if acct == nil {
		s.policy.VerifyAbsent(password)
	} else {
		valid = s.policy.VerifyPassword(password, acct.PasswordHash)
	}
	observeHash("verify", start)

	if !valid {
		return nil, errInvalidCredentials()
	}
	return acct, nil
}

func (s *AccountService) accountByEmail(ctx context.Context, email string) (*Account, error) {
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(KindUnknownEmail).
				With("email", MaskEmail(email)).
				Errorf("no account uses this email")
		}
		return nil, transient("find account by email", err)
	}
	return acct, nil
}

func (s *AccountService) accountByID(ctx context.Context, id ulid.ULID) (*Account, error) {
	acct, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// tokens always reference an existing account
			internalErr := newError(KindInternal).
				With("account_id", id.String()).
				Wrap(err)
			errutil.LogErrorContext(ctx, s.opts.logger, "reset token references missing account", internalErr)
			return nil, internalErr
		}
		return nil, transient("find account by id", err)
	}
	return acct, nil
}

func exists(err error, operation string) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, transient(operation, err)
}

func duplicate(field, value string) error {
	if field == "email" {
		return newError(KindDuplicateEmail).
			With("email", MaskEmail(value)).
			Errorf("email is already in use")
	}
	return newError(KindDuplicateUsername).
		With("username", value).
		Errorf("username is already taken")
}
