// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

// Package mocks provides testify mocks for the account collaborators.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/miniaccount/accountd/internal/account"
)

// AccountStore is a mock for account.AccountStore.
type AccountStore struct {
	mock.Mock
}

func accountOrNil(args mock.Arguments) (*account.Account, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *AccountStore) FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	return accountOrNil(m.Called(ctx, id))
}

func (m *AccountStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	return accountOrNil(m.Called(ctx, username))
}

func (m *AccountStore) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return accountOrNil(m.Called(ctx, email))
}

func (m *AccountStore) Insert(ctx context.Context, acct *account.Account) (*account.Account, error) {
	return accountOrNil(m.Called(ctx, acct))
}

func (m *AccountStore) UpdateLoginFields(ctx context.Context, update account.LoginUpdate) (*account.Account, error) {
	return accountOrNil(m.Called(ctx, update))
}

func (m *AccountStore) UpdatePassword(ctx context.Context, accountID ulid.ULID, passwordHash string) error {
	args := m.Called(ctx, accountID, passwordHash)
	return args.Error(0)
}

// TokenStore is a mock for account.TokenStore.
type TokenStore struct {
	mock.Mock
}

func tokenOrNil(args mock.Arguments) (*account.ResetToken, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.ResetToken), args.Error(1)
}

func (m *TokenStore) FindByToken(ctx context.Context, tokenHash string) (*account.ResetToken, error) {
	return tokenOrNil(m.Called(ctx, tokenHash))
}

func (m *TokenStore) FindActiveByAccount(ctx context.Context, accountID ulid.ULID, now time.Time) (*account.ResetToken, error) {
	return tokenOrNil(m.Called(ctx, accountID, now))
}

func (m *TokenStore) ReplaceActiveToken(ctx context.Context, accountID ulid.ULID, tokenHash string, expireAt time.Time) (*account.ResetToken, error) {
	return tokenOrNil(m.Called(ctx, accountID, tokenHash, expireAt))
}

func (m *TokenStore) MarkUsed(ctx context.Context, tokenHash string, now time.Time) (*account.ResetToken, error) {
	return tokenOrNil(m.Called(ctx, tokenHash, now))
}

// Transactor is a mock for account.Transactor. Unless the expectation
// returns an error, fn runs with the caller's context.
type Transactor struct {
	mock.Mock
}

func (m *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}

// EmailNotifier is a mock for account.EmailNotifier.
type EmailNotifier struct {
	mock.Mock
}

func (m *EmailNotifier) Send(ctx context.Context, toEmail, username, token string) error {
	args := m.Called(ctx, toEmail, username, token)
	return args.Error(0)
}

// PasswordHasher is a mock for account.PasswordHasher.
type PasswordHasher struct {
	mock.Mock
}

func (m *PasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *PasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

var (
	_ account.AccountStore   = (*AccountStore)(nil)
	_ account.TokenStore     = (*TokenStore)(nil)
	_ account.Transactor     = (*Transactor)(nil)
	_ account.EmailNotifier  = (*EmailNotifier)(nil)
	_ account.PasswordHasher = (*PasswordHasher)(nil)
)
