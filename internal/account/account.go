// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Account is a registered user's durable identity and credentials.
type Account struct {
	ID            ulid.ULID
	Username      string
	PasswordHash  string
	SessionTicket string
	DateCreated   time.Time
	LastAccess    time.Time
	Permission    int
	Email         string
	LastIPAddress string
}

// Clone returns a copy of the account. Stores hand out clones so callers
// cannot mutate shared state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// LoginUpdate carries the fields written by a successful login.
// The write only applies while the stored hash still equals ExpectedPasswordHash,
// so a login racing a password reset cannot install a ticket for stale credentials.
type LoginUpdate struct {
	AccountID            ulid.ULID
	ExpectedPasswordHash string
	SessionTicket        string
	LastAccess           time.Time
	IPAddress            string
}

// AccountStore persists accounts. Every method is a single atomic operation.
type AccountStore interface {
	// FindByID retrieves an account by ID.
	// Returns ErrNotFound if no account matches.
	FindByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// FindByUsername retrieves an account by exact, case-insensitive username.
	// Returns ErrNotFound if no account matches.
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// FindByEmail retrieves an account by exact, case-insensitive email.
	// Returns ErrNotFound if no account matches.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// Insert stores a new account, assigning its ID, and returns the stored row.
	// Returns a ConflictError when the username or email is taken.
	Insert(ctx context.Context, account *Account) (*Account, error)

	// UpdateLoginFields writes ticket, last access and IP address and returns
	// the row as written. Returns ErrNotFound if the account is missing or its
	// password hash no longer matches.
	UpdateLoginFields(ctx context.Context, update LoginUpdate) (*Account, error)

	// UpdatePassword replaces the password hash.
	// Returns ErrNotFound if the account does not exist.
	UpdatePassword(ctx context.Context, accountID ulid.ULID, passwordHash string) error
}

// Transactor runs fn inside a storage transaction. Store calls made with the
// context passed to fn participate in that transaction; fn returning an error
// rolls everything back.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
