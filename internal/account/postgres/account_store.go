// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/miniaccount/accountd/internal/account"
)

const accountColumns = `id, username, password_hash, session_ticket, date_created,
	       last_access, permission, email, last_ip_address`

// AccountStore implements account.AccountStore using PostgreSQL.
type AccountStore struct {
	pool poolIface
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool poolIface) *AccountStore {
	return &AccountStore{pool: pool}
}

// FindByID retrieves an account by ID.
func (s *AccountStore) FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id.String())

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("id", id.String()).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get account by id").With("id", id.String()).Wrap(err)
	}
	return acct, nil
}

// FindByUsername retrieves an account by username (case-insensitive).
func (s *AccountStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(username) = LOWER($1)
	`, username)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("username", username).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get account by username").With("username", username).Wrap(err)
	}
	return acct, nil
}

// FindByEmail retrieves an account by email (case-insensitive).
func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`, email)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("email", account.MaskEmail(email)).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get account by email").Wrap(err)
	}
	return acct, nil
}

// Insert stores a new account. A zero ID is replaced with a fresh ULID.
// The unique indexes on LOWER(username) and LOWER(email) report conflicts.
func (s *AccountStore) Insert(ctx context.Context, acct *account.Account) (*account.Account, error) {
	id := acct.ID
	if id == (ulid.ULID{}) {
		id = ulid.Make()
	}

	row := conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO accounts (
			id, username, password_hash, session_ticket, date_created,
			last_access, permission, email, last_ip_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+accountColumns,
		id.String(),
		acct.Username,
		acct.PasswordHash,
		acct.SessionTicket,
		acct.DateCreated,
		acct.LastAccess,
		acct.Permission,
		acct.Email,
		acct.LastIPAddress,
	)

	stored, err := scanAccount(row)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			field := "username"
			if constraint == emailIndex {
				field = "email"
			}
			return nil, oops.
				With("constraint", constraint).
				Wrap(&account.ConflictError{Field: field})
		}
		return nil, oops.With("operation", "insert account").With("username", acct.Username).Wrap(err)
	}
	return stored, nil
}

// UpdateLoginFields writes the login fields while the password hash still
// matches, and returns the row as written.
func (s *AccountStore) UpdateLoginFields(ctx context.Context, update account.LoginUpdate) (*account.Account, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `
		UPDATE accounts SET
			session_ticket = $3,
			last_access = $4,
			last_ip_address = $5
		WHERE id = $1 AND password_hash = $2
		RETURNING `+accountColumns,
		update.AccountID.String(),
		update.ExpectedPasswordHash,
		update.SessionTicket,
		update.LastAccess,
		update.IPAddress,
	)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("id", update.AccountID.String()).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "update login fields").With("id", update.AccountID.String()).Wrap(err)
	}
	return acct, nil
}

// UpdatePassword replaces the password hash.
func (s *AccountStore) UpdatePassword(ctx context.Context, accountID ulid.ULID, passwordHash string) error {
	result, err := conn(ctx, s.pool).Exec(ctx, `
		UPDATE accounts SET password_hash = $2 WHERE id = $1
	`, accountID.String(), passwordHash)
	if err != nil {
		return oops.With("operation", "update password").With("id", accountID.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", accountID.String()).Wrap(account.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		acct  account.Account
		idStr string
	)
	if err := row.Scan(
		&idStr,
		&acct.Username,
		&acct.PasswordHash,
		&acct.SessionTicket,
		&acct.DateCreated,
		&acct.LastAccess,
		&acct.Permission,
		&acct.Email,
		&acct.LastIPAddress,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	id, err := parseID(idStr)
	if err != nil {
		return nil, err
	}
	acct.ID = id
	return &acct, nil
}

var _ account.AccountStore = (*AccountStore)(nil)
