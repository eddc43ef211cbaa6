// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/miniaccount/accountd/internal/account"
)

const tokenColumns = `account_id, token_hash, expire_at, used, created_at`

// TokenStore implements account.TokenStore using PostgreSQL.
// The table holds at most one row per account.
type TokenStore struct {
	pool poolIface
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool poolIface) *TokenStore {
	return &TokenStore{pool: pool}
}

// FindByToken retrieves a token row by its hash.
func (s *TokenStore) FindByToken(ctx context.Context, tokenHash string) (*account.ResetToken, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM reset_tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("operation", "find token").Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "find token").Wrap(err)
	}
	return token, nil
}

// FindActiveByAccount retrieves the account's token if unused and unexpired at now.
func (s *TokenStore) FindActiveByAccount(ctx context.Context, accountID ulid.ULID, now time.Time) (*account.ResetToken, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM reset_tokens
		WHERE account_id = $1 AND used = false AND expire_at >= $2
	`, accountID.String(), now)

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("account_id", accountID.String()).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "find active token").With("account_id", accountID.String()).Wrap(err)
	}
	return token, nil
}

// ReplaceActiveToken upserts the account's single token row, resetting it to unused.
func (s *TokenStore) ReplaceActiveToken(ctx context.Context, accountID ulid.ULID, tokenHash string, expireAt time.Time) (*account.ResetToken, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO reset_tokens (account_id, token_hash, expire_at, used, created_at)
		VALUES ($1, $2, $3, false, now())
		ON CONFLICT (account_id) DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			expire_at = EXCLUDED.expire_at,
			used = false,
			created_at = EXCLUDED.created_at
		RETURNING `+tokenColumns,
		accountID.String(), tokenHash, expireAt,
	)

	token, err := scanToken(row)
	if err != nil {
		op := oops.With("operation", "replace active token").With("account_id", accountID.String())
		if constraint, ok := uniqueViolation(err); ok && constraint == tokenHashIndex {
			op = op.With("constraint", constraint)
		}
		return nil, op.Wrap(err)
	}
	return token, nil
}

// MarkUsed flags the token used if it is unused and unexpired at now.
func (s *TokenStore) MarkUsed(ctx context.Context, tokenHash string, now time.Time) (*account.ResetToken, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `
		UPDATE reset_tokens SET used = true
		WHERE token_hash = $1 AND used = false AND expire_at >= $2
		RETURNING `+tokenColumns,
		tokenHash, now,
	)

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("operation", "mark token used").Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "mark token used").Wrap(err)
	}
	return token, nil
}

func scanToken(row pgx.Row) (*account.ResetToken, error) {
	var (
		token account.ResetToken
		idStr string
	)
	if err := row.Scan(&idStr, &token.TokenHash, &token.ExpireAt, &token.Used, &token.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	id, err := parseID(idStr)
	if err != nil {
		return nil, err
	}
	token.AccountID = id
	return &token, nil
}

var _ account.TokenStore = (*TokenStore)(nil)
