// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
)

// Token configuration.
const (
	TokenBytes      = 32               // 32 bytes = 64 hex chars
	DefaultTokenTTL = 30 * time.Minute // reset token lifetime
)

// ResetToken is a single-use, time-limited credential for changing a password.
// Only the SHA-256 hash of the token value is stored.
type ResetToken struct {
	AccountID ulid.ULID
	TokenHash string
	ExpireAt  time.Time
	Used      bool
	CreatedAt time.Time
}

// TokenState is the lifecycle state of a reset token.
type TokenState string

// Reset token states. Expiry is evaluated at read time, never stored.
const (
	TokenActive  TokenState = "active"
	TokenUsed    TokenState = "used"
	TokenExpired TokenState = "expired"
)

// IsExpiredAt reports whether the token is past its expiry at t.
func (r *ResetToken) IsExpiredAt(t time.Time) bool {
	return t.After(r.ExpireAt)
}

// StateAt returns the token state at t. An expired token reports expired even
// if it was never used.
func (r *ResetToken) StateAt(t time.Time) TokenState {
	switch {
	case r.IsExpiredAt(t):
		return TokenExpired
	case r.Used:
		return TokenUsed
	default:
		return TokenActive
	}
}

// TokenStore persists password reset tokens. At most one row exists per account.
type TokenStore interface {
	// FindByToken retrieves a token row by the hash of its value.
	// Returns ErrNotFound if no row matches.
	FindByToken(ctx context.Context, tokenHash string) (*ResetToken, error)

	// FindActiveByAccount retrieves the account's token if it is unused and
	// unexpired at now. Returns ErrNotFound otherwise.
	FindActiveByAccount(ctx context.Context, accountID ulid.ULID, now time.Time) (*ResetToken, error)

	// ReplaceActiveToken atomically replaces the account's token row with a
	// fresh unused token.
	ReplaceActiveToken(ctx context.Context, accountID ulid.ULID, tokenHash string, expireAt time.Time) (*ResetToken, error)

	// MarkUsed sets used on the token only if it is unused and unexpired at now.
	// Returns the updated row, or ErrNotFound if the condition did not hold.
	MarkUsed(ctx context.Context, tokenHash string, now time.Time) (*ResetToken, error)
}

// NewSessionTicket returns an unguessable session ticket.
func NewSessionTicket() (string, error) {
	return randomHex()
}

// GenerateResetToken creates a secure random token and its hash.
// The plaintext token goes to the account owner; the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	token, err = randomHex()
	if err != nil {
		return "", "", err
	}
	return token, HashResetToken(token), nil
}

// HashResetToken computes the SHA-256 hash of a reset token value.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyResetToken checks if the plaintext token matches the stored hash
// in constant time.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashResetToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

func randomHex() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", newError(KindInternal).
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}
