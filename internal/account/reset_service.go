// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
)

// ResetRequest describes an issued reset token. It never carries the token
// itself, which only the notifier sees.
type ResetRequest struct {
	AccountID   ulid.ULID
	Username    string
	MaskedEmail string
	ExpireAt    time.Time

	// DispatchErr is set when the notifier failed. The token is valid regardless.
	DispatchErr error
}

// Dispatched reports whether the notifier accepted the token.
func (r *ResetRequest) Dispatched() bool {
	return r.DispatchErr == nil
}

// PasswordResetService handles the forgot-password flow.
type PasswordResetService struct {
	accounts *AccountService
	tokens   TokenStore
	tx       Transactor
	notifier EmailNotifier
	opts     serviceOptions
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	accounts *AccountService,
	tokens TokenStore,
	tx Transactor,
	notifier EmailNotifier,
	opts ...ServiceOption,
) (*PasswordResetService, error) {
	if accounts == nil {
		return nil, newError(KindInternal).Errorf("account service is required")
	}
	if tokens == nil {
		return nil, newError(KindInternal).Errorf("token store is required")
	}
	if tx == nil {
		return nil, newError(KindInternal).Errorf("transactor is required")
	}
	if notifier == nil {
		return nil, newError(KindInternal).Errorf("email notifier is required")
	}
	return &PasswordResetService{
		accounts: accounts,
		tokens:   tokens,
		tx:       tx,
		notifier: notifier,
		opts:     buildOptions(opts),
	}, nil
}

// TokenTTL returns the lifetime of issued tokens.
func (s *PasswordResetService) TokenTTL() time.Duration {
	return s.opts.tokenTTL
}

// RequestReset issues a fresh reset token for the account owning email,
// replacing any earlier token, and hands it to the notifier. A notifier
// failure is reported on the result but does not fail the request.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (req *ResetRequest, err error) {
	ctx, span := startSpan(ctx, "reset.request")
	defer func() {
		ResetRequests.WithLabelValues(resultLabel(err)).Inc()
		endSpan(span, err)
	}()

	acct, err := s.accounts.accountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("account.id", acct.ID.String()))

	token, hash, err := GenerateResetToken()
	if err != nil {
		return nil, err
	}

	stored, err := s.tokens.ReplaceActiveToken(ctx, acct.ID, hash, s.opts.now().Add(s.opts.tokenTTL))
	if err != nil {
		return nil, transient("replace active token", err)
	}

	req = &ResetRequest{
		AccountID:   acct.ID,
		Username:    acct.Username,
		MaskedEmail: MaskEmail(acct.Email),
		ExpireAt:    stored.ExpireAt,
	}

	if sendErr := s.notifier.Send(ctx, acct.Email, acct.Username, token); sendErr != nil {
		req.DispatchErr = sendErr
		ResetDispatchFailures.Inc()
		s.opts.logger.WarnContext(ctx, "reset token issued but notification failed",
			"account_id", acct.ID.String(),
			"email", req.MaskedEmail,
			"error", sendErr,
		)
		return req, nil
	}

	s.opts.logger.InfoContext(ctx, "reset token issued",
		"account_id", acct.ID.String(),
		"email", req.MaskedEmail,
		"expire_at", req.ExpireAt,
	)
	return req, nil
}

// ValidateToken returns the account owning an active token.
// Checks run in order: not found, expired, already used.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (acct *Account, err error) {
	ctx, span := startSpan(ctx, "reset.validate")
	defer func() { endSpan(span, err) }()

	row, err := s.usableToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.accounts.accountByID(ctx, row.AccountID)
}

// usableToken looks up an active token row.
func (s *PasswordResetService) usableToken(ctx context.Context, token string) (*ResetToken, error) {
	if token == "" {
		return nil, errTokenNotFound()
	}

	row, err := s.tokens.FindByToken(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errTokenNotFound()
		}
		return nil, transient("find token", err)
	}
	if !VerifyResetToken(token, row.TokenHash) {
		return nil, errTokenNotFound()
	}
	if err := tokenStateError(row, s.opts.now()); err != nil {
		return nil, err
	}
	return row, nil
}

// PendingReset reports whether the account owning email has an active reset
// token and when it expires.
func (s *PasswordResetService) PendingReset(ctx context.Context, email string) (expireAt time.Time, pending bool, err error) {
	ctx, span := startSpan(ctx, "reset.pending")
	defer func() { endSpan(span, err) }()

	acct, err := s.accounts.accountByEmail(ctx, email)
	if err != nil {
		return time.Time{}, false, err
	}
	row, err := s.tokens.FindActiveByAccount(ctx, acct.ID, s.opts.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, transient("find active token", err)
	}
	return row.ExpireAt, true, nil
}

// ConsumeToken sets a new password using a reset token. Marking the token used
// and writing the password happen in one transaction, and the mark is
// conditional, so concurrent consumers of one token see exactly one success.
func (s *PasswordResetService) ConsumeToken(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := startSpan(ctx, "reset.consume")
	defer func() {
		ResetsConsumed.WithLabelValues(resultLabel(err)).Inc()
		endSpan(span, err)
	}()

	// Unusable tokens fail before the password is hashed. The mark inside the
	// transaction below still decides races.
	if _, err := s.usableToken(ctx, token); err != nil {
		return err
	}

	start := time.Now()
	hash, err := s.accounts.policy.HashPassword(newPassword)
	observeHash("hash", start)
	if err != nil {
		return err
	}

	tokenHash := HashResetToken(token)
	var accountID ulid.ULID

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		now := s.opts.now()
		used, err := s.tokens.MarkUsed(ctx, tokenHash, now)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return s.classifyUnusable(ctx, tokenHash, now)
			}
			return transient("mark token used", err)
		}
		accountID = used.AccountID

		if err := s.accounts.store.UpdatePassword(ctx, used.AccountID, hash); err != nil {
			if errors.Is(err, ErrNotFound) {
				return newError(KindInternal).
					With("account_id", used.AccountID.String()).
					Wrap(err)
			}
			return transient("update password", err)
		}
		return nil
	})
	if err != nil {
		if !hasKind(err) {
			// begin or commit failed in the transactor
			err = transient("consume token transaction", err)
		}
		if KindOf(err) == KindInternal {
			s.opts.logger.ErrorContext(ctx, "reset token consumption failed",
				"account_id", accountID.String(),
				"error", err,
			)
		}
		return err
	}

	s.opts.logger.InfoContext(ctx, "password reset via token",
		"account_id", accountID.String(),
	)
	return nil
}

// classifyUnusable explains why a conditional mark failed by re-reading the row.
func (s *PasswordResetService) classifyUnusable(ctx context.Context, tokenHash string, now time.Time) error {
	row, err := s.tokens.FindByToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errTokenNotFound()
		}
		return transient("find token", err)
	}
	if err := tokenStateError(row, now); err != nil {
		return err
	}
	// the row is active yet the conditional update missed; treat as a lost race
	return newError(KindTokenAlreadyUsed).Errorf("reset token has already been used")
}

func tokenStateError(row *ResetToken, now time.Time) error {
	switch row.StateAt(now) {
	case TokenExpired:
		return newError(KindTokenExpired).
			With("expire_at", row.ExpireAt).
			Errorf("reset token has expired")
	case TokenUsed:
		return newError(KindTokenAlreadyUsed).Errorf("reset token has already been used")
	default:
		return nil
	}
}

func errTokenNotFound() error {
	return newError(KindTokenNotFound).Errorf("reset token not found")
}
