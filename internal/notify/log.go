// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/miniaccount/accountd/internal/account"
)

// LogNotifier writes reset tokens to a structured log instead of sending
// mail. It is meant for development and single-operator deployments where
// the operator relays the token by hand.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send implements account.EmailNotifier.
func (n *LogNotifier) Send(ctx context.Context, toEmail, username, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "password reset token issued",
		"email", account.MaskEmail(toEmail),
		"username", username,
		"token", token,
	)
	return nil
}

var _ account.EmailNotifier = (*LogNotifier)(nil)
