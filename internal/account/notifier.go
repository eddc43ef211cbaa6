// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account

import (
	"context"
	"strings"
	"unicode/utf8"
)

// EmailNotifier delivers reset tokens to account owners. The services call it
// once per request and never retry; failures are reported to the caller.
type EmailNotifier interface {
	Send(ctx context.Context, toEmail, username, token string) error
}

// NotifierFunc adapts a function to EmailNotifier.
type NotifierFunc func(ctx context.Context, toEmail, username, token string) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, toEmail, username, token string) error {
	return f(ctx, toEmail, username, token)
}

// MaskEmail hides most of the local part of an address so it can be shown
// back to a caller or written to logs: "alice@x.com" becomes "a****@x.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return strings.Repeat("*", utf8.RuneCountInString(email))
	}
	local, domain := email[:at], email[at:]
	switch n := utf8.RuneCountInString(local); n {
	case 0:
		return domain
	case 1:
		return "*" + domain
	default:
		_, size := utf8.DecodeRuneInString(local)
		return local[:size] + strings.Repeat("*", n-1) + domain
	}
}
