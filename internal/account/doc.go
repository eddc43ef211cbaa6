// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

// Package account implements account management: signup, credential checks,
// login sessions and the password reset flow.
//
// AccountService owns the account lifecycle. PasswordResetService issues
// single-use, time-limited reset tokens through an EmailNotifier and
// consumes them. Persistence is behind AccountStore, TokenStore and
// Transactor; the postgres subpackage implements them on PostgreSQL and
// accounttest provides an in-memory version for tests.
//
// Every error returned by the services carries a Kind (see KindOf) as its
// oops error code.
package account
