// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

// Package notify provides account.EmailNotifier backends for password
// reset tokens.
package notify
