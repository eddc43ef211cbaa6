// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

// Package main is the entry point for the accountd CLI.
package main

import (
	"fmt"
	"os"

	"github.com/samber/oops"

	"github.com/miniaccount/accountd/internal/account"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes beyond the generic failure.
const (
	exitFailure   = 1
	exitTransient = 75 // EX_TEMPFAIL
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// retryableCodes are infrastructure error codes raised before any service
// runs. They mean a dependency was unreachable, not that the request was bad.
var retryableCodes = map[string]struct{}{
	"DB_CONNECT_FAILED":     {},
	"NOTIFY_CONNECT_FAILED": {},
}

// exitCode lets scripts tell retryable failures from permanent ones.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if account.KindOf(err).Retryable() {
		return exitTransient
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if _, retryable := retryableCodes[fmt.Sprint(oopsErr.Code())]; retryable {
			return exitTransient
		}
	}
	return exitFailure
}
