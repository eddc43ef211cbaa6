// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/miniaccount/accountd/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset token has expired")
	errutil.AssertErrorCode(t, err, "RESET_TOKEN_EXPIRED")
}

func TestAssertErrorCode_WrappedCode(t *testing.T) {
	inner := oops.Code("ACCOUNT_TRANSIENT").Errorf("timeout")
	err := oops.With("operation", "find").Wrap(inner)
	errutil.AssertErrorCode(t, err, "ACCOUNT_TRANSIENT")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("account_id", "01HZX").Errorf("test error")
	errutil.AssertErrorContext(t, err, "account_id", "01HZX")
}
