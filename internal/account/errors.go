// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Store-level sentinels. Store implementations wrap these so services can tell
// a missing row from a uniqueness violation.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// ConflictError reports which unique field a write collided on.
type ConflictError struct {
	Field string // "username" or "email"
}

func (e *ConflictError) Error() string {
	return "conflict on " + e.Field
}

// Unwrap lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ConflictField returns the field named by a ConflictError in err's chain, or "".
func ConflictField(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}

// Kind classifies errors returned by the services. Each kind is also the oops
// error code carried by the error.
type Kind string

// Error kinds surfaced to callers.
const (
	KindDuplicateUsername  Kind = "ACCOUNT_DUPLICATE_USERNAME"
	KindDuplicateEmail     Kind = "ACCOUNT_DUPLICATE_EMAIL"
	KindInvalidCredentials Kind = "ACCOUNT_INVALID_CREDENTIALS"
	KindAccountNotFound    Kind = "ACCOUNT_NOT_FOUND"
	KindInvalidUsername    Kind = "ACCOUNT_INVALID_USERNAME"
	KindInvalidEmail       Kind = "ACCOUNT_INVALID_EMAIL"
	KindInvalidPassword    Kind = "ACCOUNT_INVALID_PASSWORD"
	KindInvalidPermission  Kind = "ACCOUNT_INVALID_PERMISSION"
	KindUnknownEmail       Kind = "RESET_UNKNOWN_EMAIL"
	KindTokenNotFound      Kind = "RESET_TOKEN_NOT_FOUND"
	KindTokenExpired       Kind = "RESET_TOKEN_EXPIRED"
	KindTokenAlreadyUsed   Kind = "RESET_TOKEN_USED"
	KindTransient          Kind = "ACCOUNT_TRANSIENT"
	KindInternal           Kind = "ACCOUNT_INTERNAL"
)

var knownKinds = map[Kind]struct{}{
	KindDuplicateUsername:  {},
	KindDuplicateEmail:     {},
	KindInvalidCredentials: {},
	KindAccountNotFound:    {},
	KindInvalidUsername:    {},
	KindInvalidEmail:       {},
	KindInvalidPassword:    {},
	KindInvalidPermission:  {},
	KindUnknownEmail:       {},
	KindTokenNotFound:      {},
	KindTokenExpired:       {},
	KindTokenAlreadyUsed:   {},
	KindTransient:          {},
	KindInternal:           {},
}

// String returns the error code.
func (k Kind) String() string {
	return string(k)
}

// Retryable reports whether a caller may safely retry the failed call.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// KindOf classifies err. It returns "" for nil, KindTransient for context
// cancellation or deadline errors, the error's code when it is a known kind,
// and KindInternal for everything else.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		code := Kind(fmt.Sprint(oopsErr.Code()))
		if _, known := knownKinds[code]; known {
			return code
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

// hasKind reports whether err already carries one of the service error codes.
func hasKind(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	_, known := knownKinds[Kind(fmt.Sprint(oopsErr.Code()))]
	return known
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func newError(kind Kind) oops.OopsErrorBuilder {
	return oops.Code(string(kind))
}

// transient wraps a store or collaborator failure as a retryable error.
func transient(operation string, err error) error {
	return newError(KindTransient).
		With("operation", operation).
		Wrap(err)
}

// errInvalidCredentials never says whether the username or the password was wrong.
func errInvalidCredentials() error {
	return newError(KindInvalidCredentials).Errorf("invalid username or password")
}
