// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account

import (
	"net/mail"
	"regexp"
	"strings"
	"sync"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// Password and email constraints.
const (
	DefaultMinPasswordLength = 1
	MaxPasswordLength        = 1024
	MaxEmailLength           = 254
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// CredentialPolicy holds the credential format rules and the password hasher.
type CredentialPolicy struct {
	hasher            PasswordHasher
	minPasswordLength int

	dummyOnce sync.Once
	dummyHash string
}

// PolicyOption configures a CredentialPolicy.
type PolicyOption func(*CredentialPolicy)

// WithMinPasswordLength sets the minimum accepted password length in bytes.
// Values below DefaultMinPasswordLength are ignored.
func WithMinPasswordLength(n int) PolicyOption {
	return func(p *CredentialPolicy) {
		if n >= DefaultMinPasswordLength {
			p.minPasswordLength = n
		}
	}
}

// NewCredentialPolicy creates a CredentialPolicy around hasher.
func NewCredentialPolicy(hasher PasswordHasher, opts ...PolicyOption) (*CredentialPolicy, error) {
	if hasher == nil {
		return nil, newError(KindInternal).Errorf("password hasher is required")
	}
	p := &CredentialPolicy{
		hasher:            hasher,
		minPasswordLength: DefaultMinPasswordLength,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ValidateUsername validates a username against the format rules.
func (p *CredentialPolicy) ValidateUsername(username string) error {
	if username == "" {
		return newError(KindInvalidUsername).Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return newError(KindInvalidUsername).
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return newError(KindInvalidUsername).
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return newError(KindInvalidUsername).
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidatePassword checks password length bounds. The upper bound keeps
// hashing cost predictable.
func (p *CredentialPolicy) ValidatePassword(password string) error {
	if password == "" {
		return newError(KindInvalidPassword).Errorf("password cannot be empty")
	}
	if len(password) < p.minPasswordLength {
		return newError(KindInvalidPassword).
			With("min", p.minPasswordLength).
			Errorf("password must be at least %d characters", p.minPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return newError(KindInvalidPassword).
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// ValidateEmail accepts a single bare address such as "a@x.com".
func (p *CredentialPolicy) ValidateEmail(email string) error {
	if email == "" {
		return newError(KindInvalidEmail).Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return newError(KindInvalidEmail).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return newError(KindInvalidEmail).
			With("email", MaskEmail(email)).
			Errorf("email must be a plain address")
	}
	return nil
}

// ValidatePermission rejects negative access levels.
func (p *CredentialPolicy) ValidatePermission(permission int) error {
	if permission < 0 {
		return newError(KindInvalidPermission).
			With("permission", permission).
			Errorf("permission cannot be negative")
	}
	return nil
}

// HashPassword validates and hashes a password.
func (p *CredentialPolicy) HashPassword(password string) (string, error) {
	if err := p.ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := p.hasher.Hash(password)
	if err != nil {
		return "", newError(KindInternal).With("operation", "hash password").Wrap(err)
	}
	return hash, nil
}

// VerifyPassword compares password against hash in constant time.
// A malformed hash verifies as false.
func (p *CredentialPolicy) VerifyPassword(password, hash string) bool {
	ok, err := p.hasher.Verify(password, hash)
	return err == nil && ok
}

// VerifyAbsent burns the same verification work as VerifyPassword for a user
// that does not exist, so response time does not reveal account existence.
func (p *CredentialPolicy) VerifyAbsent(password string) {
	p.dummyOnce.Do(func() {
		ticket, err := NewSessionTicket()
		if err != nil {
			return
		}
		p.dummyHash, _ = p.hasher.Hash(ticket) //nolint:errcheck // empty hash still fails closed
	})
	_ = p.VerifyPassword(password, p.dummyHash)
}

// NormalizeUsername returns the comparison form of a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail returns the comparison form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
