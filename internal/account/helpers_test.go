// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miniaccount/accountd/internal/account"
	"github.com/miniaccount/accountd/internal/account/accounttest"
)

// cheapParams keep argon2id fast in tests.
var cheapParams = account.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

func newPolicy(t *testing.T, opts ...account.PolicyOption) *account.CredentialPolicy {
	t.Helper()
	policy, err := account.NewCredentialPolicy(account.NewArgon2idHasherWithParams(cheapParams), opts...)
	require.NoError(t, err)
	return policy
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	to, username, token string
}

// outbox records notifications and can be told to fail.
type outbox struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (o *outbox) Send(_ context.Context, to, username, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, sentMail{to: to, username: username, token: token})
	return nil
}

func (o *outbox) last(t *testing.T) sentMail {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no notification was sent")
	return o.sent[len(o.sent)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type harness struct {
	store    *accounttest.Store
	clock    *fakeClock
	mail     *outbox
	logs     *bytes.Buffer
	accounts *account.AccountService
	resets   *account.PasswordResetService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: accounttest.New(),
		clock: newFakeClock(),
		mail:  &outbox{},
		logs:  &bytes.Buffer{},
	}
	opts := []account.ServiceOption{
		account.WithClock(h.clock.Now),
		account.WithLogger(slog.New(slog.NewJSONHandler(h.logs, nil))),
	}

	var err error
	h.accounts, err = account.NewAccountService(h.store, newPolicy(t), opts...)
	require.NoError(t, err)
	h.resets, err = account.NewPasswordResetService(h.accounts, h.store, h.store, h.mail, opts...)
	require.NoError(t, err)
	return h
}

// signup creates alice with password "pw1".
func (h *harness) signup(t *testing.T) *account.Account {
	t.Helper()
	acct, err := h.accounts.Create(context.Background(), "alice", "pw1", "a@x.com", 0)
	require.NoError(t, err)
	return acct
}

// requestToken issues a reset token for a@x.com and returns its plaintext.
func (h *harness) requestToken(t *testing.T) string {
	t.Helper()
	_, err := h.resets.RequestReset(context.Background(), "a@x.com")
	require.NoError(t, err)
	return h.mail.last(t).token
}
