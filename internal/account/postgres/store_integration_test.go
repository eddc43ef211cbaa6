// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/miniaccount/accountd/internal/account"
	"github.com/miniaccount/accountd/internal/account/postgres"
)

func newAccount(username, email string) *account.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &account.Account{
		Username:      username,
		PasswordHash:  "hash-" + username,
		SessionTicket: "ticket-" + username,
		DateCreated:   now,
		LastAccess:    now,
		Email:         email,
	}
}

var _ = Describe("AccountStore", func() {
	var accounts *postgres.AccountStore

	BeforeEach(func() {
		truncate()
		accounts = postgres.NewAccountStore(pool)
	})

	It("inserts and finds accounts case-insensitively", func() {
		created, err := accounts.Insert(suiteCtx, newAccount("Alice", "Alice@X.com"))
		Expect(err).NotTo(HaveOccurred())
		Expect(created.ID).NotTo(Equal(ulid.ULID{}))

		byName, err := accounts.FindByUsername(suiteCtx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(byName.ID).To(Equal(created.ID))
		Expect(byName.Username).To(Equal("Alice"))

		byEmail, err := accounts.FindByEmail(suiteCtx, "alice@x.COM")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(created.ID))

		byID, err := accounts.FindByID(suiteCtx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Email).To(Equal("Alice@X.com"))
	})

	It("reports missing accounts as ErrNotFound", func() {
		_, err := accounts.FindByUsername(suiteCtx, "nobody")
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())
	})

	It("names the conflicting column on duplicate insert", func() {
		_, err := accounts.Insert(suiteCtx, newAccount("alice", "a@x.com"))
		Expect(err).NotTo(HaveOccurred())

		_, err = accounts.Insert(suiteCtx, newAccount("ALICE", "other@x.com"))
		Expect(errors.Is(err, account.ErrConflict)).To(BeTrue())
		Expect(account.ConflictField(err)).To(Equal("username"))

		_, err = accounts.Insert(suiteCtx, newAccount("bob", "A@X.COM"))
		Expect(errors.Is(err, account.ErrConflict)).To(BeTrue())
		Expect(account.ConflictField(err)).To(Equal("email"))
	})

	It("guards login updates with the expected password hash", func() {
		created, err := accounts.Insert(suiteCtx, newAccount("alice", "a@x.com"))
		Expect(err).NotTo(HaveOccurred())

		at := time.Now().UTC().Truncate(time.Microsecond)
		updated, err := accounts.UpdateLoginFields(suiteCtx, account.LoginUpdate{
			AccountID:            created.ID,
			ExpectedPasswordHash: created.PasswordHash,
			SessionTicket:        "t2",
			LastAccess:           at,
			IPAddress:            "10.0.0.1",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.SessionTicket).To(Equal("t2"))
		Expect(updated.LastIPAddress).To(Equal("10.0.0.1"))
		Expect(updated.LastAccess.Equal(at)).To(BeTrue())

		Expect(accounts.UpdatePassword(suiteCtx, created.ID, "new-hash")).To(Succeed())

		_, err = accounts.UpdateLoginFields(suiteCtx, account.LoginUpdate{
			AccountID:            created.ID,
			ExpectedPasswordHash: created.PasswordHash,
			SessionTicket:        "t3",
		})
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())
	})
})

var _ = Describe("TokenStore", func() {
	var (
		accounts *postgres.AccountStore
		tokens   *postgres.TokenStore
		owner    *account.Account
		now      time.Time
	)

	BeforeEach(func() {
		truncate()
		accounts = postgres.NewAccountStore(pool)
		tokens = postgres.NewTokenStore(pool)
		var err error
		owner, err = accounts.Insert(suiteCtx, newAccount("alice", "a@x.com"))
		Expect(err).NotTo(HaveOccurred())
		now = time.Now().UTC().Truncate(time.Microsecond)
	})

	It("keeps one token per account", func() {
		_, err := tokens.ReplaceActiveToken(suiteCtx, owner.ID, "hash-1", now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		_, err = tokens.ReplaceActiveToken(suiteCtx, owner.ID, "hash-2", now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())

		_, err = tokens.FindByToken(suiteCtx, "hash-1")
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())

		active, err := tokens.FindActiveByAccount(suiteCtx, owner.ID, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(active.TokenHash).To(Equal("hash-2"))
	})

	It("marks a token used exactly once", func() {
		_, err := tokens.ReplaceActiveToken(suiteCtx, owner.ID, "hash-1", now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())

		used, err := tokens.MarkUsed(suiteCtx, "hash-1", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(used.Used).To(BeTrue())
		Expect(used.AccountID).To(Equal(owner.ID))

		_, err = tokens.MarkUsed(suiteCtx, "hash-1", now)
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())

		row, err := tokens.FindByToken(suiteCtx, "hash-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(row.StateAt(now)).To(Equal(account.TokenUsed))
	})

	It("refuses expired tokens but accepts one at its expiry instant", func() {
		expireAt := now.Add(time.Minute)
		_, err := tokens.ReplaceActiveToken(suiteCtx, owner.ID, "hash-1", expireAt)
		Expect(err).NotTo(HaveOccurred())

		_, err = tokens.MarkUsed(suiteCtx, "hash-1", expireAt.Add(time.Second))
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())
		_, err = tokens.FindActiveByAccount(suiteCtx, owner.ID, expireAt.Add(time.Second))
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())

		_, err = tokens.MarkUsed(suiteCtx, "hash-1", expireAt)
		Expect(err).NotTo(HaveOccurred())
	})

	It("removes tokens with their account", func() {
		_, err := tokens.ReplaceActiveToken(suiteCtx, owner.ID, "hash-1", now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(suiteCtx, `DELETE FROM accounts WHERE id = $1`, owner.ID.String())
		Expect(err).NotTo(HaveOccurred())

		_, err = tokens.FindByToken(suiteCtx, "hash-1")
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())
	})
})

var _ = Describe("Transactor", func() {
	var (
		accounts *postgres.AccountStore
		tx       *postgres.Transactor
	)

	BeforeEach(func() {
		truncate()
		accounts = postgres.NewAccountStore(pool)
		tx = postgres.NewTransactor(pool)
	})

	It("rolls back every write when fn fails", func() {
		boom := errors.New("boom")
		err := tx.InTransaction(suiteCtx, func(ctx context.Context) error {
			if _, err := accounts.Insert(ctx, newAccount("alice", "a@x.com")); err != nil {
				return err
			}
			return boom
		})
		Expect(errors.Is(err, boom)).To(BeTrue())

		_, err = accounts.FindByUsername(suiteCtx, "alice")
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())
	})

	It("commits writes when fn succeeds", func() {
		Expect(tx.InTransaction(suiteCtx, func(ctx context.Context) error {
			_, err := accounts.Insert(ctx, newAccount("alice", "a@x.com"))
			return err
		})).To(Succeed())

		_, err := accounts.FindByUsername(suiteCtx, "alice")
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Password reset end to end", func() {
	var (
		accounts *account.AccountService
		resets   *account.PasswordResetService
		sent     chan string
	)

	BeforeEach(func() {
		truncate()
		policy, err := account.NewCredentialPolicy(account.NewArgon2idHasherWithParams(account.Argon2Params{
			Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32,
		}))
		Expect(err).NotTo(HaveOccurred())

		accounts, err = account.NewAccountService(postgres.NewAccountStore(pool), policy)
		Expect(err).NotTo(HaveOccurred())

		sent = make(chan string, 4)
		notifier := account.NotifierFunc(func(_ context.Context, _, _, token string) error {
			sent <- token
			return nil
		})
		resets, err = account.NewPasswordResetService(accounts, postgres.NewTokenStore(pool), postgres.NewTransactor(pool), notifier)
		Expect(err).NotTo(HaveOccurred())

		_, err = accounts.Create(suiteCtx, "alice", "pw1", "a@x.com", 0)
		Expect(err).NotTo(HaveOccurred())
	})

	It("resets a password and spends the token", func() {
		_, err := resets.RequestReset(suiteCtx, "A@X.COM")
		Expect(err).NotTo(HaveOccurred())
		token := <-sent

		acct, err := resets.ValidateToken(suiteCtx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(acct.Username).To(Equal("alice"))

		Expect(resets.ConsumeToken(suiteCtx, token, "pw2")).To(Succeed())
		Expect(accounts.ValidateCredentials(suiteCtx, "alice", "pw2")).To(BeTrue())
		Expect(accounts.ValidateCredentials(suiteCtx, "alice", "pw1")).To(BeFalse())

		err = resets.ConsumeToken(suiteCtx, token, "pw3")
		Expect(account.KindOf(err)).To(Equal(account.KindTokenAlreadyUsed))
	})

	It("lets exactly one of many concurrent consumers win", func() {
		_, err := resets.RequestReset(suiteCtx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		token := <-sent

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
			kinds   []account.Kind
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				err := resets.ConsumeToken(suiteCtx, token, "pw2")
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					success++
					return
				}
				kinds = append(kinds, account.KindOf(err))
			}()
		}
		wg.Wait()

		Expect(success).To(Equal(1))
		Expect(kinds).To(HaveLen(workers - 1))
		for _, kind := range kinds {
			Expect(kind).To(Equal(account.KindTokenAlreadyUsed))
		}
	})

	It("supersedes the previous token on a new request", func() {
		_, err := resets.RequestReset(suiteCtx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		first := <-sent
		_, err = resets.RequestReset(suiteCtx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		second := <-sent

		_, err = resets.ValidateToken(suiteCtx, first)
		Expect(account.KindOf(err)).To(Equal(account.KindTokenNotFound))
		_, err = resets.ValidateToken(suiteCtx, second)
		Expect(err).NotTo(HaveOccurred())
	})

	It("fails a login that races a password reset", func() {
		_, err := resets.RequestReset(suiteCtx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(resets.ConsumeToken(suiteCtx, <-sent, "pw2")).To(Succeed())

		_, err = accounts.Login(suiteCtx, "alice", "pw1", "10.0.0.1")
		Expect(account.KindOf(err)).To(Equal(account.KindInvalidCredentials))
		acct, err := accounts.Login(suiteCtx, "alice", "pw2", "10.0.0.1")
		Expect(err).NotTo(HaveOccurred())
		Expect(acct.LastIPAddress).To(Equal("10.0.0.1"))
	})
})
