// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

// Package accounttest provides an in-memory implementation of the account
// stores for tests.
package accounttest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/miniaccount/accountd/internal/account"
)

// Op names a store method for error injection.
type Op string

// Store operations.
const (
	OpFindByID            Op = "FindByID"
	OpFindByUsername      Op = "FindByUsername"
	OpFindByEmail         Op = "FindByEmail"
	OpInsert              Op = "Insert"
	OpUpdateLoginFields   Op = "UpdateLoginFields"
	OpUpdatePassword      Op = "UpdatePassword"
	OpFindByToken         Op = "FindByToken"
	OpFindActiveByAccount Op = "FindActiveByAccount"
	OpReplaceActiveToken  Op = "ReplaceActiveToken"
	OpMarkUsed            Op = "MarkUsed"
	OpCommit              Op = "Commit"
)

type txKey struct{}

// Store is an in-memory account.AccountStore, account.TokenStore and
// account.Transactor. Transactions are serialized and roll back on error.
// A rollback only undoes rows written through the transaction's context.
type Store struct {
	txMu sync.Mutex

	mu       sync.Mutex
	accounts map[ulid.ULID]*account.Account
	tokens   map[ulid.ULID]*account.ResetToken // keyed by account
	undo     *undoLog                          // set while a transaction runs
	failures map[Op]error
	calls    map[Op]int
}

// undoLog holds the pre-transaction image of every row the transaction
// wrote. A nil image means the row did not exist.
type undoLog struct {
	accounts map[ulid.ULID]*account.Account
	tokens   map[ulid.ULID]*account.ResetToken
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[ulid.ULID]*account.Account),
		tokens:   make(map[ulid.ULID]*account.ResetToken),
		failures: make(map[Op]error),
		calls:    make(map[Op]int),
	}
}

// FailWith makes every later call of op return err. A nil err clears it.
func (s *Store) FailWith(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// AccountCount returns the number of stored accounts.
func (s *Store) AccountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// TokenFor returns a copy of the account's token row, or nil.
func (s *Store) TokenFor(accountID ulid.ULID) *account.ResetToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneToken(s.tokens[accountID])
}

// PutToken stores a token row directly, bypassing ReplaceActiveToken.
func (s *Store) PutToken(token account.ResetToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.AccountID] = &token
}

// enter locks the data and records the call. The caller must unlock.
func (s *Store) enter(op Op) error {
	s.mu.Lock()
	s.calls[op]++
	if err, ok := s.failures[op]; ok {
		return oops.With("operation", string(op)).Wrap(err)
	}
	return nil
}

// FindByID implements account.AccountStore.
func (s *Store) FindByID(_ context.Context, id ulid.ULID) (*account.Account, error) {
	defer s.mu.Unlock()
	if err := s.enter(OpFindByID); err != nil {
		return nil, err
	}
	acct, ok := s.accounts[id]
	if !ok {
		return nil, oops.With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return acct.Clone(), nil
}

// FindByUsername implements account.AccountStore.
func (s *Store) FindByUsername(_ context.Context, username string) (*account.Account, error) {
	defer s.mu.Unlock()
	if err := s.enter(OpFindByUsername); err != nil {
		return nil, err
	}
	if acct := s.findLocked(func(a *account.Account) bool { return strings.EqualFold(a.Username, username) }); acct != nil {
		return acct.Clone(), nil
	}
	return nil, oops.With("username", username).Wrap(account.ErrNotFound)
}

// FindByEmail implements account.AccountStore.
func (s *Store) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	defer s.mu.Unlock()
	if err := s.enter(OpFindByEmail); err != nil {
		return nil, err
	}
	if acct := s.findLocked(func(a *account.Account) bool { return strings.EqualFold(a.Email, email) }); acct != nil {
		return acct.Clone(), nil
	}
	return nil, oops.Wrap(account.ErrNotFound)
}

// Insert implements account.AccountStore.
func (s *Store) Insert(ctx context.Context, acct *account.Account) (*account.Account, error) {
	defer s.mu.Unlock()
	if err := s.enter(OpInsert); err != nil {
		return nil, err
	}
	if s.findLocked(func(a *account.Account) bool { return strings.EqualFold(a.Username, acct.Username) }) != nil {
		return nil, &account.ConflictError{Field: "username"}
	}
	if s.findLocked(func(a *account.Account) bool { return strings.EqualFold(a.Email, acct.Email) }) != nil {
		return nil, &account.ConflictError{Field: "email"}
	}
	stored := acct.Clone()
	if stored.ID == (ulid.ULID{}) {
		stored.ID = ulid.Make()
	}
	s.touchAccountLocked(ctx, stored.ID)
	s.accounts[stored.ID] = stored
	return stored.Clone(), nil
}

// UpdateLoginFields implements account.AccountStore.
func (s *Store) UpdateLoginFields(ctx context.Context, update account.LoginUpdate) (*account.Account, error) {
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateLoginFields); err != nil {
		return nil, err
	}
	acct, ok := s.accounts[update.AccountID]
	if !ok || acct.PasswordHash != update.ExpectedPasswordHash {
		return nil, oops.With("id", update.AccountID.String()).Wrap(account.ErrNotFound)
	}
	s.touchAccountLocked(ctx, acct.ID)
	acct.SessionTicket = update.SessionTicket
	acct.LastAccess = update.LastAccess
	acct.LastIPAddress = update.IPAddress
	return acct.Clone(), nil
}

// UpdatePassword implements account.AccountStore.
func (s *Store) UpdatePassword(ctx context.Context, accountID ulid.ULID, passwordHash string) error {
	defer s.mu.Unlock()
	if err := s.enter(OpUpdatePassword); err != nil {
		return err
	}
	acct, ok := s.accounts[accountID]
	if !ok {
		return oops.With("id", accountID.String()).Wrap(account.ErrNotFound)
	}
	s.touchAccountLocked(ctx, accountID)
	acct.PasswordHash = passwordHash
	return nil
}

// FindByToken implements account.TokenStore.
func (s *Store) FindByToken(_ context.Context, tokenHash string) (*account.ResetToken, error) {
	defer s.mu.Unlock()
	if err := s.enter(OpFindByToken); err != nil {
		return nil, err
	}
	if token := s.tokenByHashLocked(tokenHash); token != nil {
		return cloneToken(token), nil
	}
	return nil, oops.Wrap(account.ErrNotFound)
}

// FindActiveByAccount implements account.TokenStore.
func (s *Store) FindActiveByAccount(_ context.Context, accountID ulid.ULID, now time.Time) (*account.ResetToken, error) {
	defer s.mu.Unlock()
	if err := s.enter(OpFindActiveByAccount); err != nil {
		return nil, err
	}
	token, ok := s.tokens[accountID]
	if !ok || token.StateAt(now) != account.TokenActive {
		return nil, oops.With("account_id", accountID.String()).Wrap(account.ErrNotFound)
	}
	return cloneToken(token), nil
}

// ReplaceActiveToken implements account.TokenStore.
func (s *Store) ReplaceActiveToken(ctx context.Context, accountID ulid.ULID, tokenHash string, expireAt time.Time) (*account.ResetToken, error) {
	defer s.mu.Unlock()
	if err := s.enter(OpReplaceActiveToken); err != nil {
		return nil, err
	}
	token := &account.ResetToken{
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpireAt:  expireAt,
		CreatedAt: time.Now(),
	}
	s.touchTokenLocked(ctx, accountID)
	s.tokens[accountID] = token
	return cloneToken(token), nil
}

// MarkUsed implements account.TokenStore.
func (s *Store) MarkUsed(ctx context.Context, tokenHash string, now time.Time) (*account.ResetToken, error) {
	defer s.mu.Unlock()
	if err := s.enter(OpMarkUsed); err != nil {
		return nil, err
	}
	token := s.tokenByHashLocked(tokenHash)
	if token == nil || token.StateAt(now) != account.TokenActive {
		return nil, oops.Wrap(account.ErrNotFound)
	}
	s.touchTokenLocked(ctx, token.AccountID)
	token.Used = true
	return cloneToken(token), nil
}

// InTransaction implements account.Transactor. Rows written through the
// transaction's context are restored if fn or the commit fails. Nested calls
// join the outer transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.undo = &undoLog{
		accounts: make(map[ulid.ULID]*account.Account),
		tokens:   make(map[ulid.ULID]*account.ResetToken),
	}
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, true))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.calls[OpCommit]++
		if commitErr, ok := s.failures[OpCommit]; ok {
			err = oops.With("operation", "commit").Wrap(commitErr)
		}
	}
	undo := s.undo
	s.undo = nil
	if err != nil {
		s.rollbackLocked(undo)
		return err
	}
	return nil
}

// touchAccountLocked records the account's pre-image the first time a
// transaction writes it.
func (s *Store) touchAccountLocked(ctx context.Context, id ulid.ULID) {
	if s.undo == nil || ctx.Value(txKey{}) == nil {
		return
	}
	if _, seen := s.undo.accounts[id]; !seen {
		s.undo.accounts[id] = s.accounts[id].Clone()
	}
}

func (s *Store) touchTokenLocked(ctx context.Context, accountID ulid.ULID) {
	if s.undo == nil || ctx.Value(txKey{}) == nil {
		return
	}
	if _, seen := s.undo.tokens[accountID]; !seen {
		s.undo.tokens[accountID] = cloneToken(s.tokens[accountID])
	}
}

func (s *Store) rollbackLocked(undo *undoLog) {
	for id, before := range undo.accounts {
		if before == nil {
			delete(s.accounts, id)
			continue
		}
		s.accounts[id] = before
	}
	for id, before := range undo.tokens {
		if before == nil {
			delete(s.tokens, id)
			continue
		}
		s.tokens[id] = before
	}
}

func (s *Store) findLocked(match func(*account.Account) bool) *account.Account {
	for _, a := range s.accounts {
		if match(a) {
			return a
		}
	}
	return nil
}

func (s *Store) tokenByHashLocked(tokenHash string) *account.ResetToken {
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash {
			return t
		}
	}
	return nil
}

func cloneToken(t *account.ResetToken) *account.ResetToken {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

var (
	_ account.AccountStore = (*Store)(nil)
	_ account.TokenStore   = (*Store)(nil)
	_ account.Transactor   = (*Store)(nil)
)
