// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miniaccount/accountd/internal/account"
	"github.com/miniaccount/accountd/internal/account/accounttest"
)

func TestAccountCreate(t *testing.T) {
	c := newCLI(t)

	out, _, err := c.run("account", "create", "--username", "alice", "--password", "pw1", "--email", "alice@x.com", "--permission", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "username: alice\n")
	assert.Regexp(t, `ticket:   [0-9a-f]{64}\n`, out)
	assert.Equal(t, 1, c.store.AccountCount())
}

func TestAccountCreate_Duplicate(t *testing.T) {
	c := newCLI(t)
	c.signup(t)

	_, _, err := c.run("account", "create", "--username", "ALICE", "--password", "pw2", "--email", "other@x.com")
	assert.Equal(t, account.KindDuplicateUsername, account.KindOf(err))
	assert.Equal(t, exitFailure, exitCode(err))
	assert.Equal(t, 1, c.store.AccountCount())
}

func TestAccountCreate_RequiresFlags(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("account", "create", "--username", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestAccountCreate_PasswordFromStdin(t *testing.T) {
	c := newCLI(t)
	c.stdin = strings.NewReader("s3cret\n")

	_, _, err := c.run("account", "create", "--username", "alice", "--password", "-", "--email", "alice@x.com")
	require.NoError(t, err)

	out, _, err := c.run("account", "check", "--username", "alice", "--password", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "valid\n", out)
}

func TestAccountLogin(t *testing.T) {
	c := newCLI(t)
	c.signup(t)

	out, _, err := c.run("account", "login", "--username", "Alice", "--password", "pw1", "--ip", "10.0.0.1")
	require.NoError(t, err)

	acct, err := c.store.FindByUsername(t.Context(), "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "ticket:      "+acct.SessionTicket+"\n")
	assert.Equal(t, "10.0.0.1", acct.LastIPAddress)
}

func TestAccountLogin_Rejected(t *testing.T) {
	c := newCLI(t)
	c.signup(t)

	_, _, wrongPassword := c.run("account", "login", "--username", "alice", "--password", "nope")
	_, _, unknownUser := c.run("account", "login", "--username", "bob", "--password", "pw1")

	assert.Equal(t, account.KindInvalidCredentials, account.KindOf(wrongPassword))
	assert.Equal(t, account.KindInvalidCredentials, account.KindOf(unknownUser))
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestAccountLogin_TransientExitCode(t *testing.T) {
	c := newCLI(t)
	c.signup(t)
	c.store.FailWith(accounttest.OpFindByUsername, errors.New("connection reset"))

	_, _, err := c.run("account", "login", "--username", "alice", "--password", "pw1")
	assert.Equal(t, account.KindTransient, account.KindOf(err))
	assert.Equal(t, exitTransient, exitCode(err))
}

func TestAccountCheck(t *testing.T) {
	c := newCLI(t)
	c.signup(t)

	out, _, err := c.run("account", "check", "--username", "alice", "--password", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "valid\n", out)

	out, _, err = c.run("account", "check", "--username", "alice", "--password", "pw2")
	require.Error(t, err)
	assert.Equal(t, "invalid\n", out)
}

func TestAccountExists(t *testing.T) {
	c := newCLI(t)
	c.signup(t)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--username", "ALICE"}, "true\n"},
		{[]string{"--username", "bob"}, "false\n"},
		{[]string{"--email", "Alice@X.com"}, "true\n"},
		{[]string{"--email", "b@x.com"}, "false\n"},
	}
	for _, tt := range tests {
		out, _, err := c.run(append([]string{"account", "exists"}, tt.args...)...)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, out, tt.args)
	}
}

func TestAccountExists_FlagRules(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("account", "exists")
	require.Error(t, err)

	_, _, err = c.run("account", "exists", "--username", "alice", "--email", "a@x.com")
	require.Error(t, err)
}

func TestAccountRecover(t *testing.T) {
	c := newCLI(t)
	c.signup(t)

	out, _, err := c.run("account", "recover", "--email", "ALICE@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)

	_, _, err = c.run("account", "recover", "--email", "nobody@x.com")
	assert.Equal(t, account.KindUnknownEmail, account.KindOf(err))
}

func TestMetricsTextfile(t *testing.T) {
	c := newCLI(t)
	c.signup(t)
	path := filepath.Join(t.TempDir(), "accountd.prom")

	_, _, err := c.run("--metrics-textfile", path, "account", "login", "--username", "alice", "--password", "nope")
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `accountd_logins_total{result="invalid_credentials"}`)
}
