package authority_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/authority"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

func key(s string) types.PublicKey { return types.PublicKeyFromSeed(s) }

type directory map[string]*account.AccountAuthority

func (d directory) get(name string) (*account.AccountAuthority, error) {
	aa, ok := d[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chainledger.ErrAuthorityNotFound, name)
	}
	return aa, nil
}

func (d directory) add(name string, owner, active, posting types.Authority) {
	d[name] = &account.AccountAuthority{Account: name, Owner: owner, Active: active, Posting: posting}
}

func single(name string) types.Authority { return types.NewKeyAuthority(key(name)) }

func members(threshold uint32, names ...string) types.Authority {
	a := types.Authority{WeightThreshold: threshold}
	for _, n := range names {
		a.AccountAuths = append(a.AccountAuths, types.AccountWeight{Account: n, Weight: 1})
	}
	return a
}

func newDirectory() directory {
	d := directory{}
	d.add("alice", single("alice-owner"), single("alice-active"), single("alice-posting"))
	d.add("bob", single("bob-owner"), single("bob-active"), single("bob-posting"))
	d.add("carol", single("carol-owner"), single("carol-active"), single("carol-posting"))
	return d
}

func TestLevelsCoverLowerLevels(t *testing.T) {
	d := newDirectory()

	owner := authority.NewVerifier(d.get, []types.PublicKey{key("alice-owner")}, 2)
	assert.NoError(t, owner.CheckAccount("alice", authority.Owner))
	assert.NoError(t, owner.CheckAccount("alice", authority.Active))
	assert.NoError(t, owner.CheckAccount("alice", authority.Posting))

	posting := authority.NewVerifier(d.get, []types.PublicKey{key("alice-posting")}, 2)
	assert.NoError(t, posting.CheckAccount("alice", authority.Posting))
	err := posting.CheckAccount("alice", authority.Active)
	assert.ErrorIs(t, err, chainledger.ErrInsufficientAuthority)
	assert.Contains(t, err.Error(), "active authority of alice")

	assert.ErrorIs(t, posting.CheckAccount("nobody", authority.Posting), chainledger.ErrNotFound)
}

func TestMultiSignatureThreshold(t *testing.T) {
	d := newDirectory()
	shared := types.Authority{WeightThreshold: 2, KeyAuths: []types.KeyWeight{
		{Key: key("k1"), Weight: 1},
		{Key: key("k2"), Weight: 1},
		{Key: key("k3"), Weight: 2},
	}}
	d.add("dao", shared, shared, shared)

	assert.Error(t, authority.NewVerifier(d.get, []types.PublicKey{key("k1")}, 2).CheckAccount("dao", authority.Active))
	assert.NoError(t, authority.NewVerifier(d.get, []types.PublicKey{key("k1"), key("k2")}, 2).CheckAccount("dao", authority.Active))
	assert.NoError(t, authority.NewVerifier(d.get, []types.PublicKey{key("k3")}, 2).CheckAccount("dao", authority.Active))
}

func TestAccountMembersResolveRecursively(t *testing.T) {
	d := newDirectory()
	d.add("team", single("team-owner"), members(2, "alice", "bob"), single("team-posting"))

	v := authority.NewVerifier(d.get, []types.PublicKey{key("alice-active"), key("bob-active")}, 2)
	assert.NoError(t, v.CheckAccount("team", authority.Active))

	partial := authority.NewVerifier(d.get, []types.PublicKey{key("alice-active")}, 2)
	assert.Error(t, partial.CheckAccount("team", authority.Active))

	// Posting keys of members do not satisfy an active requirement.
	postingKeys := authority.NewVerifier(d.get, []types.PublicKey{key("alice-posting"), key("bob-posting")}, 2)
	assert.Error(t, postingKeys.CheckAccount("team", authority.Active))
}

func TestDepthBoundFailsClosed(t *testing.T) {
	d := newDirectory()
	d.add("l1", single("l1-owner"), members(1, "l2"), single("l1-posting"))
	d.add("l2", single("l2-owner"), members(1, "l3"), single("l2-posting"))
	d.add("l3", single("l3-owner"), members(1, "alice"), single("l3-posting"))

	signer := []types.PublicKey{key("alice-active")}
	assert.NoError(t, authority.NewVerifier(d.get, signer, 2).CheckAccount("l2", authority.Active))
	assert.ErrorIs(t, authority.NewVerifier(d.get, signer, 2).CheckAccount("l1", authority.Active),
		chainledger.ErrInsufficientAuthority)
	assert.NoError(t, authority.NewVerifier(d.get, signer, 3).CheckAccount("l1", authority.Active))
}

func TestCyclesFailClosed(t *testing.T) {
	d := newDirectory()
	d.add("ping", single("ping-owner"), members(1, "pong"), single("ping-posting"))
	d.add("pong", single("pong-owner"), members(1, "ping"), single("pong-posting"))

	v := authority.NewVerifier(d.get, []types.PublicKey{key("alice-active")}, 10)
	assert.ErrorIs(t, v.CheckAccount("ping", authority.Active), chainledger.ErrInsufficientAuthority)

	d.add("pong", single("pong-owner"), members(1, "ping", "alice"), single("pong-posting"))
	assert.NoError(t, v.CheckAccount("ping", authority.Active))
}

func TestCheckTransactionRequirements(t *testing.T) {
	d := newDirectory()
	recent := single("old-owner")

	req := &protocol.Authorities{
		Active:  []string{"alice"},
		Posting: []string{"bob"},
		Other:   []types.Authority{recent},
	}
	keys := []types.PublicKey{key("alice-active"), key("bob-posting"), key("old-owner")}
	require.NoError(t, authority.NewVerifier(d.get, keys, 2).Check(req))

	err := authority.NewVerifier(d.get, keys[:2], 2).Check(req)
	assert.ErrorIs(t, err, chainledger.ErrInsufficientAuthority)
	assert.True(t, chainledger.IsAuthorityError(err))
}
