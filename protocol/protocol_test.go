package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

func sampleTx() protocol.Transaction {
	return protocol.Transaction{
		Expiration: 1_700_000_000,
		Operations: protocol.Operations{
			&protocol.Transfer{From: "alice", To: "bob", Amount: types.Golos(1500), Memo: "hi"},
			&protocol.DelegateVestingShares{
				Delegator:      "alice",
				Delegatee:      "bob",
				VestingShares:  types.Vests(400),
				InterestRate:   2500,
				PayoutStrategy: protocol.ToDelegatee,
			},
			&protocol.AccountUpdate{Account: "alice", JSONMetadata: `{"a":1}`},
		},
		SignedKeys: []types.PublicKey{types.PublicKeyFromSeed("alice-active")},
	}
}

func TestTransactionCBORRoundTrip(t *testing.T) {
	tx := sampleTx()
	data, err := protocol.Encode(&tx)
	require.NoError(t, err)

	var back protocol.Transaction
	require.NoError(t, protocol.Decode(data, &back))
	require.Len(t, back.Operations, 3)
	assert.Equal(t, tx.Operations[1], back.Operations[1])
	assert.Nil(t, back.Operations[2].(*protocol.AccountUpdate).Owner)
	assert.Equal(t, tx.SignedKeys, back.SignedKeys)

	again, err := protocol.Encode(&back)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding must be canonical")
}

func TestTransactionJSONUsesTaggedPairs(t *testing.T) {
	tx := sampleTx()
	data, err := json.Marshal(tx)
	require.NoError(t, err)

	var raw struct {
		Operations [][]json.RawMessage `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw.Operations, 3)
	assert.JSONEq(t, `"transfer"`, string(raw.Operations[0][0]))
	assert.JSONEq(t, `{"from":"alice","to":"bob","amount":"1.500 GOLOS","memo":"hi"}`, string(raw.Operations[0][1]))

	var back protocol.Transaction
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, protocol.ToDelegatee, back.Operations[1].(*protocol.DelegateVestingShares).PayoutStrategy)
}

func TestTransactionIDIgnoresSignedKeys(t *testing.T) {
	tx := sampleTx()
	id1, err := tx.ID()
	require.NoError(t, err)

	tx.SignedKeys = nil
	id2, err := tx.ID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	tx.Operations[0].(*protocol.Transfer).Memo = "changed"
	id3, err := tx.ID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestBlockIDCarriesNumber(t *testing.T) {
	var prev protocol.BlockID
	prev[3] = 41
	b := protocol.Block{Previous: prev, Timestamp: 1_700_000_003, Witness: "miner", Transactions: []protocol.Transaction{sampleTx()}}

	id, err := b.ID()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), b.Number())
	assert.Equal(t, uint32(42), id.Number())

	text, err := id.MarshalText()
	require.NoError(t, err)
	var parsed protocol.BlockID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, id, parsed)
	assert.Error(t, parsed.UnmarshalText([]byte("abcd")))
}

func TestAppliedOperationEncoding(t *testing.T) {
	applied := protocol.AppliedOperation{
		TrxInBlock: protocol.BlockLevel,
		VirtualOp:  2,
		Op:         &protocol.ReturnVestingDelegation{Account: "alice", VestingShares: types.Vests(300)},
	}
	data, err := protocol.Encode(applied)
	require.NoError(t, err)
	var back protocol.AppliedOperation
	require.NoError(t, protocol.Decode(data, &back))
	assert.Equal(t, applied, back)

	js, err := json.Marshal(applied)
	require.NoError(t, err)
	assert.JSONEq(t, `{"trx_in_block":-1,"op_in_trx":0,"virtual_op":2,"op":["return_vesting_delegation",{"account":"alice","vesting_shares":"0.000300 GESTS"}]}`, string(js))
}

func TestNewOperation(t *testing.T) {
	op, err := protocol.NewOperation(protocol.OpCustomJSON)
	require.NoError(t, err)
	assert.Equal(t, protocol.OpCustomJSON, op.Type())

	_, err = protocol.NewOperation(protocol.OpInterest)
	assert.Error(t, err)
	_, err = protocol.NewOperation("vote")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	key := types.PublicKeyFromSeed("k")
	auth := types.NewKeyAuthority(key)

	tests := []struct {
		name  string
		op    protocol.Operation
		valid bool
	}{
		{"transfer ok", &protocol.Transfer{From: "alice", To: "bob", Amount: types.GBGs(1)}, true},
		{"transfer vests", &protocol.Transfer{From: "alice", To: "bob", Amount: types.Vests(1)}, false},
		{"transfer zero", &protocol.Transfer{From: "alice", To: "bob", Amount: types.Golos(0)}, false},
		{"transfer bad name", &protocol.Transfer{From: "Al", To: "bob", Amount: types.Golos(1)}, false},
		{"delegate to self", &protocol.DelegateVestingShares{Delegator: "alice", Delegatee: "alice", VestingShares: types.Vests(1)}, false},
		{"delegate below zero", &protocol.DelegateVestingShares{Delegator: "alice", Delegatee: "bob", VestingShares: types.Vests(-1)}, false},
		{"delegate revoke", &protocol.DelegateVestingShares{Delegator: "alice", Delegatee: "bob", VestingShares: types.Vests(0)}, true},
		{"delegate rate", &protocol.DelegateVestingShares{Delegator: "alice", Delegatee: "bob", VestingShares: types.Vests(1), InterestRate: 10001}, false},
		{"proxy self", &protocol.AccountWitnessProxy{Account: "alice", Proxy: "alice"}, false},
		{"proxy clear", &protocol.AccountWitnessProxy{Account: "alice"}, true},
		{"metadata json", &protocol.AccountMetadata{Account: "alice", JSONMetadata: "{"}, false},
		{"recovery cancel", &protocol.RequestAccountRecovery{RecoveryAccount: "bob", AccountToRecover: "alice"}, true},
		{"recovery without proof", &protocol.RequestAccountRecovery{RecoveryAccount: "bob", AccountToRecover: "alice", NewOwnerAuthority: auth}, false},
		{"recovery ok", &protocol.RequestAccountRecovery{RecoveryAccount: "bob", AccountToRecover: "alice", NewOwnerAuthority: auth, RecentOwnerAuthority: auth}, true},
		{"recover impossible", &protocol.RecoverAccount{AccountToRecover: "alice", NewOwnerAuthority: types.Authority{WeightThreshold: 2, KeyAuths: []types.KeyWeight{{Key: key, Weight: 1}}}}, false},
		{"custom no signer", &protocol.CustomJSON{ID: "follow", JSON: "{}"}, false},
		{"custom ok", &protocol.CustomJSON{RequiredPostingAuths: []string{"alice"}, ID: "follow", JSON: "[]"}, true},
		{"create ok", &protocol.AccountCreate{Fee: types.Golos(1000), Delegation: types.Vests(0), Creator: "alice", NewAccountName: "carol", Owner: auth, Active: auth, Posting: auth, MemoKey: key}, true},
		{"create no memo key", &protocol.AccountCreate{Fee: types.Golos(1000), Delegation: types.Vests(0), Creator: "alice", NewAccountName: "carol", Owner: auth, Active: auth, Posting: auth}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, chainledger.ErrMalformedOperation)
		})
	}
}

func TestRequiredAuthorities(t *testing.T) {
	owner := types.NewKeyAuthority(types.PublicKeyFromSeed("o"))
	tx := protocol.Transaction{Operations: protocol.Operations{
		&protocol.AccountUpdate{Account: "carol", Owner: &owner},
		&protocol.Transfer{From: "bob", To: "alice", Amount: types.Golos(1)},
		&protocol.CustomJSON{RequiredPostingAuths: []string{"alice"}, ID: "x", JSON: "{}"},
		&protocol.RecoverAccount{AccountToRecover: "dave", NewOwnerAuthority: owner},
	}}
	req := tx.RequiredAuthorities()
	assert.Equal(t, []string{"carol"}, req.Owner)
	assert.Equal(t, []string{"bob"}, req.Active)
	assert.Equal(t, []string{"alice"}, req.Posting)
	assert.Len(t, req.Other, 1)
	assert.Equal(t, []string{"alice", "bob", "carol"}, req.Accounts())
}
