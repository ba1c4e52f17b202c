// Package protocol defines what crosses the ledger boundary: signed
// operations, virtual operations, transactions, blocks and the annotated
// block handed to observers, plus their canonical CBOR encoding.
//
// Operations are tagged unions on the wire. Both the CBOR and the JSON
// form are a two-element array of the operation type name and its payload,
// the same shape Graphene-family nodes use in their JSON APIs:
//
//	["delegate_vesting_shares", {"delegator": "alice", ...}]
package protocol

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/xraph/chainledger/types"
)

// OpType names an operation on the wire.
type OpType string

// Signed operation types.
const (
	OpTransfer               OpType = "transfer"
	OpTransferToVesting      OpType = "transfer_to_vesting"
	OpWithdrawVesting        OpType = "withdraw_vesting"
	OpAccountCreate          OpType = "account_create"
	OpAccountUpdate          OpType = "account_update"
	OpAccountMetadata        OpType = "account_metadata"
	OpAccountWitnessProxy    OpType = "account_witness_proxy"
	OpDelegateVestingShares  OpType = "delegate_vesting_shares"
	OpRequestAccountRecovery OpType = "request_account_recovery"
	OpRecoverAccount         OpType = "recover_account"
	OpChangeRecoveryAccount  OpType = "change_recovery_account"
	OpCustomJSON             OpType = "custom_json"
)

// Virtual operation types.
const (
	OpFillVestingWithdraw     OpType = "fill_vesting_withdraw"
	OpReturnVestingDelegation OpType = "return_vesting_delegation"
	OpDelegationReward        OpType = "delegation_reward"
	OpChangedRecoveryAccount  OpType = "changed_recovery_account"
	OpInterest                OpType = "interest"
)

// Operation is a signed ledger operation.
type Operation interface {
	Type() OpType
	// Validate performs stateless structural checks.
	Validate() error
	// RequiredAuthorities adds the authorities that must sign the operation.
	RequiredAuthorities(*Authorities)
}

// VirtualOperation is an unsigned event derived while applying a block.
type VirtualOperation interface {
	Type() OpType
	virtual()
}

// Authorities collects the signing requirements of a transaction.
type Authorities struct {
	Owner   []string
	Active  []string
	Posting []string
	// Other lists authorities that must be satisfied directly by keys,
	// independent of any account.
	Other []types.Authority
}

// Accounts returns every account named by the owner, active and posting
// requirements, sorted and without duplicates.
func (a *Authorities) Accounts() []string {
	seen := make(map[string]struct{})
	for _, list := range [][]string{a.Owner, a.Active, a.Posting} {
		for _, name := range list {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ──────────────────────────────────────────────────
// Type registry
// ──────────────────────────────────────────────────

var factories = map[OpType]func() any{
	OpTransfer:               func() any { return &Transfer{} },
	OpTransferToVesting:      func() any { return &TransferToVesting{} },
	OpWithdrawVesting:        func() any { return &WithdrawVesting{} },
	OpAccountCreate:          func() any { return &AccountCreate{} },
	OpAccountUpdate:          func() any { return &AccountUpdate{} },
	OpAccountMetadata:        func() any { return &AccountMetadata{} },
	OpAccountWitnessProxy:    func() any { return &AccountWitnessProxy{} },
	OpDelegateVestingShares:  func() any { return &DelegateVestingShares{} },
	OpRequestAccountRecovery: func() any { return &RequestAccountRecovery{} },
	OpRecoverAccount:         func() any { return &RecoverAccount{} },
	OpChangeRecoveryAccount:  func() any { return &ChangeRecoveryAccount{} },
	OpCustomJSON:             func() any { return &CustomJSON{} },

	OpFillVestingWithdraw:     func() any { return &FillVestingWithdraw{} },
	OpReturnVestingDelegation: func() any { return &ReturnVestingDelegation{} },
	OpDelegationReward:        func() any { return &DelegationReward{} },
	OpChangedRecoveryAccount:  func() any { return &ChangedRecoveryAccount{} },
	OpInterest:                func() any { return &Interest{} },
}

func newPayload(t OpType) (any, error) {
	f, ok := factories[t]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown operation type %q", t)
	}
	return f(), nil
}

// NewOperation returns an empty signed operation of type t.
func NewOperation(t OpType) (Operation, error) {
	v, err := newPayload(t)
	if err != nil {
		return nil, err
	}
	op, ok := v.(Operation)
	if !ok {
		return nil, fmt.Errorf("protocol: %q is not a signed operation", t)
	}
	return op, nil
}

// ──────────────────────────────────────────────────
// Tagged encoding
// ──────────────────────────────────────────────────

type cborEnvelope struct {
	_       struct{} `cbor:",toarray"`
	Type    OpType
	Payload cbor.RawMessage
}

func encodeTagged(t OpType, v any) (cborEnvelope, error) {
	payload, err := Encode(v)
	if err != nil {
		return cborEnvelope{}, fmt.Errorf("protocol: encode %s: %w", t, err)
	}
	return cborEnvelope{Type: t, Payload: payload}, nil
}

func (e cborEnvelope) decode() (any, error) {
	v, err := newPayload(e.Type)
	if err != nil {
		return nil, err
	}
	if err := Decode(e.Payload, v); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", e.Type, err)
	}
	return v, nil
}

func marshalTaggedJSON(t OpType, v any) ([]byte, error) {
	return json.Marshal([]any{t, v})
}

func unmarshalTaggedJSON(data []byte) (any, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, err
	}
	if len(pair) != 2 {
		return nil, fmt.Errorf("protocol: operation must be a [type, payload] pair")
	}
	var t OpType
	if err := json.Unmarshal(pair[0], &t); err != nil {
		return nil, err
	}
	v, err := newPayload(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pair[1], v); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", t, err)
	}
	return v, nil
}

// Operations is a list of signed operations with tagged encodings.
type Operations []Operation

// MarshalCBOR implements cbor.Marshaler.
func (ops Operations) MarshalCBOR() ([]byte, error) {
	envs := make([]cborEnvelope, len(ops))
	for i, op := range ops {
		env, err := encodeTagged(op.Type(), op)
		if err != nil {
			return nil, err
		}
		envs[i] = env
	}
	return Encode(envs)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (ops *Operations) UnmarshalCBOR(data []byte) error {
	var envs []cborEnvelope
	if err := Decode(data, &envs); err != nil {
		return err
	}
	out := make(Operations, len(envs))
	for i, env := range envs {
		v, err := env.decode()
		if err != nil {
			return err
		}
		op, ok := v.(Operation)
		if !ok {
			return fmt.Errorf("protocol: %q is not a signed operation", env.Type)
		}
		out[i] = op
	}
	*ops = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ops Operations) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, len(ops))
	for i, op := range ops {
		raw, err := marshalTaggedJSON(op.Type(), op)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
	}
	return json.Marshal(raws)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ops *Operations) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Operations, len(raws))
	for i, raw := range raws {
		v, err := unmarshalTaggedJSON(raw)
		if err != nil {
			return err
		}
		op, ok := v.(Operation)
		if !ok {
			return fmt.Errorf("protocol: operation %d is virtual", i)
		}
		out[i] = op
	}
	*ops = out
	return nil
}
