package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/xraph/chainledger/types"
)

// FillVestingWithdraw reports one interval of a vesting withdrawal.
type FillVestingWithdraw struct {
	_           struct{}    `cbor:",toarray"`
	FromAccount string      `json:"from_account"`
	ToAccount   string      `json:"to_account"`
	Withdrawn   types.Asset `json:"withdrawn"`
	Deposited   types.Asset `json:"deposited"`
}

func (*FillVestingWithdraw) Type() OpType { return OpFillVestingWithdraw }
func (*FillVestingWithdraw) virtual() {}

// ReturnVestingDelegation reports stake coming back to a delegator after
// the return period.
type ReturnVestingDelegation struct {
	_             struct{}    `cbor:",toarray"`
	Account       string      `json:"account"`
	VestingShares types.Asset `json:"vesting_shares"`
}

func (*ReturnVestingDelegation) Type() OpType { return OpReturnVestingDelegation }
func (*ReturnVestingDelegation) virtual() {}

// DelegationReward reports interest issued on a delegation.
type DelegationReward struct {
	_              struct{}       `cbor:",toarray"`
	Delegator      string         `json:"delegator"`
	Delegatee      string         `json:"delegatee"`
	PayoutStrategy PayoutStrategy `json:"payout_strategy"`
	VestingShares  types.Asset    `json:"vesting_shares"`
}

func (*DelegationReward) Type() OpType { return OpDelegationReward }
func (*DelegationReward) virtual() {}

// ChangedRecoveryAccount reports a delayed recovery account change taking
// effect.
type ChangedRecoveryAccount struct {
	_                  struct{} `cbor:",toarray"`
	Account            string   `json:"account"`
	OldRecoveryAccount string   `json:"old_recovery_account"`
	NewRecoveryAccount string   `json:"new_recovery_account"`
}

func (*ChangedRecoveryAccount) Type() OpType { return OpChangedRecoveryAccount }
func (*ChangedRecoveryAccount) virtual() {}

// Interest reports GBG interest paid to Owner.
type Interest struct {
	_        struct{}    `cbor:",toarray"`
	Owner    string      `json:"owner"`
	Interest types.Asset `json:"interest"`
}

func (*Interest) Type() OpType { return OpInterest }
func (*Interest) virtual() {}

// BlockLevel is the TrxInBlock of virtual operations emitted by end-of-block
// processing rather than by a transaction.
const BlockLevel int32 = -1

// AppliedOperation locates a virtual operation within its block.
type AppliedOperation struct {
	TrxInBlock int32
	OpInTrx    uint32
	VirtualOp  uint32
	Op         VirtualOperation
}

type appliedWire struct {
	_          struct{} `cbor:",toarray"`
	TrxInBlock int32
	OpInTrx    uint32
	VirtualOp  uint32
	Op         cborEnvelope
}

// MarshalCBOR implements cbor.Marshaler.
func (a AppliedOperation) MarshalCBOR() ([]byte, error) {
	env, err := encodeTagged(a.Op.Type(), a.Op)
	if err != nil {
		return nil, err
	}
	return Encode(appliedWire{TrxInBlock: a.TrxInBlock, OpInTrx: a.OpInTrx, VirtualOp: a.VirtualOp, Op: env})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (a *AppliedOperation) UnmarshalCBOR(data []byte) error {
	var w appliedWire
	if err := Decode(data, &w); err != nil {
		return err
	}
	v, err := w.Op.decode()
	if err != nil {
		return err
	}
	op, ok := v.(VirtualOperation)
	if !ok {
		return fmt.Errorf("protocol: %q is not a virtual operation", w.Op.Type)
	}
	*a = AppliedOperation{TrxInBlock: w.TrxInBlock, OpInTrx: w.OpInTrx, VirtualOp: w.VirtualOp, Op: op}
	return nil
}

type appliedJSON struct {
	TrxInBlock int32           `json:"trx_in_block"`
	OpInTrx    uint32          `json:"op_in_trx"`
	VirtualOp  uint32          `json:"virtual_op"`
	Op         json.RawMessage `json:"op"`
}

// MarshalJSON implements json.Marshaler.
func (a AppliedOperation) MarshalJSON() ([]byte, error) {
	op, err := marshalTaggedJSON(a.Op.Type(), a.Op)
	if err != nil {
		return nil, err
	}
	return json.Marshal(appliedJSON{TrxInBlock: a.TrxInBlock, OpInTrx: a.OpInTrx, VirtualOp: a.VirtualOp, Op: op})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *AppliedOperation) UnmarshalJSON(data []byte) error {
	var w appliedJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := unmarshalTaggedJSON(w.Op)
	if err != nil {
		return err
	}
	op, ok := v.(VirtualOperation)
	if !ok {
		return fmt.Errorf("protocol: applied operation is not virtual")
	}
	*a = AppliedOperation{TrxInBlock: w.TrxInBlock, OpInTrx: w.OpInTrx, VirtualOp: w.VirtualOp, Op: op}
	return nil
}

var (
	_ VirtualOperation = (*FillVestingWithdraw)(nil)
	_ VirtualOperation = (*ReturnVestingDelegation)(nil)
	_ VirtualOperation = (*DelegationReward)(nil)
	_ VirtualOperation = (*ChangedRecoveryAccount)(nil)
	_ VirtualOperation = (*Interest)(nil)
)
