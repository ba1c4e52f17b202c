// Package delegation stores vesting delegations between accounts and the
// pending returns created when a delegation shrinks.
package delegation

import (
	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

// VestingDelegation is the stake Delegator currently lends to Delegatee.
// Timestamp marks the start of the current interest accrual period.
type VestingDelegation struct {
	_                 struct{}                `cbor:",toarray"`
	ID                chainbase.ID            `json:"id"`
	Delegator         string                  `json:"delegator"`
	Delegatee         string                  `json:"delegatee"`
	VestingShares     types.Asset             `json:"vesting_shares"`
	InterestRate      uint16                  `json:"interest_rate"`
	PayoutStrategy    protocol.PayoutStrategy `json:"payout_strategy"`
	MinDelegationTime types.Timestamp         `json:"min_delegation_time"`
	Timestamp         types.Timestamp         `json:"timestamp"`
}

func (d *VestingDelegation) ObjectID() chainbase.ID      { return d.ID }
func (d *VestingDelegation) SetObjectID(id chainbase.ID) { d.ID = id }

// Expiration holds stake freed from a delegation until it becomes
// spendable for Delegator again.
type Expiration struct {
	_             struct{}        `cbor:",toarray"`
	ID            chainbase.ID    `json:"id"`
	Delegator     string          `json:"delegator"`
	VestingShares types.Asset     `json:"vesting_shares"`
	Expiration    types.Timestamp `json:"expiration"`
}

func (e *Expiration) ObjectID() chainbase.ID      { return e.ID }
func (e *Expiration) SetObjectID(id chainbase.ID) { e.ID = id }
