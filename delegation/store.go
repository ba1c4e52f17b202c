package delegation

import (
	"fmt"
	"iter"
	"slices"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/types"
)

const (
	TableDelegations = "vesting_delegations"
	TableExpirations = "vesting_delegation_expirations"
)

type (
	// PairKey orders delegations by two account names.
	PairKey = chainbase.Pair[string, string]
	// TimeKey orders expirations globally.
	TimeKey = chainbase.Pair[types.Timestamp, chainbase.ID]
	// AccountTimeKey orders expirations per delegator.
	AccountTimeKey = chainbase.Triple[string, types.Timestamp, chainbase.ID]
)

// Store registers the delegation tables and their indices.
type Store struct {
	Delegations  *chainbase.Table[VestingDelegation, *VestingDelegation]
	ByDelegation *chainbase.Index[VestingDelegation, *VestingDelegation, PairKey]
	ByReceived   *chainbase.Index[VestingDelegation, *VestingDelegation, PairKey]

	Expirations         *chainbase.Table[Expiration, *Expiration]
	ByExpiration        *chainbase.Index[Expiration, *Expiration, TimeKey]
	ByAccountExpiration *chainbase.Index[Expiration, *Expiration, AccountTimeKey]
}

func NewStore(db *chainbase.Database) *Store {
	s := &Store{}

	s.Delegations = chainbase.MustNewTable[VestingDelegation](db, TableDelegations)
	s.ByDelegation = chainbase.MustAddIndex(s.Delegations, "by_delegation",
		func(d *VestingDelegation) PairKey { return chainbase.MakePair(d.Delegator, d.Delegatee) },
		chainbase.ComparePairs[string, string])
	s.ByReceived = chainbase.MustAddIndex(s.Delegations, "by_received",
		func(d *VestingDelegation) PairKey { return chainbase.MakePair(d.Delegatee, d.Delegator) },
		chainbase.ComparePairs[string, string])

	s.Expirations = chainbase.MustNewTable[Expiration](db, TableExpirations)
	s.ByExpiration = chainbase.MustAddIndex(s.Expirations, "by_expiration",
		func(e *Expiration) TimeKey { return chainbase.MakePair(e.Expiration, e.ID) },
		chainbase.ComparePairs[types.Timestamp, chainbase.ID])
	s.ByAccountExpiration = chainbase.MustAddIndex(s.Expirations, "by_account_expiration",
		func(e *Expiration) AccountTimeKey { return chainbase.MakeTriple(e.Delegator, e.Expiration, e.ID) },
		chainbase.CompareTriples[string, types.Timestamp, chainbase.ID])

	return s
}

// Find returns the delegation from delegator to delegatee.
func (s *Store) Find(delegator, delegatee string) (*VestingDelegation, error) {
	d, err := s.ByDelegation.Find(chainbase.MakePair(delegator, delegatee))
	if err != nil {
		return nil, fmt.Errorf("%w: %s -> %s", chainledger.ErrDelegationNotFound, delegator, delegatee)
	}
	return d, nil
}

// Outgoing iterates the delegations made by delegator, by delegatee name.
func (s *Store) Outgoing(delegator string) iter.Seq[*VestingDelegation] {
	return s.ByDelegation.While(chainbase.MakePair(delegator, ""),
		func(k PairKey) bool { return k.First == delegator })
}

// Incoming iterates the delegations received by delegatee, by delegator name.
func (s *Store) Incoming(delegatee string) iter.Seq[*VestingDelegation] {
	return s.ByReceived.While(chainbase.MakePair(delegatee, ""),
		func(k PairKey) bool { return k.First == delegatee })
}

// Pending iterates the unreturned expirations of delegator, soonest first.
func (s *Store) Pending(delegator string) iter.Seq[*Expiration] {
	return s.ByAccountExpiration.While(chainbase.MakeTriple(delegator, types.Timestamp(0), chainbase.ID(0)),
		func(k AccountTimeKey) bool { return k.First == delegator })
}

// PendingReturn sums the stake of delegator still held by expirations.
func (s *Store) PendingReturn(delegator string) types.Asset {
	total := types.Zero(types.GESTS)
	for e := range s.Pending(delegator) {
		total = total.Add(e.VestingShares)
	}
	return total
}

// Due returns the expirations at or before now in sweep order.
func (s *Store) Due(now types.Timestamp) []*Expiration {
	return slices.Collect(s.ByExpiration.While(chainbase.MakePair(types.Timestamp(0), chainbase.ID(0)),
		func(k TimeKey) bool { return !k.First.After(now) }))
}
