// Package store aggregates every ledger table on one chainbase database and
// knows how to snapshot, restore and seed it.
package store

import (
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/bandwidth"
	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/delegation"
	"github.com/xraph/chainledger/global"
)

// State is the full ledger state. Every table registers on DB so a single
// undo session covers all of them.
type State struct {
	DB          *chainbase.Database
	Accounts    *account.Store
	Delegations *delegation.Store
	Bandwidth   *bandwidth.Store
	Global      *global.Store

	codecs []tableCodec
}

// New creates an empty state.
func New() *State {
	db := chainbase.New()
	s := &State{
		DB:          db,
		Accounts:    account.NewStore(db),
		Delegations: delegation.NewStore(db),
		Bandwidth:   bandwidth.NewStore(db),
		Global:      global.NewStore(db),
	}
	s.codecs = []tableCodec{
		codecFor(s.Global.Properties),
		codecFor(s.Accounts.Accounts),
		codecFor(s.Accounts.Authorities),
		codecFor(s.Accounts.Metadata),
		codecFor(s.Accounts.OwnerHistory),
		codecFor(s.Accounts.RecoveryRequests),
		codecFor(s.Accounts.ChangeRecoveryRequests),
		codecFor(s.Delegations.Delegations),
		codecFor(s.Delegations.Expirations),
		codecFor(s.Bandwidth.Bandwidth),
	}
	return s
}

// Props returns the global properties singleton.
func (s *State) Props() (*global.DynamicGlobalProperties, error) {
	return s.Global.Get()
}

// TableNames lists the snapshot tables in snapshot order.
func (s *State) TableNames() []string {
	out := make([]string, len(s.codecs))
	for i, c := range s.codecs {
		out[i] = c.name()
	}
	return out
}
