package bandwidth

import (
	"github.com/xraph/chainledger/chainbase"
)

const TableBandwidth = "account_bandwidth"

// Key orders counters by account, then type.
type Key = chainbase.Pair[string, Type]

type Store struct {
	Bandwidth     *chainbase.Table[AccountBandwidth, *AccountBandwidth]
	ByAccountType *chainbase.Index[AccountBandwidth, *AccountBandwidth, Key]
}

func NewStore(db *chainbase.Database) *Store {
	s := &Store{}
	s.Bandwidth = chainbase.MustNewTable[AccountBandwidth](db, TableBandwidth)
	s.ByAccountType = chainbase.MustAddIndex(s.Bandwidth, "by_account_bandwidth_type",
		func(b *AccountBandwidth) Key { return chainbase.MakePair(b.Account, b.Type) },
		chainbase.ComparePairs[string, Type])
	return s
}

// Find returns the counter of account for t, or false if it has never
// been charged.
func (s *Store) Find(account string, t Type) (*AccountBandwidth, bool) {
	b, err := s.ByAccountType.Find(chainbase.MakePair(account, t))
	return b, err == nil
}
