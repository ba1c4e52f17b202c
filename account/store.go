package account

import (
	"cmp"
	"errors"
	"fmt"
	"iter"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/types"
)

// Table names.
const (
	TableAccounts               = "accounts"
	TableAuthorities            = "account_authorities"
	TableMetadata               = "account_metadata"
	TableOwnerHistory           = "owner_history"
	TableRecoveryRequests       = "recovery_requests"
	TableChangeRecoveryRequests = "change_recovery_requests"
)

// TimeKey orders objects by a time and their ID.
type TimeKey = chainbase.Pair[types.Timestamp, chainbase.ID]

// HistoryKey orders owner history per account by validity end.
type HistoryKey = chainbase.Triple[string, types.Timestamp, chainbase.ID]

// Store registers the account-family tables and their indices.
type Store struct {
	Accounts                *chainbase.Table[Account, *Account]
	ByName                  *chainbase.Index[Account, *Account, string]
	ByNextVestingWithdrawal *chainbase.Index[Account, *Account, TimeKey]

	Authorities       *chainbase.Table[AccountAuthority, *AccountAuthority]
	AuthorityByName   *chainbase.Index[AccountAuthority, *AccountAuthority, string]
	ByLastOwnerUpdate *chainbase.Index[AccountAuthority, *AccountAuthority, TimeKey]

	Metadata       *chainbase.Table[AccountMetadata, *AccountMetadata]
	MetadataByName *chainbase.Index[AccountMetadata, *AccountMetadata, string]

	OwnerHistory            *chainbase.Table[OwnerAuthorityHistory, *OwnerAuthorityHistory]
	OwnerHistoryByAccount   *chainbase.Index[OwnerAuthorityHistory, *OwnerAuthorityHistory, HistoryKey]
	OwnerHistoryByLastValid *chainbase.Index[OwnerAuthorityHistory, *OwnerAuthorityHistory, TimeKey]

	RecoveryRequests     *chainbase.Table[AccountRecoveryRequest, *AccountRecoveryRequest]
	RecoveryByAccount    *chainbase.Index[AccountRecoveryRequest, *AccountRecoveryRequest, string]
	RecoveryByExpiration *chainbase.Index[AccountRecoveryRequest, *AccountRecoveryRequest, TimeKey]

	ChangeRecoveryRequests      *chainbase.Table[ChangeRecoveryAccountRequest, *ChangeRecoveryAccountRequest]
	ChangeRecoveryByAccount     *chainbase.Index[ChangeRecoveryAccountRequest, *ChangeRecoveryAccountRequest, string]
	ChangeRecoveryByEffectiveOn *chainbase.Index[ChangeRecoveryAccountRequest, *ChangeRecoveryAccountRequest, TimeKey]
}

// NewStore registers the tables with db. It panics if they already exist.
func NewStore(db *chainbase.Database) *Store {
	s := &Store{}

	s.Accounts = chainbase.MustNewTable[Account](db, TableAccounts)
	s.ByName = chainbase.MustAddIndex(s.Accounts, "by_name",
		func(a *Account) string { return a.Name }, cmp.Compare[string])
	s.ByNextVestingWithdrawal = chainbase.MustAddIndex(s.Accounts, "by_next_vesting_withdrawal",
		func(a *Account) TimeKey { return chainbase.MakePair(a.NextVestingWithdrawal, a.ID) },
		chainbase.ComparePairs[types.Timestamp, chainbase.ID])

	s.Authorities = chainbase.MustNewTable[AccountAuthority](db, TableAuthorities)
	s.AuthorityByName = chainbase.MustAddIndex(s.Authorities, "by_account",
		func(a *AccountAuthority) string { return a.Account }, cmp.Compare[string])
	s.ByLastOwnerUpdate = chainbase.MustAddIndex(s.Authorities, "by_last_owner_update",
		func(a *AccountAuthority) TimeKey { return chainbase.MakePair(a.LastOwnerUpdate, a.ID) },
		func(x, y TimeKey) int {
			if c := cmp.Compare(y.First, x.First); c != 0 {
				return c
			}
			return cmp.Compare(x.Second, y.Second)
		})

	s.Metadata = chainbase.MustNewTable[AccountMetadata](db, TableMetadata)
	s.MetadataByName = chainbase.MustAddIndex(s.Metadata, "by_account",
		func(m *AccountMetadata) string { return m.Account }, cmp.Compare[string])

	s.OwnerHistory = chainbase.MustNewTable[OwnerAuthorityHistory](db, TableOwnerHistory)
	s.OwnerHistoryByAccount = chainbase.MustAddIndex(s.OwnerHistory, "by_account",
		func(h *OwnerAuthorityHistory) HistoryKey {
			return chainbase.MakeTriple(h.Account, h.LastValidTime, h.ID)
		},
		chainbase.CompareTriples[string, types.Timestamp, chainbase.ID])
	s.OwnerHistoryByLastValid = chainbase.MustAddIndex(s.OwnerHistory, "by_last_valid",
		func(h *OwnerAuthorityHistory) TimeKey { return chainbase.MakePair(h.LastValidTime, h.ID) },
		chainbase.ComparePairs[types.Timestamp, chainbase.ID])

	s.RecoveryRequests = chainbase.MustNewTable[AccountRecoveryRequest](db, TableRecoveryRequests)
	s.RecoveryByAccount = chainbase.MustAddIndex(s.RecoveryRequests, "by_account",
		func(r *AccountRecoveryRequest) string { return r.AccountToRecover }, cmp.Compare[string])
	s.RecoveryByExpiration = chainbase.MustAddIndex(s.RecoveryRequests, "by_expiration",
		func(r *AccountRecoveryRequest) TimeKey { return chainbase.MakePair(r.Expires, r.ID) },
		chainbase.ComparePairs[types.Timestamp, chainbase.ID])

	s.ChangeRecoveryRequests = chainbase.MustNewTable[ChangeRecoveryAccountRequest](db, TableChangeRecoveryRequests)
	s.ChangeRecoveryByAccount = chainbase.MustAddIndex(s.ChangeRecoveryRequests, "by_account",
		func(r *ChangeRecoveryAccountRequest) string { return r.AccountToRecover }, cmp.Compare[string])
	s.ChangeRecoveryByEffectiveOn = chainbase.MustAddIndex(s.ChangeRecoveryRequests, "by_effective_date",
		func(r *ChangeRecoveryAccountRequest) TimeKey { return chainbase.MakePair(r.EffectiveOn, r.ID) },
		chainbase.ComparePairs[types.Timestamp, chainbase.ID])

	return s
}

// ──────────────────────────────────────────────────
// Finders
// ──────────────────────────────────────────────────

// Get returns the account called name.
func (s *Store) Get(name string) (*Account, error) {
	a, err := s.ByName.Find(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chainledger.ErrAccountNotFound, name)
	}
	return a, nil
}

// Exists reports whether an account called name exists.
func (s *Store) Exists(name string) bool { return s.ByName.Contains(name) }

// Authority returns the authorities of name.
func (s *Store) Authority(name string) (*AccountAuthority, error) {
	a, err := s.AuthorityByName.Find(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chainledger.ErrAuthorityNotFound, name)
	}
	return a, nil
}

// AccountMetadata returns the metadata object of name.
func (s *Store) AccountMetadata(name string) (*AccountMetadata, error) {
	m, err := s.MetadataByName.Find(name)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata of %s", chainledger.ErrNotFound, name)
	}
	return m, nil
}

// RecoveryRequest returns the outstanding recovery request for name.
func (s *Store) RecoveryRequest(name string) (*AccountRecoveryRequest, error) {
	r, err := s.RecoveryByAccount.Find(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chainledger.ErrRecoveryRequestNotFound, name)
	}
	return r, nil
}

// ChangeRecoveryRequest returns the pending recovery account change of name.
func (s *Store) ChangeRecoveryRequest(name string) (*ChangeRecoveryAccountRequest, bool) {
	r, err := s.ChangeRecoveryByAccount.Find(name)
	return r, err == nil
}

// OwnerHistoryOf iterates the superseded owner authorities of name, oldest
// validity end first.
func (s *Store) OwnerHistoryOf(name string) iter.Seq[*OwnerAuthorityHistory] {
	return s.OwnerHistoryByAccount.While(chainbase.MakeTriple(name, types.Timestamp(0), chainbase.ID(0)),
		func(k HistoryKey) bool { return k.First == name })
}

// Create inserts a new account, failing if the name is taken.
func (s *Store) Create(name string, created types.Timestamp, construct func(*Account)) (*Account, error) {
	a, err := s.Accounts.Create(func(a *Account) {
		a.Init(name, created)
		if construct != nil {
			construct(a)
		}
	})
	if errors.Is(err, chainbase.ErrDuplicateKey) {
		return nil, fmt.Errorf("%w: %s", chainledger.ErrAccountExists, name)
	}
	return a, err
}
