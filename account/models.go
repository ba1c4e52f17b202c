// Package account holds the account-family objects: the account itself,
// its authorities and metadata, the owner authority history and the two
// recovery request kinds.
package account

import (
	"github.com/holiman/uint256"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/types"
)

// Rate-limit windows a fresh account starts with.
const (
	PostsWindow    = 3
	CommentsWindow = 200
	VotesWindow    = 10
)

// Account is the central ledger object. Field order is the persisted order.
type Account struct {
	_                   struct{}        `cbor:",toarray"`
	ID                  chainbase.ID    `json:"id"`
	Name                string          `json:"name"`
	MemoKey             types.PublicKey `json:"memo_key"`
	Proxy               string          `json:"proxy"`
	LastAccountUpdate   types.Timestamp `json:"last_account_update"`
	Created             types.Timestamp `json:"created"`
	Mined               bool            `json:"mined"`
	OwnerChallenged     bool            `json:"owner_challenged"`
	ActiveChallenged    bool            `json:"active_challenged"`
	LastOwnerProved     types.Timestamp `json:"last_owner_proved"`
	LastActiveProved    types.Timestamp `json:"last_active_proved"`
	RecoveryAccount     string          `json:"recovery_account"`
	ResetAccount        string          `json:"reset_account"`
	LastAccountRecovery types.Timestamp `json:"last_account_recovery"`
	CommentCount        uint32          `json:"comment_count"`
	LifetimeVoteCount   uint32          `json:"lifetime_vote_count"`
	PostCount           uint32          `json:"post_count"`

	CanVote          bool            `json:"can_vote"`
	VotingPower      uint16          `json:"voting_power"`
	PostsCapacity    uint16          `json:"posts_capacity"`
	CommentsCapacity uint16          `json:"comments_capacity"`
	VotingCapacity   uint16          `json:"voting_capacity"`
	LastVoteTime     types.Timestamp `json:"last_vote_time"`

	Balance        types.Asset `json:"balance"`
	SavingsBalance types.Asset `json:"savings_balance"`

	// GBG held over time, in satoshi-seconds, since the last interest payment.
	GBGBalance                    types.Asset     `json:"sbd_balance"`
	GBGSeconds                    uint256.Int     `json:"sbd_seconds"`
	GBGSecondsLastUpdate          types.Timestamp `json:"sbd_seconds_last_update"`
	GBGLastInterestPayment        types.Timestamp `json:"sbd_last_interest_payment"`
	SavingsGBGBalance             types.Asset     `json:"savings_sbd_balance"`
	SavingsGBGSeconds             uint256.Int     `json:"savings_sbd_seconds"`
	SavingsGBGSecondsLastUpdate   types.Timestamp `json:"savings_sbd_seconds_last_update"`
	SavingsGBGLastInterestPayment types.Timestamp `json:"savings_sbd_last_interest_payment"`
	SavingsWithdrawRequests       uint8           `json:"savings_withdraw_requests"`

	BenefactionRewards int64 `json:"benefaction_rewards"`
	CurationRewards    int64 `json:"curation_rewards"`
	DelegationRewards  int64 `json:"delegation_rewards"`
	PostingRewards     int64 `json:"posting_rewards"`

	VestingShares          types.Asset `json:"vesting_shares"`
	DelegatedVestingShares types.Asset `json:"delegated_vesting_shares"`
	ReceivedVestingShares  types.Asset `json:"received_vesting_shares"`

	VestingWithdrawRate   types.Asset     `json:"vesting_withdraw_rate"`
	NextVestingWithdrawal types.Timestamp `json:"next_vesting_withdrawal"`
	Withdrawn             int64           `json:"withdrawn"`
	ToWithdraw            int64           `json:"to_withdraw"`
	WithdrawRoutes        uint16          `json:"withdraw_routes"`

	ProxiedVSFVotes [chainledger.MaxProxyDepth]int64 `json:"proxied_vsf_votes"`

	WitnessesVotedFor uint16 `json:"witnesses_voted_for"`
	WitnessVoteStaked bool   `json:"witness_vote_staked"`

	LastComment types.Timestamp `json:"last_comment"`
	LastPost    types.Timestamp `json:"last_post"`

	ReferrerAccount      string          `json:"referrer_account"`
	ReferrerInterestRate uint16          `json:"referrer_interest_rate"`
	ReferralEndDate      types.Timestamp `json:"referral_end_date"`
	ReferralBreakFee     types.Asset     `json:"referral_break_fee"`
}

func (a *Account) ObjectID() chainbase.ID      { return a.ID }
func (a *Account) SetObjectID(id chainbase.ID) { a.ID = id }

// Init sets the defaults of a freshly created account.
func (a *Account) Init(name string, created types.Timestamp) {
	a.Name = name
	a.Created = created
	a.LastAccountUpdate = created
	a.CanVote = true
	a.VotingPower = chainledger.Percent100
	a.PostsCapacity = PostsWindow
	a.CommentsCapacity = CommentsWindow
	a.VotingCapacity = VotesWindow
	a.Balance = types.Zero(types.GOLOS)
	a.SavingsBalance = types.Zero(types.GOLOS)
	a.GBGBalance = types.Zero(types.GBG)
	a.SavingsGBGBalance = types.Zero(types.GBG)
	a.VestingShares = types.Zero(types.GESTS)
	a.DelegatedVestingShares = types.Zero(types.GESTS)
	a.ReceivedVestingShares = types.Zero(types.GESTS)
	a.VestingWithdrawRate = types.Zero(types.GESTS)
	a.NextVestingWithdrawal = types.MaxTimestamp
	a.ReferralBreakFee = types.Zero(types.GOLOS)
}

// EffectiveVestingShares is the stake used for voting weight and bandwidth.
func (a *Account) EffectiveVestingShares() types.Asset {
	return a.VestingShares.Sub(a.DelegatedVestingShares).Add(a.ReceivedVestingShares)
}

// AvailableVestingShares is the stake that may still be delegated or
// withdrawn, before pending delegation returns are subtracted. With
// considerWithdrawal the remainder of a running withdrawal is excluded too.
func (a *Account) AvailableVestingShares(considerWithdrawal bool) types.Asset {
	have := a.VestingShares.Sub(a.DelegatedVestingShares)
	if considerWithdrawal {
		have = have.AddAmount(-(a.ToWithdraw - a.Withdrawn))
	}
	return have
}

// ProxiedVSFVotesTotal sums the votes proxied to the account at every depth.
func (a *Account) ProxiedVSFVotesTotal() int64 {
	var total int64
	for _, v := range a.ProxiedVSFVotes {
		total += v
	}
	return total
}

// WitnessVoteWeight is the weight the account carries when voting directly.
func (a *Account) WitnessVoteWeight() int64 {
	return a.VestingShares.Amount + a.ProxiedVSFVotesTotal()
}

// AccountAuthority holds the three permission levels of an account.
type AccountAuthority struct {
	_               struct{}        `cbor:",toarray"`
	ID              chainbase.ID    `json:"id"`
	Account         string          `json:"account"`
	Owner           types.Authority `json:"owner"`
	Active          types.Authority `json:"active"`
	Posting         types.Authority `json:"posting"`
	LastOwnerUpdate types.Timestamp `json:"last_owner_update"`
}

func (a *AccountAuthority) ObjectID() chainbase.ID      { return a.ID }
func (a *AccountAuthority) SetObjectID(id chainbase.ID) { a.ID = id }

func (a *AccountAuthority) Clone() *AccountAuthority {
	cp := *a
	cp.Owner = a.Owner.Clone()
	cp.Active = a.Active.Clone()
	cp.Posting = a.Posting.Clone()
	return &cp
}

type AccountMetadata struct {
	_            struct{}     `cbor:",toarray"`
	ID           chainbase.ID `json:"id"`
	Account      string       `json:"account"`
	JSONMetadata string       `json:"json_metadata"`
}

func (m *AccountMetadata) ObjectID() chainbase.ID      { return m.ID }
func (m *AccountMetadata) SetObjectID(id chainbase.ID) { m.ID = id }

// OwnerAuthorityHistory records an owner authority that was replaced and the
// last instant it was valid.
type OwnerAuthorityHistory struct {
	_                      struct{}        `cbor:",toarray"`
	ID                     chainbase.ID    `json:"id"`
	Account                string          `json:"account"`
	PreviousOwnerAuthority types.Authority `json:"previous_owner_authority"`
	LastValidTime          types.Timestamp `json:"last_valid_time"`
}

func (h *OwnerAuthorityHistory) ObjectID() chainbase.ID      { return h.ID }
func (h *OwnerAuthorityHistory) SetObjectID(id chainbase.ID) { h.ID = id }

func (h *OwnerAuthorityHistory) Clone() *OwnerAuthorityHistory {
	cp := *h
	cp.PreviousOwnerAuthority = h.PreviousOwnerAuthority.Clone()
	return &cp
}

// AccountRecoveryRequest is the single outstanding recovery proposal for an
// account.
type AccountRecoveryRequest struct {
	_                 struct{}        `cbor:",toarray"`
	ID                chainbase.ID    `json:"id"`
	AccountToRecover  string          `json:"account_to_recover"`
	NewOwnerAuthority types.Authority `json:"new_owner_authority"`
	Expires           types.Timestamp `json:"expires"`
}

func (r *AccountRecoveryRequest) ObjectID() chainbase.ID      { return r.ID }
func (r *AccountRecoveryRequest) SetObjectID(id chainbase.ID) { r.ID = id }

func (r *AccountRecoveryRequest) Clone() *AccountRecoveryRequest {
	cp := *r
	cp.NewOwnerAuthority = r.NewOwnerAuthority.Clone()
	return &cp
}

// ChangeRecoveryAccountRequest reassigns the recovery account once
// EffectiveOn is reached.
type ChangeRecoveryAccountRequest struct {
	_                struct{}        `cbor:",toarray"`
	ID               chainbase.ID    `json:"id"`
	AccountToRecover string          `json:"account_to_recover"`
	RecoveryAccount  string          `json:"recovery_account"`
	EffectiveOn      types.Timestamp `json:"effective_on"`
}

func (r *ChangeRecoveryAccountRequest) ObjectID() chainbase.ID      { return r.ID }
func (r *ChangeRecoveryAccountRequest) SetObjectID(id chainbase.ID) { r.ID = id }
