package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/types"
)

// Payload limits.
const (
	MaxMemoSize         = 2048
	MaxJSONMetadataSize = 8192
	MaxCustomIDLength   = 32
)

// PayoutStrategy selects who receives delegation interest.
type PayoutStrategy uint8

// Payout strategies.
const (
	ToDelegator PayoutStrategy = iota
	ToDelegatee
)

var payoutNames = [...]string{ToDelegator: "to_delegator", ToDelegatee: "to_delegatee"}

// Valid reports whether s is a known strategy.
func (s PayoutStrategy) Valid() bool { return int(s) < len(payoutNames) }

func (s PayoutStrategy) String() string {
	if !s.Valid() {
		return fmt.Sprintf("payout_strategy(%d)", uint8(s))
	}
	return payoutNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s PayoutStrategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("protocol: invalid payout strategy %d", uint8(s))
	}
	return []byte(payoutNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PayoutStrategy) UnmarshalText(data []byte) error {
	for i, name := range payoutNames {
		if name == string(data) {
			*s = PayoutStrategy(i)
			return nil
		}
	}
	return fmt.Errorf("protocol: unknown payout strategy %q", data)
}

func validateName(field, name string) error {
	if err := types.ValidateAccountName(name); err != nil {
		return chainledger.Invalid(field, "%v", err)
	}
	return nil
}

func validateJSON(field, s string, limit int) error {
	if s == "" {
		return nil
	}
	if len(s) > limit {
		return chainledger.Invalid(field, "longer than %d bytes", limit)
	}
	if !utf8.ValidString(s) || !json.Valid([]byte(s)) {
		return chainledger.Invalid(field, "not valid JSON")
	}
	return nil
}

func validateAuthority(field string, a types.Authority) error {
	if err := a.Validate(); err != nil {
		return chainledger.Invalid(field, "%v", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────

// Transfer moves liquid GOLOS or GBG between accounts.
type Transfer struct {
	_      struct{}    `cbor:",toarray"`
	From   string      `json:"from"`
	To     string      `json:"to"`
	Amount types.Asset `json:"amount"`
	Memo   string      `json:"memo"`
}

func (op *Transfer) Type() OpType { return OpTransfer }

func (op *Transfer) Validate() error {
	if err := validateName("from", op.From); err != nil {
		return err
	}
	if err := validateName("to", op.To); err != nil {
		return err
	}
	if op.Amount.Symbol != types.GOLOS && op.Amount.Symbol != types.GBG {
		return chainledger.Invalid("amount", "cannot transfer %s", op.Amount.Symbol)
	}
	if !op.Amount.IsPositive() {
		return chainledger.Invalid("amount", "must be positive")
	}
	if len(op.Memo) > MaxMemoSize || !utf8.ValidString(op.Memo) {
		return chainledger.Invalid("memo", "must be valid UTF-8 of at most %d bytes", MaxMemoSize)
	}
	return nil
}

func (op *Transfer) RequiredAuthorities(a *Authorities) { a.Active = append(a.Active, op.From) }

// TransferToVesting converts liquid GOLOS of From into vesting shares of To.
// An empty To vests to From.
type TransferToVesting struct {
	_      struct{}    `cbor:",toarray"`
	From   string      `json:"from"`
	To     string      `json:"to,omitempty"`
	Amount types.Asset `json:"amount"`
}

func (op *TransferToVesting) Type() OpType { return OpTransferToVesting }

func (op *TransferToVesting) Validate() error {
	if err := validateName("from", op.From); err != nil {
		return err
	}
	if op.To != "" {
		if err := validateName("to", op.To); err != nil {
			return err
		}
	}
	if op.Amount.Symbol != types.GOLOS || !op.Amount.IsPositive() {
		return chainledger.Invalid("amount", "must be a positive GOLOS amount")
	}
	return nil
}

func (op *TransferToVesting) RequiredAuthorities(a *Authorities) { a.Active = append(a.Active, op.From) }

// Recipient returns To, defaulting to From.
func (op *TransferToVesting) Recipient() string {
	if op.To == "" {
		return op.From
	}
	return op.To
}

// WithdrawVesting schedules VestingShares for gradual conversion back to
// GOLOS. Zero cancels the running schedule.
type WithdrawVesting struct {
	_             struct{}    `cbor:",toarray"`
	Account       string      `json:"account"`
	VestingShares types.Asset `json:"vesting_shares"`
}

func (op *WithdrawVesting) Type() OpType { return OpWithdrawVesting }

func (op *WithdrawVesting) Validate() error {
	if err := validateName("account", op.Account); err != nil {
		return err
	}
	if op.VestingShares.Symbol != types.GESTS || op.VestingShares.IsNegative() {
		return chainledger.Invalid("vesting_shares", "must be a non-negative GESTS amount")
	}
	return nil
}

func (op *WithdrawVesting) RequiredAuthorities(a *Authorities) { a.Active = append(a.Active, op.Account) }

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

// AccountCreate registers a new account. Fee is vested to the new account
// and Delegation is delegated to it by Creator.
type AccountCreate struct {
	_              struct{}        `cbor:",toarray"`
	Fee            types.Asset     `json:"fee"`
	Delegation     types.Asset     `json:"delegation"`
	Creator        string          `json:"creator"`
	NewAccountName string          `json:"new_account_name"`
	Owner          types.Authority `json:"owner"`
	Active         types.Authority `json:"active"`
	Posting        types.Authority `json:"posting"`
	MemoKey        types.PublicKey `json:"memo_key"`
	JSONMetadata   string          `json:"json_metadata"`
}

func (op *AccountCreate) Type() OpType { return OpAccountCreate }

func (op *AccountCreate) Validate() error {
	if err := validateName("creator", op.Creator); err != nil {
		return err
	}
	if err := validateName("new_account_name", op.NewAccountName); err != nil {
		return err
	}
	if op.Fee.Symbol != types.GOLOS || op.Fee.IsNegative() {
		return chainledger.Invalid("fee", "must be a non-negative GOLOS amount")
	}
	if op.Delegation.Symbol != types.GESTS || op.Delegation.IsNegative() {
		return chainledger.Invalid("delegation", "must be a non-negative GESTS amount")
	}
	for _, f := range []struct {
		field string
		auth  types.Authority
	}{{"owner", op.Owner}, {"active", op.Active}, {"posting", op.Posting}} {
		if err := validateAuthority(f.field, f.auth); err != nil {
			return err
		}
		if f.auth.IsImpossible() || f.auth.WeightThreshold == 0 {
			return chainledger.Invalid(f.field, "authority can never be satisfied")
		}
	}
	if op.MemoKey.IsZero() {
		return chainledger.Invalid("memo_key", "required")
	}
	return validateJSON("json_metadata", op.JSONMetadata, MaxJSONMetadataSize)
}

func (op *AccountCreate) RequiredAuthorities(a *Authorities) { a.Active = append(a.Active, op.Creator) }

// AccountUpdate replaces any of an account's authorities, its memo key and
// its metadata. Nil authorities and a zero memo key are left unchanged.
type AccountUpdate struct {
	_            struct{}         `cbor:",toarray"`
	Account      string           `json:"account"`
	Owner        *types.Authority `json:"owner,omitempty"`
	Active       *types.Authority `json:"active,omitempty"`
	Posting      *types.Authority `json:"posting,omitempty"`
	MemoKey      types.PublicKey  `json:"memo_key"`
	JSONMetadata string           `json:"json_metadata"`
}

func (op *AccountUpdate) Type() OpType { return OpAccountUpdate }

func (op *AccountUpdate) Validate() error {
	if err := validateName("account", op.Account); err != nil {
		return err
	}
	check := func(field string, auth *types.Authority) error {
		if auth == nil {
			return nil
		}
		if err := validateAuthority(field, *auth); err != nil {
			return err
		}
		if auth.IsImpossible() || auth.WeightThreshold == 0 {
			return chainledger.Invalid(field, "authority can never be satisfied")
		}
		return nil
	}
	if err := check("owner", op.Owner); err != nil {
		return err
	}
	if err := check("active", op.Active); err != nil {
		return err
	}
	if err := check("posting", op.Posting); err != nil {
		return err
	}
	return validateJSON("json_metadata", op.JSONMetadata, MaxJSONMetadataSize)
}

func (op *AccountUpdate) RequiredAuthorities(a *Authorities) {
	if op.Owner != nil {
		a.Owner = append(a.Owner, op.Account)
		return
	}
	a.Active = append(a.Active, op.Account)
}

// AccountMetadata replaces an account's profile blob.
type AccountMetadata struct {
	_            struct{} `cbor:",toarray"`
	Account      string   `json:"account"`
	JSONMetadata string   `json:"json_metadata"`
}

func (op *AccountMetadata) Type() OpType { return OpAccountMetadata }

func (op *AccountMetadata) Validate() error {
	if err := validateName("account", op.Account); err != nil {
		return err
	}
	if op.JSONMetadata == "" {
		return chainledger.Invalid("json_metadata", "required")
	}
	return validateJSON("json_metadata", op.JSONMetadata, MaxJSONMetadataSize)
}

func (op *AccountMetadata) RequiredAuthorities(a *Authorities) {
	a.Posting = append(a.Posting, op.Account)
}

// AccountWitnessProxy makes Proxy vote for witnesses on Account's behalf.
// An empty Proxy clears it.
type AccountWitnessProxy struct {
	_       struct{} `cbor:",toarray"`
	Account string   `json:"account"`
	Proxy   string   `json:"proxy"`
}

func (op *AccountWitnessProxy) Type() OpType { return OpAccountWitnessProxy }

func (op *AccountWitnessProxy) Validate() error {
	if err := validateName("account", op.Account); err != nil {
		return err
	}
	if op.Proxy == "" {
		return nil
	}
	if err := validateName("proxy", op.Proxy); err != nil {
		return err
	}
	if op.Proxy == op.Account {
		return chainledger.Invalid("proxy", "cannot proxy to self")
	}
	return nil
}

func (op *AccountWitnessProxy) RequiredAuthorities(a *Authorities) {
	a.Active = append(a.Active, op.Account)
}

// ──────────────────────────────────────────────────
// Delegation
// ──────────────────────────────────────────────────

// DelegateVestingShares sets the amount Delegator delegates to Delegatee.
// VestingShares is the new total: raising it delegates more at once,
// lowering it returns the difference after the return period, and zero
// revokes the delegation.
type DelegateVestingShares struct {
	_              struct{}       `cbor:",toarray"`
	Delegator      string         `json:"delegator"`
	Delegatee      string         `json:"delegatee"`
	VestingShares  types.Asset    `json:"vesting_shares"`
	InterestRate   uint16         `json:"interest_rate"`
	PayoutStrategy PayoutStrategy `json:"payout_strategy"`
}

func (op *DelegateVestingShares) Type() OpType { return OpDelegateVestingShares }

func (op *DelegateVestingShares) Validate() error {
	if err := validateName("delegator", op.Delegator); err != nil {
		return err
	}
	if err := validateName("delegatee", op.Delegatee); err != nil {
		return err
	}
	if op.Delegator == op.Delegatee {
		return chainledger.Invalid("delegatee", "cannot delegate to self")
	}
	if op.VestingShares.Symbol != types.GESTS {
		return chainledger.Invalid("vesting_shares", "must be GESTS")
	}
	if op.VestingShares.IsNegative() {
		return chainledger.Invalid("vesting_shares", "cannot decrease below zero")
	}
	if op.InterestRate > chainledger.Percent100 {
		return chainledger.Invalid("interest_rate", "exceeds %d", chainledger.Percent100)
	}
	if !op.PayoutStrategy.Valid() {
		return chainledger.Invalid("payout_strategy", "unknown strategy %d", op.PayoutStrategy)
	}
	return nil
}

func (op *DelegateVestingShares) RequiredAuthorities(a *Authorities) {
	a.Active = append(a.Active, op.Delegator)
}

// ──────────────────────────────────────────────────
// Recovery
// ──────────────────────────────────────────────────

// RequestAccountRecovery is filed by the recovery account of
// AccountToRecover. It proposes NewOwnerAuthority and proves, by carrying
// signatures that satisfy RecentOwnerAuthority, that the claimant controlled
// an owner authority the account held within the recovery period.
//
// A NewOwnerAuthority with zero threshold cancels the outstanding request;
// no proof is needed then.
type RequestAccountRecovery struct {
	_                    struct{}        `cbor:",toarray"`
	RecoveryAccount      string          `json:"recovery_account"`
	AccountToRecover     string          `json:"account_to_recover"`
	NewOwnerAuthority    types.Authority `json:"new_owner_authority"`
	RecentOwnerAuthority types.Authority `json:"recent_owner_authority"`
}

func (op *RequestAccountRecovery) Type() OpType { return OpRequestAccountRecovery }

// IsCancel reports whether the request withdraws an outstanding one.
func (op *RequestAccountRecovery) IsCancel() bool { return op.NewOwnerAuthority.WeightThreshold == 0 }

func (op *RequestAccountRecovery) Validate() error {
	if err := validateName("recovery_account", op.RecoveryAccount); err != nil {
		return err
	}
	if err := validateName("account_to_recover", op.AccountToRecover); err != nil {
		return err
	}
	if err := validateAuthority("new_owner_authority", op.NewOwnerAuthority); err != nil {
		return err
	}
	if op.IsCancel() {
		return nil
	}
	if op.NewOwnerAuthority.IsImpossible() {
		return chainledger.Invalid("new_owner_authority", "authority can never be satisfied")
	}
	if err := validateAuthority("recent_owner_authority", op.RecentOwnerAuthority); err != nil {
		return err
	}
	if op.RecentOwnerAuthority.IsImpossible() || op.RecentOwnerAuthority.WeightThreshold == 0 {
		return chainledger.Invalid("recent_owner_authority", "authority can never be satisfied")
	}
	return nil
}

func (op *RequestAccountRecovery) RequiredAuthorities(a *Authorities) {
	a.Active = append(a.Active, op.RecoveryAccount)
	if !op.IsCancel() {
		a.Other = append(a.Other, op.RecentOwnerAuthority)
	}
}

// RecoverAccount completes a pending recovery request. It must be signed by
// the new owner authority it installs.
type RecoverAccount struct {
	_                 struct{}        `cbor:",toarray"`
	AccountToRecover  string          `json:"account_to_recover"`
	NewOwnerAuthority types.Authority `json:"new_owner_authority"`
}

func (op *RecoverAccount) Type() OpType { return OpRecoverAccount }

func (op *RecoverAccount) Validate() error {
	if err := validateName("account_to_recover", op.AccountToRecover); err != nil {
		return err
	}
	if err := validateAuthority("new_owner_authority", op.NewOwnerAuthority); err != nil {
		return err
	}
	if op.NewOwnerAuthority.IsImpossible() || op.NewOwnerAuthority.WeightThreshold == 0 {
		return chainledger.Invalid("new_owner_authority", "authority can never be satisfied")
	}
	return nil
}

func (op *RecoverAccount) RequiredAuthorities(a *Authorities) {
	a.Other = append(a.Other, op.NewOwnerAuthority)
}

// ChangeRecoveryAccount designates a new recovery account. The change takes
// effect after the change-recovery delay.
type ChangeRecoveryAccount struct {
	_                  struct{} `cbor:",toarray"`
	AccountToRecover   string   `json:"account_to_recover"`
	NewRecoveryAccount string   `json:"new_recovery_account"`
}

func (op *ChangeRecoveryAccount) Type() OpType { return OpChangeRecoveryAccount }

func (op *ChangeRecoveryAccount) Validate() error {
	if err := validateName("account_to_recover", op.AccountToRecover); err != nil {
		return err
	}
	return validateName("new_recovery_account", op.NewRecoveryAccount)
}

func (op *ChangeRecoveryAccount) RequiredAuthorities(a *Authorities) {
	a.Owner = append(a.Owner, op.AccountToRecover)
}

// ──────────────────────────────────────────────────
// Custom
// ──────────────────────────────────────────────────

// CustomJSON carries application data. It changes no ledger state beyond
// bandwidth accounting.
type CustomJSON struct {
	_                    struct{} `cbor:",toarray"`
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`
	ID                   string   `json:"id"`
	JSON                 string   `json:"json"`
}

func (op *CustomJSON) Type() OpType { return OpCustomJSON }

func (op *CustomJSON) Validate() error {
	if len(op.RequiredAuths)+len(op.RequiredPostingAuths) == 0 {
		return chainledger.Invalid("required_auths", "at least one signer required")
	}
	for _, name := range op.RequiredAuths {
		if err := validateName("required_auths", name); err != nil {
			return err
		}
	}
	for _, name := range op.RequiredPostingAuths {
		if err := validateName("required_posting_auths", name); err != nil {
			return err
		}
	}
	if op.ID == "" || len(op.ID) > MaxCustomIDLength {
		return chainledger.Invalid("id", "must be 1..%d bytes", MaxCustomIDLength)
	}
	if op.JSON == "" {
		return chainledger.Invalid("json", "required")
	}
	return validateJSON("json", op.JSON, MaxJSONMetadataSize)
}

func (op *CustomJSON) RequiredAuthorities(a *Authorities) {
	a.Active = append(a.Active, op.RequiredAuths...)
	a.Posting = append(a.Posting, op.RequiredPostingAuths...)
}

var (
	_ Operation = (*Transfer)(nil)
	_ Operation = (*TransferToVesting)(nil)
	_ Operation = (*WithdrawVesting)(nil)
	_ Operation = (*AccountCreate)(nil)
	_ Operation = (*AccountUpdate)(nil)
	_ Operation = (*AccountMetadata)(nil)
	_ Operation = (*AccountWitnessProxy)(nil)
	_ Operation = (*DelegateVestingShares)(nil)
	_ Operation = (*RequestAccountRecovery)(nil)
	_ Operation = (*RecoverAccount)(nil)
	_ Operation = (*ChangeRecoveryAccount)(nil)
	_ Operation = (*CustomJSON)(nil)
)
