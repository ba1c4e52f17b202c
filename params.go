package chainledger

import (
	"fmt"
	"time"

	"github.com/xraph/chainledger/types"
)

// Percent100 is the fixed-point representation of 100% used by every rate.
const Percent100 = 10000

// SecondsPerYear is the interest accrual year.
const SecondsPerYear = 60 * 60 * 24 * 365

// Params holds every chain constant. All nodes replaying the same chain
// must use identical params.
type Params struct {
	// Delegation
	DelegationReturnPeriod       time.Duration `json:"delegation_return_period" yaml:"delegation_return_period" mapstructure:"delegation_return_period"`
	MinDelegationLock            time.Duration `json:"min_delegation_lock" yaml:"min_delegation_lock" mapstructure:"min_delegation_lock"`
	CreateAccountDelegationLock  time.Duration `json:"create_account_delegation_lock" yaml:"create_account_delegation_lock" mapstructure:"create_account_delegation_lock"`
	MinDelegation                types.Asset   `json:"min_delegation" yaml:"min_delegation" mapstructure:"min_delegation"`
	MaxDelegationInterestRate    uint16        `json:"max_delegation_interest_rate" yaml:"max_delegation_interest_rate" mapstructure:"max_delegation_interest_rate"`
	VestingWithdrawIntervals     uint32        `json:"vesting_withdraw_intervals" yaml:"vesting_withdraw_intervals" mapstructure:"vesting_withdraw_intervals"`
	VestingWithdrawIntervalEvery time.Duration `json:"vesting_withdraw_interval" yaml:"vesting_withdraw_interval" mapstructure:"vesting_withdraw_interval"`

	// Accounts and recovery
	AccountCreationFee           types.Asset   `json:"account_creation_fee" yaml:"account_creation_fee" mapstructure:"account_creation_fee"`
	OwnerUpdateLimit             time.Duration `json:"owner_update_limit" yaml:"owner_update_limit" mapstructure:"owner_update_limit"`
	OwnerAuthRecoveryPeriod      time.Duration `json:"owner_auth_recovery_period" yaml:"owner_auth_recovery_period" mapstructure:"owner_auth_recovery_period"`
	AccountRecoveryRequestExpiry time.Duration `json:"account_recovery_request_expiration" yaml:"account_recovery_request_expiration" mapstructure:"account_recovery_request_expiration"`
	ChangeRecoveryAccountDelay   time.Duration `json:"change_recovery_account_delay" yaml:"change_recovery_account_delay" mapstructure:"change_recovery_account_delay"`
	MaxSigCheckDepth             int           `json:"max_sig_check_depth" yaml:"max_sig_check_depth" mapstructure:"max_sig_check_depth"`
	MaxAuthorityMembership       int           `json:"max_authority_membership" yaml:"max_authority_membership" mapstructure:"max_authority_membership"`
	MaxProxyRecursionDepth       int           `json:"max_proxy_recursion_depth" yaml:"max_proxy_recursion_depth" mapstructure:"max_proxy_recursion_depth"`

	// Bandwidth
	BandwidthAverageWindow time.Duration `json:"bandwidth_average_window" yaml:"bandwidth_average_window" mapstructure:"bandwidth_average_window"`
	BandwidthPrecision     int64         `json:"bandwidth_precision" yaml:"bandwidth_precision" mapstructure:"bandwidth_precision"`
	MaxVirtualBandwidth    int64         `json:"max_virtual_bandwidth" yaml:"max_virtual_bandwidth" mapstructure:"max_virtual_bandwidth"`
	MaxTransactionSize     int           `json:"max_transaction_size" yaml:"max_transaction_size" mapstructure:"max_transaction_size"`
	MaxTimeUntilExpiration time.Duration `json:"max_time_until_expiration" yaml:"max_time_until_expiration" mapstructure:"max_time_until_expiration"`

	// GBG interest
	GBGInterestRate        uint16        `json:"gbg_interest_rate" yaml:"gbg_interest_rate" mapstructure:"gbg_interest_rate"`
	GBGCompoundingInterval time.Duration `json:"gbg_compounding_interval" yaml:"gbg_compounding_interval" mapstructure:"gbg_compounding_interval"`
}

// DefaultParams returns the main network constants.
func DefaultParams() Params {
	const day = 24 * time.Hour
	return Params{
		DelegationReturnPeriod:       7 * day,
		MinDelegationLock:            0,
		CreateAccountDelegationLock:  30 * day,
		MinDelegation:                types.Vests(0),
		MaxDelegationInterestRate:    Percent100,
		VestingWithdrawIntervals:     13,
		VestingWithdrawIntervalEvery: 7 * day,

		AccountCreationFee:           types.Golos(1000),
		OwnerUpdateLimit:             time.Hour,
		OwnerAuthRecoveryPeriod:      30 * day,
		AccountRecoveryRequestExpiry: day,
		ChangeRecoveryAccountDelay:   30 * day,
		MaxSigCheckDepth:             2,
		MaxAuthorityMembership:       10,
		MaxProxyRecursionDepth:       4,

		// 64 KiB blocks every 3 seconds for one window, in precision units.
		MaxVirtualBandwidth:    65536 * 1_000_000 * 201600,
		BandwidthAverageWindow: 7 * day,
		BandwidthPrecision:     1_000_000,
		MaxTransactionSize:     64 * 1024,
		MaxTimeUntilExpiration: time.Hour,

		GBGInterestRate:        1000,
		GBGCompoundingInterval: 30 * day,
	}
}

// Validate checks the params for values that would make the chain
// unusable.
func (p Params) Validate() error {
	var errs MultiError
	if p.MaxProxyRecursionDepth < 1 || p.MaxProxyRecursionDepth > MaxProxyDepth {
		errs.Add(fmt.Errorf("max_proxy_recursion_depth must be 1..%d", MaxProxyDepth))
	}
	if p.MaxSigCheckDepth < 0 {
		errs.Add(fmt.Errorf("max_sig_check_depth must not be negative"))
	}
	if p.VestingWithdrawIntervals == 0 || p.VestingWithdrawIntervalEvery <= 0 {
		errs.Add(fmt.Errorf("vesting withdraw schedule must be positive"))
	}
	if p.BandwidthAverageWindow < time.Second || p.BandwidthPrecision <= 0 || p.MaxVirtualBandwidth <= 0 {
		errs.Add(fmt.Errorf("bandwidth window, precision and max virtual bandwidth must be positive"))
	}
	if p.MaxDelegationInterestRate > Percent100 || p.GBGInterestRate > Percent100 {
		errs.Add(fmt.Errorf("rates must not exceed %d", Percent100))
	}
	if p.MinDelegation.Symbol != types.GESTS || p.AccountCreationFee.Symbol != types.GOLOS {
		errs.Add(fmt.Errorf("min_delegation must be GESTS and account_creation_fee GOLOS"))
	}
	return errs.ErrOrNil()
}

// MaxProxyDepth bounds the proxied vote accumulator of every account.
const MaxProxyDepth = 4
