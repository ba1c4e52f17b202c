package store

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/global"
	"github.com/xraph/chainledger/types"
)

// ErrAlreadyInitialized is returned when seeding a state that has a head.
var ErrAlreadyInitialized = errors.New("store: state already initialized")

// Genesis describes the initial accounts of a chain.
type Genesis struct {
	Time     types.Timestamp  `json:"time" yaml:"time"`
	Accounts []GenesisAccount `json:"accounts" yaml:"accounts"`
}

// GenesisAccount seeds one account. Key becomes the owner, active, posting
// and memo key. Vesting is GOLOS converted to vesting shares at genesis.
type GenesisAccount struct {
	Name            string          `json:"name" yaml:"name"`
	Key             types.PublicKey `json:"key" yaml:"key"`
	Balance         types.Asset     `json:"balance" yaml:"balance"`
	GBGBalance      types.Asset     `json:"sbd_balance" yaml:"sbd_balance"`
	Vesting         types.Asset     `json:"vesting" yaml:"vesting"`
	RecoveryAccount string          `json:"recovery_account" yaml:"recovery_account"`
}

// ParseGenesis reads a YAML or JSON genesis document.
func ParseGenesis(data []byte) (*Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("store: parse genesis: %w", err)
	}
	return &g, nil
}

func orZero(a types.Asset, s types.Symbol) (types.Asset, error) {
	if a.Symbol == "" && a.Amount == 0 {
		return types.Zero(s), nil
	}
	if a.Symbol != s || a.IsNegative() {
		return types.Asset{}, fmt.Errorf("want a non-negative %s amount, got %s", s, a)
	}
	return a, nil
}

// Validate checks names, keys and amounts.
func (g *Genesis) Validate() error {
	var errs chainledger.MultiError
	seen := make(map[string]struct{}, len(g.Accounts))
	for i := range g.Accounts {
		ga := &g.Accounts[i]
		if err := types.ValidateAccountName(ga.Name); err != nil {
			errs.Add(fmt.Errorf("genesis account %d: %w", i, err))
			continue
		}
		if _, dup := seen[ga.Name]; dup {
			errs.Add(fmt.Errorf("genesis account %s listed twice", ga.Name))
		}
		seen[ga.Name] = struct{}{}
		if ga.Key.IsZero() {
			errs.Add(fmt.Errorf("genesis account %s: key required", ga.Name))
		}
		if ga.RecoveryAccount != "" {
			if err := types.ValidateAccountName(ga.RecoveryAccount); err != nil {
				errs.Add(fmt.Errorf("genesis account %s: recovery account: %w", ga.Name, err))
			}
		}
		var err error
		if ga.Balance, err = orZero(ga.Balance, types.GOLOS); err != nil {
			errs.Add(fmt.Errorf("genesis account %s: balance: %w", ga.Name, err))
		}
		if ga.GBGBalance, err = orZero(ga.GBGBalance, types.GBG); err != nil {
			errs.Add(fmt.Errorf("genesis account %s: sbd_balance: %w", ga.Name, err))
		}
		if ga.Vesting, err = orZero(ga.Vesting, types.GOLOS); err != nil {
			errs.Add(fmt.Errorf("genesis account %s: vesting: %w", ga.Name, err))
		}
	}
	return errs.ErrOrNil()
}

// InitGenesis seeds an empty state and makes the result irreversible.
func (s *State) InitGenesis(g *Genesis, params chainledger.Params) error {
	if s.Global.Properties.Len() > 0 {
		return ErrAlreadyInitialized
	}
	if err := g.Validate(); err != nil {
		return err
	}

	session := s.DB.BeginUndo()
	defer session.Close()

	var props global.DynamicGlobalProperties
	props.Init()
	props.Time = g.Time
	props.MaxVirtualBandwidth = params.MaxVirtualBandwidth
	props.GBGInterestRate = params.GBGInterestRate

	for _, ga := range g.Accounts {
		vests := props.VestsFor(ga.Vesting)
		props.TotalVestingFund = props.TotalVestingFund.Add(ga.Vesting)
		props.TotalVestingShares = props.TotalVestingShares.Add(vests)
		props.CurrentSupply = props.CurrentSupply.Add(ga.Balance).Add(ga.Vesting)
		props.CurrentGBGSupply = props.CurrentGBGSupply.Add(ga.GBGBalance)

		_, err := s.Accounts.Create(ga.Name, g.Time, func(a *account.Account) {
			a.MemoKey = ga.Key
			a.RecoveryAccount = ga.RecoveryAccount
			a.Balance = ga.Balance
			a.GBGBalance = ga.GBGBalance
			a.GBGSecondsLastUpdate = g.Time
			a.GBGLastInterestPayment = g.Time
			a.VestingShares = vests
		})
		if err != nil {
			return err
		}
		auth := types.NewKeyAuthority(ga.Key)
		if _, err := s.Accounts.Authorities.Create(func(aa *account.AccountAuthority) {
			aa.Account = ga.Name
			aa.Owner = auth.Clone()
			aa.Active = auth.Clone()
			aa.Posting = auth.Clone()
		}); err != nil {
			return fmt.Errorf("store: genesis authority of %s: %w", ga.Name, err)
		}
	}

	if _, err := s.Global.Properties.Create(func(p *global.DynamicGlobalProperties) { *p = props }); err != nil {
		return err
	}
	if err := session.Commit(); err != nil {
		return err
	}
	s.DB.Prune(session.Revision())
	return nil
}
