// Package global holds the dynamic global properties singleton: the head
// block position and the network-wide supply totals.
package global

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

const TableProperties = "dynamic_global_properties"

// VestsPerGolosWhenEmpty prices the first vesting deposit, before any fund
// exists to derive the share price from.
const VestsPerGolosWhenEmpty = 1000

// DynamicGlobalProperties is the singleton updated after every block.
type DynamicGlobalProperties struct {
	_                        struct{}         `cbor:",toarray"`
	ID                       chainbase.ID     `json:"id"`
	HeadBlockNumber          uint32           `json:"head_block_number"`
	HeadBlockID              protocol.BlockID `json:"head_block_id"`
	Time                     types.Timestamp  `json:"time"`
	CurrentWitness           string           `json:"current_witness"`
	LastIrreversibleBlockNum uint32           `json:"last_irreversible_block_num"`
	CurrentSupply            types.Asset      `json:"current_supply"`
	CurrentGBGSupply         types.Asset      `json:"current_sbd_supply"`
	TotalVestingFund         types.Asset      `json:"total_vesting_fund_steem"`
	TotalVestingShares       types.Asset      `json:"total_vesting_shares"`
	MaxVirtualBandwidth      int64            `json:"max_virtual_bandwidth"`
	GBGInterestRate          uint16           `json:"sbd_interest_rate"`
}

func (p *DynamicGlobalProperties) ObjectID() chainbase.ID      { return p.ID }
func (p *DynamicGlobalProperties) SetObjectID(id chainbase.ID) { p.ID = id }

// Init sets zero balances in the right symbols.
func (p *DynamicGlobalProperties) Init() {
	p.CurrentSupply = types.Zero(types.GOLOS)
	p.CurrentGBGSupply = types.Zero(types.GBG)
	p.TotalVestingFund = types.Zero(types.GOLOS)
	p.TotalVestingShares = types.Zero(types.GESTS)
}

// VestsFor prices a GOLOS deposit in vesting shares at the current share
// price.
func (p *DynamicGlobalProperties) VestsFor(golos types.Asset) types.Asset {
	if p.TotalVestingFund.IsZero() || p.TotalVestingShares.IsZero() {
		return types.Vests(golos.Amount * VestsPerGolosWhenEmpty)
	}
	return types.Vests(mulDiv(golos.Amount, p.TotalVestingShares.Amount, p.TotalVestingFund.Amount))
}

// GolosFor prices vesting shares in GOLOS at the current share price.
func (p *DynamicGlobalProperties) GolosFor(vests types.Asset) types.Asset {
	if p.TotalVestingFund.IsZero() || p.TotalVestingShares.IsZero() {
		return types.Golos(vests.Amount / VestsPerGolosWhenEmpty)
	}
	return types.Golos(mulDiv(vests.Amount, p.TotalVestingFund.Amount, p.TotalVestingShares.Amount))
}

// mulDiv computes a*b/d for non-negative operands without overflow in the
// intermediate product.
func mulDiv(a, b, d int64) int64 {
	if a <= 0 || b <= 0 || d <= 0 {
		return 0
	}
	var r uint256.Int
	r.Mul(uint256.NewInt(uint64(a)), uint256.NewInt(uint64(b)))
	r.Div(&r, uint256.NewInt(uint64(d)))
	return int64(r.Uint64())
}

// Store holds the singleton table.
type Store struct {
	Properties *chainbase.Table[DynamicGlobalProperties, *DynamicGlobalProperties]
}

func NewStore(db *chainbase.Database) *Store {
	return &Store{Properties: chainbase.MustNewTable[DynamicGlobalProperties](db, TableProperties)}
}

// Get returns the singleton.
func (s *Store) Get() (*DynamicGlobalProperties, error) {
	p, err := s.Properties.Get(0)
	if errors.Is(err, chainbase.ErrNotFound) {
		return nil, fmt.Errorf("%w: dynamic global properties", chainledger.ErrNotFound)
	}
	return p, err
}
