// Package bandwidth tracks the decayed usage of every (account, type) pair
// and decides whether an account may spend more.
//
// The average halves every window. Within a window it falls linearly
// between the two halvings, which keeps the arithmetic exact in integers:
//
//	k, r := elapsed/window, elapsed%window
//	avg = avg >> k
//	avg = avg - avg*r/(2*window)
//
// An account may hold average usage up to its share of the network stake
// times the maximum virtual bandwidth.
package bandwidth

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

// Type separates usage domains so one cannot starve another.
type Type uint8

const (
	Forum Type = iota
	Market
	CustomJSON
)

var typeNames = [...]string{Forum: "forum", Market: "market", CustomJSON: "custom_json"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("bandwidth_type(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if int(t) >= len(typeNames) {
		return nil, fmt.Errorf("bandwidth: invalid type %d", uint8(t))
	}
	return []byte(typeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(data []byte) error {
	for i, name := range typeNames {
		if name == string(data) {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("bandwidth: unknown type %q", data)
}

// TypeOf classifies an operation.
func TypeOf(op protocol.Operation) Type {
	switch op.(type) {
	case *protocol.AccountMetadata:
		return Forum
	case *protocol.CustomJSON:
		return CustomJSON
	default:
		return Market
	}
}

// AccountBandwidth is the usage counter of one account in one domain.
type AccountBandwidth struct {
	_                   struct{}        `cbor:",toarray"`
	ID                  chainbase.ID    `json:"id"`
	Account             string          `json:"account"`
	Type                Type            `json:"type"`
	AverageBandwidth    int64           `json:"average_bandwidth"`
	LifetimeBandwidth   int64           `json:"lifetime_bandwidth"`
	LastBandwidthUpdate types.Timestamp `json:"last_bandwidth_update"`
}

func (b *AccountBandwidth) ObjectID() chainbase.ID      { return b.ID }
func (b *AccountBandwidth) SetObjectID(id chainbase.ID) { b.ID = id }

// ──────────────────────────────────────────────────
// Arithmetic
// ──────────────────────────────────────────────────

// Decay returns avg after elapsed seconds with the given window in seconds.
func Decay(avg int64, elapsed, window uint64) int64 {
	if avg <= 0 || elapsed == 0 || window == 0 {
		return avg
	}
	k, r := elapsed/window, elapsed%window
	if k >= 63 {
		return 0
	}
	v := uint64(avg) >> k
	if r == 0 || v == 0 {
		return int64(v)
	}
	var x, num uint256.Int
	x.SetUint64(v)
	num.Mul(&x, uint256.NewInt(r))
	num.Div(&num, uint256.NewInt(2*window))
	return int64(v - num.Uint64())
}

// Allowed reports whether an account holding effective of totalVesting
// stake may carry the given average. Without any stake on the network
// every account is unlimited.
func Allowed(average, effective, totalVesting, maxVirtual int64) bool {
	if totalVesting <= 0 {
		return true
	}
	if effective <= 0 {
		return average <= 0
	}
	var used, allowance uint256.Int
	used.Mul(uint256.NewInt(uint64(average)), uint256.NewInt(uint64(totalVesting)))
	allowance.Mul(uint256.NewInt(uint64(effective)), uint256.NewInt(uint64(maxVirtual)))
	return !used.Gt(&allowance)
}

// Update decays the counter to now and adds cost. It returns the new average.
func (b *AccountBandwidth) Update(cost int64, now types.Timestamp, window uint64) int64 {
	b.AverageBandwidth = Decay(b.AverageBandwidth, uint64(now.SecondsSince(b.LastBandwidthUpdate)), window) + cost
	b.LifetimeBandwidth += cost
	b.LastBandwidthUpdate = now
	return b.AverageBandwidth
}
