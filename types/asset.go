// Package types provides the value types shared across the ledger: assets,
// timestamps, public keys, authorities and account names.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Symbol names an asset.
type Symbol string

// Chain assets.
const (
	GOLOS Symbol = "GOLOS" // liquid core token
	GBG   Symbol = "GBG"   // debt token that accrues interest
	GESTS Symbol = "GESTS" // vesting shares
)

// Precision returns the number of decimal places of the symbol.
func (s Symbol) Precision() int32 {
	switch s {
	case GESTS:
		return 6
	default:
		return 3
	}
}

// Valid reports whether s is a known chain asset.
func (s Symbol) Valid() bool {
	return s == GOLOS || s == GBG || s == GESTS
}

// Asset is an integer amount in the smallest unit of Symbol.
// All arithmetic is integer-only.
//
// Examples:
//   - Golos(1000) = 1.000 GOLOS
//   - Vests(1000000) = 1.000000 GESTS
type Asset struct {
	_      struct{} `cbor:",toarray"`
	Amount int64    `json:"amount"`
	Symbol Symbol   `json:"symbol"`
}

// Golos creates an amount of GOLOS in milli-units.
func Golos(amount int64) Asset { return Asset{Amount: amount, Symbol: GOLOS} }

// GBGs creates an amount of GBG in milli-units.
func GBGs(amount int64) Asset { return Asset{Amount: amount, Symbol: GBG} }

// Vests creates an amount of GESTS in micro-units.
func Vests(amount int64) Asset { return Asset{Amount: amount, Symbol: GESTS} }

// Zero returns a zero amount of the symbol.
func Zero(s Symbol) Asset { return Asset{Symbol: s} }

// Arithmetic operations

// Add adds two assets. Panics if symbols don't match.
func (a Asset) Add(other Asset) Asset {
	a.assertSameSymbol(other)
	return Asset{Amount: a.Amount + other.Amount, Symbol: a.Symbol}
}

// Sub subtracts another asset. Panics if symbols don't match.
func (a Asset) Sub(other Asset) Asset {
	a.assertSameSymbol(other)
	return Asset{Amount: a.Amount - other.Amount, Symbol: a.Symbol}
}

// AddAmount adds a raw amount in the asset's own units.
func (a Asset) AddAmount(amount int64) Asset {
	return Asset{Amount: a.Amount + amount, Symbol: a.Symbol}
}

// Negate returns the negative of the asset.
func (a Asset) Negate() Asset {
	return Asset{Amount: -a.Amount, Symbol: a.Symbol}
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (a Asset) IsZero() bool { return a.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Asset) IsPositive() bool { return a.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (a Asset) IsNegative() bool { return a.Amount < 0 }

// Equal returns true if both assets have the same amount and symbol.
func (a Asset) Equal(other Asset) bool {
	return a.Amount == other.Amount && a.Symbol == other.Symbol
}

// LessThan returns true if a is less than other. Panics if symbols don't match.
func (a Asset) LessThan(other Asset) bool {
	a.assertSameSymbol(other)
	return a.Amount < other.Amount
}

// GreaterThan returns true if a is greater than other. Panics if symbols don't match.
func (a Asset) GreaterThan(other Asset) bool {
	a.assertSameSymbol(other)
	return a.Amount > other.Amount
}

// Min returns the smaller of two assets. Panics if symbols don't match.
func (a Asset) Min(other Asset) Asset {
	a.assertSameSymbol(other)
	if a.Amount < other.Amount {
		return a
	}
	return other
}

// Formatting

// Decimal returns the amount in whole units.
func (a Asset) Decimal() decimal.Decimal {
	return decimal.New(a.Amount, -a.Symbol.Precision())
}

// String renders the chain text form, e.g. "1.000 GOLOS".
func (a Asset) String() string {
	return a.Decimal().StringFixed(a.Symbol.Precision()) + " " + string(a.Symbol)
}

// ParseAsset parses the chain text form. The number of decimals must match
// the symbol precision exactly.
func ParseAsset(s string) (Asset, error) {
	num, sym, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return Asset{}, fmt.Errorf("asset: parse %q: missing symbol", s)
	}
	symbol := Symbol(sym)
	if !symbol.Valid() {
		return Asset{}, fmt.Errorf("asset: parse %q: unknown symbol %q", s, sym)
	}
	_, frac, _ := strings.Cut(num, ".")
	if int32(len(frac)) != symbol.Precision() {
		return Asset{}, fmt.Errorf("asset: parse %q: %s needs %d decimals", s, sym, symbol.Precision())
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return Asset{}, fmt.Errorf("asset: parse %q: %w", s, err)
	}
	units := d.Shift(symbol.Precision())
	if !units.IsInteger() {
		return Asset{}, fmt.Errorf("asset: parse %q: fractional units", s)
	}
	return Asset{Amount: units.IntPart(), Symbol: symbol}, nil
}

// MustParseAsset is like ParseAsset but panics on error.
func MustParseAsset(s string) Asset {
	a, err := ParseAsset(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MarshalJSON renders the chain text form.
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses the chain text form.
func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAsset(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalYAML renders the chain text form.
func (a Asset) MarshalYAML() (any, error) { return a.String(), nil }

// UnmarshalYAML parses the chain text form.
func (a *Asset) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseAsset(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Asset) assertSameSymbol(other Asset) {
	if a.Symbol != other.Symbol {
		panic(fmt.Sprintf("asset: symbol mismatch: %s != %s", a.Symbol, other.Symbol))
	}
}

// Sum adds assets of the same symbol. Returns Zero(s) for an empty list.
func Sum(s Symbol, assets ...Asset) Asset {
	total := Zero(s)
	for _, a := range assets {
		total = total.Add(a)
	}
	return total
}
