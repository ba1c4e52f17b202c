package types

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
)

// AccountWeight grants an account's own authority a weight within another
// authority.
type AccountWeight struct {
	_       struct{} `cbor:",toarray"`
	Account string   `yaml:"account"`
	Weight  uint16   `yaml:"weight"`
}

// KeyWeight grants a public key a weight within an authority.
type KeyWeight struct {
	_      struct{}  `cbor:",toarray"`
	Key    PublicKey `yaml:"key"`
	Weight uint16    `yaml:"weight"`
}

// Authority is a weighted-threshold set of keys and accounts. It is
// satisfied when the weights of the satisfied members reach WeightThreshold.
type Authority struct {
	_               struct{}        `cbor:",toarray"`
	WeightThreshold uint32          `json:"weight_threshold" yaml:"weight_threshold"`
	AccountAuths    []AccountWeight `json:"account_auths" yaml:"account_auths"`
	KeyAuths        []KeyWeight     `json:"key_auths" yaml:"key_auths"`
}

// NewKeyAuthority returns a threshold-1 authority satisfied by a single key.
func NewKeyAuthority(k PublicKey) Authority {
	return Authority{WeightThreshold: 1, KeyAuths: []KeyWeight{{Key: k, Weight: 1}}}
}

// Validate checks the authority structurally: member names are valid, no
// member appears twice and every weight is positive.
func (a Authority) Validate() error {
	seenAcc := make(map[string]struct{}, len(a.AccountAuths))
	for _, aw := range a.AccountAuths {
		if err := ValidateAccountName(aw.Account); err != nil {
			return fmt.Errorf("authority: %w", err)
		}
		if aw.Weight == 0 {
			return fmt.Errorf("authority: zero weight for account %s", aw.Account)
		}
		if _, dup := seenAcc[aw.Account]; dup {
			return fmt.Errorf("authority: duplicate account %s", aw.Account)
		}
		seenAcc[aw.Account] = struct{}{}
	}
	seenKey := make(map[PublicKey]struct{}, len(a.KeyAuths))
	for _, kw := range a.KeyAuths {
		if kw.Key.IsZero() {
			return fmt.Errorf("authority: empty key")
		}
		if kw.Weight == 0 {
			return fmt.Errorf("authority: zero weight for key %s", kw.Key)
		}
		if _, dup := seenKey[kw.Key]; dup {
			return fmt.Errorf("authority: duplicate key %s", kw.Key)
		}
		seenKey[kw.Key] = struct{}{}
	}
	return nil
}

// TotalWeight sums the weights of all members.
func (a Authority) TotalWeight() uint64 {
	var total uint64
	for _, aw := range a.AccountAuths {
		total += uint64(aw.Weight)
	}
	for _, kw := range a.KeyAuths {
		total += uint64(kw.Weight)
	}
	return total
}

// IsImpossible reports whether no combination of members can reach the
// threshold.
func (a Authority) IsImpossible() bool {
	return a.TotalWeight() < uint64(a.WeightThreshold)
}

// Size returns the number of members.
func (a Authority) Size() int { return len(a.AccountAuths) + len(a.KeyAuths) }

// Normalize returns a deep copy with members in canonical order, so equal
// authorities encode to equal bytes.
func (a Authority) Normalize() Authority {
	out := a.Clone()
	slices.SortFunc(out.AccountAuths, func(x, y AccountWeight) int { return cmp.Compare(x.Account, y.Account) })
	slices.SortFunc(out.KeyAuths, func(x, y KeyWeight) int { return x.Key.Compare(y.Key) })
	return out
}

// Clone returns a deep copy.
func (a Authority) Clone() Authority {
	return Authority{
		WeightThreshold: a.WeightThreshold,
		AccountAuths:    slices.Clone(a.AccountAuths),
		KeyAuths:        slices.Clone(a.KeyAuths),
	}
}

// Equal compares authorities irrespective of member order.
func (a Authority) Equal(other Authority) bool {
	if a.WeightThreshold != other.WeightThreshold ||
		len(a.AccountAuths) != len(other.AccountAuths) ||
		len(a.KeyAuths) != len(other.KeyAuths) {
		return false
	}
	x, y := a.Normalize(), other.Normalize()
	return slices.Equal(x.AccountAuths, y.AccountAuths) && slices.Equal(x.KeyAuths, y.KeyAuths)
}

// KeyWeight returns the weight of k, or 0.
func (a Authority) KeyWeight(k PublicKey) uint16 {
	for _, kw := range a.KeyAuths {
		if kw.Key == k {
			return kw.Weight
		}
	}
	return 0
}

// ──────────────────────────────────────────────────
// JSON pair encoding: ["name", weight]
// ──────────────────────────────────────────────────

// MarshalJSON encodes the pair as a two-element array.
func (aw AccountWeight) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{aw.Account, aw.Weight})
}

// UnmarshalJSON decodes a two-element array.
func (aw *AccountWeight) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("account weight: want a pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &aw.Account); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &aw.Weight)
}

// MarshalJSON encodes the pair as a two-element array.
func (kw KeyWeight) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{kw.Key, kw.Weight})
}

// UnmarshalJSON decodes a two-element array.
func (kw *KeyWeight) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("key weight: want a pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &kw.Key); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &kw.Weight)
}
