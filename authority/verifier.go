// Package authority decides whether a set of signing keys satisfies the
// authorities a transaction requires.
//
// An authority is satisfied when the weights of its present keys plus the
// weights of its satisfied member accounts reach the threshold. Member
// accounts are resolved recursively through their own active (or posting)
// authority, bounded by a maximum depth. A branch that exceeds the depth or
// revisits an account already on the resolution path contributes no weight.
package authority

import (
	"fmt"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/types"
)

// Level is a permission level of an account.
type Level uint8

const (
	Owner Level = iota
	Active
	Posting
)

func (l Level) String() string {
	switch l {
	case Owner:
		return "owner"
	case Active:
		return "active"
	case Posting:
		return "posting"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// Getter resolves the authority object of an account.
type Getter func(name string) (*account.AccountAuthority, error)

// Verifier checks authorities against a fixed key set.
type Verifier struct {
	get      Getter
	keys     map[types.PublicKey]struct{}
	maxDepth int
}

// NewVerifier builds a verifier for the verified signing keys.
func NewVerifier(get Getter, keys []types.PublicKey, maxDepth int) *Verifier {
	set := make(map[types.PublicKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return &Verifier{get: get, keys: set, maxDepth: maxDepth}
}

func pick(aa *account.AccountAuthority, l Level) types.Authority {
	switch l {
	case Owner:
		return aa.Owner
	case Posting:
		return aa.Posting
	default:
		return aa.Active
	}
}

// Satisfies reports whether auth is met. Member accounts are resolved at
// memberLevel.
func (v *Verifier) Satisfies(auth types.Authority, memberLevel Level) bool {
	return v.satisfies(auth, memberLevel, 0, map[string]struct{}{})
}

func (v *Verifier) satisfies(auth types.Authority, memberLevel Level, depth int, path map[string]struct{}) bool {
	threshold := uint64(auth.WeightThreshold)
	var weight uint64
	for _, kw := range auth.KeyAuths {
		if _, ok := v.keys[kw.Key]; ok {
			weight += uint64(kw.Weight)
			if weight >= threshold {
				return true
			}
		}
	}
	if depth >= v.maxDepth {
		return weight >= threshold
	}
	for _, aw := range auth.AccountAuths {
		if _, onPath := path[aw.Account]; onPath {
			continue
		}
		member, err := v.get(aw.Account)
		if err != nil {
			continue
		}
		path[aw.Account] = struct{}{}
		ok := v.satisfies(pick(member, memberLevel), memberLevel, depth+1, path)
		delete(path, aw.Account)
		if ok {
			weight += uint64(aw.Weight)
			if weight >= threshold {
				return true
			}
		}
	}
	return weight >= threshold
}

// CheckAccount verifies that name's authority at level l is satisfied. A
// higher level satisfies a lower one: owner covers active and posting,
// active covers posting.
func (v *Verifier) CheckAccount(name string, l Level) error {
	aa, err := v.get(name)
	if err != nil {
		return err
	}
	path := map[string]struct{}{name: {}}
	member := Active
	if l == Posting {
		member = Posting
	}
	for level := l; ; level-- {
		if v.satisfies(pick(aa, level), member, 0, path) {
			return nil
		}
		if level == Owner {
			break
		}
	}
	return fmt.Errorf("%w: missing %s authority of %s", chainledger.ErrInsufficientAuthority, l, name)
}

// Check verifies every requirement of a transaction.
func (v *Verifier) Check(req *protocol.Authorities) error {
	for _, name := range req.Owner {
		if err := v.CheckAccount(name, Owner); err != nil {
			return err
		}
	}
	for _, name := range req.Active {
		if err := v.CheckAccount(name, Active); err != nil {
			return err
		}
	}
	for _, name := range req.Posting {
		if err := v.CheckAccount(name, Posting); err != nil {
			return err
		}
	}
	for i, auth := range req.Other {
		if !v.Satisfies(auth, Active) {
			return fmt.Errorf("%w: other authority %d not satisfied", chainledger.ErrInsufficientAuthority, i)
		}
	}
	return nil
}
