package chain

import (
	"cmp"
	"fmt"
	"slices"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/bandwidth"
	"github.com/xraph/chainledger/evaluator"
	"github.com/xraph/chainledger/protocol"
)

type bandwidthCharge struct {
	account string
	kind    bandwidth.Type
}

// chargesFor lists the distinct (account, bandwidth type) pairs a
// transaction is billed to, in a fixed order.
func chargesFor(tx *protocol.Transaction) []bandwidthCharge {
	seen := make(map[bandwidthCharge]struct{})
	var out []bandwidthCharge
	for _, op := range tx.Operations {
		var req protocol.Authorities
		op.RequiredAuthorities(&req)
		kind := bandwidth.TypeOf(op)
		for _, name := range req.Accounts() {
			c := bandwidthCharge{account: name, kind: kind}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(x, y bandwidthCharge) int {
		if c := cmp.Compare(x.account, y.account); c != 0 {
			return c
		}
		return cmp.Compare(x.kind, y.kind)
	})
	return out
}

// chargeBandwidth bills size encoded bytes to every signer of tx and rejects
// the transaction when a signer's decayed average outgrows its share of the
// network allowance.
func chargeBandwidth(ctx *evaluator.Context, tx *protocol.Transaction, size int) error {
	props, err := ctx.Props()
	if err != nil {
		return err
	}
	cost := int64(size) * ctx.Params.BandwidthPrecision
	window := uint64(ctx.Params.BandwidthAverageWindow.Seconds())

	for _, c := range chargesFor(tx) {
		acc, err := ctx.State.Accounts.Get(c.account)
		if err != nil {
			return err
		}
		var average int64
		if bw, ok := ctx.State.Bandwidth.Find(c.account, c.kind); ok {
			err = ctx.State.Bandwidth.Bandwidth.Modify(bw, func(b *bandwidth.AccountBandwidth) {
				average = b.Update(cost, ctx.Now, window)
			})
		} else {
			_, err = ctx.State.Bandwidth.Bandwidth.Create(func(b *bandwidth.AccountBandwidth) {
				b.Account = c.account
				b.Type = c.kind
				b.LastBandwidthUpdate = ctx.Now
				average = b.Update(cost, ctx.Now, window)
			})
		}
		if err != nil {
			return err
		}
		effective := acc.EffectiveVestingShares().Amount
		if !bandwidth.Allowed(average, effective, props.TotalVestingShares.Amount, props.MaxVirtualBandwidth) {
			return fmt.Errorf("%w: %s %s average %d with %d effective vests",
				chainledger.ErrBandwidthExceeded, c.account, c.kind, average, effective)
		}
	}
	return nil
}
