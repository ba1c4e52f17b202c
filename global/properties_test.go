package global

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/chainledger/types"
)

func TestVestingPrice(t *testing.T) {
	var p DynamicGlobalProperties
	p.Init()

	assert.Equal(t, types.Vests(5_000_000), p.VestsFor(types.Golos(5000)), "empty fund uses the bootstrap price")
	assert.Equal(t, types.Golos(5), p.GolosFor(types.Vests(5000)))

	p.TotalVestingFund = types.Golos(2_000)
	p.TotalVestingShares = types.Vests(4_000_000)
	assert.Equal(t, types.Vests(2_000_000), p.VestsFor(types.Golos(1_000)))
	assert.Equal(t, types.Golos(1_000), p.GolosFor(types.Vests(2_000_000)))
	assert.Equal(t, types.Golos(0), p.GolosFor(types.Vests(1_999)), "rounds down")
}

func TestMulDivWide(t *testing.T) {
	const big = int64(1) << 60
	assert.Equal(t, big, mulDiv(big, big, big))
	assert.Equal(t, int64(0), mulDiv(-1, 5, 5))
}
