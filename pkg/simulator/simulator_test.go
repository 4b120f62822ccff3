package simulator

import (
	"math/big"
	"testing"
	"time"

	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
	"github.com/stretchr/testify/assert"
)

func activeSnapshot(liquidityF64 float64, now time.Time) poolstate.Snapshot {
	return poolstate.Snapshot{
		IsInitialized: true,
		EthPriceUSD:   2000,
		Liquidity:     big.NewInt(1),
		LiquidityF64:  liquidityF64,
		LastUpdate:    now,
	}
}

func TestMathematicalValidateSucceedsWithAmpleLiquidity(t *testing.T) {
	now := time.Now()
	a := activeSnapshot(1000, now)
	b := activeSnapshot(1000, now)

	res := MathematicalValidate(a, b, 10, 2000, 2010, now)
	assert.True(t, res.OK)
	assert.Equal(t, uint64(mathValidationSyntheticGas), res.GasEstimate)
}

func TestMathematicalValidateRejectsThinLiquidity(t *testing.T) {
	now := time.Now()
	a := activeSnapshot(5, now)
	b := activeSnapshot(1000, now)

	res := MathematicalValidate(a, b, 10, 2000, 2010, now)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "liquidity")
}

func TestMathematicalValidateRejectsStaleSnapshot(t *testing.T) {
	now := time.Now()
	stale := now.Add(-10 * time.Second)
	a := activeSnapshot(1000, stale)
	b := activeSnapshot(1000, now)

	res := MathematicalValidate(a, b, 10, 2000, 2010, now)
	assert.False(t, res.OK)
	assert.Equal(t, "snapshot stale", res.Reason)
}

func TestMathematicalValidateRejectsImplausiblePrice(t *testing.T) {
	now := time.Now()
	a := activeSnapshot(1000, now)
	b := activeSnapshot(1000, now)

	res := MathematicalValidate(a, b, 10, 0.0001, 2010, now)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "price")
}

func TestMathematicalValidateRejectsInactivePool(t *testing.T) {
	now := time.Now()
	inactive := poolstate.Snapshot{}
	b := activeSnapshot(1000, now)

	res := MathematicalValidate(inactive, b, 10, 2000, 2010, now)
	assert.False(t, res.OK)
	assert.Equal(t, "pool inactive", res.Reason)
}

func TestDecodeRevertReasonParsesStandardErrorString(t *testing.T) {
	// selector for Error(string), then the 32-byte offset word (0x20), a
	// 32-byte length word, and the ABI-encoded "insufficient profit" string,
	// padded to 32 bytes.
	reason := "insufficient profit"
	out := make([]byte, 4+32+32+32)
	copy(out[0:4], []byte{0x08, 0xc3, 0x79, 0xa0})
	big.NewInt(32).FillBytes(out[4:36])
	big.NewInt(int64(len(reason))).FillBytes(out[36:68])
	copy(out[68:68+len(reason)], reason)

	assert.Equal(t, reason, decodeRevertReason(out))
}

func TestDecodeRevertReasonFallsBackToHexForShortOutput(t *testing.T) {
	out := []byte{0x01, 0x02}
	assert.Equal(t, "0x0102", decodeRevertReason(out))
}
