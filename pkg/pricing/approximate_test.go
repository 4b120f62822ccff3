package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeNonFinite(t *testing.T) {
	assert.Equal(t, 0.0, sanitize(math.NaN()))
	assert.Equal(t, 0.0, sanitize(math.Inf(1)))
	assert.Equal(t, 0.0, sanitize(math.Inf(-1)))
	assert.Equal(t, 1.5, sanitize(1.5))
}

func TestDerivePriceAgreement(t *testing.T) {
	// sqrt(price) in raw ratio space for price == 1.0 at tick 0.
	price, ok := DerivePrice(1.0, 0, 18, 6, true)
	assert.True(t, ok)
	assert.InDelta(t, 1e12, price, 1e12*0.02)
}

func TestApproxSwapZeroInputsNeverPanic(t *testing.T) {
	r := ApproxSwap(0, 0, 0, 0, 0, true, 60, nil)
	assert.Equal(t, ApproxSwapResult{}, r)
}

func TestApproxSwapReturnsFiniteNonNegative(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		sqrtPrice := r.Float64() * 1e6
		liquidity := r.Float64() * 1e12
		amount := r.Float64() * 1e9
		fee := r.Float64() * 0.1
		token0In := i%2 == 0
		res := ApproxSwap(sqrtPrice, liquidity, 0, amount, fee, token0In, 60, nil)
		assert.False(t, math.IsNaN(res.AmountOut))
		assert.False(t, math.IsInf(res.AmountOut, 0))
		assert.True(t, res.AmountOut >= 0)
	}
}

func TestApproxSwapZeroLiquidityYieldsZero(t *testing.T) {
	res := ApproxSwap(1.0, 0, 0, 100, 0.0005, true, 60, nil)
	assert.Equal(t, 0.0, res.AmountOut)
}

func TestSlippageMonotonicity(t *testing.T) {
	sqrtPrice := math.Sqrt(2000.0 / 1e12) // token1(usdc,6dec)/token0(weth,18dec) raw ratio
	liquidity := 5e19

	small := ApproxSwap(sqrtPrice, liquidity, 0, 1e18, 0.0005, true, 60, nil)  // 1 WETH in wei
	large := ApproxSwap(sqrtPrice, liquidity, 0, 20e18, 0.0005, true, 60, nil) // 20 WETH in wei

	effSmall := small.AmountOut / 1e18
	effLarge := large.AmountOut / 20e18
	assert.Less(t, effLarge, effSmall)
}

func TestMaxSafeSwapAmountZeroWhenNoLiquidity(t *testing.T) {
	assert.Equal(t, 0.0, MaxSafeSwapAmount(0, 1, true))
}
