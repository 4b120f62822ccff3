package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// scenario3 mirrors: buy-side pool at 1980 USD/ETH, sell-side at 2020
// USD/ETH, both with liquidity 5e19, sell-fee 5bps, buy-fee 100bps, gas
// 0.10 USD, flash-loan 5bps, max trade 10 WETH, eth-price 2000. Expected
// profit > 0, optimal amount in (0, 10].
func scenario3() Inputs {
	// sqrt(price) in raw token1/token0 ratio space; both legs quote
	// USDC(6dec)/WETH(18dec), decimal-adjusted via 1e12 so these look like
	// plain USD-per-ETH numbers for readability in this fixture.
	sqrtFromPrice := func(usdPerEth float64) float64 {
		return sqrtApprox(usdPerEth / 1e12)
	}

	return Inputs{
		Sell: Leg{
			SqrtPrice:    sqrtFromPrice(2020),
			Liquidity:    5e19,
			TickSpacing:  60,
			FeeFraction:  0.0005,
			Token0IsWETH: true,
		},
		Buy: Leg{
			SqrtPrice:    sqrtFromPrice(1980),
			Liquidity:    5e19,
			TickSpacing:  60,
			FeeFraction:  0.01,
			Token0IsWETH: true,
		},
		FlashLoanFeeFraction: 0.0005,
		GasCostUSD:           0.10,
		EthPriceUSD:          2000,
		AMin:                 1e-6,
		AMax:                 10,
	}
}

func sqrtApprox(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 40; i++ {
		z = 0.5 * (z + x/z)
	}
	return z
}

func TestOptimizeFindsPositiveProfitOnDivergence(t *testing.T) {
	res := Optimize(scenario3())
	assert.Greater(t, res.ExpectedProfit, 0.0)
	assert.Greater(t, res.OptimalAmount, 0.0)
	assert.LessOrEqual(t, res.OptimalAmount, 10.0)
}

func TestOptimizeReturnsZeroWhenNoProfitablePoint(t *testing.T) {
	in := scenario3()
	in.GasCostUSD = 1e9 // swamp any possible profit
	res := Optimize(in)
	assert.Equal(t, 0.0, res.OptimalAmount)
	assert.Equal(t, 0.0, res.ExpectedProfit)
	assert.False(t, res.Converged)
}

func TestOptimizeRejectsDegenerateBounds(t *testing.T) {
	in := scenario3()
	in.AMax = in.AMin
	res := Optimize(in)
	assert.Equal(t, Result{}, res)
}

func TestProfitZeroForNonPositiveAmount(t *testing.T) {
	assert.Equal(t, 0.0, Profit(0, scenario3()))
	assert.Equal(t, 0.0, Profit(-1, scenario3()))
}

func TestOptimizeIterationsWithinBudget(t *testing.T) {
	res := Optimize(scenario3())
	assert.LessOrEqual(t, res.Iterations, maxNewtonIters+1)
}
