package optimizer

import (
	"testing"

	"github.com/ChoSanghyuk/clarb/internal/testdata"
	"github.com/stretchr/testify/assert"
)

// TestOptimizeScenario3FromFixture mirrors spec §8 scenario 3 using the
// shared YAML fixture rather than a hand-copied literal, so the golden
// numbers live in one place for both the pricing and optimizer packages.
func TestOptimizeScenario3FromFixture(t *testing.T) {
	scenarios, err := testdata.Load()
	assert.NoError(t, err)
	s := scenarios.OptimizerByName("divergent_pools")

	sqrtFromPrice := func(usdPerEth float64) float64 {
		return sqrtApprox(usdPerEth / 1e12)
	}

	in := Inputs{
		Sell: Leg{
			SqrtPrice:    sqrtFromPrice(s.SellUSDPerETH),
			Liquidity:    s.LiquidityWETH,
			TickSpacing:  60,
			FeeFraction:  float64(s.SellFeeBps) / 10000.0,
			Token0IsWETH: true,
		},
		Buy: Leg{
			SqrtPrice:    sqrtFromPrice(s.BuyUSDPerETH),
			Liquidity:    s.LiquidityWETH,
			TickSpacing:  60,
			FeeFraction:  float64(s.BuyFeeBps) / 10000.0,
			Token0IsWETH: true,
		},
		FlashLoanFeeFraction: float64(s.FlashLoanFeeBps) / 10000.0,
		GasCostUSD:           s.GasCostUSD,
		EthPriceUSD:          s.EthPriceUSD,
		AMin:                 1e-6,
		AMax:                 s.MaxTradeWETH,
	}

	res := Optimize(in)
	assert.Greater(t, res.ExpectedProfit, 0.0)
	assert.Greater(t, res.OptimalAmount, 0.0)
	assert.LessOrEqual(t, res.OptimalAmount, s.MaxTradeWETH)
}
