package pricing

import (
	"math"
	"math/big"
	"testing"

	"github.com/ChoSanghyuk/clarb/internal/testdata"
	"github.com/stretchr/testify/assert"
)

// sqrtPriceX96FromUSDPerETH derives the Q64.96 sqrt-price for a pool whose
// token0 is WETH, given a human-readable USD/ETH mid-price. price_raw
// (token1/token0 in wei) is usdPerEth scaled by the decimal difference;
// sqrtPriceX96 is its square root times 2^96.
func sqrtPriceX96FromUSDPerETH(usdPerEth float64, token0Decimals, token1Decimals int) *big.Int {
	const prec = 200
	priceRaw := new(big.Float).SetPrec(prec).SetFloat64(usdPerEth)
	scale := new(big.Float).SetPrec(prec).SetFloat64(math.Pow(10, float64(token1Decimals-token0Decimals)))
	priceRaw.Mul(priceRaw, scale)

	sqrtPrice := new(big.Float).SetPrec(prec).Sqrt(priceRaw)
	q96 := new(big.Float).SetPrec(prec).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	sqrtPrice.Mul(sqrtPrice, q96)

	result, _ := sqrtPrice.Int(nil)
	return result
}

func loadScenarios(t *testing.T) testdata.Scenarios {
	t.Helper()
	s, err := testdata.Load()
	assert.NoError(t, err)
	return s
}

// TestScenario1RoundTripSwap mirrors spec §8 scenario 1: 1 WETH -> USDC
// yields between 1900 and 2100 USDC; 2000 USDC -> WETH yields between 0.90
// and 1.10 WETH, on a pool quoted at 2000 USD/ETH with 5bps fee.
func TestScenario1RoundTripSwap(t *testing.T) {
	scenarios := loadScenarios(t)

	toUSDC := scenarios.SwapByName("round_trip_weth_to_usdc")
	sqrtPrice := sqrtPriceX96FromUSDPerETH(toUSDC.USDPerETH, toUSDC.Token0Decimals, toUSDC.Token1Decimals)
	liquidity, ok := new(big.Int).SetString(toUSDC.LiquidityWei, 10)
	assert.True(t, ok)
	feePips := uint32(toUSDC.FeeBps) * 100

	oneWETH := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	result, err := ExactSwap(sqrtPrice, 0, liquidity, toUSDC.TickSpacing, feePips, oneWETH, true, nil)
	assert.NoError(t, err)

	minUSDC := big.NewInt(1900_000000)
	maxUSDC := big.NewInt(2100_000000)
	assert.True(t, result.AmountOut.Cmp(minUSDC) >= 0, "got %s", result.AmountOut)
	assert.True(t, result.AmountOut.Cmp(maxUSDC) <= 0, "got %s", result.AmountOut)

	toWETH := scenarios.SwapByName("round_trip_usdc_to_weth")
	sqrtPrice2 := sqrtPriceX96FromUSDPerETH(toWETH.USDPerETH, toWETH.Token0Decimals, toWETH.Token1Decimals)
	feePips2 := uint32(toWETH.FeeBps) * 100

	twoThousandUSDC := big.NewInt(2000_000000)
	result2, err := ExactSwap(sqrtPrice2, 0, liquidity, toWETH.TickSpacing, feePips2, twoThousandUSDC, false, nil)
	assert.NoError(t, err)

	minWETH := new(big.Int).Div(new(big.Int).Mul(big.NewInt(90), oneWETH), big.NewInt(100))
	maxWETH := new(big.Int).Div(new(big.Int).Mul(big.NewInt(110), oneWETH), big.NewInt(100))
	assert.True(t, result2.AmountOut.Cmp(minWETH) >= 0, "got %s", result2.AmountOut)
	assert.True(t, result2.AmountOut.Cmp(maxWETH) <= 0, "got %s", result2.AmountOut)
}

// TestScenario2SlippageMonotonicity mirrors spec §8 scenario 2: swapping 20
// WETH must realize a strictly worse (lower) effective USDC-per-WETH price
// than swapping 1 WETH, on the same pool.
func TestScenario2SlippageMonotonicity(t *testing.T) {
	scenarios := loadScenarios(t)
	s := scenarios.SwapByName("slippage_monotonicity")
	sqrtPrice := sqrtPriceX96FromUSDPerETH(s.USDPerETH, s.Token0Decimals, s.Token1Decimals)
	liquidity, ok := new(big.Int).SetString(s.LiquidityWei, 10)
	assert.True(t, ok)
	feePips := uint32(s.FeeBps) * 100

	oneWETH := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	twentyWETH := new(big.Int).Mul(oneWETH, big.NewInt(20))

	small, err := ExactSwap(sqrtPrice, 0, liquidity, s.TickSpacing, feePips, oneWETH, true, nil)
	assert.NoError(t, err)
	large, err := ExactSwap(sqrtPrice, 0, liquidity, s.TickSpacing, feePips, twentyWETH, true, nil)
	assert.NoError(t, err)

	smallEffective := new(big.Float).Quo(new(big.Float).SetInt(small.AmountOut), new(big.Float).SetInt(oneWETH))
	largeEffective := new(big.Float).Quo(new(big.Float).SetInt(large.AmountOut), new(big.Float).SetInt(twentyWETH))

	assert.True(t, largeEffective.Cmp(smallEffective) < 0, "20-WETH effective price %v should be strictly lower than 1-WETH effective price %v", largeEffective, smallEffective)
}
