package engine

import (
	"math"
	"math/big"
	"time"

	"github.com/ChoSanghyuk/clarb/pkg/optimizer"
	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
	"github.com/ChoSanghyuk/clarb/pkg/pricing"
)

// simulatedGasEstimate is the fixed gas figure the dynamic gas-cost formula
// scales by; it does not come from the simulator (that runs only after an
// opportunity is already found), it is a standing estimate (§4.8.1).
const simulatedGasEstimate = 350_000

// minGasCostUSD is the floor applied to the dynamic gas-cost estimate.
const minGasCostUSD = 0.001

const weiPerEth = 1e18

// BlockContext carries the per-header values the detector and simulator
// need and which must never be read from wall-clock time (§4.6, §4.8).
type BlockContext struct {
	Number  uint64
	Time    uint64
	BaseFee *big.Int
}

// ArbitrageOpportunity is the detector's output: a sized, priced trade
// between a cheap ("buy") and expensive ("sell") pool.
type ArbitrageOpportunity struct {
	SellIdx int
	BuyIdx  int

	SellSnapshot poolstate.Snapshot
	BuySnapshot  poolstate.Snapshot

	OptimalAmountWETH float64
	ExpectedProfitUSD float64
	Converged         bool
	Iterations        int

	GasCostUSD  float64
	SpreadFrac  float64
	EthPriceUSD float64
}

// Detector holds the two pool configs needed to build optimizer Legs; the
// live PoolState snapshots are passed in per call.
type Detector struct {
	Configs              [2]*poolstate.PoolConfig
	FlashLoanFeeFraction float64
	GasCostFallbackUSD   float64
	MinNetProfitUSD      float64
	FreshnessBound       time.Duration
	MaxTradeWETH         float64
}

// Detect reads both pool snapshots and runs the optimizer over whichever is
// cheaper, rejecting on inactivity, staleness, zero spread, or
// below-floor profit (§4.8.1).
func (d *Detector) Detect(store *poolstate.Store, block BlockContext, now time.Time) (ArbitrageOpportunity, bool) {
	snapA := store.State(0).Read()
	snapB := store.State(1).Read()

	if !snapA.IsActive() || !snapB.IsActive() {
		return ArbitrageOpportunity{}, false
	}
	if snapA.Staleness(now) > d.FreshnessBound || snapB.Staleness(now) > d.FreshnessBound {
		return ArbitrageOpportunity{}, false
	}

	priceA, priceB := snapA.EthPriceUSD, snapB.EthPriceUSD
	lesser := math.Min(priceA, priceB)
	if lesser <= 0 {
		return ArbitrageOpportunity{}, false
	}
	spread := math.Abs(priceA-priceB) / lesser
	if spread == 0 {
		return ArbitrageOpportunity{}, false
	}

	sellIdx, buyIdx := 0, 1
	if priceB > priceA {
		sellIdx, buyIdx = 1, 0
	}
	sellSnap, buySnap := store.State(sellIdx).Read(), store.State(buyIdx).Read()
	sellCfg, buyCfg := d.Configs[sellIdx], d.Configs[buyIdx]

	gasCostUSD := d.dynamicGasCost(block, lesser)

	maxSafeSell := optimizerSafeBound(sellSnap, sellCfg)
	maxSafeBuy := optimizerSafeBound(buySnap, buyCfg)
	aMax := math.Min(d.MaxTradeWETH, math.Min(maxSafeSell, maxSafeBuy))
	if aMax <= 0 {
		return ArbitrageOpportunity{}, false
	}

	in := optimizer.Inputs{
		Sell: optimizer.Leg{
			SqrtPrice:    sellSnap.SqrtPriceF64,
			Liquidity:    sellSnap.LiquidityF64,
			Tick:         sellSnap.Tick,
			TickSpacing:  sellCfg.TickSpacing,
			FeeFraction:  sellCfg.FeeFraction(),
			Token0IsWETH: sellCfg.Token0IsWETH,
			Bitmap:       sellSnap.TickBitmap,
		},
		Buy: optimizer.Leg{
			SqrtPrice:    buySnap.SqrtPriceF64,
			Liquidity:    buySnap.LiquidityF64,
			Tick:         buySnap.Tick,
			TickSpacing:  buyCfg.TickSpacing,
			FeeFraction:  buyCfg.FeeFraction(),
			Token0IsWETH: buyCfg.Token0IsWETH,
			Bitmap:       buySnap.TickBitmap,
		},
		FlashLoanFeeFraction: d.FlashLoanFeeFraction,
		GasCostUSD:           gasCostUSD,
		EthPriceUSD:          lesser,
		AMin:                 1e-9,
		AMax:                 aMax,
	}

	result := optimizer.Optimize(in)
	if result.ExpectedProfit < d.MinNetProfitUSD || result.OptimalAmount <= 0 {
		return ArbitrageOpportunity{}, false
	}

	return ArbitrageOpportunity{
		SellIdx:           sellIdx,
		BuyIdx:            buyIdx,
		SellSnapshot:      sellSnap,
		BuySnapshot:       buySnap,
		OptimalAmountWETH: result.OptimalAmount,
		ExpectedProfitUSD: result.ExpectedProfit,
		Converged:         result.Converged,
		Iterations:        result.Iterations,
		GasCostUSD:        gasCostUSD,
		SpreadFrac:        spread,
		EthPriceUSD:       lesser,
	}, true
}

// dynamicGasCost converts the fixed gas estimate into USD using the live
// base fee; it falls back to the configured default when base fee is zero
// (a header field that is legitimately zero on some chains/test nets).
func (d *Detector) dynamicGasCost(block BlockContext, ethPriceUSD float64) float64 {
	if block.BaseFee == nil || block.BaseFee.Sign() == 0 {
		return d.GasCostFallbackUSD
	}
	baseFeeF, _ := new(big.Float).SetInt(block.BaseFee).Float64()
	cost := simulatedGasEstimate * baseFeeF / weiPerEth * ethPriceUSD
	if cost < minGasCostUSD {
		return minGasCostUSD
	}
	return cost
}

// optimizerSafeBound returns the maximum WETH input pricing.MaxSafeSwapAmount
// allows for this leg, expressed as an input-in-WETH bound regardless of
// which token is token0 (converted from wei to whole WETH).
func optimizerSafeBound(snap poolstate.Snapshot, cfg *poolstate.PoolConfig) float64 {
	return pricing.MaxSafeSwapAmount(snap.LiquidityF64, snap.SqrtPriceF64, cfg.Token0IsWETH) / weiPerEth
}
