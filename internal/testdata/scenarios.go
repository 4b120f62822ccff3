// Package testdata decodes the golden arbitrage scenarios named in spec §8
// from an embedded YAML fixture, so the pricing and optimizer packages can
// exercise the same concrete numbers the specification's scenario table
// lists without hand-copying them into every test file that needs one.
package testdata

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var scenariosFile embed.FS

// SwapScenario is one single-pool swap fixture: a pool quoted at a given
// USD/ETH mid-price, used to drive an exact or approximate swap and check
// the resulting amount against a bound.
type SwapScenario struct {
	Name           string  `yaml:"name"`
	USDPerETH      float64 `yaml:"usd_per_eth"`
	LiquidityWei   string  `yaml:"liquidity_wei"`
	TickSpacing    int     `yaml:"tick_spacing"`
	FeeBps         int     `yaml:"fee_bps"`
	Token0Decimals int     `yaml:"token0_decimals"`
	Token1Decimals int     `yaml:"token1_decimals"`
}

// OptimizerScenario is a two-pool divergence fixture driving the optimizer.
type OptimizerScenario struct {
	Name             string  `yaml:"name"`
	SellUSDPerETH    float64 `yaml:"sell_usd_per_eth"`
	BuyUSDPerETH     float64 `yaml:"buy_usd_per_eth"`
	LiquidityWETH    float64 `yaml:"liquidity_weth"`
	SellFeeBps       int     `yaml:"sell_fee_bps"`
	BuyFeeBps        int     `yaml:"buy_fee_bps"`
	GasCostUSD       float64 `yaml:"gas_cost_usd"`
	FlashLoanFeeBps  int     `yaml:"flash_loan_fee_bps"`
	MaxTradeWETH     float64 `yaml:"max_trade_weth"`
	EthPriceUSD      float64 `yaml:"eth_price_usd"`
}

// Scenarios is the top-level decoded fixture.
type Scenarios struct {
	Swaps      []SwapScenario      `yaml:"swaps"`
	Optimizers []OptimizerScenario `yaml:"optimizers"`
}

// Load decodes the embedded scenarios.yaml fixture.
func Load() (Scenarios, error) {
	data, err := scenariosFile.ReadFile("scenarios.yaml")
	if err != nil {
		return Scenarios{}, fmt.Errorf("testdata: read scenarios.yaml: %w", err)
	}
	var s Scenarios
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenarios{}, fmt.Errorf("testdata: parse scenarios.yaml: %w", err)
	}
	return s, nil
}

// SwapByName finds a swap scenario by name, for tests that only need one of the
// fixture's entries. It panics on a missing name since that only happens
// when a test and the fixture have drifted apart.
func (s Scenarios) SwapByName(name string) SwapScenario {
	for _, sc := range s.Swaps {
		if sc.Name == name {
			return sc
		}
	}
	panic("testdata: no swap scenario named " + name)
}

// OptimizerByName mirrors SwapByName for optimizer fixtures.
func (s Scenarios) OptimizerByName(name string) OptimizerScenario {
	for _, sc := range s.Optimizers {
		if sc.Name == name {
			return sc
		}
	}
	panic("testdata: no optimizer scenario named " + name)
}
