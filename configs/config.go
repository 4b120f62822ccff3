// Package configs reads the bot's entire tuning surface from a flat set of
// environment variables. There is no YAML file here: the signer secret and
// every knob the opportunity loop needs is a plain env var, matching the
// flat-mapping configuration surface this deployment target expects.
package configs

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
)

// Transport selects which endpoint flavor the engine dials.
type Transport string

const (
	TransportAuto Transport = "auto"
	TransportIPC  Transport = "ipc"
	TransportWS   Transport = "ws"
	TransportHTTP Transport = "http"
)

// defaultMulticall3Address is the canonical Multicall3 deployment address,
// identical across every EVM chain that has one.
const defaultMulticall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

// BotConfig is the complete set of tuning knobs the opportunity loop reads
// at startup. It is built once by Load and never mutated afterward.
type BotConfig struct {
	RPCWebsocketURL string
	RPCHTTPURL      string
	RPCIPCPath      string
	Transport       Transport
	ChainID         int64

	SignerPrivateKeyHex string // already decrypted; key-at-rest handling is out of scope here

	ArbitrageContract common.Address
	MulticallAddress  common.Address
	WETHAddress       common.Address
	USDCAddress       common.Address

	GasCostFallbackUSD float64
	FlashLoanFeeBps    int
	MinNetProfitUSD    float64
	StatsIntervalBlock int
	MaxRetries         int
	FreshnessBound     time.Duration
	MaxTradeSizeWETH   float64

	BitmapScanRadius    int
	BitmapMaxAgeBlocks  uint64
	ExecutionEnabled    bool
	CircuitBreakerLimit int
	DeadlineHorizon     uint64
	BribeFraction       float64

	KeystorePath string
	KeyPassword  string

	ShadowLogPath string
}

// Validate reports configuration errors that must be fatal at startup,
// mirroring the teacher's UnstakeParams.Validate pattern of surfacing the
// first violated precondition.
func (c *BotConfig) Validate() error {
	if c.RPCWebsocketURL == "" {
		return fmt.Errorf("configs: RPC_WS_URL is required")
	}
	if c.RPCHTTPURL == "" {
		return fmt.Errorf("configs: RPC_HTTP_URL is required")
	}
	switch c.Transport {
	case TransportAuto, TransportIPC, TransportWS, TransportHTTP:
	default:
		return fmt.Errorf("configs: TRANSPORT %q is not one of ipc|ws|http|auto", c.Transport)
	}
	if c.SignerPrivateKeyHex == "CHANGEME" {
		return fmt.Errorf("configs: SIGNER_PRIVATE_KEY must not be left as a placeholder")
	}
	if c.SignerPrivateKeyHex == "" && c.KeystorePath == "" {
		return fmt.Errorf("configs: SIGNER_PRIVATE_KEY or KEYSTORE_PATH is required")
	}
	if c.ArbitrageContract == (common.Address{}) {
		return fmt.Errorf("configs: ARB_CONTRACT_ADDRESS is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("configs: CHAIN_ID must be positive")
	}
	if c.FlashLoanFeeBps < 0 {
		return fmt.Errorf("configs: FLASH_LOAN_FEE_BPS must not be negative")
	}
	if c.MaxTradeSizeWETH <= 0 {
		return fmt.Errorf("configs: MAX_TRADE_SIZE_WETH must be positive")
	}
	if c.BitmapScanRadius <= 0 {
		return fmt.Errorf("configs: BITMAP_SCAN_RADIUS must be positive")
	}
	if c.CircuitBreakerLimit <= 0 {
		return fmt.Errorf("configs: CIRCUIT_BREAKER_THRESHOLD must be positive")
	}
	if c.BribeFraction < 0 || c.BribeFraction > 1 {
		return fmt.Errorf("configs: BRIBE_FRACTION must be within [0, 1]")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvUint64(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Load builds a BotConfig from the process environment. It does not read
// any file itself: optional dotenv-style loading is the caller's job
// (cmd/main.go calls godotenv.Load before this, exactly as the teacher's
// own test suite loads ".env.test.local").
func Load() (*BotConfig, error) {
	c := &BotConfig{
		RPCWebsocketURL: os.Getenv("RPC_WS_URL"),
		RPCHTTPURL:      os.Getenv("RPC_HTTP_URL"),
		RPCIPCPath:      os.Getenv("RPC_IPC_PATH"),
		Transport:       Transport(getenvDefault("TRANSPORT", string(TransportAuto))),
		ChainID:         int64(getenvInt("CHAIN_ID", 0)),

		SignerPrivateKeyHex: strings.TrimPrefix(os.Getenv("SIGNER_PRIVATE_KEY"), "0x"),

		ArbitrageContract: common.HexToAddress(os.Getenv("ARB_CONTRACT_ADDRESS")),
		MulticallAddress:  common.HexToAddress(getenvDefault("MULTICALL_ADDRESS", defaultMulticall3Address)),
		WETHAddress:       common.HexToAddress(getenvDefault("WETH_ADDRESS", "0x4200000000000000000000000000000000000006")),
		USDCAddress:       common.HexToAddress(getenvDefault("USDC_ADDRESS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")),

		GasCostFallbackUSD: getenvFloat("GAS_COST_FALLBACK_USD", 0.05),
		FlashLoanFeeBps:    getenvInt("FLASH_LOAN_FEE_BPS", 5),
		MinNetProfitUSD:    getenvFloat("MIN_NET_PROFIT_USD", 1.0),
		StatsIntervalBlock: getenvInt("STATS_INTERVAL_BLOCKS", 100),
		MaxRetries:         getenvInt("MAX_RETRIES", 0),
		FreshnessBound:     time.Duration(getenvInt("FRESHNESS_BOUND_MS", 3000)) * time.Millisecond,
		MaxTradeSizeWETH:   getenvFloat("MAX_TRADE_SIZE_WETH", 10.0),

		BitmapScanRadius:    getenvInt("BITMAP_SCAN_RADIUS", 40),
		BitmapMaxAgeBlocks:  getenvUint64("BITMAP_MAX_AGE_BLOCKS", 5),
		ExecutionEnabled:    getenvBool("EXECUTION_ENABLED", false),
		CircuitBreakerLimit: getenvInt("CIRCUIT_BREAKER_THRESHOLD", 3),
		DeadlineHorizon:     getenvUint64("DEADLINE_HORIZON_BLOCKS", 3),
		BribeFraction:       getenvFloat("BRIBE_FRACTION", 0.5),

		KeystorePath: os.Getenv("KEYSTORE_PATH"),
		KeyPassword:  os.Getenv("KEY_PASSWORD"),

		ShadowLogPath: getenvDefault("SHADOW_LOG_PATH", "shadow_opportunities.jsonl"),
	}
	return c, c.Validate()
}

// PoolConfigs builds the two poolstate.PoolConfig records (pool A, pool B)
// from env vars prefixed POOL_A_ / POOL_B_. Both must validate.
func PoolConfigs() ([2]*poolstate.PoolConfig, error) {
	a, err := loadPoolConfig("POOL_A")
	if err != nil {
		return [2]*poolstate.PoolConfig{}, fmt.Errorf("configs: pool A: %w", err)
	}
	b, err := loadPoolConfig("POOL_B")
	if err != nil {
		return [2]*poolstate.PoolConfig{}, fmt.Errorf("configs: pool B: %w", err)
	}
	return [2]*poolstate.PoolConfig{a, b}, nil
}

func loadPoolConfig(prefix string) (*poolstate.PoolConfig, error) {
	family := poolstate.FamilySixFieldSlot0
	if getenvDefault(prefix+"_FAMILY", "six") == "seven" {
		family = poolstate.FamilySevenFieldSlot0
	}
	cfg := &poolstate.PoolConfig{
		Address:        common.HexToAddress(os.Getenv(prefix + "_ADDRESS")),
		Name:           getenvDefault(prefix+"_NAME", prefix),
		FeeBps:         getenvInt(prefix+"_FEE_BPS", 5),
		Family:         family,
		Token0Decimals: getenvInt(prefix+"_TOKEN0_DECIMALS", 18),
		Token1Decimals: getenvInt(prefix+"_TOKEN1_DECIMALS", 6),
		Token0IsWETH:   getenvBool(prefix+"_TOKEN0_IS_WETH", true),
		TickSpacing:    getenvInt(prefix+"_TICK_SPACING", 60),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GasPriceFloorWei is 1 gwei, the floor applied to max_priority_fee_per_gas
// when the computed bribe would round to less (§4.8.2).
var GasPriceFloorWei = big.NewInt(1_000_000_000)
