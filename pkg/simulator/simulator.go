// Package simulator runs candidate arbitrage transactions against a
// cached in-memory EVM state, so a transaction can be validated before it
// is ever broadcast. It never touches the real chain.
package simulator

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
)

// syntheticCallerBalanceWei is the starting balance given to the synthetic
// caller account: 100 ETH, enough headroom for any simulated gas spend.
var syntheticCallerBalanceWei = new(big.Int).Mul(big.NewInt(100), big.NewInt(1_000_000_000_000_000_000))

// simGasLimit is the fixed gas limit for every simulated call.
const simGasLimit = 1_500_000

const (
	slot0Index     = 0
	liquiditySlot  = 4
	slippageWindow = 5 * time.Second
)

// PoolSeed is one pool's live pricing state to re-seed into the cloned
// store before a simulation.
type PoolSeed struct {
	Address      common.Address
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

// Kind classifies the outcome of a simulated call.
type Kind int

const (
	KindSuccess Kind = iota
	KindRevert
	KindHalt
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRevert:
		return "revert"
	case KindHalt:
		return "halt"
	default:
		return "error"
	}
}

// Result is the outcome of one simulated call.
type Result struct {
	Kind    Kind
	GasUsed uint64
	Output  []byte
	Reason  string
}

// Simulator holds the cached base state: pool bytecode and account shells,
// installed once at startup, plus a synthetic caller and the arbitrage
// contract account. Every call clones the base before mutating it.
type Simulator struct {
	base        *state.StateDB
	db          state.Database
	caller      common.Address
	arbContract common.Address
	chainConfig *params.ChainConfig
}

// New builds a simulator with an empty in-memory state. Call SeedPool for
// each watched pool and InstallContract before simulating.
func New(arbContract common.Address) (*Simulator, error) {
	memDB := rawdb.NewMemoryDatabase()
	db := state.NewDatabase(memDB)
	statedb, err := state.New(common.Hash{}, db, nil)
	if err != nil {
		return nil, fmt.Errorf("simulator: init state: %w", err)
	}

	caller := common.HexToAddress("0x00000000000000000000000000000000c0ffee")
	callerBalance, overflow := uint256.FromBig(syntheticCallerBalanceWei)
	if overflow {
		return nil, errors.New("simulator: synthetic caller balance overflows uint256")
	}
	statedb.AddBalance(caller, callerBalance, tracing.BalanceChangeUnspecified)
	statedb.CreateAccount(arbContract)

	return &Simulator{
		base:        statedb,
		db:          db,
		caller:      caller,
		arbContract: arbContract,
		chainConfig: params.AllEthashProtocolChanges,
	}, nil
}

// InstallContract injects the arbitrage contract's bytecode into the
// cached base store. Called once at startup.
func (s *Simulator) InstallContract(bytecode []byte) {
	s.base.SetCode(s.arbContract, bytecode)
}

// SeedPool injects a pool's bytecode and initial slot0/liquidity values
// into the cached base store. Called once per pool at startup.
func (s *Simulator) SeedPool(addr common.Address, bytecode []byte, sqrtPriceX96 *big.Int, liquidity *big.Int) {
	s.base.SetCode(addr, bytecode)
	seedSlots(s.base, addr, sqrtPriceX96, liquidity)
}

// seedSlots writes slot 0 (packed slot0, sqrt-price in the low 160 bits)
// and slot 4 (active liquidity) for a pool account.
func seedSlots(statedb *state.StateDB, addr common.Address, sqrtPriceX96 *big.Int, liquidity *big.Int) {
	if sqrtPriceX96 != nil {
		statedb.SetState(addr, common.BigToHash(big.NewInt(slot0Index)), common.BigToHash(sqrtPriceX96))
	}
	if liquidity != nil {
		statedb.SetState(addr, common.BigToHash(big.NewInt(liquiditySlot)), common.BigToHash(liquidity))
	}
}

// Simulate clones the cached base store, re-seeds only slot 0 and slot 4
// for the given pools (bytecode and account shells are untouched), and
// executes a call against the arbitrage contract with the supplied
// calldata. Block number, timestamp, and base fee come from the live block
// header, never wall-clock time.
func (s *Simulator) Simulate(pools []PoolSeed, calldata []byte, value *big.Int, blockNumber uint64, blockTime uint64, baseFee *big.Int) (Result, error) {
	clone := s.base.Copy()
	for _, p := range pools {
		seedSlots(clone, p.Address, p.SqrtPriceX96, p.Liquidity)
	}

	if value == nil {
		value = big.NewInt(0)
	}
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}

	cfg := &runtime.Config{
		ChainConfig: s.chainConfig,
		Origin:      s.caller,
		State:       clone,
		GasLimit:    simGasLimit,
		Value:       value,
		BlockNumber: new(big.Int).SetUint64(blockNumber),
		Time:        blockTime,
		BaseFee:     baseFee,
	}

	output, gasLeft, err := runtime.Call(s.arbContract, calldata, cfg)
	gasUsed := uint64(0)
	if cfg.GasLimit >= gasLeft {
		gasUsed = cfg.GasLimit - gasLeft
	}

	if err == nil {
		return Result{Kind: KindSuccess, GasUsed: gasUsed, Output: output}, nil
	}
	if errors.Is(err, vm.ErrExecutionReverted) {
		return Result{Kind: KindRevert, GasUsed: gasUsed, Output: output, Reason: decodeRevertReason(output)}, nil
	}
	return Result{Kind: KindHalt, GasUsed: gasUsed, Reason: err.Error()}, nil
}

// decodeRevertReason strips the Error(string) selector and ABI padding off
// a revert payload, falling back to a hex dump when it isn't shaped like a
// standard revert string.
func decodeRevertReason(output []byte) string {
	const selectorLen = 4
	const wordLen = 32
	if len(output) < selectorLen+2*wordLen {
		return fmt.Sprintf("0x%x", output)
	}
	// Layout: selector, 32-byte offset word, 32-byte length word, string.
	strLen := new(big.Int).SetBytes(output[selectorLen+wordLen : selectorLen+2*wordLen]).Uint64()
	start := selectorLen + 2*wordLen
	end := start + int(strLen)
	if end > len(output) {
		return fmt.Sprintf("0x%x", output)
	}
	return string(output[start:end])
}

// ValidationResult is the outcome of the cheaper, contract-free
// mathematical validation path.
type ValidationResult struct {
	OK          bool
	Reason      string
	GasEstimate uint64
}

const (
	mathValidationMinLiquidityMultiple = 10.0
	mathValidationMinPriceUSD          = 100.0
	mathValidationMaxPriceUSD          = 100_000.0
	mathValidationSyntheticGas         = 350_000
)

// MathematicalValidate is the cheaper check for callers without a deployed
// contract: both pools must be active, each must have at least 10x the
// proposed trade size in liquidity, prices must fall in a plausible USD
// range, and neither snapshot may be older than 5 seconds.
func MathematicalValidate(poolA, poolB poolstate.Snapshot, tradeAmountF64 float64, priceAUSD, priceBUSD float64, now time.Time) ValidationResult {
	if !poolA.IsActive() || !poolB.IsActive() {
		return ValidationResult{Reason: "pool inactive"}
	}
	if poolA.Staleness(now) > slippageWindow || poolB.Staleness(now) > slippageWindow {
		return ValidationResult{Reason: "snapshot stale"}
	}
	if poolA.LiquidityF64 < tradeAmountF64*mathValidationMinLiquidityMultiple {
		return ValidationResult{Reason: "pool A liquidity too thin"}
	}
	if poolB.LiquidityF64 < tradeAmountF64*mathValidationMinLiquidityMultiple {
		return ValidationResult{Reason: "pool B liquidity too thin"}
	}
	if !plausiblePrice(priceAUSD) || !plausiblePrice(priceBUSD) {
		return ValidationResult{Reason: "price out of plausible range"}
	}
	return ValidationResult{OK: true, GasEstimate: mathValidationSyntheticGas}
}

func plausiblePrice(p float64) bool {
	return p >= mathValidationMinPriceUSD && p <= mathValidationMaxPriceUSD
}
