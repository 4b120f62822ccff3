// Package poolstate holds the per-pool configuration and mutable state
// records the rest of the engine prices against. PoolConfig is immutable
// after load; PoolState is mutated exclusively by the synchronizer and read
// by everything else under a per-pool reader-writer lock.
package poolstate

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ChoSanghyuk/clarb/pkg/fixedpoint"
)

// Family distinguishes the two recognized CL pool shapes. They differ only
// in whether slot0 returns 7 or 6 fields; no other behavior is modeled on
// this tag.
type Family int

const (
	// FamilySixFieldSlot0 pools return (sqrtPriceX96, tick, ..., unlocked).
	FamilySixFieldSlot0 Family = iota
	// FamilySevenFieldSlot0 pools return an extra protocol-fee byte.
	FamilySevenFieldSlot0
)

func (f Family) String() string {
	if f == FamilySevenFieldSlot0 {
		return "seven-field-slot0"
	}
	return "six-field-slot0"
}

// PoolConfig identifies one pool. It is built once at startup and never
// mutated afterward.
type PoolConfig struct {
	Address        common.Address
	Name           string
	FeeBps         int
	Family         Family
	Token0Decimals int
	Token1Decimals int
	Token0IsWETH   bool
	TickSpacing    int
}

// FeeFraction returns the pool's fee as a fraction of the swap amount
// (e.g. 5 bps -> 0.0005).
func (c *PoolConfig) FeeFraction() float64 {
	return float64(c.FeeBps) / 10000.0
}

// FeePips returns the fee in the on-chain "pips" convention (hundredths of
// a basis point: 1e6 == 100%).
func (c *PoolConfig) FeePips() uint32 {
	return uint32(c.FeeBps) * 100
}

// Validate reports configuration errors that must be fatal at startup.
func (c *PoolConfig) Validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("pool config: address must not be zero")
	}
	if c.Name == "" {
		return errors.New("pool config: name is required")
	}
	if c.FeeBps <= 0 || c.FeeBps >= 10000 {
		return fmt.Errorf("pool config: fee_bps %d out of range", c.FeeBps)
	}
	if c.TickSpacing <= 0 {
		return fmt.Errorf("pool config: tick_spacing %d must be positive", c.TickSpacing)
	}
	if c.Token0Decimals < 0 || c.Token1Decimals < 0 {
		return errors.New("pool config: decimals must not be negative")
	}
	return nil
}

// TickInfo is the decoded content of one initialized tick slot.
type TickInfo struct {
	LiquidityGross *big.Int
	LiquidityNet   *big.Int
	Initialized    bool
}

// TickBitmapData is the off-chain mirror of a pool's tick structure. It is
// replaced wholesale on every refresh, never patched in place.
type TickBitmapData struct {
	Words          map[int16]*big.Int
	Ticks          map[int]TickInfo
	SnapshotBlock  uint64
	SyncDurationUs int64
	ScanRange      int
}

// IsBitSet reports whether compressed tick index `compressed` has its word
// bit set, i.e. belongs to the sparse Ticks projection.
func (d *TickBitmapData) IsBitSet(compressed int) bool {
	if d == nil {
		return false
	}
	word := int16(compressed >> 8)
	bit := uint(compressed & 0xff)
	w, ok := d.Words[word]
	if !ok {
		return false
	}
	return w.Bit(int(bit)) == 1
}

// PoolState is the mutable per-pool record, guarded by its own
// reader-writer lock. Zero value is a valid, inactive state.
type PoolState struct {
	mu sync.RWMutex

	sqrtPriceX96 *big.Int
	sqrtPriceF64 float64
	tick         int
	liquidity    *big.Int
	liquidityF64 float64
	ethPriceUSD  float64

	lastBlock     uint64
	lastUpdate    time.Time
	isInitialized bool

	bytecode   []byte
	tickBitmap *TickBitmapData
}

// Snapshot is an immutable point-in-time copy of PoolState, safe to use
// without holding any lock.
type Snapshot struct {
	SqrtPriceX96  *big.Int
	SqrtPriceF64  float64
	Tick          int
	Liquidity     *big.Int
	LiquidityF64  float64
	EthPriceUSD   float64
	LastBlock     uint64
	LastUpdate    time.Time
	IsInitialized bool
	Bytecode      []byte
	TickBitmap    *TickBitmapData
}

// IsActive reports whether the snapshot is usable for pricing: initialized,
// a positive mid-price, and positive liquidity.
func (s Snapshot) IsActive() bool {
	return s.IsInitialized && s.EthPriceUSD > 0 && s.Liquidity != nil && s.Liquidity.Sign() > 0
}

// Staleness is how long ago LastUpdate was, relative to now.
func (s Snapshot) Staleness(now time.Time) time.Duration {
	if s.LastUpdate.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(s.LastUpdate)
}

// Read takes a point-in-time copy under a read lock. Many readers may
// proceed concurrently; a writer excludes all of them.
func (p *PoolState) Read() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		SqrtPriceX96:  p.sqrtPriceX96,
		SqrtPriceF64:  p.sqrtPriceF64,
		Tick:          p.tick,
		Liquidity:     p.liquidity,
		LiquidityF64:  p.liquidityF64,
		EthPriceUSD:   p.ethPriceUSD,
		LastBlock:     p.lastBlock,
		LastUpdate:    p.lastUpdate,
		IsInitialized: p.isInitialized,
		Bytecode:      p.bytecode,
		TickBitmap:    p.tickBitmap,
	}
}

// ApplyBlockSync installs a freshly synced price/liquidity reading. It is
// the only writer of last_block (ApplyMempoolSync writes the same price
// fields but leaves last_block alone); last_block may move backward of a
// prior mempool-driven write (see ApplyMempoolSync), by design (§5).
func (p *PoolState) ApplyBlockSync(sqrtPriceX96 *big.Int, tick int, liquidity *big.Int, ethPriceUSD float64, block uint64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sqrtPriceX96 = sqrtPriceX96
	p.sqrtPriceF64 = sqrtRatioToFloat(sqrtPriceX96)
	p.tick = tick
	p.liquidity = liquidity
	p.liquidityF64 = bigToFloat(liquidity)
	p.ethPriceUSD = ethPriceUSD
	p.lastBlock = block
	p.lastUpdate = now
	p.isInitialized = true
}

// ApplyMempoolSync is the optimistic counterpart of ApplyBlockSync, used by
// the mempool-driven refresh path. It carries the same fields; callers
// decide (per §4.5) whether the new reading differs enough to be worth
// installing before calling this.
func (p *PoolState) ApplyMempoolSync(sqrtPriceX96 *big.Int, tick int, liquidity *big.Int, ethPriceUSD float64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sqrtPriceX96 = sqrtPriceX96
	p.sqrtPriceF64 = sqrtRatioToFloat(sqrtPriceX96)
	p.tick = tick
	p.liquidity = liquidity
	p.liquidityF64 = bigToFloat(liquidity)
	p.ethPriceUSD = ethPriceUSD
	p.lastUpdate = now
	p.isInitialized = true
}

// ApplyBitmap installs a freshly synced tick bitmap, replacing the previous
// one wholesale.
func (p *PoolState) ApplyBitmap(data *TickBitmapData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickBitmap = data
}

// SetBytecode caches the pool's account code for local simulation. Called
// once at startup.
func (p *PoolState) SetBytecode(code []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bytecode = code
}

// Deactivate marks the pool unusable for the current block without
// disturbing the last-known-good price fields, so staleness and isolation
// (§5, per-pool read errors) are both observable.
func (p *PoolState) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isInitialized = false
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}

// sqrtRatioToFloat widens a Q64.96 sqrt-price integer to a plain double by
// converting out of its fixed-point representation (dividing by 2^96), the
// same raw-ratio convention pkg/pricing's approximate-swap math and
// fixedpoint.GetSqrtRatioAtTick's float counterpart both use. This is what
// spec.md §3 means by "sqrt_price_f64 — same value widened to double": the
// same sqrt price, represented as an IEEE double instead of a Q64.96
// integer, not a bitwise cast of the integer's magnitude.
func sqrtRatioToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	f.Quo(f, new(big.Float).SetInt(fixedpoint.Q96))
	out, _ := f.Float64()
	return out
}

// Store is the fixed-size collection of PoolState records the engine reads
// and writes. N is small (two, per this spec) but the store does not
// assume it.
type Store struct {
	Configs []*PoolConfig
	states  []*PoolState
}

// NewStore builds a store with one empty PoolState per config.
func NewStore(configs []*PoolConfig) *Store {
	states := make([]*PoolState, len(configs))
	for i := range states {
		states[i] = &PoolState{}
	}
	return &Store{Configs: configs, states: states}
}

// State returns the mutable state record for pool i.
func (s *Store) State(i int) *PoolState {
	return s.states[i]
}

// Len is the number of pools in the store.
func (s *Store) Len() int {
	return len(s.states)
}
