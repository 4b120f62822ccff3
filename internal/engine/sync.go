package engine

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ChoSanghyuk/clarb/pkg/contractclient"
	"github.com/ChoSanghyuk/clarb/pkg/fixedpoint"
	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
	"github.com/ChoSanghyuk/clarb/pkg/pricing"
)

// Syncer keeps a poolstate.Store current against chain state: a per-block
// slot0/liquidity refresh, and a periodic tick-bitmap refresh batched
// through a single Multicall3 aggregate3 call per side (§4.5).
type Syncer struct {
	client       *ethclient.Client
	multicall    common.Address
	scanRadius   int
	lastBitmapAt uint64
}

// NewSyncer builds a Syncer. scanRadius is the number of tick-spacing steps
// scanned on either side of the current tick during a bitmap refresh.
func NewSyncer(client *ethclient.Client, multicall common.Address, scanRadius int) *Syncer {
	return &Syncer{client: client, multicall: multicall, scanRadius: scanRadius}
}

// LastBitmapBlock reports the block the most recent successful bitmap sync
// ran at, across all pools. The opportunity loop decides per pool when a
// refresh is due with BitmapRefreshDue instead.
func (s *Syncer) LastBitmapBlock() uint64 {
	return s.lastBitmapAt
}

func poolABIFor(family poolstate.Family) abiLike {
	if family == poolstate.FamilySevenFieldSlot0 {
		return poolABISevenField
	}
	return poolABISixField
}

// abiLike avoids importing abi.ABI by name at every call site in this file.
type abiLike = interface {
	Pack(string, ...interface{}) ([]byte, error)
	Unpack(string, []byte) ([]interface{}, error)
}

// BlockSync refreshes slot0 + liquidity for every pool in store, in
// parallel, writing the result (or deactivating on failure) under each
// pool's own lock. A single-pool failure does not affect the others
// (§5, §7).
func (s *Syncer) BlockSync(ctx context.Context, store *poolstate.Store, block uint64, now time.Time) {
	var wg sync.WaitGroup
	for i := 0; i < store.Len(); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.syncOnePool(ctx, store, i, block, now)
		}(i)
	}
	wg.Wait()
}

func (s *Syncer) syncOnePool(ctx context.Context, store *poolstate.Store, i int, block uint64, now time.Time) {
	cfg := store.Configs[i]
	st := store.State(i)

	sqrtPriceX96, tick, liquidity, ethPriceUSD, ok := s.readSlot0AndLiquidity(ctx, cfg)
	if !ok {
		st.Deactivate()
		return
	}
	st.ApplyBlockSync(sqrtPriceX96, tick, liquidity, ethPriceUSD, block, now)
}

// readSlot0AndLiquidity issues the two-call aggregate3 batch for a single
// pool and decodes its slot0/liquidity response, deriving the current
// eth_price_usd along the way. Shared by the block-driven sync and the
// mempool-driven optimistic refresh (§4.5), which differ only in what they
// do with the result.
func (s *Syncer) readSlot0AndLiquidity(ctx context.Context, cfg *poolstate.PoolConfig) (sqrtPriceX96 *big.Int, tick int, liquidity *big.Int, ethPriceUSD float64, ok bool) {
	poolABI := poolABIFor(cfg.Family)
	slot0Data, err := poolABI.Pack("slot0")
	if err != nil {
		return nil, 0, nil, 0, false
	}
	liquidityData, err := poolABI.Pack("liquidity")
	if err != nil {
		return nil, 0, nil, 0, false
	}

	results, err := contractclient.Aggregate3(ctx, s.client, s.multicall, []contractclient.Call3{
		{Target: cfg.Address, AllowFailure: true, CallData: slot0Data},
		{Target: cfg.Address, AllowFailure: true, CallData: liquidityData},
	})
	if err != nil || len(results) != 2 || !results[0].Success || !results[1].Success {
		return nil, 0, nil, 0, false
	}

	slot0Out, err := poolABI.Unpack("slot0", results[0].ReturnData)
	if err != nil || len(slot0Out) < 2 {
		return nil, 0, nil, 0, false
	}
	sqrtPriceX96, okCast := slot0Out[0].(*big.Int)
	if !okCast || sqrtPriceX96.Sign() <= 0 {
		return nil, 0, nil, 0, false
	}
	tickBig, okCast := slot0Out[1].(*big.Int)
	if !okCast {
		return nil, 0, nil, 0, false
	}
	tick = int(tickBig.Int64())

	liquidityOut, err := poolABI.Unpack("liquidity", results[1].ReturnData)
	if err != nil || len(liquidityOut) < 1 {
		return nil, 0, nil, 0, false
	}
	liquidity, okCast = liquidityOut[0].(*big.Int)
	if !okCast || liquidity.Sign() < 0 {
		return nil, 0, nil, 0, false
	}

	ratio := sqrtX96ToRatioFloat(sqrtPriceX96)
	var priceOK bool
	ethPriceUSD, priceOK = pricing.DerivePrice(ratio, tick, cfg.Token0Decimals, cfg.Token1Decimals, cfg.Token0IsWETH)
	if !priceOK {
		log.Printf("⚠️ %s: sqrt-derived and tick-derived prices disagree by more than 1%%, using tick-derived price", cfg.Name)
	}
	if ethPriceUSD <= 0 {
		return nil, 0, nil, 0, false
	}

	return sqrtPriceX96, tick, liquidity, ethPriceUSD, true
}

// sqrtX96ToRatioFloat divides a Q64.96 sqrt-price down to a plain float
// ratio (sqrtPriceX96 / 2^96), the form pricing.DerivePrice expects.
func sqrtX96ToRatioFloat(sqrtPriceX96 *big.Int) float64 {
	ratio := new(big.Float).SetInt(sqrtPriceX96)
	ratio.Quo(ratio, new(big.Float).SetInt(fixedpoint.Q96))
	out, _ := ratio.Float64()
	return out
}

// BitmapRefreshDue reports whether a pool's bitmap is missing or at least
// maxAgeBlocks old as of currentBlock.
func BitmapRefreshDue(snap poolstate.Snapshot, currentBlock uint64, maxAgeBlocks uint64) bool {
	if snap.TickBitmap == nil {
		return true
	}
	if currentBlock < snap.TickBitmap.SnapshotBlock {
		return false
	}
	return currentBlock-snap.TickBitmap.SnapshotBlock >= maxAgeBlocks
}

// BitmapSync rebuilds pool i's tick bitmap in exactly two aggregated calls:
// one batching tickBitmap(word) across the scanned word range, one batching
// ticks(tick) for every tick the first call found initialized (§4.5).
func (s *Syncer) BitmapSync(ctx context.Context, store *poolstate.Store, i int, block uint64) error {
	cfg := store.Configs[i]
	snap := store.State(i).Read()
	if !snap.IsInitialized {
		return fmt.Errorf("engine: bitmap sync: pool %s is inactive", cfg.Name)
	}

	start := time.Now()
	poolABI := poolABIFor(cfg.Family)

	compressedLo := fixedpoint.CompressTick(snap.Tick-s.scanRadius*cfg.TickSpacing, cfg.TickSpacing)
	compressedHi := fixedpoint.CompressTick(snap.Tick+s.scanRadius*cfg.TickSpacing, cfg.TickSpacing)
	wordLo, _ := fixedpoint.WordPos(compressedLo)
	wordHi, _ := fixedpoint.WordPos(compressedHi)
	if wordHi < wordLo {
		wordLo, wordHi = wordHi, wordLo
	}

	wordCalls := make([]contractclient.Call3, 0, int(wordHi-wordLo)+1)
	words := make([]int16, 0, cap(wordCalls))
	for w := wordLo; w <= wordHi; w++ {
		data, err := poolABI.Pack("tickBitmap", w)
		if err != nil {
			return fmt.Errorf("engine: pack tickBitmap(%d): %w", w, err)
		}
		wordCalls = append(wordCalls, contractclient.Call3{Target: cfg.Address, AllowFailure: true, CallData: data})
		words = append(words, w)
	}

	wordResults, err := contractclient.Aggregate3(ctx, s.client, s.multicall, wordCalls)
	if err != nil {
		return fmt.Errorf("engine: aggregate tickBitmap: %w", err)
	}

	wordsOut := make(map[int16]*big.Int, len(words))
	var initializedTicks []int
	for idx, res := range wordResults {
		if !res.Success {
			continue
		}
		out, err := poolABI.Unpack("tickBitmap", res.ReturnData)
		if err != nil || len(out) < 1 {
			continue
		}
		word, ok := out[0].(*big.Int)
		if !ok || word.Sign() == 0 {
			continue
		}
		wordsOut[words[idx]] = word
		for bit := 0; bit < 256; bit++ {
			if word.Bit(bit) == 0 {
				continue
			}
			compressed := int(words[idx])<<8 | bit
			initializedTicks = append(initializedTicks, compressed*cfg.TickSpacing)
		}
	}

	ticksOut := make(map[int]poolstate.TickInfo, len(initializedTicks))
	if len(initializedTicks) > 0 {
		tickCalls := make([]contractclient.Call3, len(initializedTicks))
		for idx, tick := range initializedTicks {
			data, err := poolABI.Pack("ticks", big.NewInt(int64(tick)))
			if err != nil {
				return fmt.Errorf("engine: pack ticks(%d): %w", tick, err)
			}
			tickCalls[idx] = contractclient.Call3{Target: cfg.Address, AllowFailure: true, CallData: data}
		}

		tickResults, err := contractclient.Aggregate3(ctx, s.client, s.multicall, tickCalls)
		if err != nil {
			return fmt.Errorf("engine: aggregate ticks: %w", err)
		}

		for idx, res := range tickResults {
			if !res.Success {
				continue
			}
			out, err := poolABI.Unpack("ticks", res.ReturnData)
			if err != nil || len(out) < 8 {
				continue
			}
			gross, _ := out[0].(*big.Int)
			net, _ := out[1].(*big.Int)
			initialized, _ := out[7].(bool)
			ticksOut[initializedTicks[idx]] = poolstate.TickInfo{
				LiquidityGross: gross,
				LiquidityNet:   net,
				Initialized:    initialized,
			}
		}
	}

	data := &poolstate.TickBitmapData{
		Words:          wordsOut,
		Ticks:          ticksOut,
		SnapshotBlock:  block,
		SyncDurationUs: time.Since(start).Microseconds(),
		ScanRange:      s.scanRadius,
	}
	store.State(i).ApplyBitmap(data)
	s.lastBitmapAt = block
	return nil
}
