package engine

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"

	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
)

// ethPriceDeltaThreshold is the minimum USD change in a pool's derived
// price that justifies replacing its stored state from a mempool-observed
// swap before the next block confirms it (§4.5).
const ethPriceDeltaThreshold = 0.001

// WatchMempool subscribes to full pending transactions on gc and, for
// every one whose target is a watched pool and whose selector matches the
// swap method, re-reads that single pool and installs the result if its
// derived price moved enough to matter. All errors are swallowed: this path
// is explicitly best-effort, and the block-driven sync remains
// authoritative (§4.5, §7). It returns when ctx is cancelled.
func (s *Syncer) WatchMempool(ctx context.Context, gc *gethclient.Client, store *poolstate.Store) {
	ch := make(chan *types.Transaction, 256)
	sub, err := gc.SubscribeFullPendingTransactions(ctx, ch)
	if err != nil {
		log.Printf("⚠️ mempool subscription unavailable, continuing on block-driven sync only: %v", err)
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Printf("⚠️ mempool subscription dropped: %v", err)
			}
			return
		case tx := <-ch:
			s.handlePendingTx(ctx, store, tx)
		}
	}
}

func (s *Syncer) handlePendingTx(ctx context.Context, store *poolstate.Store, tx *types.Transaction) {
	to := tx.To()
	if to == nil {
		return
	}
	data := tx.Data()
	if len(data) < 4 || data[0] != swapSelector[0] || data[1] != swapSelector[1] || data[2] != swapSelector[2] || data[3] != swapSelector[3] {
		return
	}

	for i, cfg := range store.Configs {
		if cfg.Address != *to {
			continue
		}
		s.refreshOneOptimistic(ctx, store, i)
		return
	}
}

// refreshOneOptimistic re-reads a single pool's slot0/liquidity outside the
// block cadence and installs it only if the derived price moved enough;
// any error here is swallowed per the best-effort contract.
func (s *Syncer) refreshOneOptimistic(ctx context.Context, store *poolstate.Store, i int) {
	cfg := store.Configs[i]
	st := store.State(i)
	prev := st.Read()

	sqrtPriceX96, tick, liquidity, ethPriceUSD, ok := s.readSlot0AndLiquidity(ctx, cfg)
	if !ok {
		return
	}
	if prev.IsInitialized && math.Abs(ethPriceUSD-prev.EthPriceUSD) <= ethPriceDeltaThreshold {
		return
	}

	st.ApplyMempoolSync(sqrtPriceX96, tick, liquidity, ethPriceUSD, time.Now())
}
