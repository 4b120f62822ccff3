// Package engine wires the synchronizer, detector, simulator, and submitter
// into the opportunity loop: one reconnect shell around a steady-state block
// subscription, plus a best-effort background mempool task (§4.8).
package engine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"

	"github.com/ChoSanghyuk/clarb/configs"
	"github.com/ChoSanghyuk/clarb/internal/db"
	"github.com/ChoSanghyuk/clarb/internal/metrics"
	"github.com/ChoSanghyuk/clarb/internal/nonce"
	"github.com/ChoSanghyuk/clarb/pkg/calldata"
	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
	"github.com/ChoSanghyuk/clarb/pkg/simulator"
)

// heartbeatTimeout is how long the main loop waits for a header before
// declaring the connection dead (§4.8 step 1).
const heartbeatTimeout = 15 * time.Second

// reconnectPause is the fixed pause between reconnect attempts; exponential
// backoff is deliberately not used (§4.8.3).
const reconnectPause = 100 * time.Millisecond

// nonceResyncEveryBlocks is the periodic chain-nonce reconciliation cadence
// (§4.8 step 8).
const nonceResyncEveryBlocks = 50

// Engine wires every component of the opportunity loop together. It is
// built once by cmd/main.go against an already-dialed client.
type Engine struct {
	client     *ethclient.Client
	gethClient *gethclient.Client // nil disables the mempool task
	chainID    *big.Int
	cfg        *configs.BotConfig

	store     *poolstate.Store
	syncer    *Syncer
	detector  *Detector
	sim       *simulator.Simulator
	submitter *Submitter
	breaker   *CircuitBreaker

	shadow   *db.ShadowLogger   // nil when unconfigured
	recorder *db.MySQLRecorder  // nil when unconfigured

	ownAddress common.Address
	nonceMgr   *nonce.Manager

	lastHeartbeat time.Time
}

// New builds an Engine. privateKey must already be decrypted (key-at-rest
// handling is an external collaborator's job per spec §1).
func New(client *ethclient.Client, gethClient *gethclient.Client, cfg *configs.BotConfig, privateKey *ecdsa.PrivateKey, poolConfigs [2]*poolstate.PoolConfig, shadow *db.ShadowLogger, recorder *db.MySQLRecorder) (*Engine, error) {
	sim, err := simulator.New(cfg.ArbitrageContract)
	if err != nil {
		return nil, fmt.Errorf("engine: build simulator: %w", err)
	}

	store := poolstate.NewStore([]*poolstate.PoolConfig{poolConfigs[0], poolConfigs[1]})
	syncer := NewSyncer(client, cfg.MulticallAddress, cfg.BitmapScanRadius)
	detector := &Detector{
		Configs:              poolConfigs,
		FlashLoanFeeFraction: float64(cfg.FlashLoanFeeBps) / 10000.0,
		GasCostFallbackUSD:   cfg.GasCostFallbackUSD,
		MinNetProfitUSD:      cfg.MinNetProfitUSD,
		FreshnessBound:       cfg.FreshnessBound,
		MaxTradeWETH:         cfg.MaxTradeSizeWETH,
	}
	breaker := NewCircuitBreaker(cfg.CircuitBreakerLimit)

	ownAddress := crypto.PubkeyToAddress(privateKey.PublicKey)
	nonceMgr := nonce.New(0)
	chainID := big.NewInt(cfg.ChainID)
	submitter := NewSubmitter(client, chainID, privateKey, cfg.ArbitrageContract, cfg.WETHAddress, cfg.USDCAddress, nonceMgr, cfg.DeadlineHorizon, cfg.BribeFraction, cfg.FlashLoanFeeBps)

	return &Engine{
		client:     client,
		gethClient: gethClient,
		chainID:    chainID,
		cfg:        cfg,
		store:      store,
		syncer:     syncer,
		detector:   detector,
		sim:        sim,
		submitter:  submitter,
		breaker:    breaker,
		shadow:     shadow,
		recorder:   recorder,
		ownAddress: ownAddress,
		nonceMgr:   nonceMgr,
	}, nil
}

// Setup performs the one-time startup sequence: bytecode caching, initial
// sync, nonce initialization (§4.8 "Setup").
func (e *Engine) Setup(ctx context.Context) error {
	latest, err := e.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("engine: setup: read latest block: %w", err)
	}

	arbCode, err := e.client.CodeAt(ctx, e.cfg.ArbitrageContract, nil)
	if err != nil {
		return fmt.Errorf("engine: setup: fetch arb contract code: %w", err)
	}
	e.sim.InstallContract(arbCode)

	for i := 0; i < e.store.Len(); i++ {
		cfg := e.store.Configs[i]
		code, err := e.client.CodeAt(ctx, cfg.Address, nil)
		if err != nil {
			return fmt.Errorf("engine: setup: fetch pool %s code: %w", cfg.Name, err)
		}
		e.store.State(i).SetBytecode(code)
	}

	now := time.Now()
	e.syncer.BlockSync(ctx, e.store, latest, now)
	for i := 0; i < e.store.Len(); i++ {
		if err := e.syncer.BitmapSync(ctx, e.store, i, latest); err != nil {
			log.Printf("⚠️ initial bitmap sync failed for %s: %v", e.store.Configs[i].Name, err)
		}
		snap := e.store.State(i).Read()
		if snap.IsActive() {
			e.sim.SeedPool(e.store.Configs[i].Address, snap.Bytecode, snap.SqrtPriceX96, snap.Liquidity)
		}
	}

	chainNonce, err := e.client.PendingNonceAt(ctx, e.ownAddress)
	if err != nil {
		return fmt.Errorf("engine: setup: read starting nonce: %w", err)
	}
	e.nonceMgr.ForceSet(chainNonce)

	return nil
}

// Run is the outer reconnect shell (§4.8.3): it repeatedly opens a header
// subscription, runs the steady-state loop until the connection dies, pauses
// a fixed 100ms, and reopens. maxRetries of 0 means unlimited; a positive
// value caps the number of reconnect attempts before returning an error.
func (e *Engine) Run(ctx context.Context) error {
	attempts := 0
	if e.gethClient != nil {
		mempoolCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go e.syncer.WatchMempool(mempoolCtx, e.gethClient, e.store)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := e.runConnection(ctx)
		if errors.Is(err, errCircuitBreakerTripped) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		if e.cfg.MaxRetries > 0 && attempts > e.cfg.MaxRetries {
			return fmt.Errorf("engine: exceeded max reconnect attempts (%d): %w", e.cfg.MaxRetries, err)
		}
		metrics.RecordReconnect()
		log.Printf("⚠️ connection lost, reconnecting (attempt %d): %v", attempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectPause):
		}
	}
}

var errCircuitBreakerTripped = errors.New("engine: circuit breaker tripped")

// runConnection subscribes to block headers and runs the steady-state loop
// (§4.8) until the subscription dies or the heartbeat times out, returning
// the reason.
func (e *Engine) runConnection(ctx context.Context) error {
	headers := make(chan *types.Header, 16)
	sub, err := e.client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("subscribe new head: %w", err)
	}
	defer sub.Unsubscribe()

	blocksSinceNonceResync := uint64(0)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("header subscription error: %w", err)
		case <-time.After(heartbeatTimeout):
			return errors.New("heartbeat timeout: no header in 15s")
		case header := <-headers:
			block := BlockContext{
				Number:  header.Number.Uint64(),
				Time:    header.Time,
				BaseFee: header.BaseFee,
			}
			if err := e.processHeader(ctx, block); err != nil {
				if errors.Is(err, errCircuitBreakerTripped) {
					return err
				}
				log.Printf("❌ error processing block %d: %v", block.Number, err)
			}

			blocksSinceNonceResync++
			if blocksSinceNonceResync >= nonceResyncEveryBlocks {
				blocksSinceNonceResync = 0
				e.resyncNonce(ctx)
			}
		}
	}
}

// processHeader runs one pass of steady-state steps 2-7 for a single block
// header.
func (e *Engine) processHeader(ctx context.Context, block BlockContext) error {
	syncStart := time.Now()
	e.syncer.BlockSync(ctx, e.store, block.Number, syncStart)
	metrics.RecordSyncLatency("block", float64(time.Since(syncStart).Microseconds())/1000.0)

	for i := 0; i < e.store.Len(); i++ {
		snap := e.store.State(i).Read()
		if BitmapRefreshDue(snap, block.Number, e.cfg.BitmapMaxAgeBlocks) {
			bitmapStart := time.Now()
			if err := e.syncer.BitmapSync(ctx, e.store, i, block.Number); err != nil {
				log.Printf("⚠️ bitmap sync failed for %s: %v", e.store.Configs[i].Name, err)
			} else {
				metrics.RecordSyncLatency("bitmap", float64(time.Since(bitmapStart).Microseconds())/1000.0)
			}
		}
		metrics.SetPoolStaleness(e.store.Configs[i].Name, snap.Staleness(syncStart).Seconds())
	}

	if e.breaker.Tripped() {
		metrics.RecordCircuitBreakerTrip()
		log.Printf("❌ circuit breaker tripped after %d consecutive simulation failures; halting", e.breaker.Streak())
		return errCircuitBreakerTripped
	}

	opp, found := e.detector.Detect(e.store, block, syncStart)
	if !found {
		return nil
	}
	metrics.RecordOpportunity("detected", opp.ExpectedProfitUSD)

	return e.handleOpportunity(ctx, opp, block)
}

// handleOpportunity runs the simulator, then either submits or shadow-logs
// the opportunity depending on configuration (§4.8 step 7, "Shadow mode").
func (e *Engine) handleOpportunity(ctx context.Context, opp ArbitrageOpportunity, block BlockContext) error {
	sellCfg, buyCfg := e.store.Configs[opp.SellIdx], e.store.Configs[opp.BuyIdx]

	payload, err := e.submitter.buildPayload(opp, sellCfg, buyCfg, block)
	if err != nil {
		// Profit evaporated between detection and exact re-pricing; not a
		// simulation failure, just a missed window.
		return nil
	}
	cd := calldata.Encode(payload)

	pools := []simulator.PoolSeed{
		{Address: sellCfg.Address, SqrtPriceX96: opp.SellSnapshot.SqrtPriceX96, Liquidity: opp.SellSnapshot.Liquidity},
		{Address: buyCfg.Address, SqrtPriceX96: opp.BuySnapshot.SqrtPriceX96, Liquidity: opp.BuySnapshot.Liquidity},
	}
	result, err := e.sim.Simulate(pools, cd, nil, block.Number, block.Time, block.BaseFee)
	if err != nil {
		log.Printf("❌ simulation error: %v", err)
		e.breaker.RecordFailure()
		metrics.RecordOpportunity("simulated_error", opp.ExpectedProfitUSD)
		return nil
	}
	simSuccess := result.Kind == simulator.KindSuccess
	if simSuccess {
		e.breaker.RecordSuccess()
		metrics.RecordOpportunity("simulated_success", opp.ExpectedProfitUSD)
	} else {
		e.breaker.RecordFailure()
		metrics.RecordOpportunity("simulated_revert", opp.ExpectedProfitUSD)
		log.Printf("⚠️ simulation %s for %s/%s: %s", result.Kind, sellCfg.Name, buyCfg.Name, result.Reason)
	}

	e.recordAudit(opp, sellCfg, buyCfg, len(cd), simSuccess, nil)

	if !simSuccess {
		return nil
	}
	if !e.cfg.ExecutionEnabled {
		e.logShadow(opp, sellCfg, buyCfg, len(cd), simSuccess)
		return nil
	}

	submission := e.submitter.Submit(ctx, opp, sellCfg, buyCfg, block, result.GasUsed)
	if !submission.Success {
		metrics.RecordSubmission("failed")
		log.Printf("❌ submission failed: %s", submission.ErrorMessage)
		e.recordAudit(opp, sellCfg, buyCfg, len(cd), simSuccess, &submission)
		return nil
	}
	metrics.RecordSubmission("success")
	log.Printf("✓ submitted arbitrage tx %s (nonce %d)", submission.TxHash.Hex(), submission.Nonce)
	e.recordAudit(opp, sellCfg, buyCfg, len(cd), simSuccess, &submission)

	go func() {
		receipt, err := e.submitter.AwaitReceipt(submission.TxHash)
		if err != nil {
			log.Printf("⚠️ receipt wait for %s ended without confirmation: %v", submission.TxHash.Hex(), err)
			return
		}
		log.Printf("✓ confirmed %s in block %d (status %d)", submission.TxHash.Hex(), receipt.BlockNumber.Uint64(), receipt.Status)
	}()

	return nil
}

func (e *Engine) logShadow(opp ArbitrageOpportunity, sellCfg, buyCfg *poolstate.PoolConfig, payloadSize int, simSuccess bool) {
	if e.shadow == nil {
		return
	}
	err := e.shadow.Record(db.ShadowRecord{
		Timestamp:           time.Now(),
		SellVenue:           sellCfg.Name,
		BuyVenue:            buyCfg.Name,
		SellPriceUSD:        opp.SellSnapshot.EthPriceUSD,
		BuyPriceUSD:         opp.BuySnapshot.EthPriceUSD,
		SpreadFrac:          opp.SpreadFrac,
		OptimalAmountWETH:   opp.OptimalAmountWETH,
		ExpectedProfitUSD:   opp.ExpectedProfitUSD,
		OptimizerConverged:  opp.Converged,
		OptimizerIterations: opp.Iterations,
		SimulatorSuccess:    simSuccess,
		PayloadSizeBytes:    payloadSize,
	})
	if err != nil {
		log.Printf("⚠️ shadow log write failed: %v", err)
	}
}

func (e *Engine) recordAudit(opp ArbitrageOpportunity, sellCfg, buyCfg *poolstate.PoolConfig, payloadSize int, simSuccess bool, submission *SubmissionResult) {
	if e.recorder == nil {
		return
	}
	rec := db.OpportunityRecord{
		Timestamp:         time.Now(),
		SellVenue:         sellCfg.Name,
		BuyVenue:          buyCfg.Name,
		SellPriceUSD:      opp.SellSnapshot.EthPriceUSD,
		BuyPriceUSD:       opp.BuySnapshot.EthPriceUSD,
		SpreadFrac:        opp.SpreadFrac,
		OptimalAmountWETH: opp.OptimalAmountWETH,
		ExpectedProfitUSD: opp.ExpectedProfitUSD,
		GasCostUSD:        opp.GasCostUSD,
	}
	if submission != nil {
		rec.Submitted = submission.Success
		rec.TxHash = submission.TxHash.Hex()
		rec.Nonce = submission.Nonce
		rec.ErrorMessage = submission.ErrorMessage
	}
	if err := e.recorder.RecordOpportunity(rec); err != nil {
		log.Printf("⚠️ audit recorder write failed: %v", err)
	}
}

// resyncNonce re-reads the chain nonce and force-sets the local counter if
// it disagrees, recovering from drift (§4.8 step 8, §7).
func (e *Engine) resyncNonce(ctx context.Context) {
	chainNonce, err := e.client.PendingNonceAt(ctx, e.ownAddress)
	if err != nil {
		log.Printf("⚠️ nonce resync read failed: %v", err)
		return
	}
	if chainNonce != e.nonceMgr.Current() {
		log.Printf("⚠️ nonce drift detected: local=%d chain=%d, resetting", e.nonceMgr.Current(), chainNonce)
		e.nonceMgr.ForceSet(chainNonce)
	}
}
