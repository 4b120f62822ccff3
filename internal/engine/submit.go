package engine

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ChoSanghyuk/clarb/configs"
	"github.com/ChoSanghyuk/clarb/internal/nonce"
	"github.com/ChoSanghyuk/clarb/pkg/calldata"
	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
	"github.com/ChoSanghyuk/clarb/pkg/pricing"
	"github.com/ChoSanghyuk/clarb/pkg/txlistener"
)

const (
	minGasLimit        = 150_000
	gasLimitHeadroom   = 1.10
	receiptWaitTimeout = 60 * time.Second
)

var weiPerWETH = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// liquidityThresholdHigh and liquidityThresholdLow gate the slippage factor
// applied to minProfit, chosen by the minimum of the two legs' active
// liquidity (§4.8.2).
var (
	liquidityThresholdHigh = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	liquidityThresholdLow  = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)
)

// SubmissionResult is the outcome of building, signing, and broadcasting an
// arbitrage transaction, mirroring the teacher's Result-struct convention
// (Success/ErrorMessage) for expected-outcome classes rather than forcing
// every caller through a bare error.
type SubmissionResult struct {
	Success      bool
	ErrorMessage string
	TxHash       common.Hash
	Nonce        uint64
	GasLimit     uint64
	PriorityFee  *big.Int
}

// Submitter builds, signs, and broadcasts arbitrage transactions, and waits
// for their receipts off the main loop's critical path.
type Submitter struct {
	client      *ethclient.Client
	chainID     *big.Int
	privateKey  *ecdsa.PrivateKey
	arbContract common.Address
	wethAddr    common.Address
	usdcAddr    common.Address

	nonceMgr        *nonce.Manager
	deadlineHorizon uint64
	bribeFraction   float64
	flashLoanFeeBps int

	receiptWaiter *txlistener.TxListener
}

// NewSubmitter builds a Submitter bound to one signer and one arbitrage
// contract address.
func NewSubmitter(client *ethclient.Client, chainID *big.Int, privateKey *ecdsa.PrivateKey, arbContract, wethAddr, usdcAddr common.Address, nonceMgr *nonce.Manager, deadlineHorizon uint64, bribeFraction float64, flashLoanFeeBps int) *Submitter {
	return &Submitter{
		client:          client,
		chainID:         chainID,
		privateKey:      privateKey,
		arbContract:     arbContract,
		wethAddr:        wethAddr,
		usdcAddr:        usdcAddr,
		nonceMgr:        nonceMgr,
		deadlineHorizon: deadlineHorizon,
		bribeFraction:   bribeFraction,
		flashLoanFeeBps: flashLoanFeeBps,
		receiptWaiter:   txlistener.NewTxListener(client, txlistener.WithTimeout(receiptWaitTimeout)),
	}
}

// slippageFactorBps picks the minProfit slippage tolerance by the smaller of
// the two legs' active liquidity: deeper books tolerate a tighter floor.
func slippageFactorBps(liquidityA, liquidityB *big.Int) int64 {
	lesser := liquidityA
	if liquidityB.Cmp(lesser) < 0 {
		lesser = liquidityB
	}
	switch {
	case lesser.Cmp(liquidityThresholdHigh) >= 0:
		return 9990 // 99.9%
	case lesser.Cmp(liquidityThresholdLow) >= 0:
		return 9950 // 99.5%
	default:
		return 9500 // 95%
	}
}

// buildPayload prices opp exactly and assembles the unsigned calldata
// payload for it; Submit wraps buildPayload with nonce allocation, signing,
// and broadcast.
func (s *Submitter) buildPayload(opp ArbitrageOpportunity, sellCfg, buyCfg *poolstate.PoolConfig, block BlockContext) (calldata.Payload, error) {
	amountInWei := weiFromWETH(opp.OptimalAmountWETH)
	if amountInWei.Sign() <= 0 {
		return calldata.Payload{}, fmt.Errorf("engine: submit: optimal amount rounds to zero wei")
	}

	legA := pricing.TwoHopLeg{
		SqrtPriceX96: opp.SellSnapshot.SqrtPriceX96,
		Tick:         opp.SellSnapshot.Tick,
		Liquidity:    opp.SellSnapshot.Liquidity,
		TickSpacing:  sellCfg.TickSpacing,
		FeePips:      sellCfg.FeePips(),
		Token0IsWETH: sellCfg.Token0IsWETH,
		Bitmap:       opp.SellSnapshot.TickBitmap,
	}
	legB := pricing.TwoHopLeg{
		SqrtPriceX96: opp.BuySnapshot.SqrtPriceX96,
		Tick:         opp.BuySnapshot.Tick,
		Liquidity:    opp.BuySnapshot.Liquidity,
		TickSpacing:  buyCfg.TickSpacing,
		FeePips:      buyCfg.FeePips(),
		Token0IsWETH: buyCfg.Token0IsWETH,
		Bitmap:       opp.BuySnapshot.TickBitmap,
	}

	exactProfitWei, _, err := pricing.ExactTwoHopProfit(legA, legB, amountInWei, s.flashLoanFeeBps)
	if err != nil {
		return calldata.Payload{}, fmt.Errorf("engine: submit: exact profit: %w", err)
	}
	if exactProfitWei.Sign() <= 0 {
		return calldata.Payload{}, fmt.Errorf("engine: submit: exact profit is non-positive on the current snapshot")
	}

	bps := slippageFactorBps(opp.SellSnapshot.Liquidity, opp.BuySnapshot.Liquidity)
	minProfit := new(big.Int).Mul(exactProfitWei, big.NewInt(bps))
	minProfit.Div(minProfit, big.NewInt(10000))

	dirA, dirB, owed, received := calldata.DirectionTable(sellCfg.Token0IsWETH, buyCfg.Token0IsWETH, s.wethAddr, s.usdcAddr)

	return calldata.Payload{
		PoolA:     sellCfg.Address,
		PoolB:     buyCfg.Address,
		Owed:      owed,
		Received:  received,
		Amount:    amountInWei,
		DirA:      dirA,
		DirB:      dirB,
		MinProfit: minProfit,
		Deadline:  uint32(block.Number + s.deadlineHorizon),
	}, nil
}

// bribePriorityFeeWei converts a USD bribe budget into a per-gas priority
// fee, floored at 1 gwei (§4.8.2).
func bribePriorityFeeWei(expectedProfitUSD, ethPriceUSD, bribeFraction float64, simulatedGas uint64) *big.Int {
	if ethPriceUSD <= 0 || simulatedGas == 0 {
		return new(big.Int).Set(configs.GasPriceFloorWei)
	}
	bribeUSD := bribeFraction * expectedProfitUSD
	bribeEth := bribeUSD / ethPriceUSD
	bribeWei := new(big.Float).Mul(big.NewFloat(bribeEth), new(big.Float).SetInt(weiPerWETH))
	gasWithHeadroom := float64(simulatedGas) * gasLimitHeadroom
	perGas := new(big.Float).Quo(bribeWei, big.NewFloat(gasWithHeadroom))
	perGasInt, _ := perGas.Int(nil)
	if perGasInt == nil || perGasInt.Cmp(configs.GasPriceFloorWei) < 0 {
		return new(big.Int).Set(configs.GasPriceFloorWei)
	}
	return perGasInt
}

func gasLimitWithHeadroom(simulatedGas uint64) uint64 {
	limit := uint64(float64(simulatedGas) * gasLimitHeadroom)
	if limit < minGasLimit {
		return minGasLimit
	}
	return limit
}

// Submit allocates a nonce, builds and signs the transaction, and
// broadcasts it. On any failure before a successful broadcast the nonce is
// rolled back (§4.8.2, §7). The receipt is awaited with a 60s timeout by a
// caller-spawned goroutine so the opportunity loop is never blocked on it.
func (s *Submitter) Submit(ctx context.Context, opp ArbitrageOpportunity, sellCfg, buyCfg *poolstate.PoolConfig, block BlockContext, simulatedGas uint64) SubmissionResult {
	payload, err := s.buildPayload(opp, sellCfg, buyCfg, block)
	if err != nil {
		return SubmissionResult{Success: false, ErrorMessage: err.Error()}
	}

	priorityFee := bribePriorityFeeWei(opp.ExpectedProfitUSD, opp.EthPriceUSD, s.bribeFraction, simulatedGas)
	gasLimit := gasLimitWithHeadroom(simulatedGas)

	feeCap := new(big.Int).Mul(priorityFee, big.NewInt(2))
	if block.BaseFee != nil {
		feeCap = new(big.Int).Add(feeCap, block.BaseFee)
	}

	allocatedNonce := s.nonceMgr.GetAndIncrement()

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     allocatedNonce,
		GasTipCap: priorityFee,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &s.arbContract,
		Value:     big.NewInt(0),
		Data:      calldata.Encode(payload),
	})

	signer := types.LatestSignerForChainID(s.chainID)
	signedTx, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		s.nonceMgr.Rollback()
		return SubmissionResult{Success: false, ErrorMessage: fmt.Sprintf("sign tx: %v", err)}
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		s.nonceMgr.Rollback()
		return SubmissionResult{Success: false, ErrorMessage: fmt.Sprintf("broadcast tx: %v", err)}
	}

	return SubmissionResult{
		Success:     true,
		TxHash:      signedTx.Hash(),
		Nonce:       allocatedNonce,
		GasLimit:    gasLimit,
		PriorityFee: priorityFee,
	}
}

// AwaitReceipt waits (up to 60s) for txHash to be mined. Intended to run in
// a short-lived goroutine spawned per submission so the main loop is never
// blocked on it (§5).
func (s *Submitter) AwaitReceipt(txHash common.Hash) (*types.Receipt, error) {
	return s.receiptWaiter.WaitForTransaction(txHash)
}

func weiFromWETH(amountWETH float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amountWETH), new(big.Float).SetInt(weiPerWETH))
	out, _ := scaled.Int(nil)
	if out == nil {
		return big.NewInt(0)
	}
	return out
}
