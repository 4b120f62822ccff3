package pricing

import (
	"errors"
	"math/big"

	"github.com/ChoSanghyuk/clarb/pkg/fixedpoint"
	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
)

// maxCrossings bounds a single exact multi-tick swap; the on-chain contract
// has no such cap, but an off-chain simulator walking a possibly-stale
// bitmap must terminate.
const maxCrossings = 50

const feePipsDenominator = 1_000_000

// StepResult is the outcome of one exact swap step within a single
// initialized-tick range.
type StepResult struct {
	SqrtPriceNext *big.Int
	AmountIn      *big.Int
	AmountOut     *big.Int
	FeeAmount     *big.Int
}

// ComputeSwapStep mirrors the on-chain swap-step function for an exact-input
// leg: given the current and target sqrt prices, the active liquidity, and
// the remaining input, it returns the largest input consumable without
// overshooting the target, the resulting output, the fee charged (such that
// input+fee <= amountRemaining), and the resulting sqrt price.
func ComputeSwapStep(sqrtCurrent, sqrtTarget, liquidity, amountRemaining *big.Int, feePips uint32) (StepResult, error) {
	if liquidity.Sign() <= 0 || amountRemaining.Sign() <= 0 {
		return StepResult{SqrtPriceNext: sqrtCurrent, AmountIn: big.NewInt(0), AmountOut: big.NewInt(0), FeeAmount: big.NewInt(0)}, nil
	}
	zeroForOne := sqrtCurrent.Cmp(sqrtTarget) >= 0

	feeDenom := big.NewInt(int64(feePipsDenominator) - int64(feePips))
	amountRemainingLessFee, err := fixedpoint.MulDiv(amountRemaining, feeDenom, big.NewInt(feePipsDenominator))
	if err != nil {
		return StepResult{}, err
	}

	var amountIn *big.Int
	if zeroForOne {
		amountIn, err = getAmount0Delta(sqrtTarget, sqrtCurrent, liquidity, true)
	} else {
		amountIn, err = getAmount1Delta(sqrtCurrent, sqrtTarget, liquidity, true)
	}
	if err != nil {
		return StepResult{}, err
	}

	var sqrtNext *big.Int
	reachedTarget := amountRemainingLessFee.Cmp(amountIn) >= 0
	if reachedTarget {
		sqrtNext = sqrtTarget
	} else {
		sqrtNext, err = getNextSqrtPriceFromInput(sqrtCurrent, liquidity, amountRemainingLessFee, zeroForOne)
		if err != nil {
			return StepResult{}, err
		}
	}

	var amountOut *big.Int
	if zeroForOne {
		if !reachedTarget {
			amountIn, err = getAmount0Delta(sqrtNext, sqrtCurrent, liquidity, true)
			if err != nil {
				return StepResult{}, err
			}
		}
		amountOut, err = getAmount1Delta(sqrtNext, sqrtCurrent, liquidity, false)
	} else {
		if !reachedTarget {
			amountIn, err = getAmount1Delta(sqrtCurrent, sqrtNext, liquidity, true)
			if err != nil {
				return StepResult{}, err
			}
		}
		amountOut, err = getAmount0Delta(sqrtCurrent, sqrtNext, liquidity, false)
	}
	if err != nil {
		return StepResult{}, err
	}

	var feeAmount *big.Int
	if !reachedTarget {
		feeAmount = new(big.Int).Sub(amountRemaining, amountIn)
	} else {
		feeAmount, err = fixedpoint.MulDivRoundingUp(amountIn, big.NewInt(int64(feePips)), feeDenom)
		if err != nil {
			return StepResult{}, err
		}
	}

	return StepResult{SqrtPriceNext: sqrtNext, AmountIn: amountIn, AmountOut: amountOut, FeeAmount: feeAmount}, nil
}

// getAmount0Delta returns the token0 delta for a move between sqrtA < sqrtB,
// equal to liquidity * (sqrtB - sqrtA) * Q96 / (sqrtA * sqrtB).
func getAmount0Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	if sqrtA.Sign() == 0 || sqrtB.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtB, sqrtA)

	if roundUp {
		inner, err := fixedpoint.MulDivRoundingUp(numerator1, numerator2, sqrtB)
		if err != nil {
			return nil, err
		}
		return fixedpoint.DivRoundingUp(inner, sqrtA)
	}
	num, err := fixedpoint.MulDiv(numerator1, numerator2, sqrtB)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Div(num, sqrtA), nil
}

// getAmount1Delta returns the token1 delta for a move between sqrtA < sqrtB,
// equal to liquidity * (sqrtB - sqrtA) / Q96.
func getAmount1Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return fixedpoint.MulDivRoundingUp(liquidity, diff, fixedpoint.Q96)
	}
	return fixedpoint.MulDiv(liquidity, diff, fixedpoint.Q96)
}

// getNextSqrtPriceFromInput computes the sqrt price reached after consuming
// amountIn of the input token against liquidity, exact-input only.
func getNextSqrtPriceFromInput(sqrtPriceX96, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if zeroForOne {
		return getNextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amountIn)
	}
	return getNextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amountIn)
}

func getNextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amount *big.Int) (*big.Int, error) {
	if amount.Sign() == 0 {
		return sqrtPriceX96, nil
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtPriceX96)
	denominator := new(big.Int).Add(numerator1, product)
	if denominator.Cmp(numerator1) >= 0 {
		return fixedpoint.MulDivRoundingUp(numerator1, sqrtPriceX96, denominator)
	}
	quotient := new(big.Int).Div(numerator1, sqrtPriceX96)
	divisor := new(big.Int).Add(quotient, amount)
	return fixedpoint.DivRoundingUp(numerator1, divisor)
}

func getNextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amount *big.Int) (*big.Int, error) {
	quotient, err := fixedpoint.MulDiv(amount, fixedpoint.Q96, liquidity)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(sqrtPriceX96, quotient), nil
}

// ExactSwapResult is the outcome of a full multi-tick exact swap.
type ExactSwapResult struct {
	AmountOut      *big.Int
	SqrtPriceAfter *big.Int
	TickAfter      int
	Crossings      int
}

// ExactSwap mirrors the on-chain swap loop: repeatedly calls ComputeSwapStep,
// applying liquidityNet on each boundary crossing, until amountIn is
// exhausted or maxCrossings is reached. Without a bitmap it treats the pool
// as a single infinite range (no crossings possible).
func ExactSwap(sqrtPriceX96 *big.Int, currentTick int, liquidity *big.Int, tickSpacing int, feePips uint32, amountIn *big.Int, zeroForOne bool, bitmap *poolstate.TickBitmapData) (ExactSwapResult, error) {
	if amountIn.Sign() <= 0 || liquidity.Sign() <= 0 {
		return ExactSwapResult{AmountOut: big.NewInt(0), SqrtPriceAfter: sqrtPriceX96, TickAfter: currentTick}, nil
	}

	remaining := new(big.Int).Set(amountIn)
	totalOut := big.NewInt(0)
	curSqrt := sqrtPriceX96
	curTick := currentTick
	curLiquidity := new(big.Int).Set(liquidity)
	crossings := 0

	boundTarget, err := extremeSqrtRatio(zeroForOne)
	if err != nil {
		return ExactSwapResult{}, err
	}

	for remaining.Sign() > 0 && crossings < maxCrossings {
		target := boundTarget
		nextTick, found := nextInitializedTick(bitmap, curTick, tickSpacing, zeroForOne)
		if found {
			t, err := fixedpoint.GetSqrtRatioAtTick(nextTick)
			if err != nil {
				return ExactSwapResult{}, err
			}
			target = t
		}

		step, err := ComputeSwapStep(curSqrt, target, curLiquidity, remaining, feePips)
		if err != nil {
			return ExactSwapResult{}, err
		}

		consumed := new(big.Int).Add(step.AmountIn, step.FeeAmount)
		remaining = new(big.Int).Sub(remaining, consumed)
		if remaining.Sign() < 0 {
			remaining = big.NewInt(0)
		}
		totalOut = new(big.Int).Add(totalOut, step.AmountOut)
		curSqrt = step.SqrtPriceNext

		if found && curSqrt.Cmp(target) == 0 {
			if info, ok := bitmap.Ticks[nextTick]; ok && info.LiquidityNet != nil {
				delta := new(big.Int).Set(info.LiquidityNet)
				if zeroForOne {
					delta = new(big.Int).Neg(delta)
				}
				curLiquidity = new(big.Int).Add(curLiquidity, delta)
				if curLiquidity.Sign() < 0 {
					curLiquidity = big.NewInt(0)
				}
			}
			if zeroForOne {
				curTick = nextTick - 1
			} else {
				curTick = nextTick
			}
			crossings++
			continue
		}
		break
	}

	tickAfter, err := fixedpoint.GetTickAtSqrtRatio(curSqrt)
	if err != nil {
		tickAfter = curTick
	}

	return ExactSwapResult{AmountOut: totalOut, SqrtPriceAfter: curSqrt, TickAfter: tickAfter, Crossings: crossings}, nil
}

func extremeSqrtRatio(zeroForOne bool) (*big.Int, error) {
	if zeroForOne {
		return fixedpoint.GetSqrtRatioAtTick(fixedpoint.MinTick + 1)
	}
	return fixedpoint.GetSqrtRatioAtTick(fixedpoint.MaxTick - 1)
}

func nextInitializedTick(bitmap *poolstate.TickBitmapData, currentTick, tickSpacing int, zeroForOne bool) (int, bool) {
	if bitmap == nil {
		return 0, false
	}
	best := 0
	found := false
	for t, info := range bitmap.Ticks {
		if !info.Initialized {
			continue
		}
		if zeroForOne {
			if t <= currentTick && (!found || t > best) {
				best, found = t, true
			}
		} else {
			if t > currentTick && (!found || t < best) {
				best, found = t, true
			}
		}
	}
	return best, found
}

// TwoHopLeg is the per-pool input to an exact two-hop profit calculation.
type TwoHopLeg struct {
	SqrtPriceX96 *big.Int
	Tick         int
	Liquidity    *big.Int
	TickSpacing  int
	FeePips      uint32
	Token0IsWETH bool
	Bitmap       *poolstate.TickBitmapData
}

// swapDirection resolves the zeroForOne flag for a leg given whether WETH is
// the input token, using the pool's token0IsWETH flag. This is the only
// place direction is derived for a leg; the calldata codec's table (§4.7)
// consumes the same two booleans independently but must agree with it.
func swapDirection(leg TwoHopLeg, wethIn bool) bool {
	if wethIn {
		return leg.Token0IsWETH
	}
	return !leg.Token0IsWETH
}

// ErrNonPositiveAmount is returned when a profit calculation is asked to
// size a non-positive trade.
var ErrNonPositiveAmount = errors.New("pricing: amount must be positive")

// ExactTwoHopProfit composes an exact swap through legA (borrowing WETH,
// receiving the intermediate asset) and legB (selling the intermediate
// asset back into WETH), then subtracts the flash-loan principal and fee.
// The flash-loan fee is folded into the comparison on the second leg, as
// the minProfit field in outgoing calldata must be. Returns the profit in
// WETH wei (may be negative) and the intermediate amount received from legA.
func ExactTwoHopProfit(legA, legB TwoHopLeg, amountInWeth *big.Int, flashLoanFeeBps int) (profit *big.Int, intermediateAmount *big.Int, err error) {
	if amountInWeth.Sign() <= 0 {
		return nil, nil, ErrNonPositiveAmount
	}

	dirA := swapDirection(legA, true)
	legAResult, err := ExactSwap(legA.SqrtPriceX96, legA.Tick, legA.Liquidity, legA.TickSpacing, legA.FeePips, amountInWeth, dirA, legA.Bitmap)
	if err != nil {
		return nil, nil, err
	}

	dirB := swapDirection(legB, false)
	legBResult, err := ExactSwap(legB.SqrtPriceX96, legB.Tick, legB.Liquidity, legB.TickSpacing, legB.FeePips, legAResult.AmountOut, dirB, legB.Bitmap)
	if err != nil {
		return nil, nil, err
	}

	repayment, err := flashLoanRepayment(amountInWeth, flashLoanFeeBps)
	if err != nil {
		return nil, nil, err
	}

	profit = new(big.Int).Sub(legBResult.AmountOut, repayment)
	return profit, legAResult.AmountOut, nil
}

// flashLoanRepayment returns principal + ceil(principal*feeBps/10000).
func flashLoanRepayment(principal *big.Int, feeBps int) (*big.Int, error) {
	fee, err := fixedpoint.MulDivRoundingUp(principal, big.NewInt(int64(feeBps)), big.NewInt(10000))
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(principal, fee), nil
}
