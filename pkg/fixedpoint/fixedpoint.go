// Package fixedpoint implements the 256-bit fixed-point arithmetic that the
// exact pricing path is built on: directed-rounding mul-div and the
// tick<->sqrtPriceX96 conversion ladder used by every CL pool contract.
package fixedpoint

import (
	"errors"
	"math/big"
)

// MinTick and MaxTick bound the legal range of a CL tick index.
const (
	MinTick = -887272
	MaxTick = 887272
)

var (
	// Q96 is 2^96, the fixed-point scale of a sqrtPriceX96 value.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Q128 is 2^128, the scale used by fee-growth and ladder intermediates.
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	errDivByZero = errors.New("fixedpoint: division by zero")
)

// MulDiv computes floor(a*b/c) exactly, using a 512-bit-capable intermediate.
// c must be strictly positive.
func MulDiv(a, b, c *big.Int) (*big.Int, error) {
	if c.Sign() <= 0 {
		return nil, errDivByZero
	}
	prod := new(big.Int).Mul(a, b)
	return new(big.Int).Div(prod, c), nil
}

// MulDivRoundingUp computes ceil(a*b/c). c must be strictly positive.
func MulDivRoundingUp(a, b, c *big.Int) (*big.Int, error) {
	result, err := MulDiv(a, b, c)
	if err != nil {
		return nil, err
	}
	prod := new(big.Int).Mul(a, b)
	rem := new(big.Int).Mod(prod, c)
	if rem.Sign() != 0 {
		result = new(big.Int).Add(result, big.NewInt(1))
	}
	return result, nil
}

// DivRoundingUp computes ceil(a/b). b must be strictly positive.
func DivRoundingUp(a, b *big.Int) (*big.Int, error) {
	if b.Sign() <= 0 {
		return nil, errDivByZero
	}
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q = new(big.Int).Add(q, big.NewInt(1))
	}
	return q, nil
}

// ladder holds the 20 magic Q128.128 constants used to build up
// 1.0001^(|tick|/2) bit by bit, matching the on-chain reference
// implementation's product ladder bit-for-bit.
var ladder = [20]string{
	"0xfffcb933bd6fad37aa2d162d1a594001",
	"0xfff97272373d413259a46990580e213a",
	"0xfff2e50f5f656932ef12357cf3c7fdcc",
	"0xffe5caca7e10e4e61c3624eaa0941cd0",
	"0xffcb9843d60f6159c9db58835c926644",
	"0xff973b41fa98c081472e6896dfb254c0",
	"0xff2ea16466c96a3843ec78b326b52861",
	"0xfe5dee046a99a2a811c461f1969c3053",
	"0xfcbe86c7900a88aedcffc83b479aa3a4",
	"0xf987a7253ac413176f2b074cf7815e54",
	"0xf3392b0822b70005940c7a398e4b70f3",
	"0xe7159475a2c29b7443b29c7fa6e889d9",
	"0xd097f3bdfd2022b8845ad8f792aa5825",
	"0xa9f746462d870fdf8a65dc1f90e061e5",
	"0x70d869a156d2a1b890bb3df62baf32f7",
	"0x31be135f97d08fd981231505542fcfa6",
	"0x9aa508b5b7a84e1c677de54f3e99bc9",
	"0x5d6af8dedb81196699c329225ee604",
	"0x2216e584f5fa1ea926041bedfe98",
	"0x48a170391f7dc42444e8fa2",
}

var ladderInt [20]*big.Int

func init() {
	for i, s := range ladder {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			panic("fixedpoint: bad ladder constant " + s)
		}
		ladderInt[i] = v
	}
}

// GetSqrtRatioAtTick computes the sqrt-price at tick as a Q64.96 value
// embedded in a 256-bit integer (the top bits are always zero since the
// result fits in 160 bits for the legal tick range). It agrees bit-exactly
// with the on-chain TickMath ladder over |tick| <= MaxTick.
func GetSqrtRatioAtTick(tick int) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, errors.New("fixedpoint: tick out of range")
	}
	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	var ratio *big.Int
	if absTick&0x1 != 0 {
		ratio = new(big.Int).Set(ladderInt[0])
	} else {
		ratio = new(big.Int).Lsh(big.NewInt(1), 128)
	}

	for i := 1; i < 20; i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio = new(big.Int).Rsh(new(big.Int).Mul(ratio, ladderInt[i]), 128)
		}
	}

	if tick > 0 {
		ratio = new(big.Int).Div(maxUint256, ratio)
	}

	// Downshift Q128.128 -> Q64.96, rounding up so GetTickAtSqrtRatio of the
	// result is always consistent.
	shifted := new(big.Int).Rsh(ratio, 32)
	rem := new(big.Int).And(ratio, big.NewInt((1<<32)-1))
	if rem.Sign() != 0 {
		shifted = new(big.Int).Add(shifted, big.NewInt(1))
	}
	return shifted, nil
}

// GetTickAtSqrtRatio returns the greatest tick whose sqrt-price is less than
// or equal to sqrtPriceX96. GetSqrtRatioAtTick is strictly monotone in tick,
// so a binary search over the legal range is exact (not merely within ±1)
// and avoids reproducing the ladder's bit-counting inverse.
func GetTickAtSqrtRatio(sqrtPriceX96 *big.Int) (int, error) {
	if sqrtPriceX96.Sign() <= 0 {
		return 0, errors.New("fixedpoint: sqrtPriceX96 must be positive")
	}
	lo, hi := MinTick, MaxTick
	loRatio, err := GetSqrtRatioAtTick(lo)
	if err != nil {
		return 0, err
	}
	if sqrtPriceX96.Cmp(loRatio) <= 0 {
		return lo, nil
	}
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		midRatio, err := GetSqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if midRatio.Cmp(sqrtPriceX96) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// CompressTick performs the floor-division-for-negatives compression used to
// turn a tick into a tick-bitmap word index: compressed = floor(tick/spacing).
func CompressTick(tick, spacing int) int {
	q := tick / spacing
	if tick%spacing != 0 && (tick < 0) != (spacing < 0) {
		q--
	}
	return q
}

// WordPos splits a compressed tick into its bitmap word index and the bit
// position within that word (compressed >> 8, compressed & 255).
func WordPos(compressed int) (word int16, bit uint8) {
	w := compressed >> 8
	b := compressed & 0xff
	return int16(w), uint8(b)
}
