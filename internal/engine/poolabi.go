package engine

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// swapSelector is the 4-byte method selector the mempool watcher matches
// against pending transaction calldata (§4.5, §6).
var swapSelector = [4]byte{0x12, 0x8a, 0xcb, 0x08}

// poolABISixFieldJSON and poolABISevenFieldJSON declare only the four
// methods this repo ever calls against a pool contract. They differ solely
// in slot0's shape, mirroring the one-field family distinction
// poolstate.PoolConfig models (§4.5, §6): the seven-field variant carries
// an extra protocol-fee byte ahead of the lock flag.
const poolABISixFieldJSON = `[
	{"name":"slot0","type":"function","stateMutability":"view","inputs":[],"outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"unlocked","type":"bool"}
	]},
	{"name":"liquidity","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint128"}]},
	{"name":"ticks","type":"function","stateMutability":"view","inputs":[{"name":"tick","type":"int24"}],"outputs":[
		{"name":"liquidityGross","type":"uint128"},
		{"name":"liquidityNet","type":"int128"},
		{"name":"feeGrowthOutside0X128","type":"uint256"},
		{"name":"feeGrowthOutside1X128","type":"uint256"},
		{"name":"tickCumulativeOutside","type":"int56"},
		{"name":"secondsPerLiquidityOutsideX128","type":"uint160"},
		{"name":"secondsOutside","type":"uint32"},
		{"name":"initialized","type":"bool"}
	]},
	{"name":"tickBitmap","type":"function","stateMutability":"view","inputs":[{"name":"word","type":"int16"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const poolABISevenFieldJSON = `[
	{"name":"slot0","type":"function","stateMutability":"view","inputs":[],"outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}
	]},
	{"name":"liquidity","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint128"}]},
	{"name":"ticks","type":"function","stateMutability":"view","inputs":[{"name":"tick","type":"int24"}],"outputs":[
		{"name":"liquidityGross","type":"uint128"},
		{"name":"liquidityNet","type":"int128"},
		{"name":"feeGrowthOutside0X128","type":"uint256"},
		{"name":"feeGrowthOutside1X128","type":"uint256"},
		{"name":"tickCumulativeOutside","type":"int56"},
		{"name":"secondsPerLiquidityOutsideX128","type":"uint160"},
		{"name":"secondsOutside","type":"uint32"},
		{"name":"initialized","type":"bool"}
	]},
	{"name":"tickBitmap","type":"function","stateMutability":"view","inputs":[{"name":"word","type":"int16"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var poolABISixField, poolABISevenField abi.ABI

func init() {
	var err error
	poolABISixField, err = abi.JSON(strings.NewReader(poolABISixFieldJSON))
	if err != nil {
		panic(fmt.Sprintf("engine: invalid embedded six-field pool ABI: %v", err))
	}
	poolABISevenField, err = abi.JSON(strings.NewReader(poolABISevenFieldJSON))
	if err != nil {
		panic(fmt.Sprintf("engine: invalid embedded seven-field pool ABI: %v", err))
	}
}
