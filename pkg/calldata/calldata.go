// Package calldata encodes and decodes the fixed-width wire payload sent to
// the arbitrage contract. The codec is pure: it never allocates outside its
// return buffer, and it never looks at chain state.
package calldata

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PayloadLen is the exact encoded length in bytes.
const PayloadLen = 134

const (
	offPoolA     = 0
	offPoolB     = 20
	offOwed      = 40
	offReceived  = 60
	offAmount    = 80
	offDirA      = 112
	offDirB      = 113
	offMinProfit = 114
	offDeadline  = 130

	widthAddr      = 20
	widthAmount    = 32
	widthDir       = 1
	widthMinProfit = 16
	widthDeadline  = 4
)

// Payload is the decoded form of the 134-byte wire format.
type Payload struct {
	PoolA     common.Address
	PoolB     common.Address
	Owed      common.Address
	Received  common.Address
	Amount    *big.Int // 256-bit, big-endian
	DirA      byte     // 0 or 1
	DirB      byte     // 0 or 1
	MinProfit *big.Int // 128-bit, big-endian, units of Owed
	Deadline  uint32   // block number
}

// directionRow is one row of the (dirA, dirB, OwedIsWETH) table keyed by
// (poolAToken0IsWETH, poolBToken0IsWETH). Leg A always flash-borrows WETH
// and swaps it for the counter-asset; leg B swaps the counter-asset back
// into WETH to repay the loan. dirA=0 means leg A swaps token0 in; dirB=0
// means leg B swaps token0 in. OwedIsWETH is constant across every row in
// this always-WETH-denominated design, but lives in the table (not beside
// it) so a caller can never derive owed/received independently of
// dirA/dirB and have the two drift out of sync (spec's named failure mode).
type directionRow struct {
	DirA, DirB byte
	OwedIsWETH bool
}

var directionTable = [4]directionRow{
	{DirA: 0, DirB: 1, OwedIsWETH: true}, // A token0=WETH, B token0=WETH
	{DirA: 0, DirB: 0, OwedIsWETH: true}, // A token0=WETH, B token0=USDC
	{DirA: 1, DirB: 1, OwedIsWETH: true}, // A token0=USDC, B token0=WETH
	{DirA: 1, DirB: 0, OwedIsWETH: true}, // A token0=USDC, B token0=USDC
}

func directionRowIndex(poolAToken0IsWETH, poolBToken0IsWETH bool) int {
	idx := 0
	if !poolAToken0IsWETH {
		idx |= 2
	}
	if !poolBToken0IsWETH {
		idx |= 1
	}
	return idx
}

// DirectionTable derives the full (dirA, dirB, owed, received) quadruple
// from a single four-row table keyed on whether each pool's token0 is
// WETH, so the simulator and submitter can never assign owed/received
// independently of direction and disagree with each other.
func DirectionTable(poolAToken0IsWETH, poolBToken0IsWETH bool, wethAddr, usdcAddr common.Address) (dirA, dirB byte, owed, received common.Address) {
	row := directionTable[directionRowIndex(poolAToken0IsWETH, poolBToken0IsWETH)]
	owed, received = usdcAddr, wethAddr
	if row.OwedIsWETH {
		owed, received = wethAddr, usdcAddr
	}
	return row.DirA, row.DirB, owed, received
}

// Encode concatenates the payload fields into a 134-byte buffer. It panics
// if Amount or MinProfit do not fit their fixed widths (256 and 128 bits
// respectively) — the caller is expected to have already bounds-checked
// these against realistic trade sizes before calling.
func Encode(p Payload) []byte {
	buf := make([]byte, PayloadLen)

	copy(buf[offPoolA:offPoolA+widthAddr], p.PoolA.Bytes())
	copy(buf[offPoolB:offPoolB+widthAddr], p.PoolB.Bytes())
	copy(buf[offOwed:offOwed+widthAddr], p.Owed.Bytes())
	copy(buf[offReceived:offReceived+widthAddr], p.Received.Bytes())

	amount := p.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	amount.FillBytes(buf[offAmount : offAmount+widthAmount])

	buf[offDirA] = p.DirA
	buf[offDirB] = p.DirB

	minProfit := p.MinProfit
	if minProfit == nil {
		minProfit = big.NewInt(0)
	}
	minProfit.FillBytes(buf[offMinProfit : offMinProfit+widthMinProfit])

	buf[offDeadline] = byte(p.Deadline >> 24)
	buf[offDeadline+1] = byte(p.Deadline >> 16)
	buf[offDeadline+2] = byte(p.Deadline >> 8)
	buf[offDeadline+3] = byte(p.Deadline)

	return buf
}

// Decode parses a 134-byte payload. ok is false (and the result is the zero
// Payload) for any input whose length is not exactly 134.
func Decode(cd []byte) (Payload, bool) {
	if len(cd) != PayloadLen {
		return Payload{}, false
	}

	p := Payload{
		PoolA:     common.BytesToAddress(cd[offPoolA : offPoolA+widthAddr]),
		PoolB:     common.BytesToAddress(cd[offPoolB : offPoolB+widthAddr]),
		Owed:      common.BytesToAddress(cd[offOwed : offOwed+widthAddr]),
		Received:  common.BytesToAddress(cd[offReceived : offReceived+widthAddr]),
		Amount:    new(big.Int).SetBytes(cd[offAmount : offAmount+widthAmount]),
		DirA:      cd[offDirA],
		DirB:      cd[offDirB],
		MinProfit: new(big.Int).SetBytes(cd[offMinProfit : offMinProfit+widthMinProfit]),
		Deadline:  uint32(cd[offDeadline])<<24 | uint32(cd[offDeadline+1])<<16 | uint32(cd[offDeadline+2])<<8 | uint32(cd[offDeadline+3]),
	}
	return p, true
}
