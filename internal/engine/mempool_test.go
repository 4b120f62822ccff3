package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/ChoSanghyuk/clarb/pkg/poolstate"
)

func txTo(to *common.Address, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce: 0,
		To:    to,
		Value: big.NewInt(0),
		Gas:   21000,
		Data:  data,
	})
}

func TestHandlePendingTxIgnoresContractCreation(t *testing.T) {
	s := &Syncer{}
	store := poolstate.NewStore(nil)
	// Must not panic despite the empty store: contract-creation txs (nil To)
	// are rejected before any pool lookup happens.
	s.handlePendingTx(context.Background(), store, txTo(nil, swapSelector[:]))
}

func TestHandlePendingTxIgnoresShortCalldata(t *testing.T) {
	s := &Syncer{}
	store := poolstate.NewStore(nil)
	addr := common.HexToAddress("0x1")
	s.handlePendingTx(context.Background(), store, txTo(&addr, []byte{0x01, 0x02}))
}

func TestHandlePendingTxIgnoresNonSwapSelector(t *testing.T) {
	s := &Syncer{}
	addr := common.HexToAddress("0x1")
	cfg := &poolstate.PoolConfig{Address: addr, Name: "a", FeeBps: 5, TickSpacing: 60}
	store := poolstate.NewStore([]*poolstate.PoolConfig{cfg})

	otherSelector := []byte{0x00, 0x00, 0x00, 0x00}
	s.handlePendingTx(context.Background(), store, txTo(&addr, otherSelector))
}

func TestHandlePendingTxIgnoresUnwatchedAddress(t *testing.T) {
	s := &Syncer{}
	watched := common.HexToAddress("0x1")
	unwatched := common.HexToAddress("0x2")
	cfg := &poolstate.PoolConfig{Address: watched, Name: "a", FeeBps: 5, TickSpacing: 60}
	store := poolstate.NewStore([]*poolstate.PoolConfig{cfg})

	s.handlePendingTx(context.Background(), store, txTo(&unwatched, swapSelector[:]))
}

func TestSqrtX96ToRatioFloatMatchesPoolstateConvention(t *testing.T) {
	// Same raw-ratio convention as pkg/poolstate's sqrtRatioToFloat: both
	// divide the Q64.96 integer down by 2^96, never by Q192.
	x96 := sqrtX96FromUSDPerETH(2000)
	ratio := sqrtX96ToRatioFloat(x96)
	assert.InDelta(t, 2000.0/1e12, ratio*ratio, 1e-9)
}
