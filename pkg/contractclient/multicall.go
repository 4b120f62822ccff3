package contractclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// multicall3ABIJSON declares only the one method this repo calls. The real
// Multicall3 contract exposes many more; there is no reason to parse ABI
// this package never uses.
const multicall3ABIJSON = `[{
	"inputs": [{
		"components": [
			{"internalType": "address", "name": "target", "type": "address"},
			{"internalType": "bool", "name": "allowFailure", "type": "bool"},
			{"internalType": "bytes", "name": "callData", "type": "bytes"}
		],
		"internalType": "struct Multicall3.Call3[]",
		"name": "calls",
		"type": "tuple[]"
	}],
	"name": "aggregate3",
	"outputs": [{
		"components": [
			{"internalType": "bool", "name": "success", "type": "bool"},
			{"internalType": "bytes", "name": "returnData", "type": "bytes"}
		],
		"internalType": "struct Multicall3.Result[]",
		"name": "returnData",
		"type": "tuple[]"
	}],
	"stateMutability": "payable",
	"type": "function"
}]`

var multicall3ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(multicall3ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("contractclient: invalid embedded multicall3 ABI: %v", err))
	}
	multicall3ABI = parsed
}

// Call3 is one leg of a batched read, mirroring Multicall3.Call3.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result3 is one leg's outcome, mirroring Multicall3.Result.
type Result3 struct {
	Success    bool
	ReturnData []byte
}

// call3Tuple and result3Tuple exist only because go-ethereum's ABI packer
// requires the Go struct field order and names to match the tuple
// components exactly for anonymous struct decoding.
type call3Tuple struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type result3Tuple struct {
	Success    bool
	ReturnData []byte
}

// Aggregate3 batches many read-only calls into a single eth_call against a
// Multicall3 deployment, the decisive move that keeps a full tick-bitmap
// refresh to two network round-trips per pool regardless of scan range.
func Aggregate3(ctx context.Context, client *ethclient.Client, multicallAddr common.Address, calls []Call3) ([]Result3, error) {
	tuples := make([]call3Tuple, len(calls))
	for i, c := range calls {
		tuples[i] = call3Tuple{Target: c.Target, AllowFailure: c.AllowFailure, CallData: c.CallData}
	}

	input, err := multicall3ABI.Pack("aggregate3", tuples)
	if err != nil {
		return nil, fmt.Errorf("contractclient: pack aggregate3: %w", err)
	}

	msg := ethereum.CallMsg{To: &multicallAddr, Data: input}
	out, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("contractclient: aggregate3 call: %w", err)
	}

	unpacked, err := multicall3ABI.Unpack("aggregate3", out)
	if err != nil {
		return nil, fmt.Errorf("contractclient: unpack aggregate3 result: %w", err)
	}
	if len(unpacked) != 1 {
		return nil, fmt.Errorf("contractclient: aggregate3 returned %d values, want 1", len(unpacked))
	}

	// The decoder returns a slice of an anonymous (json-tagged) struct type,
	// so it is copied field by field into result3Tuple rather than asserted.
	raw, ok := abi.ConvertType(unpacked[0], new([]result3Tuple)).(*[]result3Tuple)
	if !ok {
		return nil, fmt.Errorf("contractclient: aggregate3 result has unexpected type %T", unpacked[0])
	}

	results := make([]Result3, len(*raw))
	for i, r := range *raw {
		results[i] = Result3{Success: r.Success, ReturnData: r.ReturnData}
	}
	return results, nil
}
