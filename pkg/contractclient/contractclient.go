// Package contractclient wraps a single on-chain contract behind a small,
// reusable surface: read-only calls, transaction submission, receipt
// waiting, and raw calldata decoding keyed off the contract's own ABI.
package contractclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractClient binds one contract address and ABI to a client connection.
type ContractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
}

// NewContractClient builds a client for the contract at address, using
// contractABI for call/transaction encoding and decoding.
func NewContractClient(client *ethclient.Client, address common.Address, contractABI abi.ABI) *ContractClient {
	bound := bind.NewBoundContract(address, contractABI, client, client, client)
	return &ContractClient{
		client:  client,
		address: address,
		abi:     contractABI,
		bound:   bound,
	}
}

// Abi returns the contract's parsed ABI.
func (c *ContractClient) Abi() abi.ABI {
	return c.abi
}

// ContractAddress returns the bound contract's address.
func (c *ContractClient) ContractAddress() common.Address {
	return c.address
}

// Call invokes a read-only method. caller may be nil to call as the zero
// address.
func (c *ContractClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	opts := &bind.CallOpts{}
	if caller != nil {
		opts.From = *caller
	}
	var out []interface{}
	if err := c.bound.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("contractclient: call %s: %w", method, err)
	}
	return out, nil
}

// Send submits a state-changing transaction, signed and nonce-assigned by
// auth.
func (c *ContractClient) Send(auth *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	tx, err := c.bound.Transact(auth, method, args...)
	if err != nil {
		return nil, fmt.Errorf("contractclient: send %s: %w", method, err)
	}
	return tx, nil
}

// ParseReceipt blocks until tx is mined and returns its receipt.
func (c *ContractClient) ParseReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return nil, fmt.Errorf("contractclient: wait mined: %w", err)
	}
	return receipt, nil
}

// TransactionData fetches a previously broadcast transaction's calldata by
// hash.
func (c *ContractClient) TransactionData(hash common.Hash) ([]byte, error) {
	tx, _, err := c.client.TransactionByHash(context.Background(), hash)
	if err != nil {
		return nil, fmt.Errorf("contractclient: fetch tx %s: %w", hash, err)
	}
	return tx.Data(), nil
}

// DecodedTx is the decoded form of a raw calldata payload.
type DecodedTx struct {
	MethodName string
	Args       map[string]interface{}
}

var errCalldataTooShort = errors.New("contractclient: calldata shorter than a 4-byte selector")

// DecodeTransaction identifies the method selector in data and unpacks its
// arguments against the bound ABI.
func (c *ContractClient) DecodeTransaction(data []byte) (*DecodedTx, error) {
	if len(data) < 4 {
		return nil, errCalldataTooShort
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("contractclient: unknown selector: %w", err)
	}
	args := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("contractclient: unpack %s args: %w", method.Name, err)
	}
	return &DecodedTx{MethodName: method.Name, Args: args}, nil
}
