// Package txlistener polls for transaction receipts without requiring a
// websocket subscription, so it works the same way against any RPC
// endpoint.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultTimeout      = 5 * time.Minute
)

// ErrTimeout is returned when a transaction's receipt does not appear
// within the configured timeout.
var ErrTimeout = errors.New("txlistener: timed out waiting for transaction receipt")

// TxListener waits for transaction receipts by polling.
type TxListener struct {
	client       *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a TxListener.
type Option func(*TxListener)

// WithPollInterval sets how often the listener polls for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout sets the maximum time WaitForTransaction will wait before
// returning ErrTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// NewTxListener builds a listener against client, applying any options
// over the defaults (3s poll interval, 5m timeout).
func NewTxListener(client *ethclient.Client, opts ...Option) *TxListener {
	l := &TxListener{
		client:       client,
		pollInterval: defaultPollInterval,
		timeout:      defaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction polls until txHash has a mined receipt, the listener's
// timeout elapses, or the transaction reverted — in which case the
// receipt is still returned (status 0) alongside a nil error, matching
// ethclient's own convention that a revert is a chain outcome, not a
// transport failure.
func (l *TxListener) WaitForTransaction(txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("txlistener: fetch receipt for %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}
