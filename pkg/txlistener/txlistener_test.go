package txlistener

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
)

func TestNewTxListenerDefaults(t *testing.T) {
	l := NewTxListener((*ethclient.Client)(nil))
	assert.Equal(t, defaultPollInterval, l.pollInterval)
	assert.Equal(t, defaultTimeout, l.timeout)
}

func TestNewTxListenerAppliesOptions(t *testing.T) {
	l := NewTxListener((*ethclient.Client)(nil), WithPollInterval(2*time.Second), WithTimeout(90*time.Second))
	assert.Equal(t, 2*time.Second, l.pollInterval)
	assert.Equal(t, 90*time.Second, l.timeout)
}
