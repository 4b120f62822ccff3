package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RPC_WS_URL", "ws://localhost:8546")
	t.Setenv("RPC_HTTP_URL", "http://localhost:8545")
	t.Setenv("SIGNER_PRIVATE_KEY", "deadbeef")
	t.Setenv("ARB_CONTRACT_ADDRESS", "0x0000000000000000000000000000000000000001")
	t.Setenv("CHAIN_ID", "8453")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, TransportAuto, cfg.Transport)
	assert.Equal(t, 5, cfg.FlashLoanFeeBps)
	assert.Equal(t, 3, cfg.CircuitBreakerLimit)
	assert.False(t, cfg.ExecutionEnabled)
	assert.Equal(t, defaultMulticall3Address, cfg.MulticallAddress.Hex())
}

func TestLoadRejectsMissingWebsocketURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RPC_WS_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsPlaceholderSigner(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SIGNER_PRIVATE_KEY", "CHANGEME")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadTransport(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRANSPORT", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBribeFractionOutOfRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRIBE_FRACTION", "1.5")

	_, err := Load()
	assert.Error(t, err)
}

func TestPoolConfigsDefaultToDistinctNames(t *testing.T) {
	t.Setenv("POOL_A_ADDRESS", "0x0000000000000000000000000000000000000011")
	t.Setenv("POOL_B_ADDRESS", "0x0000000000000000000000000000000000000012")
	t.Setenv("POOL_B_FAMILY", "seven")

	pools, err := PoolConfigs()
	assert.NoError(t, err)
	assert.Equal(t, "POOL_A", pools[0].Name)
	assert.Equal(t, "POOL_B", pools[1].Name)
	assert.Equal(t, 0, int(pools[0].Family))
	assert.Equal(t, 1, int(pools[1].Family))
}

func TestPoolConfigsRejectsZeroAddress(t *testing.T) {
	t.Setenv("POOL_A_ADDRESS", "")
	t.Setenv("POOL_B_ADDRESS", "0x0000000000000000000000000000000000000012")

	_, err := PoolConfigs()
	assert.Error(t, err)
}
