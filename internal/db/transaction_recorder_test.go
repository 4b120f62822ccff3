package db

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestMySQLRecorder_RecordOpportunity(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `arbitrage_opportunities`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	recorder := &MySQLRecorder{db: gormDB}

	rec := OpportunityRecord{
		Timestamp:         time.Now(),
		SellVenue:         "pool-a",
		BuyVenue:          "pool-b",
		SellPriceUSD:      3050.12,
		BuyPriceUSD:       3042.88,
		SpreadFrac:        0.0024,
		OptimalAmountWETH: 1.25,
		ExpectedProfitUSD: 4.21,
		GasCostUSD:        0.38,
		Submitted:         true,
		TxHash:            "0xabc123",
		Nonce:             17,
	}

	err = recorder.RecordOpportunity(rec)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRecord_TableName(t *testing.T) {
	assert.Equal(t, "arbitrage_opportunities", OpportunityRecord{}.TableName())
}

func TestShadowLogger_RecordAppendsJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shadow.jsonl")

	logger, err := OpenShadowLogger(path)
	require.NoError(t, err)

	rec := ShadowRecord{
		Timestamp:           time.Now(),
		SellVenue:           "pool-a",
		BuyVenue:            "pool-b",
		SellPriceUSD:        3050.12,
		BuyPriceUSD:         3042.88,
		SpreadFrac:          0.0024,
		OptimalAmountWETH:   1.25,
		ExpectedProfitUSD:   4.21,
		OptimizerConverged:  true,
		OptimizerIterations: 6,
		SimulatorSuccess:    true,
		PayloadSizeBytes:    134,
	}
	require.NoError(t, logger.Record(rec))
	require.NoError(t, logger.Record(rec))
	require.NoError(t, logger.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
		var decoded ShadowRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
		assert.Equal(t, "shadow", decoded.Tag)
		assert.Equal(t, 134, decoded.PayloadSizeBytes)
	}
	assert.Equal(t, 2, lines)
}

func TestShadowLogger_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shadow.jsonl")

	first, err := OpenShadowLogger(path)
	require.NoError(t, err)
	require.NoError(t, first.Record(ShadowRecord{Tag: "ignored-on-write"}))
	require.NoError(t, first.Close())

	second, err := OpenShadowLogger(path)
	require.NoError(t, err)
	require.NoError(t, second.Record(ShadowRecord{}))
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}
