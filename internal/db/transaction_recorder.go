// Package db persists the opportunity loop's decisions: an adapted MySQL
// audit trail (teacher's GORM pattern, repurposed) and a JSON-Lines
// shadow-mode log for offline P&L replay.
package db

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpportunityRecord is the database model for one detected (and possibly
// submitted) arbitrage opportunity.
type OpportunityRecord struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp         time.Time `gorm:"index;not null"`
	SellVenue         string    `gorm:"not null"`
	BuyVenue          string    `gorm:"not null"`
	SellPriceUSD      float64   `gorm:"not null"`
	BuyPriceUSD       float64   `gorm:"not null"`
	SpreadFrac        float64   `gorm:"not null"`
	OptimalAmountWETH float64   `gorm:"not null"`
	ExpectedProfitUSD float64   `gorm:"not null"`
	GasCostUSD        float64   `gorm:"not null"`
	Submitted         bool      `gorm:"not null;index"`
	TxHash            string    `gorm:"type:varchar(80)"`
	Nonce             uint64
	ErrorMessage      string    `gorm:"type:varchar(512)"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (OpportunityRecord) TableName() string {
	return "arbitrage_opportunities"
}

// MySQLRecorder implements the audit-trail recorder using GORM and MySQL,
// adapted from the teacher's asset-snapshot persistence into an
// opportunity/submission ledger.
type MySQLRecorder struct {
	db *gorm.DB
}

// NewMySQLRecorder creates a new MySQLRecorder instance.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewMySQLRecorder(dsn string) (*MySQLRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	if err := db.AutoMigrate(&OpportunityRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &MySQLRecorder{db: db}, nil
}

// NewMySQLRecorderWithDB creates a new MySQLRecorder with an existing GORM
// DB instance, migrating the schema on it first.
func NewMySQLRecorderWithDB(db *gorm.DB) (*MySQLRecorder, error) {
	if err := db.AutoMigrate(&OpportunityRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &MySQLRecorder{db: db}, nil
}

// RecordOpportunity inserts one opportunity/submission outcome row.
func (r *MySQLRecorder) RecordOpportunity(rec OpportunityRecord) error {
	result := r.db.Create(&rec)
	if result.Error != nil {
		return fmt.Errorf("failed to record opportunity: %w", result.Error)
	}
	return nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *MySQLRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *MySQLRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// GetLatestOpportunity retrieves the most recently recorded opportunity.
func (r *MySQLRecorder) GetLatestOpportunity() (*OpportunityRecord, error) {
	var record OpportunityRecord
	result := r.db.Order("timestamp DESC").First(&record)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get latest opportunity: %w", result.Error)
	}
	return &record, nil
}

// GetOpportunitiesByTimeRange retrieves opportunities within a time range.
func (r *MySQLRecorder) GetOpportunitiesByTimeRange(start, end time.Time) ([]OpportunityRecord, error) {
	var records []OpportunityRecord
	result := r.db.Where("timestamp BETWEEN ? AND ?", start, end).
		Order("timestamp ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get opportunities by time range: %w", result.Error)
	}
	return records, nil
}

// CountSubmitted returns the total number of opportunities that reached
// on-chain submission.
func (r *MySQLRecorder) CountSubmitted() (int64, error) {
	var count int64
	result := r.db.Model(&OpportunityRecord{}).Where("submitted = ?", true).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count submitted opportunities: %w", result.Error)
	}
	return count, nil
}

// ShadowRecord is one JSON-Lines entry in the shadow-mode opportunity log:
// the same decision the engine would have submitted, recorded instead of
// broadcast when execution is disabled.
type ShadowRecord struct {
	Timestamp           time.Time `json:"timestamp"`
	Tag                 string    `json:"tag"`
	SellVenue           string    `json:"sell_venue"`
	BuyVenue            string    `json:"buy_venue"`
	SellPriceUSD        float64   `json:"sell_price_usd"`
	BuyPriceUSD         float64   `json:"buy_price_usd"`
	SpreadFrac          float64   `json:"spread_frac"`
	OptimalAmountWETH   float64   `json:"optimal_amount_weth"`
	ExpectedProfitUSD   float64   `json:"expected_profit_usd"`
	OptimizerConverged  bool      `json:"optimizer_converged"`
	OptimizerIterations int       `json:"optimizer_iterations"`
	SimulatorSuccess    bool      `json:"simulator_success"`
	PayloadSizeBytes    int       `json:"payload_size_bytes"`
}

// ShadowLogger appends one JSON object per line to a persisted file, safe
// for concurrent use. It never rotates or truncates its target: offline
// P&L replay over the full history is the point of shadow mode.
type ShadowLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenShadowLogger opens (creating if necessary, appending if it exists)
// the shadow log at path.
func OpenShadowLogger(path string) (*ShadowLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("db: open shadow log: %w", err)
	}
	return &ShadowLogger{file: f, enc: json.NewEncoder(f)}, nil
}

// Record appends one opportunity as a JSON-Lines row, tagged "shadow".
func (l *ShadowLogger) Record(rec ShadowRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec.Tag = "shadow"
	return l.enc.Encode(rec)
}

// Close flushes and closes the underlying file.
func (l *ShadowLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
