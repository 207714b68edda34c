// Package results persists benchmark output to a SQLite database so runs can
// be compared with plain SQL. The database is optional; the JSON-lines files
// remain the primary output.
package results

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
)

type outcomeRow struct {
	ID         uint   `gorm:"primaryKey"`
	AttemptID  uint64 `gorm:"index"`
	RunID      string `gorm:"index;size:64"`
	Scenario   string `gorm:"size:64"`
	Backend    string `gorm:"size:32"`
	SKU        string `gorm:"size:32"`
	CustomerID string `gorm:"size:32"`
	Result     string `gorm:"size:32"`
	StaleRead  bool
	ErrorKind  string `gorm:"size:64"`
	LatencyMS  float64
	Timestamp  string `gorm:"size:48"`
}

func (outcomeRow) TableName() string { return "outcomes" }

type runRow struct {
	ID            uint   `gorm:"primaryKey"`
	RunID         string `gorm:"uniqueIndex;size:64"`
	Scenario      string `gorm:"size:64"`
	DB            string `gorm:"column:db;size:32"`
	SKU           string `gorm:"size:64"`
	Customers     int
	InitialStock  int64
	OrdersPerUser int
	Concurrency   int
	FailureRate   float64
	StartedAt     string `gorm:"size:48"`
	EndedAt       string `gorm:"size:48"`
	DurationS     float64
	OK            int64
	Failed        int64
	OutOfStock    int64
	Total         int64
	TPS           float64
	Compensations int64
	Exceptions    int64
	RolledBack    int64
	StaleReads    int64
	CreatedAt     time.Time
}

func (runRow) TableName() string { return "runs" }

// Store is a metrics sink backed by SQLite.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the database at path and migrates the schema. WAL
// mode keeps the broker's inserts from blocking concurrent readers of the
// file.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open results db %s: %w", path, err)
	}
	if err := db.AutoMigrate(&outcomeRow{}, &runRow{}); err != nil {
		return nil, fmt.Errorf("migrate results db: %w", err)
	}
	return &Store{db: db}, nil
}

// WriteOutcome inserts one attempt outcome.
func (s *Store) WriteOutcome(rec model.OutcomeRecord) error {
	row := outcomeRow{
		AttemptID:  rec.AttemptID,
		RunID:      rec.RunID,
		Scenario:   rec.Scenario,
		Backend:    rec.Backend,
		SKU:        rec.SKU,
		CustomerID: rec.CustomerID,
		Result:     string(rec.Result),
		StaleRead:  rec.StaleRead,
		ErrorKind:  rec.ErrorKind,
		LatencyMS:  rec.LatencyMS,
		Timestamp:  rec.Timestamp,
	}
	return s.db.Create(&row).Error
}

// SaveRun inserts the run summary row.
func (s *Store) SaveRun(rec model.RunRecord) error {
	row := runRow{
		RunID:         rec.RunID,
		Scenario:      rec.Scenario,
		DB:            rec.DB,
		SKU:           rec.SKU,
		Customers:     rec.Customers,
		InitialStock:  rec.InitialStock,
		OrdersPerUser: rec.OrdersPerUser,
		Concurrency:   rec.Concurrency,
		FailureRate:   rec.FailureRate,
		StartedAt:     rec.StartedAt,
		EndedAt:       rec.EndedAt,
		DurationS:     rec.DurationS,
		OK:            rec.OK,
		Failed:        rec.Failed,
		OutOfStock:    rec.OutOfStock,
		Total:         rec.Total,
		TPS:           rec.TPS,
		Compensations: rec.Compensations,
		Exceptions:    rec.ExceptionCount,
		RolledBack:    rec.RolledBack,
		StaleReads:    rec.StaleReads,
	}
	return s.db.Create(&row).Error
}

// RunByID loads one run summary row back.
func (s *Store) RunByID(runID string) (model.RunRecord, error) {
	var row runRow
	if err := s.db.Where("run_id = ?", runID).First(&row).Error; err != nil {
		return model.RunRecord{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	return model.RunRecord{
		RunID:          row.RunID,
		Scenario:       row.Scenario,
		DB:             row.DB,
		SKU:            row.SKU,
		Customers:      row.Customers,
		InitialStock:   row.InitialStock,
		OrdersPerUser:  row.OrdersPerUser,
		Concurrency:    row.Concurrency,
		FailureRate:    row.FailureRate,
		StartedAt:      row.StartedAt,
		EndedAt:        row.EndedAt,
		DurationS:      row.DurationS,
		OK:             row.OK,
		Failed:         row.Failed,
		OutOfStock:     row.OutOfStock,
		Total:          row.Total,
		TPS:            row.TPS,
		Compensations:  row.Compensations,
		ExceptionCount: row.Exceptions,
		RolledBack:     row.RolledBack,
		StaleReads:     row.StaleReads,
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
