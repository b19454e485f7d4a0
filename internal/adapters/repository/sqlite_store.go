package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/pkg/logger"
)

// dayRow is one (identity, date) attendance row.
type dayRow struct {
	Identity  string  `gorm:"primaryKey;size:255"`
	Date      string  `gorm:"primaryKey;size:10;index"`
	EntryTime *string `gorm:"size:8"`
	ExitTime  *string `gorm:"size:8"`
	UpdatedAt time.Time
}

func (dayRow) TableName() string { return "attendance_days" }

// SQLiteStore keeps the ledger in a SQLite database through gorm.
type SQLiteStore struct {
	db        *gorm.DB
	dsn       string
	batchSize int
	log       logger.Logger
}

// NewSQLiteStore opens dsn and migrates the schema.
func NewSQLiteStore(ctx context.Context, dsn string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{dsn: dsn, batchSize: 200}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("sqlite")
	}

	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOpen, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	// one writer; the ledger already serializes saves
	sqlDB.SetMaxOpenConns(1)

	if err := db.WithContext(ctx).AutoMigrate(&dayRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: migrate: %w", ErrOpen, err)
	}
	s.db = db
	s.log.Info(ctx, "sqlite ledger opened", logger.String("dsn", dsn))
	return s, nil
}

// Load returns all rows ordered by date, then identity.
func (s *SQLiteStore) Load(ctx context.Context) ([]model.DayRecord, error) {
	var rows []dayRow
	if err := s.db.WithContext(ctx).Order("date, identity").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}
	out := make([]model.DayRecord, len(rows))
	for i, r := range rows {
		out[i] = model.DayRecord{Identity: r.Identity, Date: r.Date, EntryTime: r.EntryTime, ExitTime: r.ExitTime}
	}
	return out, nil
}

// Save upserts every record in one transaction. Rows are never deleted since
// the ledger never drops a day record.
func (s *SQLiteStore) Save(ctx context.Context, records []model.DayRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]dayRow, len(records))
	for i, r := range records {
		rows[i] = dayRow{Identity: r.Identity, Date: r.Date, EntryTime: r.EntryTime, ExitTime: r.ExitTime}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"entry_time", "exit_time", "updated_at"}),
		}).CreateInBatches(rows, s.batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Name returns BackendSQLite.
func (s *SQLiteStore) Name() string { return BackendSQLite }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
