// Package repository persists attendance day records for the ledger.
package repository

import (
	"context"

	"github.com/okian/facegate/internal/domain/model"
)

// Backend names accepted by config.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Store provides whole-ledger load and save. It satisfies ledger.Store.
type Store interface {
	// Load returns every persisted record. A store that was never written
	// returns an empty slice.
	Load(ctx context.Context) ([]model.DayRecord, error)
	// Save replaces the persisted state with records.
	Save(ctx context.Context, records []model.DayRecord) error
	// Name labels the backend in logs and metrics.
	Name() string
	// Close releases resources.
	Close() error
}
