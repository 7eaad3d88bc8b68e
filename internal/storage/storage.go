// Package storage defines the persistence interface for statistics records.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/statsearch/internal/models"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Storage defines record persistence operations.
type Storage interface {
	GetRecord(ctx context.Context, id int64) (*models.Record, error)
	// ListRecords returns every record ordered by id.
	ListRecords(ctx context.Context) ([]models.Record, error)
	CountRecords(ctx context.Context) (int64, error)

	// BatchInsertRecords inserts records in one transaction.
	BatchInsertRecords(ctx context.Context, records []models.Record) error
	// ImportIfEmpty inserts records only when the store holds none and
	// returns how many were inserted.
	ImportIfEmpty(ctx context.Context, records []models.Record) (int, error)

	Close() error
}
