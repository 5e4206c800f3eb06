// Package store defines the document store boundary. Records are keyed by
// (kind, serial number); writing a key again overwrites every other field.
package store

import (
	"context"
	"errors"

	"github.com/ppiankov/lexsearch/internal/model"
)

// ErrNotFound is returned by Get when no record has the key.
var ErrNotFound = errors.New("document not found")

// ScanBatchSize is the keyset page size used by Scan implementations.
const ScanBatchSize = 500

// Store persists normalized records.
type Store interface {
	// UpsertBatch writes every record in one transaction. Either all of
	// them are stored or none are.
	UpsertBatch(ctx context.Context, records []model.Record) error

	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, ref model.Ref) (*model.Record, error)

	// GetMany returns the records that exist among serials, keyed by serial.
	GetMany(ctx context.Context, kind model.Kind, serials []int64) (map[int64]model.Record, error)

	// Scan calls fn for every record of kind in ascending serial order.
	// Returning an error from fn stops the scan with that error.
	Scan(ctx context.Context, kind model.Kind, fn func(model.Record) error) error

	// Count returns the number of records of kind.
	Count(ctx context.Context, kind model.Kind) (int, error)

	Close() error
}
