// Package gormstore implements the document store on MySQL through GORM.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ppiankov/lexsearch/internal/logging"
	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/store"
)

const createBatchSize = 100

// document is the documents table row.
type document struct {
	ID              uint64     `gorm:"primaryKey;autoIncrement"`
	Kind            string     `gorm:"type:varchar(8);not null;uniqueIndex:idx_documents_kind_serial,priority:1"`
	SerialNumber    int64      `gorm:"not null;uniqueIndex:idx_documents_kind_serial,priority:2"`
	CaseNumber      string     `gorm:"type:varchar(255);index"`
	IssuingBody     string     `gorm:"type:varchar(255)"`
	IssuingBodyCode string     `gorm:"type:varchar(32)"`
	TypeCode        string     `gorm:"type:varchar(32)"`
	TypeName        string     `gorm:"type:varchar(64)"`
	Category        string     `gorm:"type:varchar(255)"`
	Title           string     `gorm:"type:text"`
	DecisionType    string     `gorm:"type:varchar(64)"`
	DecidedOn       *time.Time `gorm:"type:date"`
	Summary         string     `gorm:"type:longtext"`
	Holding         string     `gorm:"type:longtext"`
	Reasoning       string     `gorm:"type:longtext"`
	FullText        string     `gorm:"type:longtext"`
	CitedProvisions string     `gorm:"type:longtext"`
	CitedCases      string     `gorm:"type:longtext"`
	Remarks         string     `gorm:"type:text"`
	Tier            string     `gorm:"type:varchar(16)"`
	Extractor       string     `gorm:"type:varchar(32)"`
	RetrievedAt     *time.Time
	SchemaVersion   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (document) TableName() string {
	return "documents"
}

// updateColumns are overwritten when the key already exists.
var updateColumns = []string{
	"case_number", "issuing_body", "issuing_body_code", "type_code", "type_name",
	"category", "title", "decision_type", "decided_on", "summary", "holding",
	"reasoning", "full_text", "cited_provisions", "cited_cases", "remarks",
	"tier", "extractor", "retrieved_at", "schema_version", "updated_at",
}

func upsertClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "serial_number"}},
		DoUpdates: clause.AssignmentColumns(updateColumns),
	}
}

// Store is a GORM-backed store.Store.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

var _ store.Store = (*Store)(nil)

// Open connects to MySQL, sizes the pool and migrates the schema.
func Open(dsn string, log *zap.SugaredLogger) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&document{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating documents table: %w", err)
	}

	s := New(db, log)
	s.log.Infow("MySQL document store connected")
	return s, nil
}

// New wraps an existing connection. The schema is assumed to exist.
func New(db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, log: logging.OrNop(log)}
}

// UpsertBatch writes records in one transaction.
func (s *Store) UpsertBatch(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]document, len(records))
	for i := range records {
		rows[i] = toRow(&records[i])
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(upsertClause()).CreateInBatches(&rows, createBatchSize).Error; err != nil {
			return fmt.Errorf("upserting %d documents: %w", len(rows), err)
		}
		return nil
	})
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, ref model.Ref) (*model.Record, error) {
	var row document
	err := s.db.WithContext(ctx).
		Where("kind = ? AND serial_number = ?", string(ref.Kind), ref.SerialNumber).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", ref, err)
	}

	rec := fromRow(&row)
	return &rec, nil
}

// GetMany returns the existing records among serials.
func (s *Store) GetMany(ctx context.Context, kind model.Kind, serials []int64) (map[int64]model.Record, error) {
	out := make(map[int64]model.Record, len(serials))
	if len(serials) == 0 {
		return out, nil
	}

	var rows []document
	err := s.db.WithContext(ctx).
		Where("kind = ? AND serial_number IN ?", string(kind), serials).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}

	for i := range rows {
		out[rows[i].SerialNumber] = fromRow(&rows[i])
	}
	return out, nil
}

// Scan walks kind in serial order using keyset pagination.
func (s *Store) Scan(ctx context.Context, kind model.Kind, fn func(model.Record) error) error {
	after := int64(math.MinInt64)
	for {
		var rows []document
		err := s.db.WithContext(ctx).
			Where("kind = ? AND serial_number > ?", string(kind), after).
			Order("serial_number").
			Limit(store.ScanBatchSize).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("scanning documents: %w", err)
		}

		for i := range rows {
			if err := fn(fromRow(&rows[i])); err != nil {
				return err
			}
		}
		if len(rows) < store.ScanBatchSize {
			return nil
		}
		after = rows[len(rows)-1].SerialNumber
	}
}

// Count returns the number of records of kind.
func (s *Store) Count(ctx context.Context, kind model.Kind) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&document{}).Where("kind = ?", string(kind)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(r *model.Record) document {
	row := document{
		Kind:            string(r.Kind),
		SerialNumber:    r.SerialNumber,
		CaseNumber:      r.CaseNumber,
		IssuingBody:     r.IssuingBody,
		IssuingBodyCode: r.IssuingBodyCode,
		TypeCode:        r.TypeCode,
		TypeName:        r.TypeName,
		Category:        r.Category,
		Title:           r.Title,
		DecisionType:    r.DecisionType,
		DecidedOn:       r.DecidedOn,
		Summary:         r.Summary,
		Holding:         r.Holding,
		Reasoning:       r.Reasoning,
		FullText:        r.FullText,
		CitedProvisions: r.CitedProvisions,
		CitedCases:      r.CitedCases,
		Remarks:         r.Remarks,
		Tier:            string(r.Tier),
		Extractor:       r.Extractor,
		SchemaVersion:   model.SchemaVersion,
	}
	if !r.RetrievedAt.IsZero() {
		t := r.RetrievedAt.UTC()
		row.RetrievedAt = &t
	}
	return row
}

func fromRow(row *document) model.Record {
	r := model.Record{
		Kind:            model.Kind(row.Kind),
		SerialNumber:    row.SerialNumber,
		CaseNumber:      row.CaseNumber,
		IssuingBody:     row.IssuingBody,
		IssuingBodyCode: row.IssuingBodyCode,
		TypeCode:        row.TypeCode,
		TypeName:        row.TypeName,
		Category:        row.Category,
		Title:           row.Title,
		DecisionType:    row.DecisionType,
		DecidedOn:       row.DecidedOn,
		Summary:         row.Summary,
		Holding:         row.Holding,
		Reasoning:       row.Reasoning,
		FullText:        row.FullText,
		CitedProvisions: row.CitedProvisions,
		CitedCases:      row.CitedCases,
		Remarks:         row.Remarks,
		Tier:            model.Tier(row.Tier),
		Extractor:       row.Extractor,
	}
	if row.RetrievedAt != nil {
		r.RetrievedAt = *row.RetrievedAt
	}
	return r
}
