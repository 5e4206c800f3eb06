// Package sqlite implements the document store on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/store"
	"github.com/ppiankov/lexsearch/internal/store/sqlite/migrations"
)

const (
	dateLayout = "2006-01-02"

	// maxParams bounds the placeholders of a single IN query.
	maxParams = 500
)

// columns lists the record columns in the order recordArgs and scanRecord use.
var columns = []string{
	"kind", "serial_number", "case_number", "issuing_body", "issuing_body_code",
	"type_code", "type_name", "category", "title", "decision_type", "decided_on",
	"summary", "holding", "reasoning", "full_text", "cited_provisions", "cited_cases",
	"remarks", "tier", "extractor", "retrieved_at", "schema_version",
}

var (
	selectColumns = strings.Join(columns, ", ")
	upsertSQL     = buildUpsert()
)

// Store is a SQLite-backed store.Store.
type Store struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// NewStore opens or creates the database at path. An empty path defaults to
// ~/.lexsearch/data/documents.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".lexsearch", "data", "documents.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL lets search read while an ingest run writes.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_documents.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// UpsertBatch writes records in one transaction.
func (s *Store) UpsertBatch(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		if _, err := stmt.ExecContext(ctx, recordArgs(&records[i])...); err != nil {
			return fmt.Errorf("upserting %s: %w", records[i].Ref(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, ref model.Ref) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM documents WHERE kind = ? AND serial_number = ?",
		string(ref.Kind), ref.SerialNumber)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", ref, err)
	}
	return &rec, nil
}

// GetMany returns the existing records among serials.
func (s *Store) GetMany(ctx context.Context, kind model.Kind, serials []int64) (map[int64]model.Record, error) {
	out := make(map[int64]model.Record, len(serials))

	for start := 0; start < len(serials); start += maxParams {
		chunk := serials[start:min(start+maxParams, len(serials))]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, string(kind))
		for _, serial := range chunk {
			args = append(args, serial)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := s.db.QueryContext(ctx,
			"SELECT "+selectColumns+" FROM documents WHERE kind = ? AND serial_number IN ("+placeholders+")",
			args...)
		if err != nil {
			return nil, fmt.Errorf("querying documents: %w", err)
		}
		if err := collect(rows, func(rec model.Record) error {
			out[rec.SerialNumber] = rec
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Scan walks kind in serial order, store.ScanBatchSize rows at a time.
func (s *Store) Scan(ctx context.Context, kind model.Kind, fn func(model.Record) error) error {
	after := int64(math.MinInt64)
	for {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+selectColumns+" FROM documents WHERE kind = ? AND serial_number > ? ORDER BY serial_number LIMIT ?",
			string(kind), after, store.ScanBatchSize)
		if err != nil {
			return fmt.Errorf("scanning documents: %w", err)
		}

		var batch []model.Record
		if err := collect(rows, func(rec model.Record) error {
			batch = append(batch, rec)
			return nil
		}); err != nil {
			return err
		}

		// Rows are closed before fn runs so that fn may use the store.
		for _, rec := range batch {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(batch) < store.ScanBatchSize {
			return nil
		}
		after = batch[len(batch)-1].SerialNumber
	}
}

// Count returns the number of records of kind.
func (s *Store) Count(ctx context.Context, kind model.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE kind = ?", string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func buildUpsert() string {
	updates := make([]string, 0, len(columns))
	for _, c := range columns[2:] {
		updates = append(updates, c+" = excluded."+c)
	}
	updates = append(updates, "updated_at = CURRENT_TIMESTAMP")

	return "INSERT INTO documents (" + selectColumns + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") +
		") ON CONFLICT(kind, serial_number) DO UPDATE SET " + strings.Join(updates, ", ")
}

func recordArgs(r *model.Record) []any {
	var decided, retrieved sql.NullString
	if r.DecidedOn != nil {
		decided = sql.NullString{String: r.DecidedOn.Format(dateLayout), Valid: true}
	}
	if !r.RetrievedAt.IsZero() {
		retrieved = sql.NullString{String: r.RetrievedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	return []any{
		string(r.Kind), r.SerialNumber, r.CaseNumber, r.IssuingBody, r.IssuingBodyCode,
		r.TypeCode, r.TypeName, r.Category, r.Title, r.DecisionType, decided,
		r.Summary, r.Holding, r.Reasoning, r.FullText, r.CitedProvisions, r.CitedCases,
		r.Remarks, string(r.Tier), r.Extractor, retrieved, model.SchemaVersion,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.Record, error) {
	var (
		r                  model.Record
		kind, tier         string
		decided, retrieved sql.NullString
		schemaVersion      int
	)

	err := row.Scan(
		&kind, &r.SerialNumber, &r.CaseNumber, &r.IssuingBody, &r.IssuingBodyCode,
		&r.TypeCode, &r.TypeName, &r.Category, &r.Title, &r.DecisionType, &decided,
		&r.Summary, &r.Holding, &r.Reasoning, &r.FullText, &r.CitedProvisions, &r.CitedCases,
		&r.Remarks, &tier, &r.Extractor, &retrieved, &schemaVersion,
	)
	if err != nil {
		return r, err
	}

	r.Kind = model.Kind(kind)
	r.Tier = model.Tier(tier)
	if decided.Valid {
		if t, err := time.Parse(dateLayout, decided.String); err == nil {
			r.DecidedOn = &t
		}
	}
	if retrieved.Valid {
		if t, err := time.Parse(time.RFC3339Nano, retrieved.String); err == nil {
			r.RetrievedAt = t
		}
	}
	return r, nil
}

func collect(rows *sql.Rows, fn func(model.Record) error) error {
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}
