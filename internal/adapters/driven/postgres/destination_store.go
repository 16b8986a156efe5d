package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DestinationStore = (*DestinationStore)(nil)

// DestinationStore loads diffs into per-source destination tables. Each
// destination table mirrors the source snapshot: all TEXT columns, keyed
// by the first column. A schema change drops and recreates the table; the
// diff that accompanies it re-adds every row.
type DestinationStore struct {
	db *DB
}

// NewDestinationStore creates a new DestinationStore
func NewDestinationStore(db *DB) *DestinationStore {
	return &DestinationStore{db: db}
}

// ApplyDiff loads added rows and removes deleted rows in the destination
// table, creating or reshaping it when the schema changed
func (s *DestinationStore) ApplyDiff(ctx context.Context, table string, columns []string, added, deleted [][]string, schemaChanged bool) error {
	if len(columns) == 0 {
		return fmt.Errorf("destination table %s: no columns: %w", table, domain.ErrInvalidInput)
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if schemaChanged {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pq.QuoteIdentifier(table))); err != nil {
				return fmt.Errorf("drop destination table: %w", err)
			}
		}
		if err := s.ensureTable(ctx, tx, table, columns); err != nil {
			return err
		}

		keyColumn := pq.QuoteIdentifier(columns[0])
		deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, pq.QuoteIdentifier(table), keyColumn)
		for _, row := range deleted {
			if len(row) == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, deleteQuery, row[0]); err != nil {
				return fmt.Errorf("delete row: %w", err)
			}
		}

		insertQuery := s.insertQuery(table, columns)
		for _, row := range added {
			if _, err := tx.ExecContext(ctx, insertQuery, rowArgs(row, len(columns))...); err != nil {
				return fmt.Errorf("insert row: %w", err)
			}
		}
		return nil
	})
}

func (s *DestinationStore) ensureTable(ctx context.Context, tx *sql.Tx, table string, columns []string) error {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = pq.QuoteIdentifier(col) + " TEXT"
		if i == 0 {
			defs[i] += " PRIMARY KEY"
		}
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`,
		pq.QuoteIdentifier(table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure destination table: %w", err)
	}
	return nil
}

func (s *DestinationStore) insertQuery(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	assignments := make([]string, 0, len(columns)-1)
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}

	// A redelivered diff may re-insert rows that already landed; upsert
	// keeps the load idempotent.
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if len(assignments) > 0 {
		query += fmt.Sprintf(` ON CONFLICT (%s) DO UPDATE SET %s`, quoted[0], strings.Join(assignments, ", "))
	} else {
		query += fmt.Sprintf(` ON CONFLICT (%s) DO NOTHING`, quoted[0])
	}
	return query
}

// rowArgs pads or truncates a row to the column count
func rowArgs(row []string, width int) []any {
	args := make([]any, width)
	for i := 0; i < width; i++ {
		if i < len(row) {
			args[i] = row[i]
		} else {
			args[i] = ""
		}
	}
	return args
}
