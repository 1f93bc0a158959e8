// Package sqlite stores the workbook in a SQLite table of JSON-encoded rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/prospector/internal/storage"
	_ "modernc.org/sqlite"
)

var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sheet_rows (
	sheet   TEXT    NOT NULL,
	row_num INTEGER NOT NULL,
	cells   TEXT    NOT NULL,
	PRIMARY KEY (sheet, row_num)
);
`

// New opens (creating if needed) the database at dsn.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	// a single connection serializes appends and keeps :memory: databases
	// alive for the life of the backend
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Read(ctx context.Context, r storage.Range) ([][]string, error) {
	q := `SELECT row_num, cells FROM sheet_rows WHERE sheet = ? AND row_num >= ?`
	args := []any{r.Sheet, r.StartRow}
	if r.EndRow != 0 {
		q += ` AND row_num <= ?`
		args = append(args, r.EndRow)
	}
	q += ` ORDER BY row_num`

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var row storage.Row
		var cells string
		if err := rows.Scan(&row.Num, &cells); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		if err := json.Unmarshal([]byte(cells), &row.Cells); err != nil {
			return nil, fmt.Errorf("sqlite: %s row %d: %w", r.Sheet, row.Num, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return storage.Window(out, r), nil
}

func (b *sqliteBackend) Append(ctx context.Context, r storage.Range, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(row_num), 0) FROM sheet_rows WHERE sheet = ?`, r.Sheet,
	).Scan(&last); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sheet_rows (sheet, row_num, cells) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	defer stmt.Close()

	for _, row := range storage.Place(last, r, rows) {
		cells, err := json.Marshal(row.Cells)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.Sheet, row.Num, string(cells)); err != nil {
			return fmt.Errorf("sqlite: %s row %d: %w", r.Sheet, row.Num, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
