// Package postgres stores the workbook in a Postgres table of JSONB rows.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/prospector/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS sheet_rows (
	sheet   TEXT    NOT NULL,
	row_num INTEGER NOT NULL,
	cells   JSONB   NOT NULL,
	PRIMARY KEY (sheet, row_num)
);
`

// New connects to dsn and ensures the schema exists.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Read(ctx context.Context, r storage.Range) ([][]string, error) {
	q := `SELECT row_num, cells::text FROM sheet_rows WHERE sheet = $1 AND row_num >= $2`
	args := []any{r.Sheet, r.StartRow}
	if r.EndRow != 0 {
		q += ` AND row_num <= $3`
		args = append(args, r.EndRow)
	}
	q += ` ORDER BY row_num`

	rows, err := b.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var row storage.Row
		var cells string
		if err := rows.Scan(&row.Num, &cells); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := json.Unmarshal([]byte(cells), &row.Cells); err != nil {
			return nil, fmt.Errorf("postgres: %s row %d: %w", r.Sheet, row.Num, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return storage.Window(out, r), nil
}

func (b *postgresBackend) Append(ctx context.Context, r storage.Range, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		// serialize concurrent appends to the same sheet
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.Sheet); err != nil {
			return err
		}
		var last int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(row_num), 0) FROM sheet_rows WHERE sheet = $1`, r.Sheet,
		).Scan(&last); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, row := range storage.Place(last, r, rows) {
			cells, err := json.Marshal(row.Cells)
			if err != nil {
				return err
			}
			batch.Queue(`INSERT INTO sheet_rows (sheet, row_num, cells) VALUES ($1, $2, $3::jsonb)`,
				r.Sheet, row.Num, string(cells))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: append to %s: %w", r.Sheet, err)
	}
	return nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
