// Package xlsx stores the workbook as an .xlsx file on disk.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/FranksOps/prospector/internal/storage"
	"github.com/xuri/excelize/v2"
)

var _ storage.Backend = (*backend)(nil)

type backend struct {
	mu   sync.Mutex
	path string
	file *excelize.File
}

// New opens the workbook at path, starting an empty one when the file does
// not exist yet. Nothing is written until the first Append.
func New(path string) (storage.Backend, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	return &backend{path: path, file: f}, nil
}

func open(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("xlsx: open %s: %w", path, err)
	}
	return f, nil
}

func (b *backend) Read(ctx context.Context, r storage.Range) ([][]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.rows(r.Sheet)
	if err != nil {
		return nil, err
	}
	return storage.Window(rows, r), nil
}

func (b *backend) rows(sheet string) ([]storage.Row, error) {
	idx, err := b.file.GetSheetIndex(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	if idx < 0 {
		return nil, nil
	}
	grid, err := b.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: read %s: %w", sheet, err)
	}
	return storage.Grid(grid), nil
}

func (b *backend) Append(ctx context.Context, r storage.Range, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.append(r, rows); err != nil {
		// drop the half-applied edit
		if f, rerr := open(b.path); rerr == nil {
			_ = b.file.Close()
			b.file = f
		}
		return err
	}
	return nil
}

func (b *backend) append(r storage.Range, rows [][]string) error {
	if idx, err := b.file.GetSheetIndex(r.Sheet); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	} else if idx < 0 {
		if _, err := b.file.NewSheet(r.Sheet); err != nil {
			return fmt.Errorf("xlsx: create sheet %s: %w", r.Sheet, err)
		}
	}

	existing, err := b.rows(r.Sheet)
	if err != nil {
		return err
	}
	for _, row := range storage.Place(storage.LastRow(existing), r, rows) {
		cell, err := excelize.CoordinatesToCellName(1, row.Num)
		if err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		if err := b.file.SetSheetRow(r.Sheet, cell, &row.Cells); err != nil {
			return fmt.Errorf("xlsx: write %s!%s: %w", r.Sheet, cell, err)
		}
	}

	tmp := b.path + ".tmp.xlsx"
	if err := b.file.SaveAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("xlsx: save %s: %w", b.path, err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("xlsx: save %s: %w", b.path, err)
	}
	b.file.Path = b.path
	return nil
}

func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
