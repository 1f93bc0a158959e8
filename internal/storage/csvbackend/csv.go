// Package csvbackend stores each sheet of the workbook as <dir>/<sheet>.csv.
package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/FranksOps/prospector/internal/storage"
	"github.com/spf13/afero"
)

var _ storage.Backend = (*csvBackend)(nil)

// blankRecord stands in for an empty row; encoding/csv drops empty lines.
var blankRecord = []string{"", ""}

type csvBackend struct {
	mu  sync.Mutex
	fs  afero.Fs
	dir string
}

// New returns a backend rooted at dir on fsys. A nil fsys means the OS
// filesystem. The directory is created when missing.
func New(fsys afero.Fs, dir string) (storage.Backend, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	return &csvBackend{fs: fsys, dir: dir}, nil
}

func (b *csvBackend) sheetPath(sheet string) (string, error) {
	if sheet == "" || strings.ContainsAny(sheet, `/\`) || sheet == "." || sheet == ".." {
		return "", fmt.Errorf("csvbackend: unusable sheet name %q", sheet)
	}
	return filepath.Join(b.dir, sheet+".csv"), nil
}

func (b *csvBackend) load(sheet string) ([][]string, error) {
	path, err := b.sheetPath(sheet)
	if err != nil {
		return nil, err
	}
	f, err := b.fs.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %s: %w", path, err)
	}
	return records, nil
}

func (b *csvBackend) Read(ctx context.Context, r storage.Range) ([][]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.load(r.Sheet)
	if err != nil {
		return nil, err
	}
	return storage.Window(storage.Grid(records), r), nil
}

func (b *csvBackend) Append(ctx context.Context, r storage.Range, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.load(r.Sheet)
	if err != nil {
		return err
	}
	last := storage.LastRow(storage.Grid(records))
	records = records[:last]
	for _, row := range storage.Place(last, r, rows) {
		for len(records) < row.Num-1 {
			records = append(records, blankRecord)
		}
		records = append(records, row.Cells)
	}
	for i, rec := range records {
		if len(rec) == 0 || (len(rec) == 1 && rec[0] == "") {
			records[i] = blankRecord
		}
	}

	path, _ := b.sheetPath(r.Sheet)
	return b.replace(path, records)
}

// replace writes records to a temporary file and renames it over path.
func (b *csvBackend) replace(path string, records [][]string) error {
	tmp := path + ".tmp"
	f, err := b.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		_ = f.Close()
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("csvbackend: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("csvbackend: %w", err)
	}
	if err := b.fs.Rename(tmp, path); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("csvbackend: %w", err)
	}
	return nil
}

func (b *csvBackend) Close() error {
	return nil
}
