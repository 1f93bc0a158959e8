// Package jsonbackend stores the workbook as an NDJSON log, one line per
// written row.
package jsonbackend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/FranksOps/prospector/internal/storage"
	"github.com/spf13/afero"
)

var _ storage.Backend = (*jsonBackend)(nil)

type line struct {
	Sheet string   `json:"sheet"`
	Row   int      `json:"row"`
	Cells []string `json:"cells"`
}

type jsonBackend struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// New returns a backend writing to path on fsys. A nil fsys means the OS
// filesystem.
func New(fsys afero.Fs, path string) (storage.Backend, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	_ = f.Close()
	return &jsonBackend{fs: fsys, path: path}, nil
}

// sheet returns the rows written to sheet. A later line for the same row
// replaces an earlier one.
func (b *jsonBackend) sheet(name string) ([]storage.Row, error) {
	f, err := b.fs.Open(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	defer f.Close()

	byNum := make(map[int][]string)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for n := 1; sc.Scan(); n++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("jsonbackend: %s line %d: %w", b.path, n, err)
		}
		if l.Sheet == name {
			byNum[l.Row] = l.Cells
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}

	rows := make([]storage.Row, 0, len(byNum))
	for num, cells := range byNum {
		rows = append(rows, storage.Row{Num: num, Cells: cells})
	}
	return rows, nil
}

func (b *jsonBackend) Read(ctx context.Context, r storage.Range) ([][]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.sheet(r.Sheet)
	if err != nil {
		return nil, err
	}
	return storage.Window(rows, r), nil
}

func (b *jsonBackend) Append(ctx context.Context, r storage.Range, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.sheet(r.Sheet)
	if err != nil {
		return err
	}

	// one write keeps the batch together
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range storage.Place(storage.LastRow(existing), r, rows) {
		if err := enc.Encode(line{Sheet: r.Sheet, Row: row.Num, Cells: row.Cells}); err != nil {
			return fmt.Errorf("jsonbackend: %w", err)
		}
	}

	f, err := b.fs.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("jsonbackend: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}
	return nil
}

func (b *jsonBackend) Close() error {
	return nil
}
