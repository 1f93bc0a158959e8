package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/spf13/afero"
)

// ErrCacheCollision is returned by Put when the key already holds a value.
// Entries are create-only; a second write for the same key is a logic error
// (or two runs racing on one cache directory) and must never overwrite.
var ErrCacheCollision = errors.New("cache: entry already exists")

// Store is a create-only byte cache keyed by request identity.
type Store interface {
	// Get returns the payload stored under key. ok is false when the key has
	// never been written.
	Get(ctx context.Context, key Key) (payload []byte, ok bool, err error)
	// Put stores payload under key. It fails with ErrCacheCollision if the key
	// already exists. A nil error means the payload is durable.
	Put(ctx context.Context, key Key, payload []byte) error
}

// ensure FileStore and Disabled implement Store
var (
	_ Store = (*FileStore)(nil)
	_ Store = Disabled{}
)

// FileStore keeps one file per key under a root directory. Files hold the raw
// payload bytes and are never rewritten.
type FileStore struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore rooted at root on the given filesystem.
// A nil fs means the host filesystem.
func NewFileStore(fsys afero.Fs, root string, logger *slog.Logger) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{fs: fsys, root: root, logger: logger}
}

// Location returns the file path backing key.
func (s *FileStore) Location(key Key) (string, error) {
	rel, err := key.Path()
	if err != nil {
		return "", err
	}
	return path.Join(s.root, rel), nil
}

func (s *FileStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	loc, err := s.Location(key)
	if err != nil {
		return nil, false, err
	}

	data, err := afero.ReadFile(s.fs, loc)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: read %s: %w", key, err)
	}
	return data, true, nil
}

func (s *FileStore) Put(ctx context.Context, key Key, payload []byte) error {
	loc, err := s.Location(key)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(path.Dir(loc), 0o755); err != nil {
		return fmt.Errorf("cache: mkdir for %s: %w", key, err)
	}

	f, err := s.fs.OpenFile(loc, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrCacheCollision, key)
		}
		return fmt.Errorf("cache: create %s: %w", key, err)
	}

	if _, err := f.Write(payload); err != nil {
		s.discard(f, loc)
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	if err := f.Sync(); err != nil {
		s.discard(f, loc)
		return fmt.Errorf("cache: sync %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(loc)
		return fmt.Errorf("cache: close %s: %w", key, err)
	}

	s.logger.Debug("cached", "key", key.String(), "path", loc)
	return nil
}

// discard removes a partially written entry so it is not mistaken for an
// authoritative payload on the next run.
func (s *FileStore) discard(f afero.File, loc string) {
	_ = f.Close()
	_ = s.fs.Remove(loc)
}

// Disabled is the passthrough used when caching is turned off: every lookup
// misses and every write is dropped.
type Disabled struct{}

func (Disabled) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	return nil, false, nil
}

func (Disabled) Put(ctx context.Context, key Key, payload []byte) error {
	return nil
}
