package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/okian/facegate/internal/domain/model"
)

// document is the on-disk layout: {"records":[...]}.
type document struct {
	Records []model.DayRecord `json:"records"`
}

// FileStore keeps the ledger in one JSON file, replaced atomically on save.
type FileStore struct {
	mu   sync.Mutex
	path string
	mode fs.FileMode
}

// NewFileStore returns a store at path. The file is created on first save.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{path: path, mode: 0o600}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the file. A missing or blank file is an empty ledger.
func (s *FileStore) Load(_ context.Context) ([]model.DayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.DayRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.DayRecord{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.path, err)
	}
	if doc.Records == nil {
		doc.Records = []model.DayRecord{}
	}
	return doc.Records, nil
}

// Save writes records to a temp file in the same directory, then renames it
// over the ledger file.
func (s *FileStore) Save(ctx context.Context, records []model.DayRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []model.DayRecord{}
	}
	data, err := json.MarshalIndent(document{Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWrite, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Path returns the ledger file path.
func (s *FileStore) Path() string { return s.path }

// Name returns BackendJSON.
func (s *FileStore) Name() string { return BackendJSON }

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
