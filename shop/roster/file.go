package roster

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type fileDoc struct {
	Users []int64 `yaml:"users"`
}

// FileStore keeps the roster in a YAML file that is rewritten atomically
// on every new id.
type FileStore struct {
	path string

	mu  sync.Mutex
	ids []int64
}

// NewFileStore returns a store for path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads the file. A missing file is an empty roster.
func (s *FileStore) Load(context.Context) ([]int64, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", s.path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("roster: parse %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.ids = append(s.ids[:0], doc.Users...)
	s.mu.Unlock()
	return doc.Users, nil
}

// Append adds id and rewrites the file.
func (s *FileStore) Append(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return s.writeLocked()
}

func (s *FileStore) writeLocked() error {
	data, err := yaml.Marshal(fileDoc{Users: s.ids})
	if err != nil {
		return fmt.Errorf("roster: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("roster: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("roster: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("roster: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("roster: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("roster: replace %s: %w", s.path, err)
	}
	return nil
}
