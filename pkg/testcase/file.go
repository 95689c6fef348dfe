package testcase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore keeps one JSON document per test case in a directory.
type FileStore struct {
	dir   string
	locks sync.Map // name -> *sync.RWMutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the document path for name.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *FileStore) lock(name string) *sync.RWMutex {
	mu, _ := s.locks.LoadOrStore(name, &sync.RWMutex{})
	return mu.(*sync.RWMutex)
}

// Put writes through a temp file and rename so readers never see a partial
// document.
func (s *FileStore) Put(ctx context.Context, name string, tc *TestCase) error {
	if err := ValidateName(name); err != nil {
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	data, err := Encode(tc)
	if err != nil {
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "put", Name: name, Err: err}
	}

	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	return nil
}

// Get reads and revalidates a stored document.
func (s *FileStore) Get(ctx context.Context, name string) (*TestCase, error) {
	if err := ValidateName(name); err != nil {
		return nil, &StoreError{Op: "get", Name: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "get", Name: name, Err: err}
	}

	mu := s.lock(name)
	mu.RLock()
	data, err := os.ReadFile(s.Path(name))
	mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, &StoreError{Op: "get", Name: name, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Name: name, Err: err}
	}
	tc, err := Decode(data)
	if err != nil {
		return nil, &StoreError{Op: "get", Name: name, Err: err}
	}
	return tc, nil
}

// List returns the names of all documents in the directory.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || ValidateName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the document for name.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return &StoreError{Op: "delete", Name: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "delete", Name: name, Err: err}
	}

	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	err := os.Remove(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return &StoreError{Op: "delete", Name: name, Err: ErrNotFound}
	}
	if err != nil {
		return &StoreError{Op: "delete", Name: name, Err: err}
	}
	return nil
}

// NameFromPath maps a document path back to its test case name.
func NameFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	name, ok := strings.CutSuffix(base, ".json")
	if !ok || ValidateName(name) != nil {
		return "", false
	}
	return name, true
}
