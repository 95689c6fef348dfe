package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore writes artifacts below a root directory. References are paths
// relative to the root, using forward slashes.
type FileStore struct {
	Root string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Root: dir}
}

// Put writes data to Root/key, creating directories as needed.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error) {
	key = Key(key)
	if key == "" {
		return nil, fmt.Errorf("artifact key is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	return &Artifact{
		Ref:         key,
		ContentType: contentType,
		SHA256:      HashBytes(data),
		Size:        int64(len(data)),
	}, nil
}

// Resolve returns the local path for a reference produced by Put.
func (s *FileStore) Resolve(ref string) string {
	return filepath.Join(s.Root, filepath.FromSlash(Key(ref)))
}

// Verify rehashes a stored artifact and compares it to a.
func (s *FileStore) Verify(a *Artifact) error {
	hash, size, err := HashFile(s.Resolve(a.Ref))
	if err != nil {
		return fmt.Errorf("hash artifact: %w", err)
	}
	if hash != a.SHA256 || size != a.Size {
		return fmt.Errorf("artifact %s changed: sha256 %s size %d", a.Ref, hash, size)
	}
	return nil
}
