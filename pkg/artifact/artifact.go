// Package artifact stores failure evidence (screenshots) and hands back
// references that results can carry.
package artifact

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// Artifact describes one stored blob.
type Artifact struct {
	Ref         string `json:"ref"`
	ContentType string `json:"contentType"`
	SHA256      string `json:"sha256"`
	Size        int64  `json:"size"`
}

// Store persists blobs under a key and returns their reference.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error)
}

// Key builds a slash-separated key from parts, dropping empty segments and
// path traversal.
func Key(parts ...string) string {
	var clean []string
	for _, p := range parts {
		p = strings.Trim(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
		if p != "" && p != "." {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

// HashBytes returns the hex SHA256 of data.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// HashFile computes SHA256 hash and file size.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), size, nil
}
