package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/victor5516/raffles-api-core/internal/app"
)

// LocalStore writes screenshots under a directory. Used when no bucket is
// configured.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Put(ctx context.Context, prefix string, upload app.Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := objectKey(prefix, upload)
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	if err := os.WriteFile(full, upload.Data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot %s: %w", key, err)
	}
	return key, nil
}
