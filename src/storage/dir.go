package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirStore keeps objects as files under root/area/key. It exists for local
// runs and tests; production deployments use S3Store.
type DirStore struct {
	root string
}

// NewDirStore creates a DirStore rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

func (d *DirStore) path(area, key string) string {
	return filepath.Join(d.root, area, filepath.FromSlash(key))
}

// Put writes one object, creating parent directories as needed.
func (d *DirStore) Put(ctx context.Context, area, key string, body []byte) error {
	p := d.path(area, key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(p, body, 0644); err != nil {
		return fmt.Errorf("write object %s/%s: %w", area, key, err)
	}
	return nil
}

// Get reads one object.
func (d *DirStore) Get(ctx context.Context, area, key string) ([]byte, error) {
	body, err := os.ReadFile(d.path(area, key))
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", area, key, err)
	}
	return body, nil
}

// List returns the keys under area that start with prefix, sorted.
func (d *DirStore) List(ctx context.Context, area, prefix string) ([]string, error) {
	base := filepath.Join(d.root, area)
	var keys []string
	err := filepath.WalkDir(base, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", area, prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}
