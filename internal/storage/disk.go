// Package storage provides the on-disk file store for uploaded PDFs.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists uploaded document bytes under a fixed root
// directory, one file per document named <document-id><extension>.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed and returns a
// FileStore writing into it.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the upload root directory.
func (f *FileStore) Root() string {
	return f.root
}

// Save writes content to <root>/<docID><ext> and returns the full
// path. ext must include the leading dot.
func (f *FileStore) Save(docID, ext string, content []byte) (string, error) {
	path := filepath.Join(f.root, docID+ext)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

// Remove deletes the stored file at path. Missing files are not an
// error so cleanup after a failed upload is safe to repeat.
func (f *FileStore) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing paths are skipped (contribute 0); errors during walk are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if info.IsDir() {
			n, err := dirSize(p)
			if err != nil {
				return 0, err
			}
			total += n
		} else {
			total += info.Size()
		}
	}
	return total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info != nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
