package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileDatabase is a file-backed Database storing each value as a JSON
// document. A key "session:<id>" maps to "<base>/session/<id>.json", so the
// key namespace becomes a directory hierarchy on disk. Writes go through a
// temp file plus rename and are guarded by a per-file flock, so concurrent
// processes sharing the data directory do not interleave partial writes.
type FileDatabase struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// NewFileDatabase creates a file-backed database rooted at basePath.
func NewFileDatabase(basePath string) *FileDatabase {
	return &FileDatabase{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

// keyToFile maps a flat key to its on-disk path. Namespace separators become
// directories.
func (d *FileDatabase) keyToFile(key string) string {
	parts := append([]string{d.basePath}, strings.Split(key, ":")...)
	return filepath.Join(parts...) + ".json"
}

// Get retrieves a value from storage.
func (d *FileDatabase) Get(ctx context.Context, key string, v any) error {
	data, err := os.ReadFile(d.keyToFile(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}

	return nil
}

// Set stores a value with file locking.
func (d *FileDatabase) Set(ctx context.Context, key string, v any) error {
	filePath := d.keyToFile(key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := d.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	// Write to temp file first, then rename (atomic operation)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// Delete removes a value. Absent keys are not an error.
func (d *FileDatabase) Delete(ctx context.Context, key string) error {
	filePath := d.keyToFile(key)

	lock := d.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// List returns all keys with the given prefix.
func (d *FileDatabase) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}

	err := filepath.WalkDir(d.basePath, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			return nil
		}

		rel, err := filepath.Rel(d.basePath, path)
		if err != nil {
			return err
		}
		key := strings.ReplaceAll(strings.TrimSuffix(rel, ".json"), string(filepath.Separator), ":")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return keys, nil
}

// getLock returns the file lock for a path.
func (d *FileDatabase) getLock(filePath string) *FileLock {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		d.locks[filePath] = lock
	}

	return lock
}

// FileBlob stores opaque payloads as files under a "blob" directory.
type FileBlob struct {
	basePath string
}

// NewFileBlob creates a file-backed blob store rooted at basePath.
func NewFileBlob(basePath string) *FileBlob {
	return &FileBlob{basePath: filepath.Join(basePath, "blob")}
}

func (b *FileBlob) path(key string) string {
	parts := append([]string{b.basePath}, strings.Split(key, ":")...)
	return filepath.Join(parts...)
}

func (b *FileBlob) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (b *FileBlob) Put(ctx context.Context, key string, data []byte) error {
	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (b *FileBlob) Delete(ctx context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
