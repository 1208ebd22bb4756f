package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Disk is the local-disk tier: one JSON file per key, trusted while its
// modification time is within the TTL.
type Disk struct {
	dir string
	ttl time.Duration
}

// NewDisk creates a disk tier rooted at dir.
func NewDisk(dir string, ttl time.Duration) *Disk {
	return &Disk{dir: dir, ttl: ttl}
}

// Path returns the file backing key.
func (d *Disk) Path(key Key) string {
	return filepath.Join(d.dir, key.FileName())
}

// Read returns the stored payload for key.
// Returns ErrCacheMiss if the file is missing or older than the TTL.
func (d *Disk) Read(key Key) ([]byte, error) {
	path := d.Path(key)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(LayerDisk, "get").Inc()
		return nil, fmt.Errorf("stat cache file: %w", err)
	}
	if time.Since(info.ModTime()) > d.ttl {
		return nil, ErrCacheMiss
	}

	data, err := os.ReadFile(path)
	if err != nil {
		CacheErrors.WithLabelValues(LayerDisk, "get").Inc()
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return data, nil
}

// Write stores data for key. The file is replaced atomically so readers
// never observe a partial write.
func (d *Disk) Write(key Key, data []byte) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		CacheErrors.WithLabelValues(LayerDisk, "set").Inc()
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, ".tmp-"+key.FileName()+"-*")
	if err != nil {
		CacheErrors.WithLabelValues(LayerDisk, "set").Inc()
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		CacheErrors.WithLabelValues(LayerDisk, "set").Inc()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		CacheErrors.WithLabelValues(LayerDisk, "set").Inc()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, d.Path(key)); err != nil {
		CacheErrors.WithLabelValues(LayerDisk, "set").Inc()
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// DeleteHandleSets removes the files of every handle-keyed entry of kind.
func (d *Disk) DeleteHandleSets(kind Kind) error {
	matches, err := filepath.Glob(filepath.Join(d.dir, string(kind)+"-"+strings.Repeat("[0-9a-f]", digestLen)+".json"))
	if err != nil {
		return fmt.Errorf("glob cache files: %w", err)
	}
	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			CacheErrors.WithLabelValues(LayerDisk, "delete").Inc()
			errs = append(errs, fmt.Errorf("remove cache file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Delete removes the file for key. A missing file is not an error.
func (d *Disk) Delete(key Key) error {
	if err := os.Remove(d.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		CacheErrors.WithLabelValues(LayerDisk, "delete").Inc()
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}
