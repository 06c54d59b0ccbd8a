// Package tokenfile persists the token cache entries as a JSON file with
// owner-only permissions, written atomically so readers never observe a
// partial file.
package tokenfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// File is the on-disk format.
type File struct {
	Entries map[string]string `json:"entries"`
}

// Cache is a token.Cache backed by a single JSON file. Every operation
// reads the file afresh so changes written by other processes are seen.
type Cache struct {
	path string
	mu   sync.Mutex
}

// New returns a Cache stored at path. The file is created on first Save.
func New(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the backing file path.
func (c *Cache) Path() string { return c.path }

func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := Load(c.path)
	if err != nil {
		return "", false, err
	}

	v, ok := entries[key]

	return v, ok, nil
}

func (c *Cache) Save(_ context.Context, entries map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := Load(c.path)
	if err != nil {
		return err
	}

	if current == nil {
		current = make(map[string]string, len(entries))
	}

	maps.Copy(current, entries)

	return Save(c.path, current)
}

func (c *Cache) Remove(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := Load(c.path)
	if err != nil {
		return err
	}

	if current == nil {
		return nil
	}

	for _, k := range keys {
		delete(current, k)
	}

	return Save(c.path, current)
}

// Load reads the entries stored at path. Returns (nil, nil) if the file
// does not exist.
func Load(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Entries == nil {
		return nil, fmt.Errorf("tokenfile: %s missing entries field", path)
	}

	return tf.Entries, nil
}

// Save writes entries to path atomically (temp file + rename) with 0600
// permissions. Never logs entry values.
func Save(path string, entries map[string]string) error {
	if entries == nil {
		entries = map[string]string{}
	}

	data, err := json.MarshalIndent(File{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory keeps the rename on one filesystem.
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush before rename so a crash cannot leave an empty file at path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Delete removes the token file. A missing file is not an error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
