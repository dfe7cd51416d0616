package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/spboyer/rmbsgrade/internal/discovery"
	"github.com/spboyer/rmbsgrade/internal/models"
)

const entryExt = ".json.zst"

// Cache stores finished ScoreRecords, zstd-compressed, one file per key.
type Cache struct {
	dir string
	mu  sync.Mutex

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New creates a new cache instance with the specified directory. An empty
// dir disables caching.
func New(dir string) *Cache {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	dec, _ := zstd.NewReader(nil)
	return &Cache{dir: dir, enc: enc, dec: dec}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// CacheKey generates a unique cache key for one candidate evaluation.
// The key is based on:
// - the candidate name
// - the harness configuration fingerprint
// - every content file of the submission (path and bytes)
func CacheKey(candidate, root, fingerprint string) (string, error) {
	h := sha256.New()

	if err := writeString(h, candidate); err != nil {
		return "", err
	}
	if err := writeString(h, fingerprint); err != nil {
		return "", err
	}

	files, err := discovery.ContentFiles(root)
	if err != nil {
		return "", fmt.Errorf("listing submission files: %w", err)
	}
	if err := writeInt(h, len(files)); err != nil {
		return "", err
	}
	for _, rel := range files {
		if err := writeString(h, rel); err != nil {
			return "", err
		}
		if err := hashFile(h, filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			return "", fmt.Errorf("hashing %s: %w", rel, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves a cached ScoreRecord if it exists
func (c *Cache) Get(key string) (*models.ScoreRecord, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.cachePath(key))
	if err != nil {
		// Cache miss
		return nil, false
	}

	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false
	}
	var rec models.ScoreRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Invalid cache entry, treat as miss
		return nil, false
	}

	return &rec, true
}

// Put stores a ScoreRecord in the cache
func (c *Cache) Put(key string, rec *models.ScoreRecord) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling score record: %w", err)
	}

	// Write then rename so a concurrent reader never sees a partial entry.
	path := c.cachePath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, c.enc.EncodeAll(data, nil), 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("writing cache file: %w", err)
	}

	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c.dir == "" {
		return 0
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), entryExt) {
			n++
		}
	}
	return n
}

// Clear removes all cached results
func (c *Cache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil
	}

	// Safety check: only remove a directory that holds nothing but cache entries
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	if len(entries) > 0 {
		hasValidCache := false
		for _, entry := range entries {
			if entry.IsDir() {
				return fmt.Errorf("cache directory contains subdirectories - refusing to delete for safety")
			}
			if strings.HasSuffix(entry.Name(), entryExt) {
				hasValidCache = true
			} else {
				return fmt.Errorf("cache directory contains non-cache files - refusing to delete for safety")
			}
		}
		if !hasValidCache {
			return fmt.Errorf("no valid cache files found in directory - refusing to delete for safety")
		}
	}

	return os.RemoveAll(c.dir)
}

// cachePath returns the file path for a cache key
func (c *Cache) cachePath(key string) string {
	return filepath.Join(c.dir, key+entryExt)
}

// Helper functions

func writeString(w io.Writer, s string) error {
	// Write string with null byte delimiter to prevent hash collisions
	_, err := w.Write([]byte(s + "\x00"))
	return err
}

func writeInt(w io.Writer, i int) error {
	// Write int with null byte delimiter to prevent hash collisions
	_, err := fmt.Fprintf(w, "%d\x00", i)
	return err
}

func hashFile(h io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(h, f); err != nil {
		return err
	}

	return writeString(h, "")
}
