package sakan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CacheStore persists collection snapshots between sessions so the app can
// paint immediately from the last known data. Implementations must be safe
// for concurrent use.
type CacheStore interface {
	// Load returns the cached snapshot for key, or (nil, nil) when no
	// snapshot exists.
	Load(key string) ([]Row, error)
	// Save replaces the snapshot for key wholesale.
	Save(key string, rows []Row) error
	// Delete removes the snapshot for key.
	Delete(key string) error
}

// Cache keys, one per collection.
const (
	CacheKeyListings  = "cached_listings"
	CacheKeyBookings  = "cached_bookings"
	CacheKeyFavorites = "cached_favorites"
	CacheKeyMessages  = "cached_messages"
	CacheKeySettings  = "cached_settings"
)

// ============================================================================
// MemoryCache
// ============================================================================

// MemoryCache is an in-memory CacheStore. Snapshots do not survive process
// restarts; use FileCache for that.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]Row
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: map[string][]Row{}}
}

func (m *MemoryCache) Load(key string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *MemoryCache) Save(key string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make([]Row, len(rows))
	copy(snapshot, rows)
	m.data[key] = snapshot
	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// ============================================================================
// FileCache
// ============================================================================

// FileCache stores one JSON snapshot file per key under a directory. Writes
// go through a temp file and rename so a crash never leaves a torn snapshot.
type FileCache struct {
	dir string
	mu  sync.Mutex
}

// NewFileCache creates the directory if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (f *FileCache) path(key string) string {
	// keys are fixed constants, but guard against path tricks anyway
	safe := strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(f.dir, safe+".json")
}

func (f *FileCache) Load(key string) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache %s: %w", key, err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		// A corrupt snapshot is treated as missing rather than fatal.
		return nil, nil
	}
	return rows, nil
}

func (f *FileCache) Save(key string, rows []Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal cache %s: %w", key, err)
	}
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache %s: %w", key, err)
	}
	return os.Rename(tmp, f.path(key))
}

func (f *FileCache) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
