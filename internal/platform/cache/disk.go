package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/observability"
	"golang.org/x/sync/semaphore"
)

// diskMetadata is the sidecar record written next to each payload file.
// Both files must exist and parse for the entry to count as present.
type diskMetadata struct {
	CachedAt  time.Time `json:"cachedAt"`
	Key       string    `json:"key"`
	ItemCount int       `json:"itemCount"`
}

// DiskCacheConfig holds disk cache configuration
type DiskCacheConfig struct {
	// Dir is the directory where payload and metadata files are stored.
	// Created lazily on the first save.
	Dir string

	// TTL is the maximum age before a record is treated as absent.
	// Defaults to 15 minutes.
	TTL time.Duration

	// MaxConcurrentWrites bounds background disk writes. Defaults to 8.
	MaxConcurrentWrites int64

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Now overrides the clock, used by tests to probe the TTL boundary.
	Now func() time.Time
}

// DiskCache is a keyed, bounded-lifetime store for opaque payloads.
// Each logical key maps to two files, <sha256(key)>.json and
// <sha256(key)>_metadata.json. Saves run in the background and never
// surface errors to the caller; a failed write just means the next
// load misses and the caller falls back to its network path.
type DiskCache struct {
	dir     string
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	// writeSem bounds concurrent background writes
	writeSem *semaphore.Weighted
	wg       sync.WaitGroup

	dirOnce sync.Once
	dirErr  error
}

// NewDiskCache creates a new disk cache
func NewDiskCache(cfg DiskCacheConfig) (*DiskCache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("disk cache directory is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.MaxConcurrentWrites <= 0 {
		cfg.MaxConcurrentWrites = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &DiskCache{
		dir:      cfg.Dir,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		writeSem: semaphore.NewWeighted(cfg.MaxConcurrentWrites),
	}, nil
}

// TTL returns the configured time-to-live.
func (c *DiskCache) TTL() time.Duration {
	return c.ttl
}

// Save persists payload under key in the background. It returns
// immediately; write failures are logged and swallowed. A concurrent
// save to the same key races with last-writer-wins semantics, which is
// acceptable since entries are idempotent snapshots of the same state.
func (c *DiskCache) Save(ctx context.Context, key string, payload []byte, itemCount int) {
	if key == "" {
		return
	}

	meta := diskMetadata{
		CachedAt:  c.now(),
		Key:       key,
		ItemCount: itemCount,
	}

	if !c.writeSem.TryAcquire(1) {
		// Writer saturation: skip rather than queue unbounded work.
		// A later save re-attempts persistence.
		if c.logger != nil {
			c.logger.LogDebug(ctx, "disk cache write skipped, writers saturated", "key", key)
		}
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.writeSem.Release(1)

		if err := c.writeFiles(key, payload, meta); err != nil {
			if c.metrics != nil {
				c.metrics.RecordDiskWrite(context.Background(), false)
			}
			if c.logger != nil {
				c.logger.LogWarn(context.Background(), "disk cache write failed",
					"key", key, "error", err)
			}
			return
		}

		if c.metrics != nil {
			c.metrics.RecordDiskWrite(context.Background(), true)
		}
	}()
}

// Load returns the payload stored under key, or (nil, false) if the
// record is absent, expired, or unreadable. Anything unreadable is
// deleted on the way out so a single corruption event self-heals.
func (c *DiskCache) Load(ctx context.Context, key string) ([]byte, bool) {
	payloadPath, metaPath := c.paths(key)

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		// No metadata means no entry; drop any orphaned payload file.
		if !os.IsNotExist(err) && c.logger != nil {
			c.logger.LogWarn(ctx, "disk cache metadata unreadable", "key", key, "error", err)
		}
		c.Clear(key)
		c.recordMiss(ctx)
		return nil, false
	}

	var meta diskMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		if c.logger != nil {
			c.logger.LogWarn(ctx, "disk cache metadata corrupt, clearing entry",
				"key", key, "error", err)
		}
		c.Clear(key)
		c.recordMiss(ctx)
		return nil, false
	}

	if c.now().Sub(meta.CachedAt) > c.ttl {
		c.Clear(key)
		c.recordMiss(ctx)
		return nil, false
	}

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		if !os.IsNotExist(err) && c.logger != nil {
			c.logger.LogWarn(ctx, "disk cache payload unreadable", "key", key, "error", err)
		}
		c.Clear(key)
		c.recordMiss(ctx)
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, "disk")
	}
	return payload, true
}

// Clear removes the payload and metadata files for key. It never
// errors when the entry does not exist.
func (c *DiskCache) Clear(key string) {
	payloadPath, metaPath := c.paths(key)
	_ = os.Remove(payloadPath)
	_ = os.Remove(metaPath)
}

// ClearAll removes every entry in the cache directory, including temp
// files left behind by a crash mid-write.
func (c *DiskCache) ClearAll() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".json") || strings.HasPrefix(name, tempFilePrefix) {
			_ = os.Remove(filepath.Join(c.dir, name))
		}
	}
}

// Close waits for in-flight background writes to finish.
func (c *DiskCache) Close() error {
	c.wg.Wait()
	return nil
}

// writeFiles writes payload then metadata, each via temp-file-then-rename
// so a crash mid-write never leaves a half-written file readable as valid.
// Payload goes first: metadata without payload would read as a valid entry,
// payload without metadata reads as absent.
func (c *DiskCache) writeFiles(key string, payload []byte, meta diskMetadata) error {
	if err := c.ensureDir(); err != nil {
		return err
	}

	payloadPath, metaPath := c.paths(key)

	if err := writeAtomic(c.dir, payloadPath, payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		_ = os.Remove(payloadPath)
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := writeAtomic(c.dir, metaPath, metaBytes); err != nil {
		// Don't leave a payload the next load would treat as absent anyway.
		_ = os.Remove(payloadPath)
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// tempFilePrefix marks in-progress writes so ClearAll can sweep any
// temp file orphaned by a crash before its rename.
const tempFilePrefix = "tmp-cache-"

// writeAtomic writes data to a temp file in dir and renames it over dst.
func writeAtomic(dir, dst string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tempFilePrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ensureDir creates the cache directory on first use.
func (c *DiskCache) ensureDir() error {
	c.dirOnce.Do(func() {
		c.dirErr = os.MkdirAll(c.dir, 0o755)
	})
	return c.dirErr
}

// paths derives the payload and metadata file paths for a logical key.
// The filename is the hex SHA-256 of the key: filesystem-safe and
// collision-resistant, at the cost of no reverse lookup (the cache is
// always addressed by logical key, never enumerated by filename).
func (c *DiskCache) paths(key string) (payloadPath, metaPath string) {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.dir, name+".json"),
		filepath.Join(c.dir, name+"_metadata.json")
}

func (c *DiskCache) recordMiss(ctx context.Context) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(ctx, "disk")
	}
}

// SaveJSON marshals items and stores them under key. The item count is
// recorded in the sidecar metadata. Marshal failures are logged, not
// returned, matching Save semantics.
func SaveJSON[T any](ctx context.Context, c *DiskCache, key string, items []T) {
	data, err := json.Marshal(items)
	if err != nil {
		if c.logger != nil {
			c.logger.LogWarn(ctx, "disk cache marshal failed", "key", key, "error", err)
		}
		return
	}
	c.Save(ctx, key, data, len(items))
}

// LoadJSON reads items stored under key. A cached empty list comes back
// as an empty slice with ok=true, distinct from a miss. A payload that
// no longer unmarshals is cleared so the next load starts clean.
func LoadJSON[T any](ctx context.Context, c *DiskCache, key string) ([]T, bool) {
	data, ok := c.Load(ctx, key)
	if !ok {
		return nil, false
	}

	items := []T{}
	if err := json.Unmarshal(data, &items); err != nil {
		if c.logger != nil {
			c.logger.LogWarn(ctx, "disk cache payload corrupt, clearing entry",
				"key", key, "error", err)
		}
		c.Clear(key)
		return nil, false
	}
	return items, true
}
