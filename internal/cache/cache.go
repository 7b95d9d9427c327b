package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cadencebot/cadence/internal/repository"
)

// FileCache stores downloaded media keyed by the hash of its source URL.
// Sizes and access times are tracked in the repository so eviction survives
// restarts.
type FileCache struct {
	dir   string
	limit int64
	repo  *repository.Repo
	mu    sync.Mutex
}

func NewFileCache(dir string, limitBytes int64, repo *repository.Repo) *FileCache {
	return &FileCache{dir: dir, limit: limitBytes, repo: repo}
}

func (c *FileCache) HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *FileCache) PathFor(hash string) string {
	return filepath.Join(c.dir, hash)
}

// Get returns the path of a cached file if it still exists on disk. A stale
// index row for a missing file is dropped as a side effect.
func (c *FileCache) Get(ctx context.Context, hash string) (string, bool) {
	p := c.PathFor(hash)
	if _, err := os.Stat(p); err == nil {
		_ = c.repo.CacheTouch(ctx, hash, 0, false)
		return p, true
	}
	_ = c.repo.CacheRemove(ctx, hash)
	return "", false
}

// WriteStream copies src into the cache under key, evicting least recently
// used files if the cache grew past its limit.
func (c *FileCache) WriteStream(ctx context.Context, key string, src io.Reader) (string, error) {
	hash := c.HashKey(key)
	final := c.PathFor(hash)
	if p, ok := c.Get(ctx, hash); ok {
		return p, nil
	}

	tmp := filepath.Join(c.dir, "tmp", hash)
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := c.commit(ctx, tmp, final, hash); err != nil {
		return "", err
	}
	return final, nil
}

// Adopt moves an already-downloaded file into the cache under key. Used when
// an external tool wrote the file itself.
func (c *FileCache) Adopt(ctx context.Context, key, path string) (string, error) {
	hash := c.HashKey(key)
	final := c.PathFor(hash)
	if path == final {
		info, err := os.Stat(final)
		if err != nil {
			return "", err
		}
		_ = c.repo.CacheTouch(ctx, hash, info.Size(), true)
		return final, c.evictIfNeeded(ctx)
	}
	return final, c.commit(ctx, path, final, hash)
}

func (c *FileCache) commit(ctx context.Context, tmp, final, hash string) error {
	info, err := os.Stat(tmp)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		_ = os.Remove(tmp)
		return nil
	}
	if err := os.Rename(tmp, final); err != nil {
		return err
	}
	_ = c.repo.CacheTouch(ctx, hash, info.Size(), true)
	return c.evictIfNeeded(ctx)
}

func (c *FileCache) evictIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	total, err := c.repo.CacheTotalBytes(ctx)
	if err != nil {
		return err
	}
	for total > c.limit {
		oldest, err := c.repo.CacheOldest(ctx)
		if err != nil {
			return err
		}
		_ = os.Remove(c.PathFor(oldest))
		_ = c.repo.CacheRemove(ctx, oldest)
		total, err = c.repo.CacheTotalBytes(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}
