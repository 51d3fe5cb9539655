package linker

import (
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"lukechampine.com/blake3"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// CacheKey identifies bytecode for pre-instance caching.
type CacheKey [32]byte

// KeyOf derives a CacheKey from bytecode content.
func KeyOf(code []byte) CacheKey {
	return blake3.Sum256(code)
}

func (k CacheKey) String() string {
	return hex.EncodeToString(k[:])
}

// CacheObserver receives cache events. Implementations must be thread-safe.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
	CacheEvict()
}

// Cache is a bounded LRU of pre-instances. Entries are inserted or
// evicted, never mutated; templates handed out are shared.
// Thread-safe.
type Cache struct {
	entries  *lru.Cache[CacheKey, engine.Template]
	observer CacheObserver
	group    singleflight.Group
}

// NewCache creates a cache holding at most size templates.
func NewCache(size int, observer CacheObserver) (*Cache, error) {
	if size <= 0 {
		return nil, errors.New(errors.PhaseLink, errors.KindInvalidInput).
			Value(size).
			Detail("cache size must be positive, got %d", size).
			Build()
	}
	c := &Cache{observer: observer}
	entries, err := lru.NewWithEvict(size, func(key CacheKey, _ engine.Template) {
		Logger().Debug("evicted pre-instance", zap.Stringer("key", key))
		if c.observer != nil {
			c.observer.CacheEvict()
		}
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidInput, err, "create cache")
	}
	c.entries = entries
	return c, nil
}

// Get returns the template cached under key.
func (c *Cache) Get(key CacheKey) (engine.Template, bool) {
	t, ok := c.entries.Get(key)
	c.record(ok)
	return t, ok
}

// GetOrPrepare returns the cached template for key, or runs prepare and
// caches its result. Concurrent fills of one key run prepare once.
// Failures are not cached.
func (c *Cache) GetOrPrepare(key CacheKey, prepare func() (engine.Template, error)) (engine.Template, bool, error) {
	if t, ok := c.entries.Get(key); ok {
		c.record(true)
		return t, true, nil
	}
	c.record(false)

	v, err, _ := c.group.Do(string(key[:]), func() (any, error) {
		if t, ok := c.entries.Peek(key); ok {
			return t, nil
		}
		t, err := prepare()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, t)
		return t, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(engine.Template), false, nil
}

// Contains reports whether key is cached without touching recency.
func (c *Cache) Contains(key CacheKey) bool {
	return c.entries.Contains(key)
}

// Len returns the number of cached templates.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

func (c *Cache) record(hit bool) {
	if c.observer == nil {
		return
	}
	if hit {
		c.observer.CacheHit()
	} else {
		c.observer.CacheMiss()
	}
}
