/*
	Package cache holds decoded segmentations for a viewing session.  Concurrent
	requests for the same key share one load, and completed results are kept in a
	bounded in-memory store.
*/
package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/golang/groupcache/singleflight"

	"github.com/janelia-flyem/dicomseg/seg"
)

// DefaultSizeMB is the cache size used when none is configured.
const DefaultSizeMB = 256

// Config sets the size and storage format of a Cache.
type Config struct {
	// SizeMB is the maximum memory used for completed results.
	SizeMB int `toml:"size_mb" yaml:"size_mb"`

	// Compression is "none", "snappy" (default) or "zstd".
	Compression string `toml:"compression" yaml:"compression"`

	// ExpireSeconds is the lifetime of entries, or 0 for no expiration.
	ExpireSeconds int `toml:"expire_seconds" yaml:"expire_seconds"`
}

// Cache dedupes in-flight loads and stores completed results.  It is safe for
// concurrent use.
type Cache struct {
	store    *freecache.Cache
	inflight singleflight.Group
	compress seg.Compression
	expire   int

	hits   uint64
	misses uint64
	loads  uint64
	shared uint64
}

// Stats are counters of cache activity.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Loads       uint64 // loads actually run
	Shared      uint64 // requests that waited on another caller's load
	Entries     int64
	Evacuations int64
}

func (s Stats) String() string {
	return fmt.Sprintf("%d hits, %d misses, %d loads, %d shared, %d entries, %d evacuations",
		s.Hits, s.Misses, s.Loads, s.Shared, s.Entries, s.Evacuations)
}

// New returns a Cache of the configured size.
func New(config Config) (*Cache, error) {
	compress, err := seg.ParseCompression(config.Compression)
	if err != nil {
		return nil, err
	}
	mbs := config.SizeMB
	if mbs <= 0 {
		mbs = DefaultSizeMB
	}
	c := &Cache{
		store:    freecache.NewCache(mbs << 20),
		compress: compress,
		expire:   config.ExpireSeconds,
	}
	seg.Infof("Created freecache of ~ %d MB for decoded segmentations (%s).\n", mbs, compress)
	return c, nil
}

// Do returns the cached value for key, or calls load to produce it.  Concurrent
// calls with the same key while a load is in flight wait for and share its result.
// Failed loads are not cached.
func (c *Cache) Do(key string, load func() ([]byte, error)) ([]byte, error) {
	if data, found := c.get(key); found {
		atomic.AddUint64(&c.hits, 1)
		return data, nil
	}
	atomic.AddUint64(&c.misses, 1)

	var ran bool
	v, err := c.inflight.Do(key, func() (interface{}, error) {
		ran = true
		// a load that finished while we were checking the store
		if data, found := c.get(key); found {
			return data, nil
		}
		atomic.AddUint64(&c.loads, 1)
		data, err := load()
		if err != nil {
			return nil, err
		}
		c.set(key, data)
		return data, nil
	})
	if !ran {
		atomic.AddUint64(&c.shared, 1)
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) get(key string) ([]byte, bool) {
	stored, err := c.store.Get([]byte(key))
	if err != nil {
		if err != freecache.ErrNotFound {
			seg.Errorf("unable to get %q from cache: %v\n", key, err)
		}
		return nil, false
	}
	data, _, err := seg.DeserializeData(stored, true)
	if err != nil {
		seg.Errorf("dropping corrupt cache entry %q: %v\n", key, err)
		c.store.Del([]byte(key))
		return nil, false
	}
	return data, true
}

func (c *Cache) set(key string, data []byte) {
	stored, err := seg.SerializeData(data, c.compress, seg.CRC32)
	if err != nil {
		seg.Errorf("unable to serialize cache entry %q: %v\n", key, err)
		return
	}
	if err := c.store.Set([]byte(key), stored, c.expire); err != nil {
		if err == freecache.ErrLargeEntry {
			seg.Warningf("not caching %q: %s entry is too large for the cache\n", key, seg.HumanBytes(len(stored)))
		} else {
			seg.Errorf("unable to cache %q: %v\n", key, err)
		}
		return
	}
	seg.Debugf("Cached %q: %s stored for %s of data\n", key, seg.HumanBytes(len(stored)), seg.HumanBytes(len(data)))
}

// Invalidate removes a key, e.g., after the segmentation it names was edited.
func (c *Cache) Invalidate(key string) bool {
	return c.store.Del([]byte(key))
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.store.Clear()
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        atomic.LoadUint64(&c.hits),
		Misses:      atomic.LoadUint64(&c.misses),
		Loads:       atomic.LoadUint64(&c.loads),
		Shared:      atomic.LoadUint64(&c.shared),
		Entries:     c.store.EntryCount(),
		Evacuations: c.store.EvacuateCount(),
	}
}
