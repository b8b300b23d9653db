// Package gateway fronts the application with an offline-aware caching
// layer: every request is classified by destination and URL shape and
// served through one of three caching strategies against named cache
// partitions, the way the app's former service worker did.
package gateway

import (
	"net/http"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	cachePrefix      = "aula-"
	shellCachePrefix = cachePrefix + "static-"
	runtimeCacheName = cachePrefix + "runtime"
	audioCacheName   = cachePrefix + "audio"
)

// shellCacheName returns the versioned static-shell cache name.
// Exactly one shell name is current at a time.
func shellCacheName(version string) string {
	return shellCachePrefix + version
}

// CachedResponse is a stored response, keyed by request URL in a
// partition. The Date header carries the entry's age for eviction.
type CachedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Date returns the entry's Date header, or the zero time when the
// header is absent or unparsable
func (c *CachedResponse) Date() time.Time {
	date, err := http.ParseTime(c.Header.Get("Date"))
	if err != nil {
		return time.Time{}
	}
	return date
}

// WriteTo replays the stored response onto a writer
func (c *CachedResponse) WriteTo(w http.ResponseWriter) {
	for key, values := range c.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(c.StatusCode)
	w.Write(c.Body)
}

func (c *CachedResponse) clone() *CachedResponse {
	clone := &CachedResponse{
		StatusCode: c.StatusCode,
		Header:     c.Header.Clone(),
		Body:       make([]byte, len(c.Body)),
	}
	copy(clone.Body, c.Body)
	return clone
}

// Partition is one named cache collection. Entries never expire on
// their own; removal is either a strategy overwrite or an explicit
// eviction sweep.
type Partition struct {
	name    string
	entries *gocache.Cache
}

func newPartition(name string) *Partition {
	return &Partition{
		name:    name,
		entries: gocache.New(gocache.NoExpiration, 0),
	}
}

// Name returns the partition's cache name
func (p *Partition) Name() string { return p.name }

// Get returns the cached response for a URL, if any
func (p *Partition) Get(url string) (*CachedResponse, bool) {
	value, found := p.entries.Get(url)
	if !found {
		return nil, false
	}
	return value.(*CachedResponse), true
}

// Put stores a response under a URL, overwriting any previous entry.
// Entries without a Date header get one stamped at store time so the
// eviction sweep can always compute an age.
func (p *Partition) Put(url string, resp *CachedResponse) {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if resp.Header.Get("Date") == "" {
		resp.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	p.entries.Set(url, resp, gocache.NoExpiration)
}

// Delete removes an entry; removing a missing entry is a no-op
func (p *Partition) Delete(url string) {
	p.entries.Delete(url)
}

// Keys returns the URLs of all entries
func (p *Partition) Keys() []string {
	items := p.entries.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of entries
func (p *Partition) Len() int {
	return p.entries.ItemCount()
}

// CacheStorage is the registry of named cache partitions, playing the
// role of the browser's CacheStorage: partitions from previous
// versions survive here until an activation purges them.
type CacheStorage struct {
	mutex  sync.Mutex
	caches map[string]*Partition
}

// NewCacheStorage creates an empty cache registry
func NewCacheStorage() *CacheStorage {
	return &CacheStorage{caches: make(map[string]*Partition)}
}

// Open returns the named partition, creating it if absent
func (cs *CacheStorage) Open(name string) *Partition {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if p, ok := cs.caches[name]; ok {
		return p
	}
	p := newPartition(name)
	cs.caches[name] = p
	return p
}

// Delete drops the named partition and everything in it
func (cs *CacheStorage) Delete(name string) bool {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	_, existed := cs.caches[name]
	delete(cs.caches, name)
	return existed
}

// Names returns all partition names currently present
func (cs *CacheStorage) Names() []string {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	names := make([]string, 0, len(cs.caches))
	for name := range cs.caches {
		names = append(names, name)
	}
	return names
}

// recognized reports whether a cache name belongs to this application,
// current version or not. Unrecognized names are never touched by the
// activation purge.
func recognized(name string) bool {
	return strings.HasPrefix(name, cachePrefix)
}
