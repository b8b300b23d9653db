package gateway

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"aula/pkg/errors"
)

// CleanupMessage is the message that triggers an audio-cache eviction
// sweep. Eviction is never automatic; it runs only when signaled.
const CleanupMessage = "CLEAN_AUDIO_CACHE"

// DefaultAudioRetention is the audio cache retention window
const DefaultAudioRetention = 7 * 24 * time.Hour

// Lifecycle state of the gateway
type Lifecycle string

const (
	LifecycleNew       Lifecycle = "new"
	LifecycleInstalled Lifecycle = "installed"
	LifecycleActivated Lifecycle = "activated"
)

// Config configures a Gateway
type Config struct {
	// Upstream is the origin server every intercepted request is
	// forwarded to.
	Upstream string
	// Version names the current static-shell cache generation.
	Version string
	// Manifest lists the essential asset paths pre-populated into the
	// shell cache during Install.
	Manifest []string
	// OriginHost, when set, marks requests for other hosts as
	// cross-origin; those are proxied untouched.
	OriginHost string
	// AudioRetention bounds the age of audio cache entries; zero means
	// the default seven days.
	AudioRetention time.Duration
	// RevalidateRate throttles background refreshes; zero means
	// unlimited.
	RevalidateRate rate.Limit
}

// Gateway intercepts application traffic and applies per-resource
// caching strategies against named cache partitions. It runs
// independently of the rest of the app: its only coupling is request
// interception and the explicit cleanup message.
type Gateway struct {
	upstream   *url.URL
	client     *http.Client
	storage    *CacheStorage
	version    string
	shellName  string
	originHost string
	manifest   []string
	retention  time.Duration
	limiter    *rate.Limiter

	mutex sync.Mutex
	state Lifecycle

	revalidations sync.WaitGroup
}

// New creates a gateway over a cache storage. The storage may already
// hold partitions from previous versions; Activate purges them.
func New(cfg Config, storage *CacheStorage) (*Gateway, error) {
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: %v", cfg.Upstream, err)
	}

	retention := cfg.AudioRetention
	if retention <= 0 {
		retention = DefaultAudioRetention
	}
	limit := cfg.RevalidateRate
	if limit <= 0 {
		limit = rate.Inf
	}

	return &Gateway{
		upstream:   upstream,
		client:     &http.Client{Timeout: 30 * time.Second},
		storage:    storage,
		version:    cfg.Version,
		shellName:  shellCacheName(cfg.Version),
		originHost: cfg.OriginHost,
		manifest:   cfg.Manifest,
		retention:  retention,
		limiter:    rate.NewLimiter(limit, 1),
		state:      LifecycleNew,
	}, nil
}

// State returns the lifecycle state
func (g *Gateway) State() Lifecycle {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.state
}

func (g *Gateway) shell() *Partition   { return g.storage.Open(g.shellName) }
func (g *Gateway) runtime() *Partition { return g.storage.Open(runtimeCacheName) }
func (g *Gateway) audio() *Partition   { return g.storage.Open(audioCacheName) }

// Install pre-populates the versioned shell cache with the manifest of
// essential assets. A single failed asset fails the install, matching
// the all-or-nothing precache contract.
func (g *Gateway) Install() error {
	shell := g.shell()
	for _, path := range g.manifest {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			return fmt.Errorf("precache %s: %w", path, err)
		}
		resp, err := g.fetch(req)
		if err != nil {
			return fmt.Errorf("precache %s: %w", path, err)
		}
		if !cacheable(resp) {
			return fmt.Errorf("precache %s: upstream returned %d", path, resp.StatusCode)
		}
		shell.Put(path, resp)
	}

	g.mutex.Lock()
	g.state = LifecycleInstalled
	g.mutex.Unlock()

	log.Printf("Gateway installed, %d assets precached into %s", len(g.manifest), g.shellName)
	return nil
}

// Activate takes control: every recognized cache name from a previous
// version is deleted; exactly the current shell, runtime and audio
// names survive. Unrecognized names are left untouched so a newer
// deployment's caches are never clobbered.
func (g *Gateway) Activate() {
	keep := map[string]bool{
		g.shellName:      true,
		runtimeCacheName: true,
		audioCacheName:   true,
	}
	for _, name := range g.storage.Names() {
		if recognized(name) && !keep[name] {
			g.storage.Delete(name)
			log.Printf("Purged stale cache %s", name)
		}
	}

	g.mutex.Lock()
	g.state = LifecycleActivated
	g.mutex.Unlock()

	log.Printf("Gateway activated (shell %s)", g.shellName)
}

// ServeHTTP dispatches each request to its caching strategy.
// Non-GET traffic and cross-origin requests bypass the caches.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	class := g.classify(r)
	if r.Method != http.MethodGet {
		class = classification{strategy: StrategyPassThrough}
	}

	if class.strategy == StrategyPassThrough {
		g.passThrough(w, r)
		return
	}

	partition := g.storage.Open(class.cache)
	key := cacheKey(r)

	var resp *CachedResponse
	var err error
	switch class.strategy {
	case StrategyCacheFirst:
		resp, err = g.cacheFirst(partition, r, key, class.document)
	case StrategyNetworkFirst:
		resp, err = g.networkFirst(partition, r, key, class.document)
	default:
		resp, err = g.staleWhileRevalidate(partition, r, key)
	}

	if err != nil {
		netErr := errors.ErrNetworkFailure.WithInternal(err).WithContext("url", key)
		netErr.Log()
		if netErr.IsRetryable() {
			w.Header().Set("Retry-After", "1")
		}
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	resp.WriteTo(w)
}

// cacheKey is the request URL, path plus query
func cacheKey(r *http.Request) string {
	if r.URL.RawQuery != "" {
		return r.URL.Path + "?" + r.URL.RawQuery
	}
	return r.URL.Path
}

// fetch forwards a request to the upstream and snapshots the response
func (g *Gateway) fetch(r *http.Request) (*CachedResponse, error) {
	target := *g.upstream
	target.Path = singleJoiningSlash(g.upstream.Path, r.URL.Path)
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequest(r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	snapshot := &CachedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}
	if snapshot.Header.Get("Date") == "" {
		snapshot.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	return snapshot, nil
}

// passThrough proxies a request without touching any cache
func (g *Gateway) passThrough(w http.ResponseWriter, r *http.Request) {
	resp, err := g.fetch(r)
	if err != nil {
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	resp.WriteTo(w)
}

// HandleMessage reacts to an explicit message from the application,
// the only channel besides interception that reaches the gateway
func (g *Gateway) HandleMessage(msg string) {
	if msg == CleanupMessage {
		deleted := g.CleanupAudioCache(time.Now())
		log.Printf("Audio cache sweep removed %d entries", deleted)
	}
}

// CleanupAudioCache deletes audio cache entries older than the
// retention window, computing each entry's age from its Date header.
// Only the audio cache is swept; shell and runtime are never evicted
// this way.
func (g *Gateway) CleanupAudioCache(now time.Time) int {
	audio := g.audio()
	deleted := 0
	for _, key := range audio.Keys() {
		entry, ok := audio.Get(key)
		if !ok {
			continue
		}
		date := entry.Date()
		if date.IsZero() {
			continue
		}
		if now.Sub(date) > g.retention {
			audio.Delete(key)
			deleted++
		}
	}
	return deleted
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
