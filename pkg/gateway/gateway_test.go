package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type upstream struct {
	server *httptest.Server
	hits   atomic.Int64
	status atomic.Int64
	body   atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.status.Store(http.StatusOK)
	u.body.Store("fresh")
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		status := int(u.status.Load())
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		fmt.Fprintf(w, "%s:%s", u.body.Load(), r.URL.Path)
	}))
	t.Cleanup(u.server.Close)
	return u
}

func newGateway(t *testing.T, u *upstream, cfg Config) (*Gateway, *CacheStorage) {
	t.Helper()
	cfg.Upstream = u.server.URL
	if cfg.Version == "" {
		cfg.Version = "v1"
	}
	storage := NewCacheStorage()
	g, err := New(cfg, storage)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g, storage
}

func get(g *Gateway, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	return rec
}

func putEntry(p *Partition, key, body string, age time.Duration) {
	header := make(http.Header)
	header.Set("Date", time.Now().Add(-age).UTC().Format(http.TimeFormat))
	p.Put(key, &CachedResponse{StatusCode: http.StatusOK, Header: header, Body: []byte(body)})
}

func TestClassification(t *testing.T) {
	u := newUpstream(t)
	g, _ := newGateway(t, u, Config{OriginHost: "aula.local"})

	cases := []struct {
		name     string
		path     string
		dest     string
		host     string
		strategy Strategy
		cache    string
	}{
		{"audio destination", "/media/lecture.webm", "audio", "aula.local", StrategyCacheFirst, audioCacheName},
		{"audio path", "/files/audio/lecture.webm", "", "aula.local", StrategyCacheFirst, audioCacheName},
		{"script", "/app.js", "script", "aula.local", StrategyCacheFirst, shellCacheName("v1")},
		{"style", "/styles.css", "style", "aula.local", StrategyCacheFirst, shellCacheName("v1")},
		{"font", "/font.woff2", "font", "aula.local", StrategyCacheFirst, shellCacheName("v1")},
		{"document", "/", "document", "aula.local", StrategyNetworkFirst, runtimeCacheName},
		{"api", "/api/notes", "empty", "aula.local", StrategyNetworkFirst, runtimeCacheName},
		{"other same-origin", "/logo.png", "image", "aula.local", StrategyStaleWhileRevalidate, runtimeCacheName},
		{"cross-origin", "/anything", "image", "cdn.example.com", StrategyPassThrough, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Host = tc.host
			if tc.dest != "" {
				req.Header.Set("Sec-Fetch-Dest", tc.dest)
			}
			class := g.classify(req)
			if class.strategy != tc.strategy {
				t.Fatalf("expected %s, got %s", tc.strategy, class.strategy)
			}
			if class.cache != tc.cache {
				t.Fatalf("expected cache %q, got %q", tc.cache, class.cache)
			}
		})
	}
}

func TestAudioServedCacheFirst(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{})

	putEntry(storage.Open(audioCacheName), "/media/lecture.webm", "cached-audio", time.Hour)

	rec := get(g, "/media/lecture.webm", map[string]string{"Sec-Fetch-Dest": "audio"})
	if rec.Body.String() != "cached-audio" {
		t.Fatalf("expected cached body, got %q", rec.Body.String())
	}
	if u.hits.Load() != 0 {
		t.Fatalf("cache-first must not touch the network on a hit, got %d fetches", u.hits.Load())
	}
}

func TestCacheFirstMissFetchesAndStores(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{})

	rec := get(g, "/media/lecture.webm", map[string]string{"Sec-Fetch-Dest": "audio"})
	if rec.Body.String() != "fresh:/media/lecture.webm" {
		t.Fatalf("expected network body, got %q", rec.Body.String())
	}
	if _, ok := storage.Open(audioCacheName).Get("/media/lecture.webm"); !ok {
		t.Fatal("successful fetch must be cached")
	}

	// Second request is a hit
	before := u.hits.Load()
	get(g, "/media/lecture.webm", map[string]string{"Sec-Fetch-Dest": "audio"})
	if u.hits.Load() != before {
		t.Fatal("second request must be served from cache")
	}
}

func TestDocumentNetworkFirst(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{})

	putEntry(storage.Open(runtimeCacheName), "/", "stale-document", time.Hour)

	// Network attempted even though a cache entry exists
	rec := get(g, "/", map[string]string{"Sec-Fetch-Dest": "document"})
	if rec.Body.String() != "fresh:/" {
		t.Fatalf("network-first must prefer the network, got %q", rec.Body.String())
	}
	if u.hits.Load() != 1 {
		t.Fatalf("expected one upstream fetch, got %d", u.hits.Load())
	}

	// With the upstream gone, the cached copy is served
	u.server.Close()
	rec = get(g, "/", map[string]string{"Sec-Fetch-Dest": "document"})
	if rec.Code != http.StatusOK || rec.Body.String() != "fresh:/" {
		t.Fatalf("expected cached fallback, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestNetworkFirstRootFallback(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{})

	putEntry(storage.Open(shellCacheName("v1")), "/", "cached-root", time.Hour)

	u.server.Close()
	rec := get(g, "/some/route", map[string]string{"Sec-Fetch-Dest": "document"})
	if rec.Body.String() != "cached-root" {
		t.Fatalf("document requests must fall back to the cached root, got %q", rec.Body.String())
	}
}

func TestNetworkFirstPropagatesFailure(t *testing.T) {
	u := newUpstream(t)
	g, _ := newGateway(t, u, Config{})

	u.server.Close()
	rec := get(g, "/api/notes", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("non-document failures with no cache must propagate, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("an unreachable upstream is transient and must carry Retry-After")
	}
}

func TestStaleWhileRevalidate(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{})

	runtime := storage.Open(runtimeCacheName)
	putEntry(runtime, "/logo.png", "stale-logo", time.Hour)

	// The stale entry is returned immediately
	rec := get(g, "/logo.png", map[string]string{"Sec-Fetch-Dest": "image"})
	if rec.Body.String() != "stale-logo" {
		t.Fatalf("expected immediate stale response, got %q", rec.Body.String())
	}

	// The background refresh overwrites the entry for next time
	g.revalidations.Wait()
	if u.hits.Load() != 1 {
		t.Fatalf("expected one background fetch, got %d", u.hits.Load())
	}
	entry, ok := runtime.Get("/logo.png")
	if !ok || string(entry.Body) != "fresh:/logo.png" {
		t.Fatalf("cache not revalidated: %v %q", ok, entry.Body)
	}
}

func TestStaleWhileRevalidateMissWaitsOnNetwork(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{})

	rec := get(g, "/logo.png", map[string]string{"Sec-Fetch-Dest": "image"})
	if rec.Body.String() != "fresh:/logo.png" {
		t.Fatalf("cache miss must wait on the network, got %q", rec.Body.String())
	}
	if _, ok := storage.Open(runtimeCacheName).Get("/logo.png"); !ok {
		t.Fatal("network result must be cached")
	}
}

func TestInstallPrecachesManifest(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{Manifest: []string{"/", "/app.js", "/styles.css"}})

	if err := g.Install(); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if g.State() != LifecycleInstalled {
		t.Fatalf("expected installed state, got %s", g.State())
	}

	shell := storage.Open(shellCacheName("v1"))
	for _, path := range []string{"/", "/app.js", "/styles.css"} {
		if _, ok := shell.Get(path); !ok {
			t.Fatalf("manifest asset %s not precached", path)
		}
	}
}

func TestInstallFailsOnBadAsset(t *testing.T) {
	u := newUpstream(t)
	u.status.Store(http.StatusNotFound)
	g, _ := newGateway(t, u, Config{Manifest: []string{"/missing.js"}})

	if err := g.Install(); err == nil {
		t.Fatal("install must fail when a manifest asset cannot be fetched")
	}
	if g.State() == LifecycleInstalled {
		t.Fatal("failed install must not mark the gateway installed")
	}
}

func TestActivatePurgesOldVersions(t *testing.T) {
	u := newUpstream(t)
	storage := NewCacheStorage()

	// Leftovers from a previous version plus a foreign cache
	storage.Open(shellCacheName("v1")).Put("/", &CachedResponse{StatusCode: 200})
	storage.Open("aula-static-v0").Put("/", &CachedResponse{StatusCode: 200})
	storage.Open("some-other-app").Put("/x", &CachedResponse{StatusCode: 200})

	g, err := New(Config{Upstream: u.server.URL, Version: "v2"}, storage)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	g.Activate()

	names := map[string]bool{}
	for _, name := range storage.Names() {
		names[name] = true
	}
	if names[shellCacheName("v1")] || names["aula-static-v0"] {
		t.Fatalf("old recognized caches must be purged, got %v", names)
	}
	if !names["some-other-app"] {
		t.Fatal("unrecognized cache names must be left untouched")
	}
	if g.State() != LifecycleActivated {
		t.Fatalf("expected activated state, got %s", g.State())
	}
}

func TestAudioCacheEviction(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{})

	audio := storage.Open(audioCacheName)
	putEntry(audio, "/audio/old.webm", "old", 8*24*time.Hour)
	putEntry(audio, "/audio/recent.webm", "recent", 6*24*time.Hour)
	runtime := storage.Open(runtimeCacheName)
	putEntry(runtime, "/ancient.json", "ancient", 30*24*time.Hour)

	// Eviction runs only when signaled
	if audio.Len() != 2 {
		t.Fatalf("precondition failed: %d entries", audio.Len())
	}
	g.HandleMessage(CleanupMessage)

	if _, ok := audio.Get("/audio/old.webm"); ok {
		t.Fatal("entry older than the retention window must be evicted")
	}
	if _, ok := audio.Get("/audio/recent.webm"); !ok {
		t.Fatal("entry inside the retention window must be retained")
	}
	if _, ok := runtime.Get("/ancient.json"); !ok {
		t.Fatal("the sweep must never touch the runtime cache")
	}
}

func TestUnknownMessageIgnored(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{})
	putEntry(storage.Open(audioCacheName), "/audio/old.webm", "old", 8*24*time.Hour)

	g.HandleMessage("SOMETHING_ELSE")
	if _, ok := storage.Open(audioCacheName).Get("/audio/old.webm"); !ok {
		t.Fatal("unknown messages must not trigger eviction")
	}
}

func TestNonGetPassesThrough(t *testing.T) {
	u := newUpstream(t)
	g, storage := newGateway(t, u, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/notes", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("pass-through failed: %d", rec.Code)
	}
	if _, ok := storage.Open(runtimeCacheName).Get("/api/notes"); ok {
		t.Fatal("non-GET traffic must never be cached")
	}
}

func TestErrorResponsesNotCached(t *testing.T) {
	u := newUpstream(t)
	u.status.Store(http.StatusInternalServerError)
	g, storage := newGateway(t, u, Config{})

	rec := get(g, "/media/x.webm", map[string]string{"Sec-Fetch-Dest": "audio"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("upstream error should be relayed, got %d", rec.Code)
	}
	if _, ok := storage.Open(audioCacheName).Get("/media/x.webm"); ok {
		t.Fatal("non-success responses must not be cached")
	}
}
