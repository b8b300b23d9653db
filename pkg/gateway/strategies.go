package gateway

import (
	"context"
	"log"
	"net/http"
)

// cacheable reports whether a fetched response may be stored
func cacheable(resp *CachedResponse) bool {
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// rootFallback returns the cached root document, the last resort for
// navigations when both network and the entry cache miss
func (g *Gateway) rootFallback() (*CachedResponse, bool) {
	if resp, ok := g.shell().Get("/"); ok {
		return resp, true
	}
	return g.runtime().Get("/")
}

// cacheFirst serves from the partition when possible; the network is
// only consulted on a miss. Successful fetches are stored for next
// time. A failed fetch on a document request falls back to the cached
// root; anything else propagates the failure.
func (g *Gateway) cacheFirst(p *Partition, r *http.Request, key string, document bool) (*CachedResponse, error) {
	if resp, ok := p.Get(key); ok {
		return resp, nil
	}

	resp, err := g.fetch(r)
	if err != nil {
		if document {
			if fallback, ok := g.rootFallback(); ok {
				return fallback, nil
			}
		}
		return nil, err
	}
	if cacheable(resp) {
		p.Put(key, resp.clone())
	}
	return resp, nil
}

// networkFirst always attempts the network, even when a cache entry
// exists; the cache is only served when the fetch fails. Documents
// fall back to the cached root as a last resort.
func (g *Gateway) networkFirst(p *Partition, r *http.Request, key string, document bool) (*CachedResponse, error) {
	resp, err := g.fetch(r)
	if err == nil {
		if cacheable(resp) {
			p.Put(key, resp.clone())
		}
		return resp, nil
	}

	if cached, ok := p.Get(key); ok {
		return cached, nil
	}
	if document {
		if fallback, ok := g.rootFallback(); ok {
			return fallback, nil
		}
	}
	return nil, err
}

// staleWhileRevalidate serves the cached entry immediately and
// refreshes it in the background; the refresh never blocks the
// response. On a cache miss the caller waits on the network instead.
func (g *Gateway) staleWhileRevalidate(p *Partition, r *http.Request, key string) (*CachedResponse, error) {
	cached, ok := p.Get(key)
	if !ok {
		resp, err := g.fetch(r)
		if err != nil {
			return nil, err
		}
		if cacheable(resp) {
			p.Put(key, resp.clone())
		}
		return resp, nil
	}

	revalidate := r.Clone(context.Background())
	g.revalidations.Add(1)
	go func() {
		defer g.revalidations.Done()
		// The limiter delays a refresh under load; it never drops one
		if err := g.limiter.Wait(context.Background()); err != nil {
			return
		}
		resp, err := g.fetch(revalidate)
		if err != nil {
			log.Printf("Background revalidation of %s failed: %v", key, err)
			return
		}
		if cacheable(resp) {
			p.Put(key, resp)
		}
	}()

	return cached, nil
}
