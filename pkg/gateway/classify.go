package gateway

import (
	"net/http"
	"strings"
)

// Strategy names the caching policy applied to a request
type Strategy string

const (
	StrategyPassThrough          Strategy = "pass-through"
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyNetworkFirst         Strategy = "network-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
)

// classification is the dispatch decision for one request
type classification struct {
	strategy Strategy
	cache    string // partition name, empty for pass-through
	document bool   // document requests may fall back to the cached root
}

// destination returns the request's fetch destination, as reported by
// the client in Sec-Fetch-Dest
func destination(r *http.Request) string {
	return r.Header.Get("Sec-Fetch-Dest")
}

// classify decides strategy and partition by request destination and
// URL shape. Cross-origin requests are not intercepted at all.
func (g *Gateway) classify(r *http.Request) classification {
	if g.originHost != "" && r.Host != "" && r.Host != g.originHost {
		return classification{strategy: StrategyPassThrough}
	}

	dest := destination(r)
	path := r.URL.Path
	isDocument := dest == "document"

	switch {
	case dest == "audio" || strings.Contains(path, "audio"):
		return classification{strategy: StrategyCacheFirst, cache: audioCacheName}
	case dest == "script" || dest == "style" || dest == "font":
		return classification{strategy: StrategyCacheFirst, cache: g.shellName}
	case isDocument || strings.HasPrefix(path, "/api/"):
		return classification{strategy: StrategyNetworkFirst, cache: runtimeCacheName, document: isDocument}
	default:
		return classification{strategy: StrategyStaleWhileRevalidate, cache: runtimeCacheName}
	}
}
