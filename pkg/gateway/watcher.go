package gateway

import (
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"aula/pkg/performance"
)

// AssetWatcher refreshes shell cache entries when the files backing
// them change on disk, so a redeployed asset does not serve stale
// until the next version bump. Change bursts (editors write several
// times) are debounced per file.
type AssetWatcher struct {
	gateway   *Gateway
	assetsDir string
	watcher   *fsnotify.Watcher
	debouncer *performance.Debouncer
}

// WatchAssets starts watching an assets directory for the gateway.
// The returned watcher must be closed on shutdown.
func (g *Gateway) WatchAssets(assetsDir string) (*AssetWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(assetsDir); err != nil {
		watcher.Close()
		return nil, err
	}

	aw := &AssetWatcher{
		gateway:   g,
		assetsDir: assetsDir,
		watcher:   watcher,
		debouncer: performance.NewDebouncer(300 * time.Millisecond),
	}
	go aw.run()

	log.Printf("Watching %s for shell asset changes", assetsDir)
	return aw, nil
}

func (aw *AssetWatcher) run() {
	for {
		select {
		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			urlPath := aw.urlPathFor(event.Name)
			if urlPath == "" {
				continue
			}
			aw.debouncer.Debounce(urlPath, func() {
				aw.refresh(urlPath)
			})

		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Asset watcher error: %v", err)
		}
	}
}

// urlPathFor maps a changed file to the URL it is served under
func (aw *AssetWatcher) urlPathFor(name string) string {
	rel, err := filepath.Rel(aw.assetsDir, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/" + filepath.ToSlash(rel)
}

// refresh re-fetches one asset into the shell cache. Only entries the
// shell already holds are refreshed; unknown files are not promoted
// into the precache set.
func (aw *AssetWatcher) refresh(urlPath string) {
	shell := aw.gateway.shell()
	if _, ok := shell.Get(urlPath); !ok {
		return
	}

	req, err := http.NewRequest(http.MethodGet, urlPath, nil)
	if err != nil {
		return
	}
	resp, err := aw.gateway.fetch(req)
	if err != nil {
		log.Printf("Refresh of changed asset %s failed: %v", urlPath, err)
		return
	}
	if cacheable(resp) {
		shell.Put(urlPath, resp)
		log.Printf("Shell cache refreshed for %s", urlPath)
	}
}

// Close stops watching and drops pending refreshes
func (aw *AssetWatcher) Close() error {
	aw.debouncer.Clear()
	return aw.watcher.Close()
}
