// Package assets keeps the app shell available when the origin is not, by
// caching GET responses under a version tag.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"smartbudget/internal/cache"
	applog "smartbudget/internal/log"
)

// DefaultShell is precached by Install.
var DefaultShell = []string{"/", "/index.html", "/manifest.json", "/app.js", "/styles.css"}

// Entry is a cached response.
type Entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Cache serves GET requests from a versioned response cache in front of an
// origin handler.
type Cache struct {
	version string
	store   cache.Cache[Entry]
	origin  http.Handler
	shell   []string
	logger  *applog.Logger
}

// New creates an asset cache for version over origin. A nil shell means
// DefaultShell.
func New(version string, store cache.Cache[Entry], origin http.Handler, shell []string, logger *applog.Logger) *Cache {
	if shell == nil {
		shell = DefaultShell
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Cache{
		version: version,
		store:   store,
		origin:  origin,
		shell:   shell,
		logger:  logger.WithComponent(applog.ComponentAssets).With(applog.FieldCacheVersion, version),
	}
}

// Version returns the cache version tag.
func (c *Cache) Version() string { return c.version }

func (c *Cache) prefix() string { return c.version + ":" }

func (c *Cache) key(uri string) string { return c.prefix() + uri }

// Install fetches every shell URL from the origin and caches it. Any
// non-200 answer aborts the install.
func (c *Cache) Install(ctx context.Context) error {
	for _, uri := range c.shell {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return fmt.Errorf("precache %s: %w", uri, err)
		}
		rec := httptest.NewRecorder()
		c.origin.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return fmt.Errorf("precache %s: origin answered %d", uri, rec.Code)
		}
		c.store.Set(c.key(uri), entryFrom(rec))
	}
	c.logger.InfoContext(ctx, "App shell precached", "urls", len(c.shell))
	return nil
}

// Activate purges entries cached under any other version and returns how
// many were removed.
func (c *Cache) Activate(ctx context.Context) int {
	removed := 0
	for _, key := range c.store.Keys("") {
		if strings.HasPrefix(key, c.prefix()) {
			continue
		}
		c.store.Delete(key)
		removed++
	}
	if removed > 0 {
		c.logger.InfoContext(ctx, "Stale asset cache entries purged", "count", removed)
	}
	return removed
}

// ServeHTTP answers GETs from the cache when possible. Non-GET requests pass
// straight to the origin.
func (c *Cache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		c.origin.ServeHTTP(w, r)
		return
	}

	key := c.key(r.URL.RequestURI())
	if e, ok := c.store.Get(key); ok {
		writeEntry(w, e, "HIT")
		return
	}

	rec := httptest.NewRecorder()
	c.origin.ServeHTTP(rec, r)
	fresh := entryFrom(rec)

	if fresh.Status == http.StatusOK {
		c.store.Set(key, fresh)
		writeEntry(w, fresh, "MISS")
		return
	}

	if fresh.Status >= 400 && isDocumentRequest(r) {
		if shell, ok := c.store.Get(c.key("/index.html")); ok {
			c.logger.DebugContext(r.Context(), "Serving cached shell for document request",
				applog.FieldPath, r.URL.Path, applog.FieldStatusCode, fresh.Status)
			writeEntry(w, shell, "FALLBACK")
			return
		}
	}

	writeEntry(w, fresh, "BYPASS")
}

func isDocumentRequest(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Dest") == "document" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func entryFrom(rec *httptest.ResponseRecorder) Entry {
	res := rec.Result()
	return Entry{
		Status: res.StatusCode,
		Header: res.Header.Clone(),
		Body:   bytes.Clone(rec.Body.Bytes()),
	}
}

func writeEntry(w http.ResponseWriter, e Entry, state string) {
	h := w.Header()
	for k, vs := range e.Header {
		h[k] = append([]string(nil), vs...)
	}
	h.Set("X-Cache", state)
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}
