package fetcher

import (
	"context"
	"sync"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

type cacheKey struct {
	uri  string
	hash string
}

type cacheEntry struct {
	obj model.RepositoryObject
	ok  bool
}

// CachingFetcher is component F: memoizes Fetch/GetCrl/GetManifest
// within one walk. The cache lifetime is the walk; a new trust-anchor
// run begins with an empty cache (spec §4.F). Absent results are
// cached too, so a URI that failed once stays failed for the walk.
type CachingFetcher struct {
	Inner *NotifyingFetcher

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewCachingFetcher builds a CachingFetcher with an empty cache.
func NewCachingFetcher(inner *NotifyingFetcher) *CachingFetcher {
	return &CachingFetcher{Inner: inner, cache: make(map[cacheKey]cacheEntry)}
}

// Reset clears the memoization cache. cmd/octorpki builds a new
// CachingFetcher for every trust-anchor run and does not call Reset.
func (c *CachingFetcher) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[cacheKey]cacheEntry)
}

func (c *CachingFetcher) Prefetch(ctx context.Context, uri string, result *model.ValidationResult) {
	c.Inner.Prefetch(ctx, uri, result)
}

// Fetch is safe for concurrent use; a single walk is single-threaded
// per spec §5. The lock is released before the inner fetch, because
// that fetch may re-enter this cache for the manifest's CRL lookup.
func (c *CachingFetcher) Fetch(ctx context.Context, uri string, spec model.ContentSpec, octx *model.ValidationContext, result *model.ValidationResult) (model.RepositoryObject, bool) {
	key := cacheKey{uri: uri, hash: spec.Hash}

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return entry.obj, entry.ok
	}
	c.mu.Unlock()

	obj, ok := c.Inner.Fetch(ctx, uri, spec, octx, result)

	c.mu.Lock()
	c.cache[key] = cacheEntry{obj: obj, ok: ok}
	c.mu.Unlock()

	return obj, ok
}

// GetManifest fetches and validates the manifest at uri, an
// arbitrary-URI spec (spec §4.G step 1).
func (c *CachingFetcher) GetManifest(ctx context.Context, uri string, octx *model.ValidationContext, result *model.ValidationResult) (model.ManifestCms, bool) {
	obj, ok := c.Fetch(ctx, uri, model.ArbitraryURISpec, octx, result)
	if !ok {
		return nil, false
	}
	mft, ok := obj.(model.ManifestCms)
	return mft, ok
}

// GetCrl implements CrlLocator, fetching and validating the CRL at
// uri (spec §4.G step 3, §4.D's back-reference).
func (c *CachingFetcher) GetCrl(ctx context.Context, uri string, octx *model.ValidationContext, result *model.ValidationResult) (model.X509Crl, bool) {
	if uri == "" {
		return nil, false
	}
	obj, ok := c.Fetch(ctx, uri, model.ArbitraryURISpec, octx, result)
	if !ok {
		return nil, false
	}
	crl, ok := obj.(model.X509Crl)
	return crl, ok
}
