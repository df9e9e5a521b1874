package fetcher

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/carlosm3011/rpki-validator/internal/model"
	"github.com/carlosm3011/rpki-validator/internal/oracle"
	"github.com/carlosm3011/rpki-validator/internal/store"
)

// RemoteSource is the subset of RemoteFetcher that ConsistentFetcher
// relies on; satisfied by *RemoteFetcher in production and by a fake
// in tests.
type RemoteSource interface {
	FetchBytes(ctx context.Context, uri string) ([]byte, error)
}

// ConsistentFetcher is component C: wraps the remote fetcher and the
// object store. On a manifest URI it fetches the manifest and every
// file it lists, and only commits the whole set if every file
// verified; otherwise it surfaces the previously stored set, if any
// (spec §4.C).
type ConsistentFetcher struct {
	Remote RemoteSource
	Store  *store.Store
	Oracle *oracle.Oracle
	Now    func() time.Time
}

// NewConsistentFetcher builds a ConsistentFetcher.
func NewConsistentFetcher(remote RemoteSource, st *store.Store, o *oracle.Oracle) *ConsistentFetcher {
	return &ConsistentFetcher{Remote: remote, Store: st, Oracle: o, Now: time.Now}
}

// Prefetch delegates to the remote fetcher, transcribing its
// failures as warnings on result at uri (spec §7's mapping table).
func (c *ConsistentFetcher) Prefetch(ctx context.Context, uri string, result *model.ValidationResult) {
	result.Push(uri)
	defer result.Pop()

	if _, err := c.Remote.FetchBytes(ctx, uri); err != nil {
		result.AddCheck(mapRemoteFailure(err))
	}
}

// Fetch implements spec §4.C's fetch algorithm.
func (c *ConsistentFetcher) Fetch(ctx context.Context, uri string, spec model.ContentSpec, result *model.ValidationResult) (model.StoredRepositoryObject, bool) {
	if spec.HasHash {
		if obj, ok, _ := c.Store.GetByHash(spec.Hash); ok {
			return obj, true
		}
		c.fetchAndStoreObject(ctx, uri, result)
		if obj, ok, _ := c.Store.GetLatestByUrl(uri); ok {
			return obj, true
		}
	} else {
		c.fetchAndStoreObject(ctx, uri, result)
		if obj, ok, _ := c.Store.GetLatestByUrl(uri); ok {
			return obj, true
		}
	}

	result.AddCheck(model.NewCheck(model.CheckObjectNotInCache, model.Failed, uri))
	return model.StoredRepositoryObject{}, false
}

// fetchAndStoreObject implements spec §4.C's fetchAndStoreObject.
func (c *ConsistentFetcher) fetchAndStoreObject(ctx context.Context, uri string, result *model.ValidationResult) {
	fetchResults := model.NewValidationResult()
	fetchResults.Push(uri)

	data, err := c.Remote.FetchBytes(ctx, uri)

	// Remote failures never propagate as errors in the outer result;
	// they are warnings that may still be satisfied from the store.
	for _, check := range fetchResults.ChecksAt(uri) {
		result.AddCheckAt(uri, check)
	}
	if err != nil {
		result.AddCheckAt(uri, mapRemoteFailure(err))
		return
	}

	parsed, perr := c.Oracle.Parse(uri, data)
	if perr != nil {
		// Unparseable bytes are stored as-is; the validating fetcher
		// (component D) is where that surfaces as an invalid object.
		_ = c.Store.Put([]model.StoredRepositoryObject{model.NewStoredRepositoryObject(uri, data)}, c.now())
		return
	}

	if mft, ok := parsed.(*oracle.Manifest); ok {
		c.fetchAndStoreConsistentObjectSet(ctx, uri, mft, data, result)
		return
	}

	_ = c.Store.Put([]model.StoredRepositoryObject{model.NewStoredRepositoryObject(uri, data)}, c.now())
}

// fetchAndStoreConsistentObjectSet implements spec §4.C's eponymous
// algorithm and the atomicity rule it documents.
func (c *ConsistentFetcher) fetchAndStoreConsistentObjectSet(ctx context.Context, manifestUri string, mft *oracle.Manifest, mftBytes []byte, result *model.ValidationResult) {
	mftHash := model.HashBytes(mftBytes)
	if _, ok, _ := c.Store.GetByHash(mftHash); ok {
		return // already committed this manifest's file set
	}

	fetchResults := model.NewValidationResult()

	batch := []model.StoredRepositoryObject{model.NewStoredRepositoryObject(manifestUri, mftBytes)}
	seen := make(map[string]bool, len(mft.FileNames()))
	for _, name := range mft.FileNames() {
		if seen[name] {
			result.AddCheck(model.NewCheck(model.CheckManifestDuplicateFile, model.Failed, name))
			fetchResults.Push(name)
			fetchResults.AddCheck(model.NewCheck(model.CheckManifestDuplicateFile, model.Failed, name))
			fetchResults.Pop()
			continue
		}
		seen[name] = true

		childUri, err := resolve(manifestUri, name)
		if err != nil {
			fetchResults.Push(name)
			fetchResults.AddCheck(model.NewCheck(model.CheckRepositoryUnknown, model.Failed, err.Error()))
			fetchResults.Pop()
			continue
		}

		fetchResults.Push(childUri)
		data, err := c.Remote.FetchBytes(ctx, childUri)
		if err != nil {
			fetchResults.AddCheck(mapRemoteFailure(err))
			fetchResults.Pop()
			continue
		}
		fetchResults.Pop()

		if spec, ok := mft.FileContentSpec(name); ok && spec.HasHash {
			if model.HashBytes(data) != spec.Hash {
				fetchResults.Push(childUri)
				fetchResults.AddCheck(model.NewCheck(model.CheckRepositoryInconsistent, model.Failed, childUri))
				fetchResults.Pop()
				continue
			}
		}

		batch = append(batch, model.NewStoredRepositoryObject(childUri, data))
	}

	if fetchResults.HasFailures() {
		for uri, checks := range fetchResults.AllChecks() {
			for _, chk := range checks {
				result.AddCheckAt(uri, downgradeToWarning(chk))
			}
		}
		result.AddCheck(model.NewCheck(model.CheckRepositoryIncomplete, model.Warning, manifestUri))
		result.AddMetric(model.CheckRepositoryIncomplete, manifestUri, c.now())
		return
	}

	_ = c.Store.Put(batch, c.now())
}

func downgradeToWarning(c model.ValidationCheck) model.ValidationCheck {
	if c.Status == model.Failed {
		c.Status = model.Warning
	}
	return c
}

func mapRemoteFailure(err error) model.ValidationCheck {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "rsync"):
		return model.NewCheck(model.CheckRsyncCommand, model.Warning, msg)
	case strings.Contains(msg, "read"):
		return model.NewCheck(model.CheckRepositoryIncomplete, model.Warning, msg)
	case strings.Contains(msg, "hash") || strings.Contains(msg, "content"):
		return model.NewCheck(model.CheckRepositoryInconsistent, model.Warning, msg)
	default:
		return model.NewCheck(model.CheckRepositoryUnknown, model.Warning, msg)
	}
}

func (c *ConsistentFetcher) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// resolve joins a manifest's base URI with a listed file name,
// RFC3986-style relative resolution (spec §4.C).
func resolve(base, name string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(path.Dir(u.Path), name)
	return u.String(), nil
}
