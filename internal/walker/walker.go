// Package walker implements the top-down validation walk (component G):
// starting from a trust anchor's manifest, it descends the
// publication-point tree depth-first, fetching every listed file and
// recursing into CA certificates, stopping only at leaf objects,
// configured depth, or a previously-seen certificate subject key.
package walker

import (
	"context"
	"net/url"
	"path"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// OutermostFetcher is the fetcher chain surface the walker drives —
// always the outermost decorator (spec §4.D, §4.G), so every fetch it
// issues benefits from validation, notification and caching.
type OutermostFetcher interface {
	Fetch(ctx context.Context, uri string, spec model.ContentSpec, octx *model.ValidationContext, result *model.ValidationResult) (model.RepositoryObject, bool)
	GetManifest(ctx context.Context, uri string, octx *model.ValidationContext, result *model.ValidationResult) (model.ManifestCms, bool)
	GetCrl(ctx context.Context, uri string, octx *model.ValidationContext, result *model.ValidationResult) (model.X509Crl, bool)
}

// DefaultMaxDepth bounds the walk when the caller does not configure
// one; real repositories nest far shallower than this.
const DefaultMaxDepth = 32

// workItem is one pending context on the walker's depth-first stack.
type workItem struct {
	octx  *model.ValidationContext
	depth int
}

// Walker drains a work queue seeded by one or more trust anchors,
// descending each publication point depth-first (spec §4.G).
type Walker struct {
	Chain    OutermostFetcher
	MaxDepth int

	queue []workItem
	seen  map[string]bool // certificate subject keys visited this walk
}

// New builds a Walker bound to the outermost fetcher in the chain.
func New(chain OutermostFetcher, maxDepth int) *Walker {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Walker{Chain: chain, MaxDepth: maxDepth, seen: make(map[string]bool)}
}

// AddTrustAnchor seeds the work queue with the trust anchor's
// validation context, rooted at depth 0.
func (w *Walker) AddTrustAnchor(octx *model.ValidationContext) {
	w.queue = append(w.queue, workItem{octx: octx, depth: 0})
}

// Execute drains the work queue, fetching and validating every
// reachable object. Notification listeners (spec §4.E), not the
// walker, populate the caller's URI→ValidatedObject result map.
func (w *Walker) Execute(ctx context.Context, result *model.ValidationResult) {
	for len(w.queue) > 0 {
		n := len(w.queue) - 1
		item := w.queue[n]
		w.queue = w.queue[:n]
		w.visit(ctx, item, result)
	}
}

func (w *Walker) visit(ctx context.Context, item workItem, result *model.ValidationResult) {
	octx := item.octx

	mft, ok := w.Chain.GetManifest(ctx, octx.ManifestUri, octx, result)
	if !ok {
		return
	}

	// The CRL itself is not used for walker branching; fetching it here
	// warms the cache and drives the manifest/CRL revocation checks the
	// oracle already applied inside GetManifest's own Fetch (spec §4.D's
	// three-step dance) to completion for this context.
	if _, ok := w.Chain.GetCrl(ctx, mft.CrlUri(), octx, result); !ok {
		return
	}

	seenNames := make(map[string]bool, len(mft.FileNames()))
	for _, name := range mft.FileNames() {
		if seenNames[name] {
			result.Push(octx.ManifestUri)
			result.AddCheck(model.NewCheck(model.CheckManifestMissingFile, model.Failed, name))
			result.Pop()
			continue
		}
		seenNames[name] = true

		childUri, err := resolve(octx.RepositoryUri, name)
		if err != nil {
			continue
		}
		spec, _ := mft.FileContentSpec(name)

		childCtx := &model.ValidationContext{
			Parent:        octx.Parent,
			RepositoryUri: octx.RepositoryUri,
			ManifestUri:   octx.ManifestUri,
		}

		obj, ok := w.Chain.Fetch(ctx, childUri, spec, childCtx, result)
		if !ok {
			continue
		}

		cert, isCert := obj.(model.X509ResourceCertificate)
		if !isCert {
			continue
		}

		if item.depth+1 > w.MaxDepth {
			continue
		}
		key := cert.SubjectKey()
		if key != "" {
			if w.seen[key] {
				continue
			}
			w.seen[key] = true
		}

		w.queue = append(w.queue, workItem{
			octx: &model.ValidationContext{
				Parent:        cert,
				RepositoryUri: childUri,
				ManifestUri:   cert.ManifestUri(),
			},
			depth: item.depth + 1,
		})
	}
}

// resolve joins a repository base URI with a manifest-listed file
// name, appending the name to the base's full path. Unlike the
// consistent fetcher's resolve, it does not strip the base's last
// path element first.
func resolve(base, name string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(u.Path, name)
	return u.String(), nil
}
