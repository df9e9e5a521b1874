package walker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// fakeCert is a minimal model.X509ResourceCertificate double.
type fakeCert struct {
	subjectKey  string
	manifestUri string
}

func (c *fakeCert) Kind() model.ObjectKind            { return model.KindCertificate }
func (c *fakeCert) SubjectPublicKeyInfo() string       { return "spki-" + c.subjectKey }
func (c *fakeCert) ManifestUri() string                { return c.manifestUri }
func (c *fakeCert) ValidityNotBefore() time.Time       { return time.Time{} }
func (c *fakeCert) ValidityNotAfter() time.Time        { return time.Time{} }
func (c *fakeCert) SubjectKey() string                 { return c.subjectKey }

type fakeRoa struct{}

func (r *fakeRoa) Kind() model.ObjectKind { return model.KindRoa }

type fakeCrl struct{}

func (c *fakeCrl) Kind() model.ObjectKind       { return model.KindCrl }
func (c *fakeCrl) NextUpdateTime() time.Time    { return time.Time{} }

type fakeManifest struct {
	files map[string]model.ContentSpec
	names []string // overrides the files map's keys when non-nil, to allow duplicates
	crl   string
}

func (m *fakeManifest) Kind() model.ObjectKind { return model.KindManifest }
func (m *fakeManifest) FileNames() []string {
	if m.names != nil {
		return m.names
	}
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	return names
}
func (m *fakeManifest) FileContentSpec(name string) (model.ContentSpec, bool) {
	s, ok := m.files[name]
	return s, ok
}
func (m *fakeManifest) CrlUri() string             { return m.crl }
func (m *fakeManifest) NextUpdateTime() time.Time  { return time.Time{} }
func (m *fakeManifest) ValidityNotBefore() time.Time { return time.Time{} }
func (m *fakeManifest) ValidityNotAfter() time.Time  { return time.Time{} }

// fakeChain implements OutermostFetcher over fixed in-memory tables
// keyed by URI, standing in for the full fetcher chain in unit tests.
type fakeChain struct {
	manifests      map[string]model.ManifestCms
	objects        map[string]model.RepositoryObject
	crl            model.X509Crl
	fetched        []string
	certFetches    map[string]int // subject key -> fetch count
	manifestFetches map[string]int
}

func (f *fakeChain) Fetch(ctx context.Context, uri string, spec model.ContentSpec, octx *model.ValidationContext, result *model.ValidationResult) (model.RepositoryObject, bool) {
	f.fetched = append(f.fetched, uri)
	obj, ok := f.objects[uri]
	if ok {
		if cert, isCert := obj.(*fakeCert); isCert {
			if f.certFetches == nil {
				f.certFetches = make(map[string]int)
			}
			f.certFetches[cert.subjectKey]++
		}
	}
	return obj, ok
}

func (f *fakeChain) GetManifest(ctx context.Context, uri string, octx *model.ValidationContext, result *model.ValidationResult) (model.ManifestCms, bool) {
	if f.manifestFetches == nil {
		f.manifestFetches = make(map[string]int)
	}
	f.manifestFetches[uri]++
	m, ok := f.manifests[uri]
	return m, ok
}

func (f *fakeChain) GetCrl(ctx context.Context, uri string, octx *model.ValidationContext, result *model.ValidationResult) (model.X509Crl, bool) {
	if f.crl == nil {
		return nil, false
	}
	return f.crl, true
}

func TestWalkerHappyPathVisitsAllReachableObjects(t *testing.T) {
	chain := &fakeChain{
		manifests: map[string]model.ManifestCms{
			"rsync://example/repo/ta.mft": &fakeManifest{
				files: map[string]model.ContentSpec{
					"a.roa": model.ArbitraryURISpec,
					"b.cer": model.ArbitraryURISpec,
				},
				crl: "rsync://example/repo/ta.crl",
			},
			"rsync://example/repo/b.cer/b.mft": &fakeManifest{
				files: map[string]model.ContentSpec{
					"c.roa": model.ArbitraryURISpec,
				},
				crl: "rsync://example/repo/b.cer/b.crl",
			},
		},
		objects: map[string]model.RepositoryObject{
			"rsync://example/repo/a.roa": &fakeRoa{},
			"rsync://example/repo/b.cer":     &fakeCert{subjectKey: "b", manifestUri: "rsync://example/repo/b.cer/b.mft"},
			"rsync://example/repo/b.cer/c.roa": &fakeRoa{},
		},
		crl: &fakeCrl{},
	}

	w := New(chain, DefaultMaxDepth)
	w.AddTrustAnchor(&model.ValidationContext{
		RepositoryUri: "rsync://example/repo",
		ManifestUri:   "rsync://example/repo/ta.mft",
	})

	result := model.NewValidationResult()
	w.Execute(context.Background(), result)

	require.Contains(t, chain.fetched, "rsync://example/repo/a.roa")
	require.Contains(t, chain.fetched, "rsync://example/repo/b.cer")
	require.Contains(t, chain.fetched, "rsync://example/repo/b.cer/c.roa")
}

func TestWalkerStopsOnMissingManifest(t *testing.T) {
	chain := &fakeChain{manifests: map[string]model.ManifestCms{}, objects: map[string]model.RepositoryObject{}}
	w := New(chain, DefaultMaxDepth)
	w.AddTrustAnchor(&model.ValidationContext{RepositoryUri: "rsync://example/repo", ManifestUri: "rsync://example/repo/missing.mft"})

	result := model.NewValidationResult()
	w.Execute(context.Background(), result)

	require.Empty(t, chain.fetched)
}

func TestWalkerDuplicateManifestEntryFlagsFailureAndFetchesOnce(t *testing.T) {
	chain := &fakeChain{
		manifests: map[string]model.ManifestCms{
			"rsync://example/repo/ta.mft": &fakeManifest{
				names: []string{"a.roa", "a.roa"},
				files: map[string]model.ContentSpec{"a.roa": model.ArbitraryURISpec},
				crl:   "rsync://example/repo/ta.crl",
			},
		},
		objects: map[string]model.RepositoryObject{
			"rsync://example/repo/a.roa": &fakeRoa{},
		},
		crl: &fakeCrl{},
	}

	w := New(chain, DefaultMaxDepth)
	w.AddTrustAnchor(&model.ValidationContext{RepositoryUri: "rsync://example/repo", ManifestUri: "rsync://example/repo/ta.mft"})

	result := model.NewValidationResult()
	w.Execute(context.Background(), result)

	count := 0
	for _, u := range chain.fetched {
		if u == "rsync://example/repo/a.roa" {
			count++
		}
	}
	require.Equal(t, 1, count, "a duplicate manifest entry must not be fetched twice")
	require.True(t, model.HasFailure(result.ChecksAt("rsync://example/repo/ta.mft")))
}

func TestWalkerCycleDetectionStopsReprocessingSameSubjectKey(t *testing.T) {
	// b.cer's manifest lists a.cer again, closing a cycle back to a
	// subject key already on the walk.
	chain := &fakeChain{
		manifests: map[string]model.ManifestCms{
			"rsync://example/repo/ta.mft": &fakeManifest{
				files: map[string]model.ContentSpec{"a.cer": model.ArbitraryURISpec},
				crl:   "rsync://example/repo/ta.crl",
			},
			"rsync://example/repo/a.mft": &fakeManifest{
				files: map[string]model.ContentSpec{"b.cer": model.ArbitraryURISpec},
				crl:   "rsync://example/repo/a.crl",
			},
			"rsync://example/repo/b.mft": &fakeManifest{
				files: map[string]model.ContentSpec{"a.cer": model.ArbitraryURISpec},
				crl:   "rsync://example/repo/b.crl",
			},
		},
		objects: map[string]model.RepositoryObject{
			"rsync://example/repo/a.cer":             &fakeCert{subjectKey: "a", manifestUri: "rsync://example/repo/a.mft"},
			"rsync://example/repo/a.cer/b.cer":        &fakeCert{subjectKey: "b", manifestUri: "rsync://example/repo/b.mft"},
			"rsync://example/repo/a.cer/b.cer/a.cer":  &fakeCert{subjectKey: "a", manifestUri: "rsync://example/repo/a.mft"},
		},
		crl: &fakeCrl{},
	}

	w := New(chain, DefaultMaxDepth)
	w.AddTrustAnchor(&model.ValidationContext{RepositoryUri: "rsync://example/repo", ManifestUri: "rsync://example/repo/ta.mft"})

	result := model.NewValidationResult()
	w.Execute(context.Background(), result)

	require.Equal(t, 1, chain.manifestFetches["rsync://example/repo/a.mft"], "subject key \"a\" must only be descended into once despite appearing twice in the repository")
}
