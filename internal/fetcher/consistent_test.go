package fetcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/require"

	"github.com/carlosm3011/rpki-validator/internal/model"
	"github.com/carlosm3011/rpki-validator/internal/oracle"
	"github.com/carlosm3011/rpki-validator/internal/store"
)

// fakeRemote serves fixed bytes per URI and counts calls, standing in
// for the rsync-backed RemoteFetcher in unit tests.
type fakeRemote struct {
	mu    sync.Mutex
	data  map[string][]byte
	err   map[string]error
	calls map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string][]byte{}, err: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeRemote) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[uri]++
	if err, ok := f.err[uri]; ok {
		return nil, err
	}
	return f.data[uri], nil
}

func (f *fakeRemote) callCount(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[uri]
}

func newTestConsistentFetcher() (*ConsistentFetcher, *fakeRemote) {
	remote := newFakeRemote()
	st := store.New(dbm.NewMemDB())
	cf := NewConsistentFetcher(remote, st, oracle.New())
	return cf, remote
}

func TestConsistentFetcherCacheHitEquivalence(t *testing.T) {
	cf, remote := newTestConsistentFetcher()
	uri := "rsync://example/a.roa"
	data := []byte("roa-bytes")
	obj := model.NewStoredRepositoryObject(uri, data)
	require.NoError(t, cf.Store.Put([]model.StoredRepositoryObject{obj}, time.Now()))

	result := model.NewValidationResult()
	got, ok := cf.Fetch(context.Background(), uri, model.HashSpec(obj.Hash), result)
	require.True(t, ok)
	require.Equal(t, data, got.BinaryBytes)
	require.Equal(t, 0, remote.callCount(uri), "remote fetcher must not be consulted on a hash-spec cache hit")
}

func TestConsistentFetcherHashMissFallsBackToRemote(t *testing.T) {
	cf, remote := newTestConsistentFetcher()
	uri := "rsync://example/a.roa"
	data := []byte("roa-bytes")
	remote.data[uri] = data

	result := model.NewValidationResult()
	got, ok := cf.Fetch(context.Background(), uri, model.HashSpec(model.HashBytes(data)), result)
	require.True(t, ok)
	require.Equal(t, data, got.BinaryBytes)
	require.Equal(t, 1, remote.callCount(uri))
}

func TestConsistentFetcherArbitraryUriAlwaysFetchesRemote(t *testing.T) {
	cf, remote := newTestConsistentFetcher()
	uri := "rsync://example/ta.cer"
	remote.data[uri] = []byte("cert-bytes")

	result := model.NewValidationResult()
	_, ok := cf.Fetch(context.Background(), uri, model.ArbitraryURISpec, result)
	require.True(t, ok)

	_, ok = cf.Fetch(context.Background(), uri, model.ArbitraryURISpec, result)
	require.True(t, ok)
	require.Equal(t, 2, remote.callCount(uri), "arbitrary-uri fetches always go to remote")
}

func TestConsistentFetcherMissingObjectRecordsNotInCache(t *testing.T) {
	cf, remote := newTestConsistentFetcher()
	uri := "rsync://example/missing.roa"
	remote.err[uri] = fmt.Errorf("rsync: connection refused")

	result := model.NewValidationResult()
	result.Push(uri)
	_, ok := cf.Fetch(context.Background(), uri, model.ArbitraryURISpec, result)
	require.False(t, ok)

	checks := result.ChecksAt(uri)
	var sawNotInCache, sawRsyncWarning bool
	for _, c := range checks {
		if c.Key == model.CheckObjectNotInCache && c.Status == model.Failed {
			sawNotInCache = true
		}
		if c.Key == model.CheckRsyncCommand && c.Status == model.Warning {
			sawRsyncWarning = true
		}
	}
	require.True(t, sawNotInCache)
	require.True(t, sawRsyncWarning, "remote failures surface as warnings, not outer failures (spec §7)")
}

func TestPrefetchTranscribesFailureAsWarning(t *testing.T) {
	cf, remote := newTestConsistentFetcher()
	uri := "rsync://example/prefetch-me"
	remote.err[uri] = fmt.Errorf("rsync: timed out")

	result := model.NewValidationResult()
	cf.Prefetch(context.Background(), uri, result)

	checks := result.ChecksAt(uri)
	require.Len(t, checks, 1)
	require.Equal(t, model.Warning, checks[0].Status)
}
