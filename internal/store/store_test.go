package store

import (
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/require"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbm.NewMemDB()
	return New(db)
}

func TestPutAndGetByHash(t *testing.T) {
	s := newTestStore(t)
	obj := model.NewStoredRepositoryObject("rsync://example/a.roa", []byte("hello"))

	require.NoError(t, s.Put([]model.StoredRepositoryObject{obj}, time.Now()))

	got, ok, err := s.GetByHash(obj.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, obj.BinaryBytes, got.BinaryBytes)
	require.Equal(t, obj.Uri, got.Uri)
}

func TestGetByHashMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetByHash("deadbeef")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetLatestByUrlReturnsMostRecentPut(t *testing.T) {
	s := newTestStore(t)
	uri := "rsync://example/mft.mft"

	first := model.NewStoredRepositoryObject(uri, []byte("version-1"))
	require.NoError(t, s.Put([]model.StoredRepositoryObject{first}, time.Now()))

	second := model.NewStoredRepositoryObject(uri, []byte("version-2"))
	require.NoError(t, s.Put([]model.StoredRepositoryObject{second}, time.Now()))

	got, ok, err := s.GetLatestByUrl(uri)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second.BinaryBytes, got.BinaryBytes)

	// The earlier content is still retrievable by its own hash.
	old, ok, err := s.GetByHash(first.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.BinaryBytes, old.BinaryBytes)
}

func TestPutBatchAtomicity(t *testing.T) {
	s := newTestStore(t)
	mft := model.NewStoredRepositoryObject("rsync://example/x.mft", []byte("mft"))
	child := model.NewStoredRepositoryObject("rsync://example/a.roa", []byte("roa"))

	require.NoError(t, s.Put([]model.StoredRepositoryObject{mft, child}, time.Now()))

	_, mftOk, err := s.GetByHash(mft.Hash)
	require.NoError(t, err)
	_, childOk, err := s.GetByHash(child.Hash)
	require.NoError(t, err)
	require.True(t, mftOk)
	require.True(t, childOk)
}

func TestContentAddressingInvariant(t *testing.T) {
	s := newTestStore(t)
	obj := model.NewStoredRepositoryObject("rsync://example/a.cer", []byte("certificate-bytes"))
	require.NoError(t, s.Put([]model.StoredRepositoryObject{obj}, time.Now()))

	got, ok, err := s.GetByHash(obj.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.HashBytes(got.BinaryBytes), obj.Hash)
}

func TestPurgeExpiredRemovesOnlyStaleEntries(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	old := model.NewStoredRepositoryObject("rsync://example/old.roa", []byte("old"))
	require.NoError(t, s.Put([]model.StoredRepositoryObject{old}, now.AddDate(0, 0, -10)))

	fresh := model.NewStoredRepositoryObject("rsync://example/fresh.roa", []byte("fresh"))
	require.NoError(t, s.Put([]model.StoredRepositoryObject{fresh}, now))

	removed, err := s.PurgeExpired(5, now)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, ok, err := s.GetByHash(old.Hash)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.GetByHash(fresh.Hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPurgeExpiredClearsDanglingLatestIndex(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	old := model.NewStoredRepositoryObject("rsync://example/old.roa", []byte("old"))
	require.NoError(t, s.Put([]model.StoredRepositoryObject{old}, now.AddDate(0, 0, -10)))

	_, err := s.PurgeExpired(5, now)
	require.NoError(t, err)

	_, ok, err := s.GetLatestByUrl("rsync://example/old.roa")
	require.NoError(t, err)
	require.False(t, ok, "latest: pointer for a purged hash must not dangle")
}

func TestPurgeExpiredPreservesLatestIndexRepointedToFreshContent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	uri := "rsync://example/repo.roa"
	old := model.NewStoredRepositoryObject(uri, []byte("old"))
	require.NoError(t, s.Put([]model.StoredRepositoryObject{old}, now.AddDate(0, 0, -10)))

	fresh := model.NewStoredRepositoryObject(uri, []byte("fresh"))
	require.NoError(t, s.Put([]model.StoredRepositoryObject{fresh}, now))

	_, err := s.PurgeExpired(5, now)
	require.NoError(t, err)

	got, ok, err := s.GetLatestByUrl(uri)
	require.NoError(t, err)
	require.True(t, ok, "latest: must still resolve once repointed to fresh content")
	require.Equal(t, fresh.Hash, got.Hash)
}

func TestPurgeExpiredIdempotent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	old := model.NewStoredRepositoryObject("rsync://example/old.roa", []byte("old"))
	require.NoError(t, s.Put([]model.StoredRepositoryObject{old}, now.AddDate(0, 0, -10)))

	first, err := s.PurgeExpired(5, now)
	require.NoError(t, err)
	require.Equal(t, 1, first)

	second, err := s.PurgeExpired(5, now)
	require.NoError(t, err)
	require.Equal(t, 0, second)
}
