// Package store implements the durable, content-addressed object
// store (component A, spec §4.A): bytes keyed by SHA-256 hash, plus a
// latest-by-URI index, backed by a CometBFT key-value database.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

const (
	objPrefix   = "obj:"
	latestPrefix = "latest:"
	tsPrefix    = "ts:"
)

// record is the on-disk encoding of a StoredRepositoryObject.
type record struct {
	Uri  string `json:"uri"`
	Data []byte `json:"data"`
}

// Store is the durable object store. Writes are serialized with a
// single mutex so that a batch's items become visible together or not
// at all (spec §5: "writes must be atomic at batch granularity");
// reads proceed without holding the write lock.
type Store struct {
	db dbm.DB
	mu sync.Mutex
}

// New wraps an already-open CometBFT DB. Callers choose the backend
// (GoLevelDB for durability across restarts, MemDB for tests).
func New(db dbm.DB) *Store {
	return &Store{db: db}
}

// GetByHash returns the stored object for an exact content hash.
func (s *Store) GetByHash(hash string) (model.StoredRepositoryObject, bool, error) {
	raw, err := s.db.Get([]byte(objPrefix + hash))
	if err != nil {
		return model.StoredRepositoryObject{}, false, fmt.Errorf("store: get by hash %s: %w", hash, err)
	}
	if raw == nil {
		return model.StoredRepositoryObject{}, false, nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.StoredRepositoryObject{}, false, fmt.Errorf("store: decode %s: %w", hash, err)
	}
	return model.StoredRepositoryObject{Uri: rec.Uri, BinaryBytes: rec.Data, Hash: hash}, true, nil
}

// GetLatestByUrl returns the most recently put entry for uri, if any.
func (s *Store) GetLatestByUrl(uri string) (model.StoredRepositoryObject, bool, error) {
	hashBytes, err := s.db.Get([]byte(latestPrefix + uri))
	if err != nil {
		return model.StoredRepositoryObject{}, false, fmt.Errorf("store: latest index %s: %w", uri, err)
	}
	if hashBytes == nil {
		return model.StoredRepositoryObject{}, false, nil
	}
	return s.GetByHash(string(hashBytes))
}

// Put writes a batch of objects so that all become visible together
// or none do (spec §4.A, §8 "Consistent-set atomicity"). Puts are
// idempotent on hash: re-putting known content only refreshes its
// staleness timestamp and latest-by-URL pointer.
func (s *Store) Put(items []model.StoredRepositoryObject, now time.Time) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	tsBytes := []byte(now.UTC().Format(time.RFC3339Nano))
	for _, it := range items {
		rec := record{Uri: it.Uri, Data: it.BinaryBytes}
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", it.Hash, err)
		}
		if err := batch.Set([]byte(objPrefix+it.Hash), raw); err != nil {
			return fmt.Errorf("store: stage object %s: %w", it.Hash, err)
		}
		if err := batch.Set([]byte(tsPrefix+it.Hash), tsBytes); err != nil {
			return fmt.Errorf("store: stage timestamp %s: %w", it.Hash, err)
		}
		if err := batch.Set([]byte(latestPrefix+it.Uri), []byte(it.Hash)); err != nil {
			return fmt.Errorf("store: stage latest index %s: %w", it.Uri, err)
		}
	}

	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("store: commit batch of %d item(s): %w", len(items), err)
	}
	return nil
}

// PurgeExpired removes entries whose most recent Put is older than
// maxStaleDays. It is idempotent: a second call with nothing left to
// remove is a no-op (spec §8).
func (s *Store) PurgeExpired(maxStaleDays int, now time.Time) (int, error) {
	cutoff := now.UTC().AddDate(0, 0, -maxStaleDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.Iterator([]byte(tsPrefix), prefixRangeEnd([]byte(tsPrefix)))
	if err != nil {
		return 0, fmt.Errorf("store: iterate timestamps: %w", err)
	}
	defer iter.Close()

	var stale []string
	for ; iter.Valid(); iter.Next() {
		hash := string(iter.Key())[len(tsPrefix):]
		ts, err := time.Parse(time.RFC3339Nano, string(iter.Value()))
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			stale = append(stale, hash)
		}
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("store: iterator error: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, hash := range stale {
		raw, err := s.db.Get([]byte(objPrefix + hash))
		if err != nil {
			return 0, fmt.Errorf("store: read %s before purge: %w", hash, err)
		}
		_ = batch.Delete([]byte(objPrefix + hash))
		_ = batch.Delete([]byte(tsPrefix + hash))

		if raw == nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		// Only drop the latest: pointer if it still targets the hash
		// being purged — a later Put may have already repointed it at
		// fresher content for the same URI.
		latestHash, err := s.db.Get([]byte(latestPrefix + rec.Uri))
		if err != nil {
			return 0, fmt.Errorf("store: read latest index for %s before purge: %w", rec.Uri, err)
		}
		if string(latestHash) == hash {
			_ = batch.Delete([]byte(latestPrefix + rec.Uri))
		}
	}
	if err := batch.WriteSync(); err != nil {
		return 0, fmt.Errorf("store: commit purge of %d entries: %w", len(stale), err)
	}
	return len(stale), nil
}

// prefixRangeEnd returns the smallest key greater than every key
// beginning with prefix, suitable as an exclusive iterator upper
// bound over that prefix.
func prefixRangeEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded
}
