package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// StoredRepositoryObject is the unit the object store persists: raw
// bytes keyed by their SHA-256 hash, with the source URI carried as
// metadata for the latest-by-URI index (spec §3).
type StoredRepositoryObject struct {
	Uri          string
	BinaryBytes  []byte
	Hash         string
}

// NewStoredRepositoryObject computes Hash from BinaryBytes.
func NewStoredRepositoryObject(uri string, data []byte) StoredRepositoryObject {
	return StoredRepositoryObject{
		Uri:         uri,
		BinaryBytes: data,
		Hash:        HashBytes(data),
	}
}

// HashBytes returns the lowercase hex SHA-256 digest of data, the
// store's content-addressing function (spec §8: "Store
// content-addressing" invariant).
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
