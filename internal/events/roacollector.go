package events

import (
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/cloudflare/gortr/prefixfile"

	"github.com/carlosm3011/rpki-validator/internal/model"
	"github.com/carlosm3011/rpki-validator/internal/oracle"
)

// ROACollector is component E's listener that turns the walk's
// afterFetchSuccess stream into the ROA JSON snapshot a relying party
// serves to routers (teacher's roalist-building loop in MainValidation,
// SPEC_FULL's "ROA JSON snapshot with optional signature" supplement).
type ROACollector struct {
	mu        sync.RWMutex
	entries   []prefixfile.ROAJson
	currentTA string
	signingKey *ecdsa.PrivateKey
	sign       bool
}

// NewROACollector builds an empty collector. If key is non-nil and
// sign is true, Snapshot produces a signed ROA list (teacher's
// `-output.sign` flag).
func NewROACollector(key *ecdsa.PrivateKey, sign bool) *ROACollector {
	return &ROACollector{signingKey: key, sign: sign}
}

// SetCurrentTA scopes subsequently collected ROAs to ta's name.
func (c *ROACollector) SetCurrentTA(ta string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTA = ta
}

func (c *ROACollector) AfterFetchSuccess(uri string, obj model.RepositoryObject, result *model.ValidationResult) {
	roa, ok := obj.(*oracle.Roa)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range roa.Entries() {
		c.entries = append(c.entries, prefixfile.ROAJson{
			ASN:    fmt.Sprintf("AS%d", e.ASN),
			Prefix: e.Prefix,
			Length: uint8(e.MaxLength),
			TA:     c.currentTA,
		})
	}
}

func (c *ROACollector) AfterFetchFailure(uri string, result *model.ValidationResult)     {}
func (c *ROACollector) AfterPrefetchSuccess(uri string, result *model.ValidationResult)   {}
func (c *ROACollector) AfterPrefetchFailure(uri string, result *model.ValidationResult)   {}

// Reset clears the collected entries. cmd/octorpki builds a fresh
// collector for every trust-anchor run and does not call Reset.
func (c *ROACollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Entries returns a copy of the collected entries, used by a per-run
// scoped collector to hand its findings to ROAPublisher.Publish once
// its walk is done.
func (c *ROACollector) Entries() []prefixfile.ROAJson {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]prefixfile.ROAJson, len(c.entries))
	copy(out, c.entries)
	return out
}


// Snapshot builds the published ROAList, deduplicating identical
// (asn, prefix, maxLength, ta) tuples and optionally signing it.
func (c *ROACollector) Snapshot(now time.Time, validity time.Duration) (*prefixfile.ROAList, error) {
	c.mu.RLock()
	entries := make([]prefixfile.ROAJson, len(c.entries))
	copy(entries, c.entries)
	c.mu.RUnlock()

	deduped := dedupeROAs(entries)

	list := &prefixfile.ROAList{Data: deduped}
	list.Metadata = prefixfile.MetaData{
		Counts:    len(deduped),
		Generated: int(now.Unix()),
		Valid:     int(now.Add(validity).Unix()),
	}

	if c.sign && c.signingKey != nil {
		signdate, sig, err := list.Sign(c.signingKey)
		if err != nil {
			return nil, fmt.Errorf("roacollector: sign: %w", err)
		}
		list.Metadata.Signature = sig
		list.Metadata.SignatureDate = signdate
	}

	return list, nil
}

func dedupeROAs(in []prefixfile.ROAJson) []prefixfile.ROAJson {
	seen := make(map[string]bool, len(in))
	out := make([]prefixfile.ROAJson, 0, len(in))
	for _, r := range in {
		key := fmt.Sprintf("%s|%s|%d|%s", r.ASN, r.Prefix, r.Length, r.TA)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
