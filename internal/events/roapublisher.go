package events

import (
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/cloudflare/gortr/prefixfile"
)

// ROAPublisher holds the most recently validated ROA set per trust
// anchor and serves the combined, deduplicated snapshot a relying
// party hands to routers — the long-lived counterpart to the
// teacher's single global ROAList/ROAListLock pair in
// cmd/octorpki/octorpki.go. Each trust-anchor run uses its own scoped
// ROACollector (SetCurrentTA is not safe to share across concurrently
// running walks, spec §5's one-worker-per-TA model) and calls Publish
// once its walk completes; Publish replaces that TA's bucket wholesale
// so a re-validation never leaves stale entries behind.
type ROAPublisher struct {
	mu      sync.RWMutex
	byTA    map[string][]prefixfile.ROAJson
	signKey *ecdsa.PrivateKey
	sign    bool
}

// NewROAPublisher builds an empty publisher. If key is non-nil and
// sign is true, Snapshot produces a signed ROA list (teacher's
// `-output.sign` flag).
func NewROAPublisher(key *ecdsa.PrivateKey, sign bool) *ROAPublisher {
	return &ROAPublisher{byTA: make(map[string][]prefixfile.ROAJson), signKey: key, sign: sign}
}

// Publish replaces ta's bucket of ROA entries.
func (p *ROAPublisher) Publish(ta string, entries []prefixfile.ROAJson) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTA[ta] = entries
}

// Snapshot flattens every TA's bucket into one deduplicated,
// optionally signed ROAList.
func (p *ROAPublisher) Snapshot(now time.Time, validity time.Duration) (*prefixfile.ROAList, error) {
	p.mu.RLock()
	var flat []prefixfile.ROAJson
	for _, entries := range p.byTA {
		flat = append(flat, entries...)
	}
	p.mu.RUnlock()

	deduped := dedupeROAs(flat)

	list := &prefixfile.ROAList{Data: deduped}
	list.Metadata = prefixfile.MetaData{
		Counts:    len(deduped),
		Generated: int(now.Unix()),
		Valid:     int(now.Add(validity).Unix()),
	}

	if p.sign && p.signKey != nil {
		signdate, sig, err := list.Sign(p.signKey)
		if err != nil {
			return nil, fmt.Errorf("roapublisher: sign: %w", err)
		}
		list.Metadata.Signature = sig
		list.Metadata.SignatureDate = signdate
	}

	return list, nil
}
