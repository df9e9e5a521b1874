package fetcher

import (
	"context"
	"time"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// ObjectOracle is the crypto oracle boundary (spec §6, §9): parsing
// and signature verification are delegated entirely to it, and it is
// out of scope for this pipeline to reimplement. Satisfied by
// *oracle.Oracle in production.
type ObjectOracle interface {
	Parse(uri string, data []byte) (model.RepositoryObject, error)
	Validate(obj model.RepositoryObject, uri string, ctx *model.ValidationContext, crl model.X509Crl, result *model.ValidationResult, now time.Time, maxStaleDays int) bool
}

// CrlLocator resolves the CRL governing a validation, always routed
// through the outermost fetcher-chain wrapper so the lookup itself
// benefits from caching and notification (spec §4.D).
type CrlLocator interface {
	GetCrl(ctx context.Context, uri string, octx *model.ValidationContext, result *model.ValidationResult) (model.X509Crl, bool)
}

// ValidatingFetcher is component D: wraps the consistent fetcher with
// the crypto oracle. Objects that fail validation are dropped —
// Fetch returns (nil, false) and the failure is recorded on result.
type ValidatingFetcher struct {
	Inner  *ConsistentFetcher
	Oracle ObjectOracle

	// OuterMost is injected after the whole chain is built (spec
	// §4.D's setOuterMostDecorator), used for the manifest/CRL
	// mutually-referential validation dance.
	OuterMost CrlLocator

	MaxStaleDays int
	Now          func() time.Time
}

// NewValidatingFetcher builds a ValidatingFetcher. Call
// SetOuterMostDecorator once the full chain exists.
func NewValidatingFetcher(inner *ConsistentFetcher, o ObjectOracle, maxStaleDays int) *ValidatingFetcher {
	return &ValidatingFetcher{Inner: inner, Oracle: o, MaxStaleDays: maxStaleDays, Now: time.Now}
}

// SetOuterMostDecorator wires the back-reference to the outermost
// fetcher (spec §9's "decorator chain with back-reference").
func (v *ValidatingFetcher) SetOuterMostDecorator(outer CrlLocator) {
	v.OuterMost = outer
}

// Prefetch passes through to the inner fetcher; prefetching never
// validates, it only warms caches (spec §4.C's prefetch contract).
func (v *ValidatingFetcher) Prefetch(ctx context.Context, uri string, result *model.ValidationResult) {
	v.Inner.Prefetch(ctx, uri, result)
}

// Fetch retrieves, parses and validates uri in octx, returning the
// parsed object only if it validated cleanly in the current location.
func (v *ValidatingFetcher) Fetch(ctx context.Context, uri string, spec model.ContentSpec, octx *model.ValidationContext, result *model.ValidationResult) (model.RepositoryObject, bool) {
	result.Push(uri)
	defer result.Pop()

	stored, ok := v.Inner.Fetch(ctx, uri, spec, result)
	if !ok {
		return nil, false
	}

	obj, err := v.Oracle.Parse(uri, stored.BinaryBytes)
	if err != nil {
		result.AddCheck(model.NewCheck("validator.file.content", model.Failed, err.Error()))
		return nil, false
	}

	var crl model.X509Crl
	if mft, isManifest := obj.(model.ManifestCms); isManifest && v.OuterMost != nil {
		crl, _ = v.OuterMost.GetCrl(ctx, mft.CrlUri(), octx, result)
	}

	if !v.Oracle.Validate(obj, uri, octx, crl, result, v.now(), v.MaxStaleDays) {
		return nil, false
	}
	if result.HasFailureForCurrentLocation() {
		return nil, false
	}
	return obj, true
}

func (v *ValidatingFetcher) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
