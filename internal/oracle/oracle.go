// Package oracle adapts cloudflare/cfrpki's X.509/CMS parsing and
// signature verification to the RepositoryObject contract the
// pipeline relies on (spec §3, §6, §9). Parsing and cryptographic
// validation are explicitly out of scope for this pipeline to
// reimplement (spec §1) — this package is the boundary where the
// cleaner, return-value-based internal API meets the oracle's
// mutate-a-shared-ValidationResult FFI shape.
package oracle

import (
	"fmt"
	"time"

	librpki "github.com/cloudflare/cfrpki/validator/lib"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// Oracle parses raw object bytes and validates them in a validation
// context assembled by the walker.
type Oracle struct{}

// New builds an Oracle. It is stateless; one instance is shared
// across every walk.
func New() *Oracle { return &Oracle{} }

// Parse sniffs and decodes raw bytes, trying each known RPKI object
// type in turn.
func (o *Oracle) Parse(uri string, data []byte) (model.RepositoryObject, error) {
	if mft, err := librpki.DecodeManifest(data); err == nil {
		return &Manifest{raw: mft}, nil
	}
	if cer, err := librpki.DecodeCertificate(data); err == nil {
		return &Certificate{raw: cer}, nil
	}
	if crl, err := librpki.DecodeCRL(data); err == nil {
		return &Crl{raw: crl}, nil
	}
	if roa, err := librpki.DecodeROA(data); err == nil {
		return &Roa{raw: roa}, nil
	}
	return nil, fmt.Errorf("oracle: %s: unrecognized repository object", uri)
}

// Validate mutates result with the checks produced by validating obj
// in ctx against the given CRL (which may be nil for the CRL's own
// bootstrap pass, spec §4.D's three-step dance). The caller reads
// result.HasFailureForCurrentLocation() as the verdict; Validate's
// own bool return is a convenience mirroring that same check.
func (o *Oracle) Validate(obj model.RepositoryObject, uri string, ctx *model.ValidationContext, crl model.X509Crl, result *model.ValidationResult, now time.Time, maxStaleDays int) bool {
	switch v := obj.(type) {
	case *Certificate:
		return o.validateCertificate(v, uri, ctx, result, now, maxStaleDays)
	case *Manifest:
		return o.validateManifest(v, uri, ctx, crl, result, now, maxStaleDays)
	case *Crl:
		return o.validateCrl(v, uri, ctx, result, now, maxStaleDays)
	case *Roa:
		return o.validateRoa(v, uri, ctx, crl, result, now, maxStaleDays)
	default:
		result.AddCheck(model.NewCheck(model.CheckRepositoryUnknown, model.Failed, "unhandled object kind"))
		return false
	}
}

func parentCert(ctx *model.ValidationContext) *Certificate {
	if ctx == nil || ctx.Parent == nil {
		return nil
	}
	cer, _ := ctx.Parent.(*Certificate)
	return cer
}

func asCrl(crl model.X509Crl) *Crl {
	if crl == nil {
		return nil
	}
	c, _ := crl.(*Crl)
	return c
}

func (o *Oracle) validateCertificate(cer *Certificate, uri string, ctx *model.ValidationContext, result *model.ValidationResult, now time.Time, maxStaleDays int) bool {
	if parent := parentCert(ctx); parent != nil {
		if err := cer.raw.Validate(parent.raw); err != nil {
			result.AddCheck(model.NewCheck("validator.certificate.signature", model.Failed, err.Error()))
			return false
		}
	}
	return checkValidityWindow(cer, result, now, maxStaleDays)
}

func (o *Oracle) validateManifest(mft *Manifest, uri string, ctx *model.ValidationContext, crl model.X509Crl, result *model.ValidationResult, now time.Time, maxStaleDays int) bool {
	if parent := parentCert(ctx); parent != nil {
		if err := mft.raw.Validate(parent.raw); err != nil {
			result.AddCheck(model.NewCheck("validator.manifest.signature", model.Failed, err.Error()))
			return false
		}
	}
	if c := asCrl(crl); c != nil && c.raw.IsRevoked(mft.raw.CertificateSerial()) {
		result.AddCheck(model.NewCheck("validator.manifest.revoked", model.Failed, uri))
		return false
	}
	return checkValidityWindow(mft, result, now, maxStaleDays)
}

func (o *Oracle) validateCrl(crl *Crl, uri string, ctx *model.ValidationContext, result *model.ValidationResult, now time.Time, maxStaleDays int) bool {
	if parent := parentCert(ctx); parent != nil {
		if err := crl.raw.Validate(parent.raw); err != nil {
			result.AddCheck(model.NewCheck("validator.crl.signature", model.Failed, err.Error()))
			return false
		}
	}
	return checkTimeWindow(uri, crl.NextUpdateTime(), time.Time{}, result, now, maxStaleDays)
}

func (o *Oracle) validateRoa(roa *Roa, uri string, ctx *model.ValidationContext, crl model.X509Crl, result *model.ValidationResult, now time.Time, maxStaleDays int) bool {
	if parent := parentCert(ctx); parent != nil {
		if err := roa.raw.Validate(parent.raw); err != nil {
			result.AddCheck(model.NewCheck("validator.roa.signature", model.Failed, err.Error()))
			return false
		}
	}
	if c := asCrl(crl); c != nil && c.raw.IsRevoked(roa.raw.CertificateSerial()) {
		result.AddCheck(model.NewCheck("validator.roa.revoked", model.Failed, uri))
		return false
	}
	return true
}

// checkValidityWindow applies the stale-vs-expired grace rule of
// spec §4.G to an object exposing a validity window.
func checkValidityWindow(obj interface {
	ValidityNotBefore() time.Time
	ValidityNotAfter() time.Time
}, result *model.ValidationResult, now time.Time, maxStaleDays int) bool {
	return checkTimeWindow("", obj.ValidityNotAfter(), obj.ValidityNotBefore(), result, now, maxStaleDays)
}

func checkTimeWindow(uri string, notAfter, notBefore time.Time, result *model.ValidationResult, now time.Time, maxStaleDays int) bool {
	if !notBefore.IsZero() && now.Before(notBefore) {
		result.AddCheck(model.NewCheck(model.CheckObjectExpired, model.Failed, "not yet valid"))
		return false
	}
	if notAfter.IsZero() {
		return true
	}
	if now.Before(notAfter) {
		return true
	}
	grace := notAfter.AddDate(0, 0, maxStaleDays)
	if now.Before(grace) {
		result.AddCheck(model.NewCheck(model.CheckObjectStale, model.Warning, notAfter.Format(time.RFC3339)))
		return true
	}
	result.AddCheck(model.NewCheck(model.CheckObjectExpired, model.Failed, notAfter.Format(time.RFC3339)))
	return false
}
