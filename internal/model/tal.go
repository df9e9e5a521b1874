// Package model holds the data types shared across the validation
// pipeline: trust anchor locators, the trust anchor state machine,
// validated objects and the validation result accumulator.
package model

// TrustAnchorLocator is the immutable descriptor parsed from a TAL
// file. It is never mutated after construction.
type TrustAnchorLocator struct {
	CaName string

	// PublicKeyInfo is the base64-encoded SubjectPublicKeyInfo the
	// anchor certificate must match.
	PublicKeyInfo string

	// CertificateLocations are tried in order on fetch failure.
	CertificateLocations []string

	// PrefetchUris are bulk warm-up hints; order is not significant.
	PrefetchUris []string
}

// Equal implements locator identity, used as TrustAnchor equality.
func (t TrustAnchorLocator) Equal(o TrustAnchorLocator) bool {
	if t.CaName != o.CaName || t.PublicKeyInfo != o.PublicKeyInfo {
		return false
	}
	if len(t.CertificateLocations) != len(o.CertificateLocations) {
		return false
	}
	for i := range t.CertificateLocations {
		if t.CertificateLocations[i] != o.CertificateLocations[i] {
			return false
		}
	}
	return true
}

// CertificateLocation returns the first (primary) certificate URI,
// used to key the TA certificate in a validated object map.
func (t TrustAnchorLocator) CertificateLocation() string {
	if len(t.CertificateLocations) == 0 {
		return ""
	}
	return t.CertificateLocations[0]
}
