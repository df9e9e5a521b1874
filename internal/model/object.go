package model

import "time"

// RepositoryObject is the opaque, parsed form of any RPKI repository
// object. The pipeline only ever needs to know whether a parsed
// object is a manifest, a CA certificate, or a CRL; ROAs and any
// other leaf object flow through as an opaque RepositoryObject.
//
// Concrete parsing and signature verification are delegated to the
// crypto oracle (internal/oracle) — out of scope here per spec §1.
type RepositoryObject interface {
	// Kind distinguishes the object types the walker cares about.
	Kind() ObjectKind
}

// ObjectKind enumerates the repository object types the walker and
// scheduler branch on.
type ObjectKind int

const (
	KindUnknown ObjectKind = iota
	KindCertificate
	KindManifest
	KindCrl
	KindRoa
)

// ManifestCms is the subset of a parsed manifest the pipeline relies
// on: the listed file names, their content specifications, the CRL
// URI, the manifest's own expiry, and the issuing certificate's
// validity window.
type ManifestCms interface {
	RepositoryObject

	FileNames() []string
	FileContentSpec(name string) (ContentSpec, bool)
	CrlUri() string
	NextUpdateTime() time.Time
	ValidityNotBefore() time.Time
	ValidityNotAfter() time.Time
}

// X509ResourceCertificate is the subset of a parsed CA/EE certificate
// the pipeline relies on.
type X509ResourceCertificate interface {
	RepositoryObject

	SubjectPublicKeyInfo() string
	ManifestUri() string
	ValidityNotBefore() time.Time
	ValidityNotAfter() time.Time

	// SubjectKey identifies the certificate's subject key for the
	// walker's cycle-detection (§4.G).
	SubjectKey() string
}

// X509Crl is the subset of a parsed CRL the pipeline relies on.
type X509Crl interface {
	RepositoryObject

	NextUpdateTime() time.Time
}

// ContentSpec is either a known-hash file-content specification (from
// a manifest entry) or an arbitrary-URI spec with no known hash (e.g.
// fetching the TA certificate or a manifest itself).
type ContentSpec struct {
	Hash      string
	HasHash   bool
}

// ArbitraryURISpec is the zero-value ContentSpec, representing "fetch
// whatever is at this URI, I have no hash to bind it to".
var ArbitraryURISpec = ContentSpec{}

// HashSpec builds a ContentSpec carrying a manifest-declared hash.
func HashSpec(hash string) ContentSpec {
	return ContentSpec{Hash: hash, HasHash: true}
}
