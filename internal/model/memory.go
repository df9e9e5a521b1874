package model

// PrefixFilter and PrefixWhitelist are the two SLURM-style overrides a
// relying party applies to the ROA set it has validated: a filter
// drops matching announcements, a whitelist adds or force-accepts
// entries regardless of what was found on the wire. Their syntax is
// out of scope (spec.md's Non-goals exclude UI/config-schema
// definition); only the in-memory shape the scheduler aggregates is
// modeled here.
type PrefixFilter struct {
	Prefix string
	ASN    uint32
	HasASN bool
}

type PrefixWhitelist struct {
	Prefix    string
	ASN       uint32
	MaxLength int
}

// ValidatedObjects is the URI-keyed result map a completed walk
// produces, read by finishProcessing to extract the TA's certificate,
// manifest and CRL (spec §4.H).
type ValidatedObjects map[string]ValidatedObject

// MemoryImage is the single snapshot the scheduler's Ref guards:
// every trust anchor's runtime state plus the most recently completed
// validated-object map and the operator-supplied filters/whitelist
// (spec §4.H, §5).
type MemoryImage struct {
	TrustAnchors     TrustAnchors
	Filters          []PrefixFilter
	Whitelist        []PrefixWhitelist
	ValidatedObjects ValidatedObjects
}

// NewMemoryImage builds an empty MemoryImage seeded with the given
// trust anchors.
func NewMemoryImage(tas TrustAnchors) MemoryImage {
	return MemoryImage{TrustAnchors: tas, ValidatedObjects: ValidatedObjects{}}
}

// WithTrustAnchors returns a copy with TrustAnchors replaced; used by
// the scheduler's CAS-swap transactions.
func (m MemoryImage) WithTrustAnchors(tas TrustAnchors) MemoryImage {
	m.TrustAnchors = tas
	return m
}

// WithValidatedObjects returns a copy with ValidatedObjects replaced.
func (m MemoryImage) WithValidatedObjects(objs ValidatedObjects) MemoryImage {
	m.ValidatedObjects = objs
	return m
}
