package oracle

import (
	"encoding/asn1"
	"encoding/base64"
	"time"

	librpki "github.com/cloudflare/cfrpki/validator/lib"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// Certificate adapts librpki.RPKICertificate to
// model.X509ResourceCertificate.
type Certificate struct {
	raw *librpki.RPKICertificate
}

func (c *Certificate) Kind() model.ObjectKind { return model.KindCertificate }

func (c *Certificate) SubjectPublicKeyInfo() string {
	return base64.StdEncoding.EncodeToString(c.raw.Certificate.RawSubjectPublicKeyInfo)
}

func (c *Certificate) ManifestUri() string {
	for _, sia := range c.raw.SubjectInformationAccess {
		if sia.AccessMethod.Equal(oidSIAManifest) {
			return string(sia.GeneralName)
		}
	}
	return ""
}

func (c *Certificate) ValidityNotBefore() time.Time { return c.raw.Certificate.NotBefore }
func (c *Certificate) ValidityNotAfter() time.Time  { return c.raw.Certificate.NotAfter }

func (c *Certificate) SubjectKey() string {
	return base64.StdEncoding.EncodeToString(c.raw.Certificate.SubjectKeyId)
}

// Manifest adapts librpki.RPKIManifest to model.ManifestCms.
type Manifest struct {
	raw *librpki.RPKIManifest
}

func (m *Manifest) Kind() model.ObjectKind { return model.KindManifest }

func (m *Manifest) FileNames() []string {
	names := make([]string, 0, len(m.raw.Content.FileList))
	for _, f := range m.raw.Content.FileList {
		names = append(names, f.File)
	}
	return names
}

func (m *Manifest) FileContentSpec(name string) (model.ContentSpec, bool) {
	for _, f := range m.raw.Content.FileList {
		if f.File == name {
			return model.HashSpec(string(f.Hash)), true
		}
	}
	return model.ContentSpec{}, false
}

func (m *Manifest) CrlUri() string {
	for _, sia := range m.raw.EECertificate.SubjectInformationAccess {
		if sia.AccessMethod.Equal(oidSIACrl) {
			return string(sia.GeneralName)
		}
	}
	return ""
}

func (m *Manifest) NextUpdateTime() time.Time { return m.raw.Content.NextUpdate.UTCTime }

func (m *Manifest) ValidityNotBefore() time.Time {
	return m.raw.EECertificate.Certificate.NotBefore
}

func (m *Manifest) ValidityNotAfter() time.Time {
	return m.raw.EECertificate.Certificate.NotAfter
}

// Crl adapts librpki.RPKICRL to model.X509Crl.
type Crl struct {
	raw *librpki.RPKICRL
}

func (c *Crl) Kind() model.ObjectKind { return model.KindCrl }

func (c *Crl) NextUpdateTime() time.Time { return c.raw.Certificate.TBSCertList.NextUpdate }

// Roa adapts librpki.RPKIROA; the pipeline only needs it as an opaque
// RepositoryObject (ROA-specific interpretation lives in the ROA
// collector listener, internal/events).
type Roa struct {
	raw *librpki.RPKIROA
}

func (r *Roa) Kind() model.ObjectKind { return model.KindRoa }

// Entries returns one (ASN, prefix, maxLength) triple per valid
// entry, consumed by the ROA collector listener.
func (r *Roa) Entries() []RoaEntry {
	out := make([]RoaEntry, 0, len(r.raw.Valids))
	for _, v := range r.raw.Valids {
		out = append(out, RoaEntry{
			ASN:       r.raw.ASN,
			Prefix:    v.IPNet.String(),
			MaxLength: v.MaxLength,
		})
	}
	return out
}

type RoaEntry struct {
	ASN       uint32
	Prefix    string
	MaxLength int
}

// oidSIAManifest and oidSIACrl are the Subject Information Access
// access-method OIDs for rpkiManifest (1.3.6.1.5.5.7.48.10) and the
// CRL distribution point carried in SIA by some CAs; defined locally
// since librpki does not export them as a stable API surface.
var (
	oidSIAManifest = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 10}
	oidSIACrl      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 5}
)
