package model

import "time"

// Status is the sum type governing a TrustAnchor's lifecycle: it is
// either Idle (with a next-update time and optional last error) or
// Running (with a human-readable description of the in-flight run).
type Status struct {
	running bool

	// Idle fields.
	NextUpdate   time.Time
	ErrorMessage string
	HasError     bool

	// Running fields.
	Description string
}

// IdleStatus builds an Idle status.
func IdleStatus(nextUpdate time.Time, errMsg string) Status {
	return Status{running: false, NextUpdate: nextUpdate, ErrorMessage: errMsg, HasError: errMsg != ""}
}

// RunningStatus builds a Running status.
func RunningStatus(description string) Status {
	return Status{running: true, Description: description}
}

// IsRunning reports whether the status is Running.
func (s Status) IsRunning() bool { return s.running }

// IsIdle reports whether the status is Idle.
func (s Status) IsIdle() bool { return !s.running }

// TrustAnchor is the per-TAL runtime record. TrustAnchor values are
// immutable; every mutation produces a new value (see TrustAnchors).
type TrustAnchor struct {
	Locator TrustAnchorLocator
	Enabled bool
	Status  Status

	Certificate X509ResourceCertificate
	Manifest    ManifestCms
	Crl         X509Crl

	LastUpdated time.Time
	HasLastUpdated bool
}

// NewTrustAnchor creates a freshly loaded TrustAnchor, Idle from now.
func NewTrustAnchor(locator TrustAnchorLocator, now time.Time) TrustAnchor {
	return TrustAnchor{
		Locator: locator,
		Enabled: true,
		Status:  IdleStatus(now, ""),
	}
}

// WithDisabled returns a copy with Enabled toggled. Disabling is
// independent of Status and may happen while Running.
func (t TrustAnchor) WithDisabled(enabled bool) TrustAnchor {
	t.Enabled = enabled
	return t
}

// StartRunning transitions Idle -> Running. Callers must only invoke
// this after confirming Enabled && Status.IsIdle(); the scheduler's
// transaction is responsible for that check (see internal/scheduler).
func (t TrustAnchor) StartRunning(description string) TrustAnchor {
	t.Status = RunningStatus(description)
	return t
}

// FinishSuccess transitions Running -> Idle(now+4h), recording the
// freshly extracted certificate/manifest/crl (any of which may be the
// zero value if extraction missed).
func (t TrustAnchor) FinishSuccess(now time.Time, cert X509ResourceCertificate, hasCert bool, mft ManifestCms, hasMft bool, crl X509Crl, hasCrl bool) TrustAnchor {
	t.Status = IdleStatus(now.Add(4*time.Hour), "")
	t.LastUpdated = now
	t.HasLastUpdated = true
	if hasCert {
		t.Certificate = cert
	}
	if hasMft {
		t.Manifest = mft
	}
	if hasCrl {
		t.Crl = crl
	}
	return t
}

// FinishFailure transitions Running -> Idle(now+1h, Some(msg)).
func (t TrustAnchor) FinishFailure(now time.Time, msg string) TrustAnchor {
	t.Status = IdleStatus(now.Add(1*time.Hour), msg)
	t.LastUpdated = now
	t.HasLastUpdated = true
	return t
}

// TrustAnchors is an ordered, value-semantic collection: any per-TA
// update produces a new TrustAnchors rather than mutating in place,
// so that it can be swapped atomically under the scheduler's Ref.
type TrustAnchors struct {
	items []TrustAnchor
}

// NewTrustAnchors builds a collection from TAs in TAL-file order.
func NewTrustAnchors(tas []TrustAnchor) TrustAnchors {
	cp := make([]TrustAnchor, len(tas))
	copy(cp, tas)
	return TrustAnchors{items: cp}
}

// All returns a snapshot slice; callers must not mutate it.
func (c TrustAnchors) All() []TrustAnchor { return c.items }

// Find locates a TA by locator identity.
func (c TrustAnchors) Find(locator TrustAnchorLocator) (TrustAnchor, bool) {
	for _, t := range c.items {
		if t.Locator.Equal(locator) {
			return t, true
		}
	}
	return TrustAnchor{}, false
}

// Update returns a new TrustAnchors with the TA matching locator
// replaced by updated. If no match exists the collection is returned
// unchanged.
func (c TrustAnchors) Update(locator TrustAnchorLocator, updated TrustAnchor) TrustAnchors {
	next := make([]TrustAnchor, len(c.items))
	copy(next, c.items)
	for i, t := range next {
		if t.Locator.Equal(locator) {
			next[i] = updated
			break
		}
	}
	return TrustAnchors{items: next}
}
