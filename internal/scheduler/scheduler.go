// Package scheduler implements the trust-anchor state machine
// (component H): the at-most-one-Running-per-TA guard, the
// Success/Failure terminal transitions and their +4h/+1h rescheduling,
// and the per-tick fan-out that runs due trust anchors in parallel.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carlosm3011/rpki-validator/internal/model"
	"github.com/carlosm3011/rpki-validator/internal/rlog"
)

// Outcome is the sum type a run reports to FinishProcessing: either a
// Success carrying the walk's full validated-object map, or a Failure
// carrying a message (spec §4.H, §7's run-level tier).
type Outcome struct {
	objects model.ValidatedObjects
	err     string
	ok      bool
}

// Success builds a successful Outcome.
func Success(objects model.ValidatedObjects) Outcome {
	return Outcome{objects: objects, ok: true}
}

// Failure builds a failed Outcome.
func Failure(msg string) Outcome {
	return Outcome{err: msg, ok: false}
}

// ErrNotStarted is the message for a start refused because the TA was
// not Idle and enabled (spec §8 scenario 4/5). StartProcessing reports
// that case only through its false bool return and does not return
// this string; runOne skips the TA without recording it.
const ErrNotStarted = "Trust anchor not idle or enabled"

// Runner executes one full trust-anchor validation walk (component G
// driven over the fetcher chain, component B-F) and reports what it
// found.
type Runner interface {
	Run(ctx context.Context, ta model.TrustAnchor) (model.ValidatedObjects, error)
}

// Scheduler holds the Ref<MemoryImage> and coordinates TA runs.
type Scheduler struct {
	ref *Ref
	log rlog.Logger

	Now func() time.Time
}

// New builds a Scheduler over ref, logging through log.
func New(ref *Ref, log rlog.Logger) *Scheduler {
	return &Scheduler{ref: ref, log: log, Now: time.Now}
}

// Image returns the current MemoryImage snapshot.
func (s *Scheduler) Image() model.MemoryImage {
	return s.ref.Get()
}

// StartProcessing runs spec §4.H's start transaction: if the named TA
// is not Idle or not enabled, it aborts returning (TrustAnchor{}, false).
// Otherwise it transitions the TA to Running(description) and commits.
func (s *Scheduler) StartProcessing(locator model.TrustAnchorLocator, description string) (model.TrustAnchor, bool) {
	var started model.TrustAnchor
	var ok bool

	s.ref.Transact(func(img model.MemoryImage) model.MemoryImage {
		ta, found := img.TrustAnchors.Find(locator)
		if !found || !ta.Enabled || !ta.Status.IsIdle() {
			ok = false
			return img
		}
		started = ta.StartRunning(description)
		ok = true
		return img.WithTrustAnchors(img.TrustAnchors.Update(locator, started))
	})

	return started, ok
}

// FinishProcessing runs spec §4.H's finish transition, outside the
// start transaction (single-writer per TA by construction: only the
// worker that won StartProcessing calls this). On Success it extracts
// the TA certificate, its manifest and that manifest's CRL from the
// walk's object map; any extraction miss simply leaves that field
// unset without downgrading the run.
func (s *Scheduler) FinishProcessing(locator model.TrustAnchorLocator, outcome Outcome) model.TrustAnchor {
	now := s.now()
	var result model.TrustAnchor

	s.ref.Transact(func(img model.MemoryImage) model.MemoryImage {
		ta, found := img.TrustAnchors.Find(locator)
		if !found {
			return img
		}

		if !outcome.ok {
			result = ta.FinishFailure(now, outcome.err)
			return img.WithTrustAnchors(img.TrustAnchors.Update(locator, result))
		}

		cert, mft, crl := extractTrustChain(locator, outcome.objects)
		result = ta.FinishSuccess(now, cert.obj, cert.ok, mft.obj, mft.ok, crl.obj, crl.ok)

		merged := mergeValidatedObjects(img.ValidatedObjects, outcome.objects)
		next := img.WithTrustAnchors(img.TrustAnchors.Update(locator, result))
		return next.WithValidatedObjects(merged)
	})

	return result
}

type extractedCert struct {
	obj model.X509ResourceCertificate
	ok  bool
}
type extractedMft struct {
	obj model.ManifestCms
	ok  bool
}
type extractedCrl struct {
	obj model.X509Crl
	ok  bool
}

// extractTrustChain implements the Success-branch extraction of spec
// §4.H: TA cert from the anchor's declared certificate location, its
// manifest from the cert's manifestUri, that manifest's CRL from its
// crlUri — each only if the prior object validated.
func extractTrustChain(locator model.TrustAnchorLocator, objects model.ValidatedObjects) (extractedCert, extractedMft, extractedCrl) {
	var cert extractedCert
	var mft extractedMft
	var crl extractedCrl

	taObj, ok := objects[locator.CertificateLocation()]
	if !ok || !taObj.Valid {
		return cert, mft, crl
	}
	certVal, isCert := taObj.Object.(model.X509ResourceCertificate)
	if !isCert {
		return cert, mft, crl
	}
	cert = extractedCert{obj: certVal, ok: true}

	mftEntry, ok := objects[certVal.ManifestUri()]
	if !ok || !mftEntry.Valid {
		return cert, mft, crl
	}
	mftVal, isMft := mftEntry.Object.(model.ManifestCms)
	if !isMft {
		return cert, mft, crl
	}
	mft = extractedMft{obj: mftVal, ok: true}

	crlEntry, ok := objects[mftVal.CrlUri()]
	if !ok || !crlEntry.Valid {
		return cert, mft, crl
	}
	crlVal, isCrl := crlEntry.Object.(model.X509Crl)
	if !isCrl {
		return cert, mft, crl
	}
	crl = extractedCrl{obj: crlVal, ok: true}

	return cert, mft, crl
}

func mergeValidatedObjects(base, update model.ValidatedObjects) model.ValidatedObjects {
	merged := make(model.ValidatedObjects, len(base)+len(update))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RunDue starts, runs and finishes every enabled TA whose status is
// Idle with a NextUpdate at or before now, one goroutine per TA
// bounded by golang.org/x/sync/errgroup (spec §5: "multiple trust
// anchors may be validated in parallel, one worker per TA").
func (s *Scheduler) RunDue(ctx context.Context, runner Runner) error {
	now := s.now()
	group, gctx := errgroup.WithContext(ctx)

	for _, ta := range s.Image().TrustAnchors.All() {
		ta := ta
		if !ta.Enabled || !ta.Status.IsIdle() || ta.Status.NextUpdate.After(now) {
			continue
		}

		locator := ta.Locator
		group.Go(func() error {
			s.runOne(gctx, locator, runner)
			return nil
		})
	}

	return group.Wait()
}

func (s *Scheduler) runOne(ctx context.Context, locator model.TrustAnchorLocator, runner Runner) {
	started, ok := s.StartProcessing(locator, "scheduled validation")
	if !ok {
		return
	}

	objects, err := func() (objs model.ValidatedObjects, runErr error) {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic during trust anchor run: %v", r)
			}
		}()
		return runner.Run(ctx, started)
	}()

	if err != nil {
		s.log.Warnf("trust anchor %s run failed: %v", locator.CaName, err)
		s.FinishProcessing(locator, Failure("failed: "+err.Error()))
		return
	}

	s.FinishProcessing(locator, Success(objects))
}
