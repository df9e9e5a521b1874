package events

import (
	"fmt"

	"github.com/getsentry/sentry-go"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// Sentry is component E's error-reporting listener: one scoped
// capture per object-level failure, mirroring the teacher's
// sentry.WithScope calls around MainRsync/MainRRDP.
type Sentry struct {
	currentTA string
}

// NewSentry builds a Sentry listener.
func NewSentry() *Sentry { return &Sentry{} }

// SetCurrentTA tags subsequent captures with the trust anchor under
// validation.
func (s *Sentry) SetCurrentTA(ta string) { s.currentTA = ta }

func (s *Sentry) AfterFetchSuccess(uri string, obj model.RepositoryObject, result *model.ValidationResult) {}

func (s *Sentry) AfterFetchFailure(uri string, result *model.ValidationResult) {
	for _, c := range result.ChecksAt(uri) {
		if c.Status != model.Failed {
			continue
		}
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("uri", uri)
			scope.SetTag("ta", s.currentTA)
			scope.SetTag("check", c.Key)
			sentry.CaptureMessage(fmt.Sprintf("validation failed: %s: %s", uri, c.Key))
		})
	}
}

func (s *Sentry) AfterPrefetchSuccess(uri string, result *model.ValidationResult) {}

func (s *Sentry) AfterPrefetchFailure(uri string, result *model.ValidationResult) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("uri", uri)
		scope.SetTag("ta", s.currentTA)
		scope.SetLevel(sentry.LevelWarning)
		sentry.CaptureMessage(fmt.Sprintf("prefetch failed: %s", uri))
	})
}
