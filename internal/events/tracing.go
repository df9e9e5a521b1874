package events

import (
	"github.com/opentracing/opentracing-go"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// Tracing is component E's listener recording one opentracing span per
// fetch/prefetch event, child of the walk's root span — the same
// parent/child span tree the teacher builds for
// MainTAL/MainRsync/MainValidation. The notifying fetcher's interface
// only exposes after-the-fact callbacks, so each span covers a single
// instantaneous event rather than the fetch's own duration; per-fetch
// timing is RemoteFetcher's OnMetric concern (see Metrics.ObserveFetch).
type Tracing struct {
	root opentracing.Span
}

// NewTracing builds a Tracing listener whose spans are children of
// root (the per-TA validation span started by the scheduler's worker).
func NewTracing(root opentracing.Span) *Tracing {
	return &Tracing{root: root}
}

func (t *Tracing) record(name, uri string, ok bool) {
	tracer := opentracing.GlobalTracer()
	var span opentracing.Span
	if t.root != nil {
		span = tracer.StartSpan(name, opentracing.ChildOf(t.root.Context()))
	} else {
		span = tracer.StartSpan(name)
	}
	span.SetTag("uri", uri)
	span.SetTag("ok", ok)
	span.Finish()
}

func (t *Tracing) AfterFetchSuccess(uri string, obj model.RepositoryObject, result *model.ValidationResult) {
	t.record("fetch", uri, true)
}

func (t *Tracing) AfterFetchFailure(uri string, result *model.ValidationResult) {
	t.record("fetch", uri, false)
}

func (t *Tracing) AfterPrefetchSuccess(uri string, result *model.ValidationResult) {
	t.record("prefetch", uri, true)
}

func (t *Tracing) AfterPrefetchFailure(uri string, result *model.ValidationResult) {
	t.record("prefetch", uri, false)
}
