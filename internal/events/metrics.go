// Package events holds the notifying fetcher's listener
// implementations (spec §4.E): a logger, a Prometheus metrics
// collector, the ROA-table collector, a Sentry error reporter and an
// opentracing span recorder, each composed onto the fetcher chain the
// same way the teacher composes its own callbacks.
package events

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// Metrics is component E's Prometheus listener. Spec §6's dotted
// metric names (`trust.anchor[<uri>].repositories.total.count`, ...)
// are expressed as Prometheus label pairs rather than literal dotted
// names, since Prometheus's own naming convention disallows them
// (DESIGN.md Open Question).
//
// Metrics itself holds no per-TA mutable state: spec §5 runs one
// worker per trust anchor in parallel, so per-TA bookkeeping lives in
// a TAMetrics scoped to that run (see ForTrustAnchor) and is published
// straight to this type's label-keyed vectors, which are safe for
// concurrent use across distinct label values.
type Metrics struct {
	RsyncFetchTotal          *prometheus.CounterVec
	OperationTime            *prometheus.SummaryVec
	RepositoriesTotal        *prometheus.GaugeVec
	RepositoriesInconsistent *prometheus.GaugeVec
	ROAsCount                *prometheus.GaugeVec
}

// NewMetrics registers the pipeline's metrics on reg (use
// prometheus.NewRegistry() in tests, prometheus.DefaultRegisterer in
// production, mirroring the teacher's package-level MetricX vars).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RsyncFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsync_fetch_total",
			Help: "Count of rsync fetch attempts by host and result.",
		}, []string{"host", "result"}),
		OperationTime: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "operation_time_seconds",
			Help:       "Time to run a pipeline operation.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"type"}),
		RepositoriesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trust_anchor_repositories_total",
			Help: "Count of repositories seen for a trust anchor.",
		}, []string{"ta"}),
		RepositoriesInconsistent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trust_anchor_repositories_inconsistent",
			Help: "Count of inconsistent repositories for a trust anchor.",
		}, []string{"ta"}),
		ROAsCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roas",
			Help: "Count of validated ROAs for a trust anchor.",
		}, []string{"ta"}),
	}
	reg.MustRegister(m.RsyncFetchTotal, m.OperationTime, m.RepositoriesTotal, m.RepositoriesInconsistent, m.ROAsCount)
	return m
}

// ForTrustAnchor builds a TAMetrics scoped to one trust-anchor run,
// registered as that run's fetcher.Listener (see internal/fetcher).
func (m *Metrics) ForTrustAnchor(ta string) *TAMetrics {
	return &TAMetrics{parent: m, ta: ta}
}

// TAMetrics is the per-run listener: it owns its own counters and
// publishes them straight to the shared vectors under its own TA
// label, so concurrent trust-anchor runs never contend on anything
// but the label-keyed Prometheus internals, which are safe for that.
type TAMetrics struct {
	parent *Metrics
	ta     string

	mu           sync.Mutex
	repos        map[string]bool
	total        int
	inconsistent int
	roas         int
}

func (t *TAMetrics) AfterFetchSuccess(uri string, obj model.RepositoryObject, result *model.ValidationResult) {
	t.mu.Lock()
	repo := uri
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		repo = uri[:i]
	}
	if t.repos == nil {
		t.repos = make(map[string]bool)
	}
	if !t.repos[repo] {
		t.repos[repo] = true
		t.total++
	}
	if obj != nil && obj.Kind() == model.KindRoa {
		t.roas++
	}
	total, inconsistent, roas := t.total, t.inconsistent, t.roas
	t.mu.Unlock()
	t.publish(total, inconsistent, roas)
}

func (t *TAMetrics) AfterFetchFailure(uri string, result *model.ValidationResult) {
	t.mu.Lock()
	for _, chk := range result.ChecksAt(uri) {
		if chk.Key == model.CheckRepositoryInconsistent {
			t.inconsistent++
		}
	}
	total, inconsistent, roas := t.total, t.inconsistent, t.roas
	t.mu.Unlock()
	t.publish(total, inconsistent, roas)
}

func (t *TAMetrics) AfterPrefetchSuccess(uri string, result *model.ValidationResult) {}
func (t *TAMetrics) AfterPrefetchFailure(uri string, result *model.ValidationResult) {}

func (t *TAMetrics) publish(total, inconsistent, roas int) {
	t.parent.RepositoriesTotal.WithLabelValues(t.ta).Set(float64(total))
	t.parent.RepositoriesInconsistent.WithLabelValues(t.ta).Set(float64(inconsistent))
	t.parent.ROAsCount.WithLabelValues(t.ta).Set(float64(roas))
}

// ObserveFetch matches RemoteFetcher.OnMetric's callback shape,
// recording rsync.fetch.file.{success,failure}[<host>] (spec §6).
func (m *Metrics) ObserveFetch(uri string, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.RsyncFetchTotal.WithLabelValues(host(uri), result).Inc()
}

// ObserveOperation records an operation-time summary observation
// (spec's tal/rsync/validation phase timing, teacher's MetricOperationTime).
func (m *Metrics) ObserveOperation(kind string, elapsed time.Duration) {
	m.OperationTime.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// host extracts the host component of an rsync:// URI for use as a
// metric label: the rsync:// prefix is stripped and everything up to
// the first '/' is returned (the whole remainder if there is none).
// Other schemes are not recognised; for them the result is the text
// before the first '/', e.g. "https:".
func host(uri string) string {
	const rsyncPrefix = "rsync://"
	s := uri
	if len(s) > len(rsyncPrefix) && s[:len(rsyncPrefix)] == rsyncPrefix {
		s = s[len(rsyncPrefix):]
	}
	for i, c := range s {
		if c == '/' {
			return s[:i]
		}
	}
	return s
}
