package events

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

func TestMetricsTracksRepositoryAndRoaCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ta := m.ForTrustAnchor("ripe")

	result := model.NewValidationResult()
	ta.AfterFetchSuccess("rsync://example/a.roa", fakeObject{}, result)

	metric := &dto.Metric{}
	g, err := m.RepositoriesTotal.GetMetricWithLabelValues("ripe")
	require.NoError(t, err)
	require.NoError(t, g.Write(metric))
	require.Equal(t, float64(1), metric.GetGauge().GetValue())

	roaMetric := &dto.Metric{}
	r, err := m.ROAsCount.GetMetricWithLabelValues("ripe")
	require.NoError(t, err)
	require.NoError(t, r.Write(roaMetric))
	require.Equal(t, float64(1), roaMetric.GetGauge().GetValue())
}

func TestMetricsObserveFetchIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveFetch("rsync://rpki.example.net/repo/a.cer", true, 10*time.Millisecond)
	m.ObserveFetch("rsync://rpki.example.net/repo/b.cer", false, 5*time.Millisecond)

	metric := &dto.Metric{}
	c, err := m.RsyncFetchTotal.GetMetricWithLabelValues("rpki.example.net", "success")
	require.NoError(t, err)
	require.NoError(t, c.Write(metric))
	require.Equal(t, float64(1), metric.GetCounter().GetValue())
}

// ROACollector only ever receives *oracle.Roa values in production,
// constructed by the crypto oracle from real CMS bytes; that type's
// only exported surface is Entries(), so these tests exercise the
// collector against the non-ROA branch and an empty collector only,
// checking the snapshot's data and count metadata. Neither the ROA
// extraction path nor Roa.Entries has a unit test.
func TestROACollectorIgnoresNonRoaObjects(t *testing.T) {
	c := NewROACollector(nil, false)
	c.SetCurrentTA("ripe")
	result := model.NewValidationResult()
	c.AfterFetchSuccess("rsync://example/a.cer", nil, result)

	snap, err := c.Snapshot(time.Unix(2000, 0), time.Hour)
	require.NoError(t, err)
	require.Empty(t, snap.Data)
	require.Equal(t, 0, snap.Metadata.Counts)
}

func TestROACollectorResetClearsEntriesBetweenTicks(t *testing.T) {
	c := NewROACollector(nil, false)
	c.SetCurrentTA("ripe")
	c.Reset()

	snap, err := c.Snapshot(time.Unix(3000, 0), time.Hour)
	require.NoError(t, err)
	require.Empty(t, snap.Data)
}
