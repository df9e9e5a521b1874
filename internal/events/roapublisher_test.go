package events

import (
	"testing"
	"time"

	"github.com/cloudflare/gortr/prefixfile"
	"github.com/stretchr/testify/require"
)

func TestROAPublisherReplacesBucketPerTA(t *testing.T) {
	p := NewROAPublisher(nil, false)
	p.Publish("ripe", []prefixfile.ROAJson{{ASN: "AS1", Prefix: "10.0.0.0/8", Length: 16, TA: "ripe"}})
	p.Publish("apnic", []prefixfile.ROAJson{{ASN: "AS2", Prefix: "20.0.0.0/8", Length: 16, TA: "apnic"}})

	snap, err := p.Snapshot(time.Unix(1000, 0), time.Hour)
	require.NoError(t, err)
	require.Len(t, snap.Data, 2)

	// Re-publishing ripe's bucket with a smaller set must drop its
	// stale entry rather than accumulate alongside it.
	p.Publish("ripe", nil)
	snap, err = p.Snapshot(time.Unix(2000, 0), time.Hour)
	require.NoError(t, err)
	require.Len(t, snap.Data, 1)
	require.Equal(t, "apnic", snap.Data[0].TA)
}

func TestROAPublisherDedupesAcrossTAs(t *testing.T) {
	p := NewROAPublisher(nil, false)
	entry := prefixfile.ROAJson{ASN: "AS1", Prefix: "10.0.0.0/8", Length: 16, TA: "ripe"}
	p.Publish("ripe", []prefixfile.ROAJson{entry, entry})

	snap, err := p.Snapshot(time.Unix(1000, 0), time.Hour)
	require.NoError(t, err)
	require.Len(t, snap.Data, 1)
}
