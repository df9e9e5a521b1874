// Package fetcher implements the layered fetcher chain (components
// B-F, spec §4): remote rsync fetch, consistency checking, signature
// validation, event notification, and per-walk caching.
package fetcher

import (
	"context"
	"os"
	"time"

	"github.com/carlosm3011/rpki-validator/internal/rlog"
	"github.com/carlosm3011/rpki-validator/internal/rsync"
)

// RemoteFetcher is component B: given a URI, it returns raw object
// bytes by invoking the rsync collaborator, mapping the URI to a
// local path under a per-TAL cache directory. It never parses or
// validates anything.
type RemoteFetcher struct {
	Invoker  rsync.Invoker
	CacheDir string
	Log      rlog.Logger
	Timeout  time.Duration

	metricFetch func(uri string, success bool, elapsed time.Duration)
}

// NewRemoteFetcher builds a RemoteFetcher rooted at cacheDir.
func NewRemoteFetcher(invoker rsync.Invoker, cacheDir string, timeout time.Duration, log rlog.Logger) *RemoteFetcher {
	return &RemoteFetcher{Invoker: invoker, CacheDir: cacheDir, Timeout: timeout, Log: log}
}

// OnMetric registers a callback invoked after every fetch attempt,
// used by internal/events's metrics listener to record
// rsync.fetch.file.{success,failure}[<host>] (spec §6).
func (r *RemoteFetcher) OnMetric(fn func(uri string, success bool, elapsed time.Duration)) {
	r.metricFetch = fn
}

// FetchBytes retrieves uri's bytes, reporting success/failure with an
// elapsed-time metric. A non-nil error means the rsync invocation or
// the subsequent local read failed; the outer layers are responsible
// for mapping that into the warning keys of spec §7's table.
func (r *RemoteFetcher) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	start := time.Now()

	path, err := rsync.DownloadPath(r.CacheDir, uri, false)
	if err != nil {
		r.report(uri, false, time.Since(start))
		return nil, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	r.Invoker.Reset()
	r.Invoker.SetSource(uri)
	r.Invoker.SetDestination(parentDir(path))
	status, err := r.Invoker.Execute(runCtx)
	if err != nil || status != 0 {
		if r.Log != nil {
			r.Log.Warnf("rsync fetch failed for %s: %v (status %d)", uri, err, status)
		}
		r.report(uri, false, time.Since(start))
		if err != nil {
			return nil, err
		}
		return nil, errExitStatus(status)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		r.report(uri, false, time.Since(start))
		return nil, err
	}

	r.report(uri, true, time.Since(start))
	return data, nil
}

func (r *RemoteFetcher) report(uri string, success bool, elapsed time.Duration) {
	if r.metricFetch != nil {
		r.metricFetch(uri, success, elapsed)
	}
}

func parentDir(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return "."
	}
	return path[:i]
}

type errExitStatus int

func (e errExitStatus) Error() string {
	return "rsync exited with non-zero status"
}
