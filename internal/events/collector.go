package events

import (
	"sync"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// ResultCollector is component E's listener that assembles the
// URI->ValidatedObject map a trust-anchor run hands to
// Scheduler.FinishProcessing (spec §4.H). The walker itself stays
// free of this bookkeeping, as its own doc comment notes: "Notification
// listeners, not the walker, populate the caller's result map."
type ResultCollector struct {
	mu      sync.Mutex
	objects model.ValidatedObjects
}

// NewResultCollector builds an empty collector, one per trust-anchor
// run.
func NewResultCollector() *ResultCollector {
	return &ResultCollector{objects: model.ValidatedObjects{}}
}

func (c *ResultCollector) AfterFetchSuccess(uri string, obj model.RepositoryObject, result *model.ValidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[uri] = model.NewValidObject(uri, result.ChecksAt(uri), obj)
}

func (c *ResultCollector) AfterFetchFailure(uri string, result *model.ValidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[uri] = model.NewInvalidObject(uri, result.ChecksAt(uri))
}

func (c *ResultCollector) AfterPrefetchSuccess(uri string, result *model.ValidationResult) {}

func (c *ResultCollector) AfterPrefetchFailure(uri string, result *model.ValidationResult) {}

// Objects returns the accumulated map; called once after Execute
// returns, when the run is single-threaded again.
func (c *ResultCollector) Objects() model.ValidatedObjects {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(model.ValidatedObjects, len(c.objects))
	for k, v := range c.objects {
		out[k] = v
	}
	return out
}
