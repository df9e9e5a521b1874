package fetcher

import (
	"context"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// Listener receives fetch lifecycle events. Implementations must not
// mutate obj or result (spec §4.E).
type Listener interface {
	AfterFetchSuccess(uri string, obj model.RepositoryObject, result *model.ValidationResult)
	AfterFetchFailure(uri string, result *model.ValidationResult)
	AfterPrefetchSuccess(uri string, result *model.ValidationResult)
	AfterPrefetchFailure(uri string, result *model.ValidationResult)
}

// NotifyingFetcher is component E: dispatches lifecycle events to
// registered listeners in registration order. A listener panic is
// caught and logged; it never prevents downstream listeners from
// firing (spec §4.E).
type NotifyingFetcher struct {
	Inner     *ValidatingFetcher
	listeners []Listener
	onPanic   func(listenerIndex int, r any)
}

// NewNotifyingFetcher builds a NotifyingFetcher with no listeners
// registered yet.
func NewNotifyingFetcher(inner *ValidatingFetcher) *NotifyingFetcher {
	return &NotifyingFetcher{Inner: inner}
}

// AddListener registers a listener; delivery order is registration
// order.
func (n *NotifyingFetcher) AddListener(l Listener) {
	n.listeners = append(n.listeners, l)
}

// OnPanic installs a hook invoked when a listener panics, so the
// caller can log it (spec §4.E: "caught, logged, and does not
// prevent downstream listeners").
func (n *NotifyingFetcher) OnPanic(fn func(listenerIndex int, r any)) {
	n.onPanic = fn
}

func (n *NotifyingFetcher) Prefetch(ctx context.Context, uri string, result *model.ValidationResult) {
	before := len(result.ChecksAt(uri))
	n.Inner.Prefetch(ctx, uri, result)
	// The consistent fetcher transcribes a remote prefetch failure as a
	// warning at uri (spec §7), so any check it added marks a failure.
	if len(result.ChecksAt(uri)) > before {
		n.dispatch(func(i int, l Listener) { l.AfterPrefetchFailure(uri, result) })
	} else {
		n.dispatch(func(i int, l Listener) { l.AfterPrefetchSuccess(uri, result) })
	}
}

func (n *NotifyingFetcher) Fetch(ctx context.Context, uri string, spec model.ContentSpec, octx *model.ValidationContext, result *model.ValidationResult) (model.RepositoryObject, bool) {
	obj, ok := n.Inner.Fetch(ctx, uri, spec, octx, result)
	if ok {
		n.dispatch(func(i int, l Listener) { l.AfterFetchSuccess(uri, obj, result) })
	} else {
		n.dispatch(func(i int, l Listener) { l.AfterFetchFailure(uri, result) })
	}
	return obj, ok
}

func (n *NotifyingFetcher) dispatch(call func(i int, l Listener)) {
	for i, l := range n.listeners {
		n.safeCall(i, l, call)
	}
}

func (n *NotifyingFetcher) safeCall(i int, l Listener, call func(i int, l Listener)) {
	defer func() {
		if r := recover(); r != nil {
			if n.onPanic != nil {
				n.onPanic(i, r)
			}
		}
	}()
	call(i, l)
}
