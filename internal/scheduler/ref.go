package scheduler

import (
	"sync"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// Ref is a software-transactional-memory-style reference to a single
// immutable MemoryImage (spec §4.H, §5): reads return a
// snapshot-consistent copy; writes replace the whole image under one
// mutex, approximating STM with mutex-guarded CAS since Go has no
// native STM primitive.
type Ref struct {
	mu    sync.Mutex
	image model.MemoryImage
}

// NewRef builds a Ref seeded with the given image.
func NewRef(image model.MemoryImage) *Ref {
	return &Ref{image: image}
}

// Get returns the current snapshot.
func (r *Ref) Get() model.MemoryImage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.image
}

// Transact runs fn against the current image under the lock and
// commits its return value as the new image, returning it. This is
// the Ref's only multi-step transaction: every other read or write
// goes through Get or a single Transact call.
func (r *Ref) Transact(fn func(model.MemoryImage) model.MemoryImage) model.MemoryImage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image = fn(r.image)
	return r.image
}
