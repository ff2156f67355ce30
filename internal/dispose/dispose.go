// Package dispose collects teardown functions so an owner can release
// everything it acquired with one call.
package dispose

import (
	"errors"
	"fmt"
	"sync"
)

// Func releases one resource.
type Func func() error

// Bag is an ordered set of disposers. DisposeAll runs each one exactly once,
// newest first, and joins their errors. The zero value is ready to use.
type Bag struct {
	mu       sync.Mutex
	fns      []Func
	disposed bool
}

// Add registers fn. If the bag has already been disposed, fn runs
// immediately and its error is returned.
func (b *Bag) Add(fn Func) error {
	if fn == nil {
		return nil
	}
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return run(fn)
	}
	b.fns = append(b.fns, fn)
	b.mu.Unlock()
	return nil
}

// Defer registers a teardown that cannot fail, such as an unsubscribe func.
func (b *Bag) Defer(fn func()) {
	if fn == nil {
		return
	}
	_ = b.Add(func() error {
		fn()
		return nil
	})
}

// Len reports how many disposers are pending.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fns)
}

// DisposeAll runs every pending disposer. A failing or panicking disposer
// does not stop the rest. Calls after the first return nil.
func (b *Bag) DisposeAll() error {
	b.mu.Lock()
	fns := b.fns
	b.fns = nil
	b.disposed = true
	b.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := run(fns[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func run(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispose: panic: %v", r)
		}
	}()
	return fn()
}
