package listing

import (
	"sync"
	"time"
)

// DefaultQuiet is how long search input must stay unchanged before it's applied.
const DefaultQuiet = 500 * time.Millisecond

// Debouncer calls fire with the last pushed value once no other value was pushed for the quiet interval. fire runs on
// its own goroutine.
type Debouncer[T any] struct {
	quiet time.Duration
	fire  func(T)

	mu       sync.Mutex
	timer    *time.Timer
	sequence uint64
	stopped  bool
}

func NewDebouncer[T any](quiet time.Duration, fire func(T)) *Debouncer[T] {
	return &Debouncer[T]{quiet: quiet, fire: fire}
}

func (d *Debouncer[T]) Push(value T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.sequence++
	var sequence = d.sequence
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		// a timer that already fired can't be stopped, so a newer push is detected here
		var current = !d.stopped && sequence == d.sequence
		d.mu.Unlock()
		if current {
			d.fire(value)
		}
	})
}

// Cancel drops a pending value.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sequence++
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Stop cancels the pending value and ignores later pushes.
func (d *Debouncer[T]) Stop() {
	d.Cancel()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
