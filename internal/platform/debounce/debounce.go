// Package debounce coalesces rapid successive inputs into a single trailing
// execution and discards completions that have been superseded.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Func performs the debounced work for the most recent input.
type Func[In, Out any] func(ctx context.Context, input In) (Out, error)

// ResultFunc receives the outcome of an execution that is still current.
type ResultFunc[In, Out any] func(input In, generation uint64, output Out, err error)

// Debouncer delays execution until the input has been quiet for the configured
// interval. Every Submit advances a generation counter; executions started for
// an older generation have their results dropped, so a slow completion can
// never overwrite the outcome of a newer input.
type Debouncer[In, Out any] struct {
	delay   time.Duration
	run     Func[In, Out]
	deliver ResultFunc[In, Out]

	mu         sync.Mutex
	timer      *time.Timer
	pending    In
	generation uint64
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Debouncer. The deliver callback is invoked from the
// execution goroutine and only for results that are still current.
func New[In, Out any](delay time.Duration, run Func[In, Out], deliver ResultFunc[In, Out]) *Debouncer[In, Out] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer[In, Out]{
		delay:   delay,
		run:     run,
		deliver: deliver,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit schedules input for execution after the quiet interval, replacing any
// input still waiting. It returns the generation assigned to this input.
func (d *Debouncer[In, Out]) Submit(input In) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return d.generation
	}

	d.generation++
	generation := d.generation
	d.pending = input

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(generation)
	})
	return generation
}

// Cancel drops any input waiting for its quiet interval. In-flight executions
// are not interrupted, but their results will be dropped if superseded later.
func (d *Debouncer[In, Out]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Generation returns the most recently assigned generation.
func (d *Debouncer[In, Out]) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

// Close cancels pending work and waits for in-flight executions to return.
func (d *Debouncer[In, Out]) Close() {
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Debouncer[In, Out]) fire(generation uint64) {
	d.mu.Lock()
	if d.closed || generation != d.generation {
		d.mu.Unlock()
		return
	}
	input := d.pending
	d.timer = nil
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		output, err := d.run(d.ctx, input)

		d.mu.Lock()
		current := !d.closed && generation == d.generation
		d.mu.Unlock()

		if current && d.deliver != nil {
			d.deliver(input, generation, output, err)
		}
	}()
}
