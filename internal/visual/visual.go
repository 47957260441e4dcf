// Package visual carries the active step from the audio side to the display
// without letting either wait on the other.
package visual

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/stepseq-go/internal/periodic"
)

// Latch holds the most recent step. Writers never block; readers see only the
// latest value, so bursts coalesce into one frame.
type Latch struct {
	step    atomic.Int64
	seq     atomic.Uint64
	changed chan struct{}
}

func NewLatch() *Latch {
	l := &Latch{changed: make(chan struct{}, 1)}
	l.step.Store(-1)
	return l
}

// Notify records step as active.
func (l *Latch) Notify(step int) {
	l.step.Store(int64(step))
	l.seq.Add(1)
	l.signal()
}

// Reset clears the active step, e.g. when playback stops.
func (l *Latch) Reset() {
	l.step.Store(-1)
	l.seq.Add(1)
	l.signal()
}

func (l *Latch) signal() {
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

// Current returns the active step, or ok=false when nothing is playing.
func (l *Latch) Current() (step int, ok bool) {
	s := l.step.Load()
	return int(s), s >= 0
}

// Seq increases on every write. Readers compare it to skip unchanged frames.
func (l *Latch) Seq() uint64 { return l.seq.Load() }

// Changed receives at most one pending signal after any number of writes.
func (l *Latch) Changed() <-chan struct{} { return l.changed }

// Refresher polls a Latch at a display rate and calls fn when the step changed.
// Hosts with their own frame callback (ebiten Draw) read the Latch directly.
type Refresher struct {
	latch *Latch
	fn    func(step int, ok bool)

	mu   sync.Mutex
	task *periodic.Task
	last uint64
}

func NewRefresher(l *Latch, fn func(step int, ok bool)) *Refresher {
	return &Refresher{latch: l, fn: fn}
}

// Start begins refreshing at fps frames per second. Restarting replaces the previous task.
func (r *Refresher) Start(fps int) error {
	if fps <= 0 {
		fps = 60
	}
	r.Stop()
	task, err := periodic.Start(time.Second/time.Duration(fps), r.frame)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.task = task
	r.mu.Unlock()
	return nil
}

func (r *Refresher) frame() bool {
	seq := r.latch.Seq()
	if seq == r.last {
		return true
	}
	r.last = seq
	step, ok := r.latch.Current()
	r.fn(step, ok)
	return true
}

func (r *Refresher) Stop() {
	r.mu.Lock()
	task := r.task
	r.task = nil
	r.mu.Unlock()
	if task != nil {
		task.Cancel()
	}
}
