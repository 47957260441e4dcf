// Package dispatch resolves which tracks sound at a step and hands their
// buffers to the audio chain with the exact scheduled time.
package dispatch

import (
	"sync/atomic"

	intlog "github.com/cbegin/stepseq-go/internal/log"
	"github.com/cbegin/stepseq-go/internal/samplebank"
)

// DefaultFadeIn is the anti-click ramp applied at the start of each request.
const DefaultFadeIn = 0.002

// Request asks the audio chain to start Buffer at At on the clock's time base,
// ramping linearly from silence to unity over FadeIn seconds.
type Request struct {
	Track  string
	Step   int
	Buffer *samplebank.Buffer
	At     float64
	FadeIn float64
}

// Sink is the audio chain. Play must not block on the start time.
type Sink interface {
	Play(req Request) error
}

// Patterns is the read side of the pattern grid.
type Patterns interface {
	Tracks() []string
	Armed(track string, step int) bool
}

// Samples is the read side of the sample bank.
type Samples interface {
	Get(track string) (*samplebank.Buffer, bool)
}

// StepNotifier receives the step index for display. It must not block.
type StepNotifier interface {
	Notify(step int)
}

type Option func(*Dispatcher)

func WithNotifier(n StepNotifier) Option {
	return func(d *Dispatcher) { d.visual = n }
}

func WithFadeIn(seconds float64) Option {
	return func(d *Dispatcher) {
		if seconds >= 0 {
			d.fadeIn = seconds
		}
	}
}

func WithLogger(l *intlog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// Stats counts dispatcher activity since construction.
type Stats struct {
	Steps    uint64
	Requests uint64
	Missing  uint64
	Failed   uint64
}

type Dispatcher struct {
	patterns Patterns
	samples  Samples
	sink     Sink
	visual   StepNotifier
	fadeIn   float64
	log      *intlog.Logger

	steps    atomic.Uint64
	requests atomic.Uint64
	missing  atomic.Uint64
	failed   atomic.Uint64
}

func New(p Patterns, s Samples, sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		patterns: p,
		samples:  s,
		sink:     sink,
		fadeIn:   DefaultFadeIn,
		log:      intlog.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch reads the grid and bank as they are right now. Armed tracks without
// a buffer are skipped silently; a sink error affects only that track.
func (d *Dispatcher) Dispatch(step int, at float64) {
	d.steps.Add(1)
	if d.visual != nil {
		d.visual.Notify(step)
	}
	for _, track := range d.patterns.Tracks() {
		if !d.patterns.Armed(track, step) {
			continue
		}
		buf, ok := d.samples.Get(track)
		if !ok {
			d.missing.Add(1)
			continue
		}
		req := Request{Track: track, Step: step, Buffer: buf, At: at, FadeIn: d.fadeIn}
		if err := d.sink.Play(req); err != nil {
			d.failed.Add(1)
			d.log.Warnf("play %q at %.4fs: %v", track, at, err)
			continue
		}
		d.requests.Add(1)
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Steps:    d.steps.Load(),
		Requests: d.requests.Load(),
		Missing:  d.missing.Load(),
		Failed:   d.failed.Load(),
	}
}
