// Package scheduler turns a tempo and a 16-step cycle into trigger events
// timed on the audio clock, ahead of when they must sound.
//
// Each Tick emits every step whose time falls before now+scheduleAhead. The
// time handed to the dispatcher is the accumulated next-note time, never the
// time the tick ran, so timer jitter does not reach the audio.
package scheduler

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/stepseq-go/internal/clock"
	intlog "github.com/cbegin/stepseq-go/internal/log"
	"github.com/cbegin/stepseq-go/internal/pattern"
)

const (
	// StepsPerBeat makes one step a 16th note; 16 steps span four beats.
	StepsPerBeat = 4

	DefaultTempo         = 120.0
	MinTempo             = 1.0
	MaxTempo             = 1000.0
	DefaultLookahead     = 25 * time.Millisecond
	DefaultScheduleAhead = 0.1
)

var ErrInvalidTempo = errors.New("scheduler: tempo must be a positive finite number")

// Dispatcher receives one call per step, in step and time order.
// It runs while the scheduler holds its lock and must not call back into it.
type Dispatcher interface {
	Dispatch(step int, at float64)
}

type DispatchFunc func(step int, at float64)

func (f DispatchFunc) Dispatch(step int, at float64) { f(step, at) }

type Option func(*Scheduler)

// WithScheduleAhead sets how far past now, in seconds, events may be emitted.
func WithScheduleAhead(seconds float64) Option {
	return func(s *Scheduler) {
		if seconds > 0 && !math.IsInf(seconds, 0) {
			s.ahead = seconds
		}
	}
}

func WithTempo(bpm float64) Option {
	return func(s *Scheduler) {
		if v, err := normalizeTempo(bpm); err == nil {
			s.tempo.Store(math.Float64bits(v))
		}
	}
}

func WithLogger(l *intlog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

type Scheduler struct {
	clock clock.Source
	disp  Dispatcher
	ahead float64
	log   *intlog.Logger

	// tempo is read once per advance so edits never wait on a running tick.
	tempo atomic.Uint64

	mu      sync.Mutex
	running bool
	step    int
	next    float64
}

func New(src clock.Source, d Dispatcher, opts ...Option) (*Scheduler, error) {
	if src == nil {
		return nil, errors.New("scheduler: nil clock source")
	}
	if d == nil {
		return nil, errors.New("scheduler: nil dispatcher")
	}
	s := &Scheduler{
		clock: src,
		disp:  d,
		ahead: DefaultScheduleAhead,
		log:   intlog.Discard(),
	}
	s.tempo.Store(math.Float64bits(DefaultTempo))
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StepDuration is the length of one 16th note at bpm.
func StepDuration(bpm float64) float64 {
	return 60 / bpm / StepsPerBeat
}

func normalizeTempo(bpm float64) (float64, error) {
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTempo, bpm)
	}
	return math.Min(math.Max(bpm, MinTempo), MaxTempo), nil
}

// SetTempo changes the tempo used for the next computed step interval.
// Values outside [MinTempo, MaxTempo] are clamped; the applied value is returned.
func (s *Scheduler) SetTempo(bpm float64) (float64, error) {
	v, err := normalizeTempo(bpm)
	if err != nil {
		return s.Tempo(), err
	}
	s.tempo.Store(math.Float64bits(v))
	return v, nil
}

func (s *Scheduler) Tempo() float64 {
	return math.Float64frombits(s.tempo.Load())
}

// ScheduleAhead reports the lookahead window in seconds.
func (s *Scheduler) ScheduleAhead() float64 { return s.ahead }

// Start resets the cursor to step 0 with the first event at `at`. Starting a
// running scheduler is a no-op and returns false.
func (s *Scheduler) Start(at float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.step = 0
	s.next = at
	return true
}

// Stop ends scheduling. It waits for a tick already in progress to finish its
// batch, so no Dispatch call happens after Stop returns.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.running
	s.running = false
	return was
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Step is the index of the next step to be emitted.
func (s *Scheduler) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// NextNoteTime is the clock time of the next step to be emitted.
func (s *Scheduler) NextNoteTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Tick runs one lookahead pass and reports whether the caller should arm the
// next one. A clock read failure stops the scheduler and is returned.
func (s *Scheduler) Tick() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false, nil
	}
	now, err := s.clock.Now()
	if err != nil {
		s.running = false
		return false, fmt.Errorf("scheduler: read clock: %w", err)
	}
	horizon := now + s.ahead
	emitted := 0
	for s.next < horizon {
		s.disp.Dispatch(s.step, s.next)
		s.next += StepDuration(s.Tempo())
		s.step = (s.step + 1) % pattern.Steps
		emitted++
	}
	if emitted > 1 {
		s.log.Debugf("scheduler caught up %d steps at %.4fs", emitted, now)
	}
	return true, nil
}
