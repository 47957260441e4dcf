// Package stepseq is a 16-step sample sequencer. An Engine owns the pattern,
// the loaded samples and the lookahead scheduler that queues each step on the
// audio clock ahead of time.
package stepseq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	intaudio "github.com/cbegin/stepseq-go/internal/audio"
	"github.com/cbegin/stepseq-go/internal/clock"
	"github.com/cbegin/stepseq-go/internal/dispatch"
	intlog "github.com/cbegin/stepseq-go/internal/log"
	"github.com/cbegin/stepseq-go/internal/pattern"
	"github.com/cbegin/stepseq-go/internal/periodic"
	"github.com/cbegin/stepseq-go/internal/samplebank"
	"github.com/cbegin/stepseq-go/internal/scheduler"
	"github.com/cbegin/stepseq-go/internal/visual"
)

// Steps is the number of steps in one pattern cycle.
const Steps = pattern.Steps

var (
	ErrClosed       = errors.New("stepseq: engine closed")
	ErrInvalidTempo = scheduler.ErrInvalidTempo
)

// Output is the audio chain as the engine sees it: a clock to schedule
// against and a sink for playback requests on that clock.
type Output interface {
	clock.Source
	dispatch.Sink
}

type Engine struct {
	mu     sync.Mutex
	cfg    engineConfig
	out    Output
	owned  io.Closer
	grid   *pattern.Grid
	bank   *samplebank.Bank
	loader *samplebank.Loader
	latch  *visual.Latch
	disp   *dispatch.Dispatcher
	sched  *scheduler.Scheduler
	task   periodic.Canceler
	closed bool
	log    *intlog.Logger
}

func New(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if cfg.lookahead <= 0 {
		return nil, fmt.Errorf("lookahead must be positive, got %v", cfg.lookahead)
	}
	if cfg.scheduleAhead <= 0 {
		return nil, fmt.Errorf("schedule-ahead must be positive, got %v", cfg.scheduleAhead)
	}
	e := &Engine{
		cfg:   cfg,
		grid:  pattern.NewGrid(cfg.tracks...),
		bank:  samplebank.NewBank(),
		latch: visual.NewLatch(),
		log:   cfg.logger,
	}
	e.out = cfg.output
	if e.out == nil {
		var outOpts []intaudio.OutputOption
		outOpts = append(outOpts, intaudio.WithLogger(cfg.logger), intaudio.WithBufferSize(cfg.bufferSize))
		if cfg.sampleTap != nil {
			outOpts = append(outOpts, intaudio.WithMixerOptions(intaudio.WithTap(cfg.sampleTap)))
		}
		dev, err := intaudio.NewOutput(cfg.sampleRate, outOpts...)
		if err != nil {
			return nil, err
		}
		e.out = dev
		e.owned = dev
	}
	e.loader = samplebank.NewLoader(e.bank, cfg.sampleRate,
		samplebank.WithLogger(cfg.logger),
		samplebank.WithErrorHandler(cfg.onLoadError),
	)
	e.disp = dispatch.New(e.grid, e.bank, e.out,
		dispatch.WithNotifier(e.latch),
		dispatch.WithFadeIn(cfg.fadeIn),
		dispatch.WithLogger(cfg.logger),
	)
	sched, err := scheduler.New(e.out, e.disp,
		scheduler.WithScheduleAhead(cfg.scheduleAhead),
		scheduler.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, err
	}
	if _, err := sched.SetTempo(cfg.tempo); err != nil {
		return nil, err
	}
	e.sched = sched
	return e, nil
}

// Toggle flips between Running and Stopped and reports the new state.
func (e *Engine) Toggle() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sched.Running() {
		e.stopLocked()
		return false, nil
	}
	if err := e.startLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Start begins playback from step 0 at the current clock time. Starting a
// running engine is a no-op. On failure the engine stays Stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLocked()
}

// Stop ends playback. No step is dispatched after Stop returns; requests
// already handed to the output still sound.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) startLocked() error {
	if e.closed {
		return ErrClosed
	}
	if e.sched.Running() {
		return nil
	}
	e.cancelTaskLocked()
	if err := e.out.Resume(); err != nil {
		return fmt.Errorf("start playback: resume output: %w", err)
	}
	now, err := e.out.Now()
	if err != nil {
		return fmt.Errorf("start playback: read clock: %w", err)
	}
	e.sched.Start(now)
	task, err := e.cfg.timer(e.cfg.lookahead, e.tick)
	if err != nil {
		e.sched.Stop()
		return fmt.Errorf("start playback: arm scheduler: %w", err)
	}
	e.task = task
	// First pass runs inline so step 0 is queued before Start returns.
	if _, err := e.sched.Tick(); err != nil {
		e.cancelTaskLocked()
		return fmt.Errorf("start playback: %w", err)
	}
	e.log.Infof("playback started at %.4fs, %.1f BPM", now, e.sched.Tempo())
	return nil
}

func (e *Engine) stopLocked() {
	if e.sched.Stop() {
		e.log.Infof("playback stopped")
	}
	e.cancelTaskLocked()
	e.latch.Reset()
}

func (e *Engine) cancelTaskLocked() {
	if e.task != nil {
		e.task.Cancel()
		e.task = nil
	}
}

// tick runs on the timer goroutine. It never takes e.mu, so Stop can cancel
// the timer while holding it. The halt handler runs on its own goroutine and
// may call back into the engine.
func (e *Engine) tick() bool {
	again, err := e.sched.Tick()
	if err != nil {
		e.log.Errorf("scheduler halted: %v", err)
		e.latch.Reset()
		if e.cfg.onHalt != nil {
			go e.cfg.onHalt(err)
		}
		return false
	}
	return again
}

func (e *Engine) Running() bool {
	return e.sched.Running()
}

// SetTempo applies bpm to the next computed step interval and returns the
// value in effect after clamping. Non-positive tempos are rejected.
func (e *Engine) SetTempo(bpm float64) (float64, error) {
	return e.sched.SetTempo(bpm)
}

func (e *Engine) Tempo() float64 { return e.sched.Tempo() }

// AddTrack registers a new track with an empty row.
func (e *Engine) AddTrack(track string) { e.grid.AddTrack(track) }

func (e *Engine) Tracks() []string { return e.grid.Tracks() }

// ToggleStep flips one pad. The change is heard the next time the cursor reaches it.
func (e *Engine) ToggleStep(track string, step int) (bool, error) {
	return e.grid.Toggle(track, step)
}

func (e *Engine) SetStep(track string, step int, armed bool) error {
	return e.grid.Set(track, step, armed)
}

func (e *Engine) Armed(track string, step int) bool { return e.grid.Armed(track, step) }

// SetRow replaces a track row from notation such as "x...x...x...x...".
func (e *Engine) SetRow(track, row string) error {
	r, err := pattern.ParseRow(row)
	if err != nil {
		return err
	}
	return e.grid.SetRow(track, r)
}

// LoadSample decodes path and makes it the track's buffer.
func (e *Engine) LoadSample(ctx context.Context, track, path string) error {
	return e.loader.Load(ctx, track, path)
}

// LoadSampleAsync loads in the background; playback is never blocked.
// Failures go to the WithLoadErrorHandler callback and the log.
func (e *Engine) LoadSampleAsync(ctx context.Context, track, path string) {
	e.loader.LoadAsync(ctx, track, path)
}

// LoadSampleReaderAsync decodes r in the background, e.g. a file dropped on
// a window while playing. The new buffer is heard the next time its track
// is triggered. r is closed afterwards if it is an io.Closer.
func (e *Engine) LoadSampleReaderAsync(ctx context.Context, track string, r io.Reader, format samplebank.Format) {
	e.loader.LoadReaderAsync(ctx, track, r, format)
}

// LoadSamples loads several track→path pairs concurrently.
func (e *Engine) LoadSamples(ctx context.Context, paths map[string]string) error {
	return e.loader.LoadAll(ctx, paths)
}

// SetBuffer installs an already decoded buffer for track.
func (e *Engine) SetBuffer(track string, buf *samplebank.Buffer) {
	e.bank.Put(track, buf)
}

func (e *Engine) SampleLoaded(track string) bool {
	_, ok := e.bank.Get(track)
	return ok
}

// CurrentStep is the step most recently handed to the audio chain, for display.
func (e *Engine) CurrentStep() (int, bool) { return e.latch.Current() }

// StepChanged signals, coalesced, that CurrentStep moved.
func (e *Engine) StepChanged() <-chan struct{} { return e.latch.Changed() }

// Latch exposes the visual channel for hosts that drive their own refresh.
func (e *Engine) Latch() *visual.Latch { return e.latch }

// Stats counts dispatcher activity. Late counts requests the output
// received after their start time had already been rendered.
type Stats struct {
	dispatch.Stats
	Late uint64
}

type lateCounter interface {
	Late() uint64
}

func (e *Engine) Stats() Stats {
	st := Stats{Stats: e.disp.Stats()}
	if lc, ok := e.out.(lateCounter); ok {
		st.Late = lc.Late()
	}
	return st
}

func (e *Engine) SampleRate() int { return e.cfg.sampleRate }

// Close stops playback, waits for background loads and releases the output
// if the engine created it.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.stopLocked()
	e.closed = true
	e.mu.Unlock()

	e.loader.Wait()
	if e.owned != nil {
		return e.owned.Close()
	}
	return nil
}
