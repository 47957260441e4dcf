package stepseq

import (
	"time"

	intlog "github.com/cbegin/stepseq-go/internal/log"
	"github.com/cbegin/stepseq-go/internal/periodic"
	"github.com/cbegin/stepseq-go/internal/scheduler"
)

// DefaultTracks is the four-voice kit a new Engine starts with.
var DefaultTracks = []string{"kick", "snare", "hihat", "clap"}

type Option func(*engineConfig)

type engineConfig struct {
	sampleRate    int
	tempo         float64
	tracks        []string
	lookahead     time.Duration
	scheduleAhead float64
	fadeIn        float64
	bufferSize    time.Duration
	output        Output
	timer         periodic.StartFunc
	logger        *intlog.Logger
	onHalt        func(error)
	onLoadError   func(track string, err error)
	sampleTap     func([]float32)
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		sampleRate:    48000,
		tempo:         scheduler.DefaultTempo,
		tracks:        append([]string(nil), DefaultTracks...),
		lookahead:     scheduler.DefaultLookahead,
		scheduleAhead: scheduler.DefaultScheduleAhead,
		fadeIn:        0.002,
		timer:         periodic.Arm,
		logger:        intlog.Discard(),
	}
}

func WithSampleRate(sampleRate int) Option {
	return func(cfg *engineConfig) {
		cfg.sampleRate = sampleRate
	}
}

func WithTempo(bpm float64) Option {
	return func(cfg *engineConfig) {
		cfg.tempo = bpm
	}
}

// WithTracks replaces the default track list.
func WithTracks(tracks ...string) Option {
	return func(cfg *engineConfig) {
		cfg.tracks = append([]string(nil), tracks...)
	}
}

// WithLookahead sets how often the scheduler wakes up.
func WithLookahead(d time.Duration) Option {
	return func(cfg *engineConfig) {
		cfg.lookahead = d
	}
}

// WithScheduleAhead sets how far past now, in seconds, steps are queued.
func WithScheduleAhead(seconds float64) Option {
	return func(cfg *engineConfig) {
		cfg.scheduleAhead = seconds
	}
}

// WithFadeIn sets the anti-click ramp length in seconds.
func WithFadeIn(seconds float64) Option {
	return func(cfg *engineConfig) {
		cfg.fadeIn = seconds
	}
}

// WithBufferSize sets the device read-ahead of the default output.
func WithBufferSize(d time.Duration) Option {
	return func(cfg *engineConfig) {
		cfg.bufferSize = d
	}
}

// WithOutput replaces the ebiten device with another clock and sink pair.
// The engine does not close an output it did not create.
func WithOutput(out Output) Option {
	return func(cfg *engineConfig) {
		cfg.output = out
	}
}

// WithTimer replaces the goroutine timer that drives the scheduler.
func WithTimer(start periodic.StartFunc) Option {
	return func(cfg *engineConfig) {
		if start != nil {
			cfg.timer = start
		}
	}
}

func WithLogger(l *intlog.Logger) Option {
	return func(cfg *engineConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithHaltHandler is told when scheduling stops on its own, e.g. the clock
// could not be read. The engine is Stopped by the time it runs.
func WithHaltHandler(fn func(error)) Option {
	return func(cfg *engineConfig) {
		cfg.onHalt = fn
	}
}

// WithLoadErrorHandler receives asynchronous sample load failures.
func WithLoadErrorHandler(fn func(track string, err error)) Option {
	return func(cfg *engineConfig) {
		cfg.onLoadError = fn
	}
}

// WithSampleTap installs a callback invoked with each rendered stereo buffer
// of the default output. It runs on the audio thread; keep it brief.
func WithSampleTap(tap func([]float32)) Option {
	return func(cfg *engineConfig) {
		cfg.sampleTap = tap
	}
}
