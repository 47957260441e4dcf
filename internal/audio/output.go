// Package audio is the output chain: a sample-accurate mixer whose frame
// counter doubles as the engine clock, and an ebiten device that pulls from it.
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cbegin/stepseq-go/internal/dispatch"
	intlog "github.com/cbegin/stepseq-go/internal/log"
)

// DefaultBufferSize keeps the device read-ahead well inside the scheduler's
// 100 ms window so rendered time stays ahead of every queued start.
const DefaultBufferSize = 20 * time.Millisecond

var ErrClosed = errors.New("audio: output closed")

type OutputOption func(*Output)

func WithBufferSize(d time.Duration) OutputOption {
	return func(o *Output) {
		if d > 0 {
			o.bufferSize = d
		}
	}
}

func WithLogger(l *intlog.Logger) OutputOption {
	return func(o *Output) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMixerOptions forwards options to the owned Mixer.
func WithMixerOptions(opts ...MixerOption) OutputOption {
	return func(o *Output) { o.mixerOpts = append(o.mixerOpts, opts...) }
}

// Output plays a Mixer on the audio device. It is both the engine's clock
// source and its playback sink. The device is opened on the first Resume.
type Output struct {
	mixer      *Mixer
	sampleRate int
	bufferSize time.Duration
	mixerOpts  []MixerOption
	log        *intlog.Logger

	mu     sync.Mutex
	player *devicePlayer
	closed bool
}

func NewOutput(sampleRate int, opts ...OutputOption) (*Output, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	o := &Output{
		sampleRate: sampleRate,
		bufferSize: DefaultBufferSize,
		log:        intlog.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.mixer = NewMixer(sampleRate, o.mixerOpts...)
	return o, nil
}

func (o *Output) Mixer() *Mixer { return o.mixer }

// Now returns rendered time in seconds. It stands still while the device is suspended.
func (o *Output) Now() (float64, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return o.mixer.Now(), nil
}

// Resume opens the device if needed and starts pulling audio.
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.player == nil {
		p, err := newDevicePlayer(o.sampleRate, o.mixer, o.bufferSize)
		if err != nil {
			return fmt.Errorf("open audio device: %w", err)
		}
		o.player = p
		o.log.Infof("audio device opened at %d Hz, buffer %v", o.sampleRate, o.bufferSize)
	}
	o.player.Play()
	return nil
}

// Late reports requests that arrived after their start frame was rendered.
func (o *Output) Late() uint64 { return o.mixer.Late() }

// Play queues a request on the mixer.
func (o *Output) Play(req dispatch.Request) error {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return o.mixer.Schedule(req.Buffer, req.At, req.FadeIn)
}

// Close releases the device. Further calls fail with ErrClosed.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.mixer.Clear()
	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	return err
}

// Offline wraps a Mixer as a clock and sink with no device behind it. The
// caller advances time by calling Mixer.Process.
type Offline struct {
	mixer *Mixer
}

func NewOffline(m *Mixer) *Offline { return &Offline{mixer: m} }

func (o *Offline) Mixer() *Mixer { return o.mixer }

func (o *Offline) Now() (float64, error) { return o.mixer.Now(), nil }

func (o *Offline) Resume() error { return nil }

func (o *Offline) Late() uint64 { return o.mixer.Late() }

func (o *Offline) Play(req dispatch.Request) error {
	return o.mixer.Schedule(req.Buffer, req.At, req.FadeIn)
}
