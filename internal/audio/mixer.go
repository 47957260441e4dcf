package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cbegin/stepseq-go/internal/effects"
	"github.com/cbegin/stepseq-go/internal/samplebank"
)

// maxVoices caps simultaneous voices; the oldest is dropped past it.
const maxVoices = 128

var ErrSampleRate = errors.New("audio: buffer sample rate does not match mixer")

type MixerOption func(*Mixer)

// WithBus replaces the master bus. A nil chain leaves the mix unprocessed.
func WithBus(c *effects.Chain) MixerOption {
	return func(m *Mixer) { m.bus = c }
}

// WithTap installs a callback invoked with each rendered stereo buffer.
// It runs on the audio thread; keep work brief and non-blocking.
func WithTap(tap func([]float32)) MixerOption {
	return func(m *Mixer) { m.tap = tap }
}

// Mixer sums scheduled buffers into interleaved stereo. Its frame counter is
// the clock every start time refers to: frame n sounds at n/sampleRate seconds.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	pos        int64
	voices     []*voice
	bus        *effects.Chain
	tap        func([]float32)
	late       uint64
}

type voice struct {
	buf    *samplebank.Buffer
	start  int64
	fade   int
	cursor int
}

func NewMixer(sampleRate int, opts ...MixerOption) *Mixer {
	m := &Mixer{
		sampleRate: sampleRate,
		bus:        effects.MasterBus(sampleRate),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mixer) SampleRate() int { return m.sampleRate }

// Now is the time of the next frame to be rendered, in seconds.
func (m *Mixer) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.pos) / float64(m.sampleRate)
}

// Schedule queues buf to start at `at` seconds with a linear fade-in of
// fadeIn seconds. Times already rendered start on the next frame.
func (m *Mixer) Schedule(buf *samplebank.Buffer, at, fadeIn float64) error {
	if buf == nil {
		return errors.New("audio: nil buffer")
	}
	if buf.SampleRate() != m.sampleRate {
		return fmt.Errorf("%w: %d != %d", ErrSampleRate, buf.SampleRate(), m.sampleRate)
	}
	if math.IsNaN(at) || math.IsInf(at, 0) {
		return fmt.Errorf("audio: invalid start time %v", at)
	}
	start := int64(math.Round(at * float64(m.sampleRate)))
	fade := 0
	if fadeIn > 0 {
		fade = int(math.Round(fadeIn * float64(m.sampleRate)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if start < m.pos {
		start = m.pos
		m.late++
	}
	if len(m.voices) >= maxVoices {
		m.voices = append(m.voices[:0], m.voices[1:]...)
	}
	m.voices = append(m.voices, &voice{buf: buf, start: start, fade: fade})
	return nil
}

// Process renders len(dst)/2 stereo frames and advances the clock.
func (m *Mixer) Process(dst []float32) {
	frames := len(dst) / 2
	m.mu.Lock()
	for i := range dst {
		dst[i] = 0
	}
	base := m.pos
	live := m.voices[:0]
	for _, v := range m.voices {
		if v.mix(dst[:frames*2], base) {
			live = append(live, v)
		}
	}
	for i := len(live); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = live
	m.pos += int64(frames)
	m.bus.ProcessBuffer(dst)
	tap := m.tap
	m.mu.Unlock()

	if tap != nil {
		tap(dst)
	}
}

// mix adds the voice into dst, whose first frame is at base. It reports
// whether the voice still has frames left.
func (v *voice) mix(dst []float32, base int64) bool {
	frames := int64(len(dst) / 2)
	if v.start >= base+frames {
		return true
	}
	first := int64(0)
	if v.start > base {
		first = v.start - base
	}
	total := v.buf.Frames()
	for f := first; f < frames && v.cursor < total; f++ {
		l, r := v.buf.Frame(v.cursor)
		g := float32(1)
		if v.cursor < v.fade {
			g = float32(v.cursor) / float32(v.fade)
		}
		dst[2*f] += l * g
		dst[2*f+1] += r * g
		v.cursor++
	}
	return v.cursor < total
}

// active reports the number of queued or sounding voices.
func (m *Mixer) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Late reports how many requests arrived after their start frame was rendered.
func (m *Mixer) Late() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.late
}

// Clear drops every queued voice. The clock keeps running.
func (m *Mixer) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = nil
	if m.bus != nil {
		m.bus.Reset()
	}
}
