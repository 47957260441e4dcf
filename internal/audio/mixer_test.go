package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/cbegin/stepseq-go/internal/dispatch"
	"github.com/cbegin/stepseq-go/internal/samplebank"
)

const testRate = 48000

func constBuffer(frames int, v float32) *samplebank.Buffer {
	mono := make([]float32, frames)
	for i := range mono {
		mono[i] = v
	}
	return samplebank.NewMonoBuffer(testRate, mono)
}

func firstNonZero(buf []float32) int {
	for i := 0; i < len(buf)/2; i++ {
		if buf[2*i] != 0 {
			return i
		}
	}
	return -1
}

func TestVoiceStartsOnScheduledFrame(t *testing.T) {
	m := NewMixer(testRate, WithBus(nil))
	if err := m.Schedule(constBuffer(100, 0.5), 0.01, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	// Render in odd-sized chunks so the start falls inside a block.
	out := make([]float32, 0, 2*testRate/10)
	for len(out) < cap(out) {
		chunk := make([]float32, 2*137)
		m.Process(chunk)
		out = append(out, chunk...)
	}
	if got := firstNonZero(out); got != testRate/100 {
		t.Fatalf("first audible frame = %d, want %d", got, testRate/100)
	}
}

func TestFadeInRampsLinearly(t *testing.T) {
	m := NewMixer(testRate, WithBus(nil))
	if err := m.Schedule(constBuffer(1000, 0.5), 0, 0.002); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	out := make([]float32, 2*200)
	m.Process(out)
	fade := int(0.002 * testRate)
	if out[0] != 0 {
		t.Fatalf("ramp must start from silence, got %f", out[0])
	}
	for i := 1; i < fade; i++ {
		want := 0.5 * float32(i) / float32(fade)
		if math.Abs(float64(out[2*i]-want)) > 1e-6 {
			t.Fatalf("frame %d = %f, want %f", i, out[2*i], want)
		}
	}
	if out[2*fade] != 0.5 {
		t.Fatalf("frame %d = %f, want unity 0.5", fade, out[2*fade])
	}
}

func TestSimultaneousVoicesMixIndependently(t *testing.T) {
	m := NewMixer(testRate, WithBus(nil))
	m.Schedule(constBuffer(10, 0.25), 0, 0)
	m.Schedule(constBuffer(20, 0.125), 0, 0)
	out := make([]float32, 2*30)
	m.Process(out)
	if out[0] != 0.375 {
		t.Fatalf("summed frame = %f, want 0.375", out[0])
	}
	if out[2*15] != 0.125 {
		t.Fatalf("second voice should continue alone, got %f", out[2*15])
	}
	if out[2*25] != 0 {
		t.Fatalf("expected silence after both voices, got %f", out[2*25])
	}
	if m.active() != 0 {
		t.Fatalf("finished voices should be released, active=%d", m.active())
	}
}

func TestLateRequestStartsImmediately(t *testing.T) {
	m := NewMixer(testRate, WithBus(nil))
	m.Process(make([]float32, 2*1000))
	if err := m.Schedule(constBuffer(10, 1), 0, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	out := make([]float32, 2*10)
	m.Process(out)
	if out[0] != 1 {
		t.Fatalf("late voice should start on the next frame, got %f", out[0])
	}
	if m.Late() != 1 {
		t.Fatalf("late = %d, want 1", m.Late())
	}
}

func TestNowTracksRenderedFrames(t *testing.T) {
	m := NewMixer(testRate)
	m.Process(make([]float32, 2*testRate/10))
	if got := m.Now(); math.Abs(got-0.1) > 1e-12 {
		t.Fatalf("now = %v, want 0.1", got)
	}
}

func TestScheduleRejectsMismatchedRate(t *testing.T) {
	m := NewMixer(testRate)
	buf := samplebank.NewMonoBuffer(44100, []float32{1})
	if err := m.Schedule(buf, 0, 0); !errors.Is(err, ErrSampleRate) {
		t.Fatalf("expected ErrSampleRate, got %v", err)
	}
	if err := m.Schedule(nil, 0, 0); err == nil {
		t.Fatal("expected error for nil buffer")
	}
}

func TestMasterBusLimitsLoudMix(t *testing.T) {
	m := NewMixer(testRate)
	for i := 0; i < 8; i++ {
		m.Schedule(constBuffer(testRate/10, 0.9), 0, 0)
	}
	out := make([]float32, 2*testRate/10)
	m.Process(out)
	for i, v := range out {
		if v > 1 || v < -1 {
			t.Fatalf("sample %d = %f exceeds unity", i, v)
		}
	}
}

func TestOfflinePlaysRequests(t *testing.T) {
	m := NewMixer(testRate, WithBus(nil))
	off := NewOffline(m)
	err := off.Play(dispatch.Request{Track: "kick", Buffer: constBuffer(4, 1), At: 0.001})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	out := make([]float32, 2*100)
	m.Process(out)
	if got := firstNonZero(out); got != 48 {
		t.Fatalf("first audible frame = %d, want 48", got)
	}
	if now, _ := off.Now(); now != 100.0/testRate {
		t.Fatalf("offline now = %v", now)
	}
}

func TestStreamReaderEncodesFloat32LE(t *testing.T) {
	m := NewMixer(testRate, WithBus(nil))
	m.Schedule(constBuffer(8, 0.5), 0, 0)
	r := NewStreamReader(m)
	p := make([]byte, 8*4)
	n, err := r.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("read = %d, %v", n, err)
	}
	for i := 0; i < 8; i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if v != 0.5 {
			t.Fatalf("sample %d = %f, want 0.5", i, v)
		}
	}
	if n, _ := r.Read(make([]byte, 7)); n != 0 {
		t.Fatalf("short read should return 0 bytes, got %d", n)
	}
}

func TestTapSeesRenderedAudio(t *testing.T) {
	var tapped int
	m := NewMixer(testRate, WithTap(func(buf []float32) { tapped += len(buf) }))
	m.Process(make([]float32, 64))
	if tapped != 64 {
		t.Fatalf("tapped = %d, want 64", tapped)
	}
}

func TestClosedOutputRejectsWork(t *testing.T) {
	o, err := NewOutput(testRate)
	if err != nil {
		t.Fatalf("new output: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := o.Now(); !errors.Is(err, ErrClosed) {
		t.Fatalf("now after close: %v", err)
	}
	if err := o.Resume(); !errors.Is(err, ErrClosed) {
		t.Fatalf("resume after close: %v", err)
	}
	if err := o.Play(dispatch.Request{Buffer: constBuffer(1, 1)}); !errors.Is(err, ErrClosed) {
		t.Fatalf("play after close: %v", err)
	}
}
