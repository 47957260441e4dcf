package stepseq

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	intaudio "github.com/cbegin/stepseq-go/internal/audio"
	"github.com/cbegin/stepseq-go/internal/periodic"
)

type cancelFunc func()

func (f cancelFunc) Cancel() { f() }

// RenderKit plays kit through the same scheduler and mixer used live, but
// against the mixer's own frame clock instead of a device, and returns
// interleaved stereo samples.
func RenderKit(ctx context.Context, kit *Kit, sampleRate int, seconds float64, opts ...Option) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return nil, errors.New("seconds must be positive")
	}
	mixer := intaudio.NewMixer(sampleRate)
	var step func() bool
	timer := func(_ time.Duration, fn func() bool) (periodic.Canceler, error) {
		step = fn
		return cancelFunc(func() { step = nil }), nil
	}
	if kit != nil {
		opts = append([]Option{WithTracks()}, opts...)
	}
	opts = append(opts,
		WithSampleRate(sampleRate),
		WithOutput(intaudio.NewOffline(mixer)),
		WithTimer(timer),
	)
	e, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	if kit != nil {
		if err := e.ApplyKit(ctx, kit); err != nil {
			return nil, err
		}
	}
	if err := e.Start(); err != nil {
		return nil, err
	}

	frames := int(seconds * float64(sampleRate))
	// A block longer than the schedule-ahead window would render steps
	// before they are queued.
	window := math.Min(e.cfg.lookahead.Seconds(), e.cfg.scheduleAhead)
	chunk := int(window * float64(sampleRate))
	if chunk <= 0 {
		chunk = 1
	}
	out := make([]float32, frames*2)
	for pos := 0; pos < frames; pos += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(pos+chunk, frames)
		mixer.Process(out[2*pos : 2*end])
		if step != nil && !step() {
			step = nil
		}
	}
	return out, nil
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
