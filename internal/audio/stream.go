package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource renders interleaved stereo float32 frames into dst.
type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the 32-bit float little endian byte
// stream ebiten's NewPlayerF32 reads.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

// devicePlayer is one ebiten player pulling from a StreamReader.
type devicePlayer struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// sharedAudioContext returns the process-wide ebiten context. ebiten allows
// only one, so every Output must agree on the sample rate.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func newDevicePlayer(sampleRate int, source SampleSource, bufferSize time.Duration) (*devicePlayer, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	if bufferSize > 0 {
		pl.SetBufferSize(bufferSize)
	}
	return &devicePlayer{player: pl, reader: reader}, nil
}

func (p *devicePlayer) Play() { p.player.Play() }

func (p *devicePlayer) Close() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}
