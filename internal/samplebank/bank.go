// Package samplebank holds decoded sample buffers per track and loads them
// without blocking playback.
package samplebank

import (
	"sync"
)

// Buffer is an immutable decoded clip: interleaved stereo float32 frames at a
// fixed sample rate.
type Buffer struct {
	sampleRate int
	data       []float32
}

// NewBuffer copies interleaved stereo samples into a new Buffer. A trailing
// odd sample is dropped.
func NewBuffer(sampleRate int, stereo []float32) *Buffer {
	n := len(stereo) &^ 1
	data := make([]float32, n)
	copy(data, stereo[:n])
	return &Buffer{sampleRate: sampleRate, data: data}
}

// NewMonoBuffer duplicates each mono sample to both channels.
func NewMonoBuffer(sampleRate int, mono []float32) *Buffer {
	data := make([]float32, len(mono)*2)
	for i, v := range mono {
		data[2*i] = v
		data[2*i+1] = v
	}
	return &Buffer{sampleRate: sampleRate, data: data}
}

func (b *Buffer) SampleRate() int { return b.sampleRate }

func (b *Buffer) Frames() int { return len(b.data) / 2 }

// Frame returns the left and right sample at frame i.
func (b *Buffer) Frame(i int) (float32, float32) {
	return b.data[2*i], b.data[2*i+1]
}

// Duration is the clip length in seconds.
func (b *Buffer) Duration() float64 {
	if b.sampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.sampleRate)
}

// Bank maps track identifiers to buffers. A missing entry is normal while a
// sample is still loading.
type Bank struct {
	mu      sync.RWMutex
	buffers map[string]*Buffer
}

func NewBank() *Bank {
	return &Bank{buffers: make(map[string]*Buffer)}
}

func (b *Bank) Get(track string) (*Buffer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buf, ok := b.buffers[track]
	return buf, ok && buf != nil
}

// Put installs or replaces the buffer for track.
func (b *Bank) Put(track string, buf *Buffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf == nil {
		delete(b.buffers, track)
		return
	}
	b.buffers[track] = buf
}

// Loaded lists tracks that currently have a buffer.
func (b *Bank) Loaded() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.buffers))
	for id := range b.buffers {
		out = append(out, id)
	}
	return out
}
