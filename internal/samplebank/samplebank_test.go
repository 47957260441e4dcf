package samplebank

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
)

const testRate = 48000

// testWAV builds a 10ms 16-bit mono PCM clip.
func testWAV(t *testing.T) []byte {
	t.Helper()
	samples := testRate / 100
	var b bytes.Buffer
	dataSize := uint32(samples * 2)
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, 36+dataSize)
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&b, binary.LittleEndian, uint32(testRate))
	binary.Write(&b, binary.LittleEndian, uint32(testRate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))  // block align
	binary.Write(&b, binary.LittleEndian, uint16(16)) // bits per sample
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, dataSize)
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(2*math.Pi*float64(i)/float64(samples)) * 30000)
		binary.Write(&b, binary.LittleEndian, v)
	}
	return b.Bytes()
}

func writeTestWAV(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, testWAV(t), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestDecodeWAV(t *testing.T) {
	buf, err := Decode(bytes.NewReader(testWAV(t)), FormatWAV, testRate)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Frames() != testRate/100 {
		t.Fatalf("frames = %d, want %d", buf.Frames(), testRate/100)
	}
	if buf.SampleRate() != testRate {
		t.Fatalf("sample rate = %d", buf.SampleRate())
	}
	nonZero := false
	for i := 0; i < buf.Frames(); i++ {
		l, r := buf.Frame(i)
		if l != r {
			t.Fatalf("mono source should decode to identical channels at frame %d: %v != %v", i, l, r)
		}
		if l != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Fatal("expected non-zero samples")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not a wav file at all")), FormatWAV, testRate); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := Decode(bytes.NewReader(nil), Format("flac"), testRate); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"kick.wav":    FormatWAV,
		"SNARE.WAV":   FormatWAV,
		"loop.mp3":    FormatMP3,
		"pad/hat.ogg": FormatVorbis,
	}
	for path, want := range cases {
		got, err := FormatFromPath(path)
		if err != nil || got != want {
			t.Errorf("FormatFromPath(%q) = %q, %v; want %q", path, got, err, want)
		}
	}
	if _, err := FormatFromPath("kick.aiff"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestBankGetPut(t *testing.T) {
	b := NewBank()
	if _, ok := b.Get("kick"); ok {
		t.Fatal("empty bank should have no kick")
	}
	buf := NewMonoBuffer(testRate, []float32{0.5, -0.5})
	b.Put("kick", buf)
	got, ok := b.Get("kick")
	if !ok || got != buf {
		t.Fatal("expected stored buffer")
	}
	if l, r := got.Frame(1); l != -0.5 || r != -0.5 {
		t.Fatalf("frame 1 = %v,%v", l, r)
	}
	b.Put("kick", nil)
	if _, ok := b.Get("kick"); ok {
		t.Fatal("nil put should remove")
	}
}

func TestNewBufferCopiesInput(t *testing.T) {
	src := []float32{1, 2, 3, 4, 5}
	buf := NewBuffer(testRate, src)
	src[0] = 99
	if buf.Frames() != 2 {
		t.Fatalf("frames = %d, want 2", buf.Frames())
	}
	if l, _ := buf.Frame(0); l != 1 {
		t.Fatalf("buffer aliases input: %v", l)
	}
}

func TestLoaderLoadAll(t *testing.T) {
	dir := t.TempDir()
	bank := NewBank()
	l := NewLoader(bank, testRate)
	err := l.LoadAll(context.Background(), map[string]string{
		"kick":  writeTestWAV(t, dir, "kick.wav"),
		"snare": writeTestWAV(t, dir, "snare.wav"),
	})
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	got := bank.Loaded()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "kick" || got[1] != "snare" {
		t.Fatalf("loaded = %v", got)
	}
}

func TestLoadAsyncReportsFailure(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(bad, []byte("RIFFjunk"), 0o644); err != nil {
		t.Fatal(err)
	}
	bank := NewBank()
	var (
		mu     sync.Mutex
		failed []string
	)
	l := NewLoader(bank, testRate, WithErrorHandler(func(track string, err error) {
		mu.Lock()
		failed = append(failed, track)
		mu.Unlock()
	}))
	l.LoadAsync(context.Background(), "kick", bad)
	l.LoadAsync(context.Background(), "snare", writeTestWAV(t, dir, "snare.wav"))
	l.Wait()

	if len(failed) != 1 || failed[0] != "kick" {
		t.Fatalf("failed = %v, want [kick]", failed)
	}
	if _, ok := bank.Get("kick"); ok {
		t.Fatal("failed load must leave track absent")
	}
	if _, ok := bank.Get("snare"); !ok {
		t.Fatal("snare should load despite kick failure")
	}
}

func TestLoadHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bank := NewBank()
	l := NewLoader(bank, testRate)
	err := l.LoadReader(ctx, "kick", bytes.NewReader(testWAV(t)), FormatWAV)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, ok := bank.Get("kick"); ok {
		t.Fatal("cancelled load must not populate the bank")
	}
}

type closeTracker struct {
	*bytes.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestLoadReaderAsyncClosesReader(t *testing.T) {
	bank := NewBank()
	l := NewLoader(bank, testRate)
	r := &closeTracker{Reader: bytes.NewReader(testWAV(t))}
	l.LoadReaderAsync(context.Background(), "clap", r, FormatWAV)
	l.Wait()
	if !r.closed {
		t.Fatal("reader should be closed after decoding")
	}
	if _, ok := bank.Get("clap"); !ok {
		t.Fatal("clap should be loaded")
	}
}
