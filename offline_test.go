package stepseq

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const renderRate = 48000

// writeTestWAV writes a 10ms 16-bit mono sine clip.
func writeTestWAV(t *testing.T, path string) {
	t.Helper()
	samples := renderRate / 100
	var b bytes.Buffer
	dataSize := uint32(samples * 2)
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, 36+dataSize)
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint32(renderRate))
	binary.Write(&b, binary.LittleEndian, uint32(renderRate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, dataSize)
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(2*math.Pi*float64(i)/float64(samples)) * 30000)
		binary.Write(&b, binary.LittleEndian, v)
	}
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

// onsets returns frames where sound begins after at least gap silent frames.
func onsets(samples []float32, gap int) []int {
	var out []int
	silent := gap
	for i := 0; i < len(samples)/2; i++ {
		if samples[2*i] != 0 || samples[2*i+1] != 0 {
			if silent >= gap {
				out = append(out, i)
			}
			silent = 0
			continue
		}
		silent++
	}
	return out
}

func TestRenderKitPlacesHitsOnTheGrid(t *testing.T) {
	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "kick.wav"))
	kit := &Kit{
		Tempo: 120,
		Tracks: []KitTrack{
			{ID: "kick", Sample: filepath.Join(dir, "kick.wav"), Row: "x...x...x...x..."},
		},
	}
	out, err := RenderKit(context.Background(), kit, renderRate, 4.0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	got := onsets(out, 1000)
	want := []int{0, 24000, 48000, 72000, 96000, 120000, 144000, 168000}
	if len(got) != len(want) {
		t.Fatalf("onsets = %v, want %d hits", got, len(want))
	}
	for i := range want {
		// The fade-in starts from silence, so the first audible frame trails by one.
		if d := got[i] - want[i]; d < 0 || d > 2 {
			t.Fatalf("hit %d at frame %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRenderKitShortScheduleAheadStaysOnGrid(t *testing.T) {
	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "kick.wav"))
	// At 90 BPM a beat is 32000 frames, which no 25ms block boundary divides.
	kit := &Kit{
		Tempo:  90,
		Tracks: []KitTrack{{ID: "kick", Sample: filepath.Join(dir, "kick.wav"), Row: "x...x...x...x..."}},
	}
	out, err := RenderKit(context.Background(), kit, renderRate, 4.0, WithScheduleAhead(0.005))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	got := onsets(out, 1000)
	want := []int{0, 32000, 64000, 96000, 128000, 160000}
	if len(got) != len(want) {
		t.Fatalf("onsets = %v, want %d hits", got, len(want))
	}
	for i := range want {
		if d := got[i] - want[i]; d < 0 || d > 2 {
			t.Fatalf("hit %d at frame %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRenderKitWithoutSamplesIsSilent(t *testing.T) {
	kit := &Kit{Tracks: []KitTrack{{ID: "kick", Row: "xxxxxxxxxxxxxxxx"}}}
	out, err := RenderKit(context.Background(), kit, renderRate, 0.5)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d = %f, want silence", i, v)
		}
	}
}

func TestRenderKitRejectsBadArgs(t *testing.T) {
	if _, err := RenderKit(context.Background(), nil, 0, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := RenderKit(context.Background(), nil, renderRate, 0); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestEncodeWAVFloat32LEHeader(t *testing.T) {
	wav := EncodeWAVFloat32LE([]float32{0.25, -0.25, 0.5, -0.5}, renderRate, 2)
	if len(wav) != 44+16 {
		t.Fatalf("len = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", wav[:40])
	}
	if f := binary.LittleEndian.Uint16(wav[20:]); f != 3 {
		t.Fatalf("format = %d, want IEEE float", f)
	}
	if v := math.Float32frombits(binary.LittleEndian.Uint32(wav[44+8:])); v != 0.5 {
		t.Fatalf("third sample = %f", v)
	}
}
