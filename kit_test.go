package stepseq

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadKitResolvesRelativeSamples(t *testing.T) {
	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "kick.wav"))
	kitPath := filepath.Join(dir, "kit.json")
	data := `{"tempo": 96, "tracks": [
		{"id": "kick", "sample": "kick.wav", "row": "x...x...x...x..."},
		{"id": "snare", "row": "....x.......x..."}
	]}`
	if err := os.WriteFile(kitPath, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	kit, err := LoadKit(kitPath)
	if err != nil {
		t.Fatalf("load kit: %v", err)
	}
	if kit.Tracks[0].Sample != filepath.Join(dir, "kick.wav") {
		t.Fatalf("sample path = %q", kit.Tracks[0].Sample)
	}

	h := newHarness(t, 0, WithTracks())
	if err := h.engine.ApplyKit(context.Background(), kit); err != nil {
		t.Fatalf("apply kit: %v", err)
	}
	if h.engine.Tempo() != 96 {
		t.Fatalf("tempo = %v", h.engine.Tempo())
	}
	if !h.engine.SampleLoaded("kick") || h.engine.SampleLoaded("snare") {
		t.Fatal("only kick should have a sample")
	}
	if !h.engine.Armed("snare", 4) || h.engine.Armed("snare", 5) {
		t.Fatal("snare row not applied")
	}
	if got := h.engine.Tracks(); len(got) != 2 || got[0] != "kick" || got[1] != "snare" {
		t.Fatalf("tracks = %v", got)
	}
}

func TestKitValidate(t *testing.T) {
	cases := []struct {
		name string
		kit  Kit
	}{
		{name: "empty", kit: Kit{}},
		{name: "missing id", kit: Kit{Tracks: []KitTrack{{ID: " "}}}},
		{name: "duplicate", kit: Kit{Tracks: []KitTrack{{ID: "kick"}, {ID: "kick"}}}},
		{name: "negative tempo", kit: Kit{Tempo: -1, Tracks: []KitTrack{{ID: "kick"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.kit.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestApplyKitRejectsBadRow(t *testing.T) {
	h := newHarness(t, 0)
	kit := &Kit{Tracks: []KitTrack{{ID: "kick", Row: "x..."}}}
	if err := h.engine.ApplyKit(context.Background(), kit); err == nil {
		t.Fatal("expected row parse error")
	}
}
