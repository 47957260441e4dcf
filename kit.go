package stepseq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kit describes tracks, their samples and starting rows. It is the CLI's
// input format; the engine itself keeps no files.
type Kit struct {
	Tempo  float64    `json:"tempo,omitempty"`
	Tracks []KitTrack `json:"tracks"`
}

type KitTrack struct {
	ID     string `json:"id"`
	Sample string `json:"sample,omitempty"`
	Row    string `json:"row,omitempty"`
}

// LoadKit reads a JSON kit. Relative sample paths are resolved against the
// kit file's directory.
func LoadKit(path string) (*Kit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var k Kit
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse kit %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range k.Tracks {
		s := k.Tracks[i].Sample
		if s != "" && !filepath.IsAbs(s) {
			k.Tracks[i].Sample = filepath.Join(dir, s)
		}
	}
	if err := k.Validate(); err != nil {
		return nil, fmt.Errorf("kit %s: %w", path, err)
	}
	return &k, nil
}

func (k *Kit) Validate() error {
	if len(k.Tracks) == 0 {
		return errors.New("kit has no tracks")
	}
	seen := make(map[string]bool, len(k.Tracks))
	for i, tr := range k.Tracks {
		id := strings.TrimSpace(tr.ID)
		if id == "" {
			return fmt.Errorf("track %d has no id", i)
		}
		if seen[id] {
			return fmt.Errorf("duplicate track id %q", id)
		}
		seen[id] = true
	}
	if k.Tempo < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTempo, k.Tempo)
	}
	return nil
}

// ApplyKit adds the kit's tracks, sets their rows and tempo, and loads every
// sample before returning.
func (e *Engine) ApplyKit(ctx context.Context, k *Kit) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if k.Tempo > 0 {
		if _, err := e.SetTempo(k.Tempo); err != nil {
			return err
		}
	}
	paths := make(map[string]string)
	for _, tr := range k.Tracks {
		id := strings.TrimSpace(tr.ID)
		e.AddTrack(id)
		if tr.Row != "" {
			if err := e.SetRow(id, tr.Row); err != nil {
				return fmt.Errorf("track %q: %w", id, err)
			}
		}
		if tr.Sample != "" {
			paths[id] = tr.Sample
		}
	}
	return e.LoadSamples(ctx, paths)
}
