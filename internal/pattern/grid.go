// Package pattern stores which (track, step) pairs are armed.
package pattern

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Steps is the number of subdivisions in one pattern cycle.
const Steps = 16

var (
	ErrUnknownTrack = errors.New("pattern: unknown track")
	ErrStepRange    = errors.New("pattern: step out of range")
)

type Row [Steps]bool

// Grid is a tracks × 16 boolean matrix. Every read sees the latest write; there
// is no snapshotting, so edits during playback affect the next dispatch.
type Grid struct {
	mu     sync.RWMutex
	order  []string
	tracks map[string]*Row
}

func NewGrid(tracks ...string) *Grid {
	g := &Grid{tracks: make(map[string]*Row, len(tracks))}
	for _, id := range tracks {
		g.AddTrack(id)
	}
	return g
}

// AddTrack registers a track with all steps unarmed. Adding an existing track is a no-op.
func (g *Grid) AddTrack(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tracks[id]; ok {
		return
	}
	g.tracks[id] = &Row{}
	g.order = append(g.order, id)
}

// Tracks returns track identifiers in registration order.
func (g *Grid) Tracks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Armed reports whether track sounds at step. Unknown tracks and out of range
// steps are never armed.
func (g *Grid) Armed(track string, step int) bool {
	if step < 0 || step >= Steps {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	row, ok := g.tracks[track]
	return ok && row[step]
}

// Toggle flips one cell and returns its new value.
func (g *Grid) Toggle(track string, step int) (bool, error) {
	if step < 0 || step >= Steps {
		return false, fmt.Errorf("%w: %d", ErrStepRange, step)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	row, ok := g.tracks[track]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	row[step] = !row[step]
	return row[step], nil
}

func (g *Grid) Set(track string, step int, armed bool) error {
	if step < 0 || step >= Steps {
		return fmt.Errorf("%w: %d", ErrStepRange, step)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	row, ok := g.tracks[track]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	row[step] = armed
	return nil
}

// SetRow replaces a whole track row.
func (g *Grid) SetRow(track string, r Row) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	row, ok := g.tracks[track]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	*row = r
	return nil
}

// Row returns a copy of a track row.
func (g *Grid) Row(track string) (Row, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	row, ok := g.tracks[track]
	if !ok {
		return Row{}, false
	}
	return *row, true
}

// Clear unarms every step of every track.
func (g *Grid) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, row := range g.tracks {
		*row = Row{}
	}
}

// ParseRow reads step notation such as "x...x...x...x...". 'x', 'X', '1' and
// '*' arm a step; '.', '-', '_' and '0' leave it unarmed. Spaces and '|' are
// ignored so rows can be grouped by beat.
func ParseRow(s string) (Row, error) {
	var r Row
	n := 0
	for _, c := range s {
		switch c {
		case ' ', '\t', '|':
			continue
		case 'x', 'X', '1', '*':
			if n < Steps {
				r[n] = true
			}
		case '.', '-', '_', '0':
		default:
			return Row{}, fmt.Errorf("pattern: invalid step symbol %q", c)
		}
		n++
	}
	if n != Steps {
		return Row{}, fmt.Errorf("pattern: row has %d steps, want %d", n, Steps)
	}
	return r, nil
}

func (r Row) String() string {
	var b strings.Builder
	b.Grow(Steps)
	for _, on := range r {
		if on {
			b.WriteByte('x')
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
