// Package clock defines the audio-rate time base the scheduler treats as ground truth.
package clock

import (
	"errors"
	"sync"
)

// ErrUnavailable is returned by a Source that cannot report time.
var ErrUnavailable = errors.New("clock: source unavailable")

// Source is a monotonic clock in seconds derived from the audio device.
type Source interface {
	// Now returns the current rendering time in seconds.
	Now() (float64, error)
	// Resume unblocks output if the device was suspended.
	Resume() error
}

// Manual is a Source whose time only moves when told to. Offline rendering and
// tests drive it directly.
type Manual struct {
	mu        sync.Mutex
	now       float64
	nowErr    error
	resumeErr error
	resumes   int
}

func NewManual(start float64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nowErr != nil {
		return 0, m.nowErr
	}
	return m.now, nil
}

func (m *Manual) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	return m.resumeErr
}

// Set moves the clock to t. Moving backwards is ignored.
func (m *Manual) Set(t float64) {
	m.mu.Lock()
	if t > m.now {
		m.now = t
	}
	m.mu.Unlock()
}

// Advance moves the clock forward by d seconds.
func (m *Manual) Advance(d float64) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}

// FailNow makes subsequent Now calls return err. Pass nil to recover.
func (m *Manual) FailNow(err error) {
	m.mu.Lock()
	m.nowErr = err
	m.mu.Unlock()
}

// FailResume makes subsequent Resume calls return err. Pass nil to recover.
func (m *Manual) FailResume(err error) {
	m.mu.Lock()
	m.resumeErr = err
	m.mu.Unlock()
}

// Resumes reports how many times Resume was called.
func (m *Manual) Resumes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumes
}
