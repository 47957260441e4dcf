// Package periodic runs a step function on a fixed interval until cancelled.
package periodic

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrInvalidInterval = errors.New("periodic: interval must be positive")

// Canceler stops a running task.
type Canceler interface {
	Cancel()
}

// StartFunc arms a periodic task. Start satisfies it; tests substitute a manual driver.
type StartFunc func(interval time.Duration, fn func() bool) (Canceler, error)

// Task calls fn every interval on its own goroutine. fn returning false ends the
// chain, the same as Cancel.
type Task struct {
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// Start arms fn. The first call happens one interval from now.
func Start(interval time.Duration, fn func() bool) (*Task, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}
	if fn == nil {
		return nil, errors.New("periodic: nil step function")
	}
	t := &Task{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.run(interval, fn)
	return t, nil
}

// Arm adapts Start to StartFunc.
func Arm(interval time.Duration, fn func() bool) (Canceler, error) {
	t, err := Start(interval, fn)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Task) run(interval time.Duration, fn func() bool) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.quit:
			return
		case <-ticker.C:
		}
		// Cancel may have raced the tick.
		select {
		case <-t.quit:
			return
		default:
		}
		if !fn() {
			return
		}
	}
}

// Cancel stops the task. When it returns, fn is not running and will not run
// again. It must not be called from inside fn; return false there instead.
func (t *Task) Cancel() {
	t.once.Do(func() { close(t.quit) })
	<-t.done
}

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} { return t.done }
