package samplebank

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	intlog "github.com/cbegin/stepseq-go/internal/log"
)

// maxConcurrentLoads bounds decoder goroutines in LoadAll.
const maxConcurrentLoads = 4

type LoaderOption func(*Loader)

// WithErrorHandler receives failures from LoadAsync. It runs on the loading goroutine.
func WithErrorHandler(fn func(track string, err error)) LoaderOption {
	return func(l *Loader) {
		l.onError = fn
	}
}

func WithLogger(lg *intlog.Logger) LoaderOption {
	return func(l *Loader) {
		if lg != nil {
			l.log = lg
		}
	}
}

// Loader decodes files into a Bank. A failed load leaves the previous buffer
// (or its absence) untouched.
type Loader struct {
	bank       *Bank
	sampleRate int
	log        *intlog.Logger
	onError    func(track string, err error)
	wg         sync.WaitGroup
}

func NewLoader(bank *Bank, sampleRate int, opts ...LoaderOption) *Loader {
	l := &Loader{bank: bank, sampleRate: sampleRate, log: intlog.Discard()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load decodes path and installs it for track.
func (l *Loader) Load(ctx context.Context, track, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open sample %s: %w", path, err)
	}
	defer f.Close()
	if err := l.LoadReader(ctx, track, f, format); err != nil {
		return fmt.Errorf("load %s for %q: %w", path, track, err)
	}
	return nil
}

// LoadReader decodes r and installs it for track. Cancelling ctx aborts the
// read and leaves the bank unchanged.
func (l *Loader) LoadReader(ctx context.Context, track string, r io.Reader, format Format) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf, err := Decode(&ctxReader{ctx: ctx, r: r}, format, l.sampleRate)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.bank.Put(track, buf)
	l.log.Infof("loaded %q: %d frames (%.3fs)", track, buf.Frames(), buf.Duration())
	return nil
}

// LoadAsync loads in the background and returns immediately. Failures go to
// the error handler and the log.
func (l *Loader) LoadAsync(ctx context.Context, track, path string) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.Load(ctx, track, path); err != nil {
			l.log.Errorf("sample load failed: %v", err)
			if l.onError != nil {
				l.onError(track, err)
			}
		}
	}()
}

// LoadReaderAsync decodes r in the background. If r is an io.Closer it is
// closed when decoding finishes.
func (l *Loader) LoadReaderAsync(ctx context.Context, track string, r io.Reader, format Format) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if c, ok := r.(io.Closer); ok {
			defer c.Close()
		}
		if err := l.LoadReader(ctx, track, r, format); err != nil {
			err = fmt.Errorf("load %s for %q: %w", format, track, err)
			l.log.Errorf("sample load failed: %v", err)
			if l.onError != nil {
				l.onError(track, err)
			}
		}
	}()
}

// LoadAll loads track→path pairs concurrently and returns the first error.
// Tracks that loaded before the failure stay loaded.
func (l *Loader) LoadAll(ctx context.Context, paths map[string]string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for track, path := range paths {
		g.Go(func() error {
			return l.Load(gctx, track, path)
		})
	}
	return g.Wait()
}

// Wait blocks until every LoadAsync and LoadReaderAsync call has finished.
func (l *Loader) Wait() { l.wg.Wait() }

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
