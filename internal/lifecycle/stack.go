// Package lifecycle holds process signal sets and ordered shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Stack closes resources in reverse registration order.
type Stack struct {
	logger *slog.Logger

	mu      sync.Mutex
	closers []closer
	closed  bool
}

func NewStack(logger *slog.Logger) *Stack {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Stack{logger: logger}
}

// Push registers fn. It runs immediately when the stack is already closed.
func (s *Stack) Push(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	if !s.closed {
		s.closers = append(s.closers, closer{name: name, fn: fn})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if err := fn(context.Background()); err != nil {
		s.logger.Warn("shutdown_step_failed", slog.String("step", name), slog.String("error", err.Error()))
	}
}

// PushFunc registers a step that cannot fail.
func (s *Stack) PushFunc(name string, fn func()) {
	s.Push(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Close runs every step once, even after a failure or when ctx expires,
// and returns the joined errors.
func (s *Stack) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		started := time.Now()
		err := c.fn(ctx)
		attrs := []slog.Attr{
			slog.String("step", c.name),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			attrs = append(attrs, slog.String("error", err.Error()))
			s.logger.LogAttrs(ctx, slog.LevelWarn, "shutdown_step_failed", attrs...)
			continue
		}
		s.logger.LogAttrs(ctx, slog.LevelDebug, "shutdown_step", attrs...)
	}
	return errors.Join(errs...)
}
