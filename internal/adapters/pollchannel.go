package adapters

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go2tv.app/uniremote/internal/domain"
)

// SnapshotFunc returns every receiver currently visible to a source.
type SnapshotFunc func(ctx context.Context) ([]domain.Receiver, error)

// PollChannel turns repeated snapshots into found/lost events keyed by
// receiver id.
type PollChannel struct {
	name     string
	interval time.Duration
	snapshot SnapshotFunc
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPollChannel(name string, interval time.Duration, snapshot SnapshotFunc, logger *slog.Logger) *PollChannel {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PollChannel{name: name, interval: interval, snapshot: snapshot, logger: logger}
}

func (c *PollChannel) Name() string { return c.name }

// Start polls in the background until Stop or ctx is done.
func (c *PollChannel) Start(ctx context.Context, onFound, onLost func(domain.Receiver)) error {
	if c.snapshot == nil {
		return errors.New(c.name + ": no snapshot source")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New(c.name + ": already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done, onFound, onLost)
	return nil
}

// Stop waits for the poll loop to exit. Safe to call when not running.
func (c *PollChannel) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *PollChannel) run(ctx context.Context, done chan struct{}, onFound, onLost func(domain.Receiver)) {
	defer close(done)
	known := map[string]domain.Receiver{}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		current, err := c.snapshot(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Debug("receiver_poll_failed", slog.String("channel", c.name), slog.String("error", err.Error()))
		} else {
			known = diffReceivers(known, current, onFound, onLost)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func diffReceivers(known map[string]domain.Receiver, current []domain.Receiver, onFound, onLost func(domain.Receiver)) map[string]domain.Receiver {
	next := make(map[string]domain.Receiver, len(current))
	for _, r := range current {
		if r.ID == "" {
			continue
		}
		next[r.ID] = r
		if _, ok := known[r.ID]; !ok && onFound != nil {
			onFound(r)
		}
	}
	for id, r := range known {
		if _, ok := next[id]; !ok && onLost != nil {
			onLost(r)
		}
	}
	return next
}
