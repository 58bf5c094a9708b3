// Package firetv is the Fire TV receiver adapter. It binds once, at
// construction, to a Fling SDK binding when one can be found and to a
// no-op binding otherwise.
//
// Media calls are best effort: vendor failures are logged and never
// returned. Playback is a local mirror updated by this package's own
// calls, not a report from the device.
package firetv

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go2tv.app/uniremote/internal/adapters"
	"go2tv.app/uniremote/internal/adapters/fling"
	"go2tv.app/uniremote/internal/domain"
)

var probe = fling.Probe

type Options struct {
	// SDK skips the probe when set.
	SDK        adapters.FlingSDK
	PluginPath string
	// Route and Install are optional auxiliary receiver channels.
	Route   adapters.ReceiverChannel
	Install adapters.ReceiverChannel
	Lock    adapters.MulticastLock
	Logger  *slog.Logger
}

// sourceFunc is a discovery callback tagged with the channel that saw the
// receiver.
type sourceFunc func(source string, r domain.Receiver)

// binding is what the bound and no-op implementations share.
type binding interface {
	startDiscovery(ctx context.Context, serviceID string, onFound, onLost sourceFunc)
	stopDiscovery()
	connect(r domain.Receiver)
	play(url string)
	pause()
	stop()
	defaultServiceID() string
}

type Client struct {
	impl      binding
	available bool
	logger    *slog.Logger

	mu        sync.Mutex
	state     domain.PlaybackState
	target    *domain.Receiver
	receivers map[string]domain.Receiver
	seenBy    map[string]map[string]bool
	subs      map[int]chan domain.PlaybackState
	nextSub   int
}

func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		logger:    logger,
		state:     domain.PlaybackIdle,
		receivers: map[string]domain.Receiver{},
		seenBy:    map[string]map[string]bool{},
		subs:      map[int]chan domain.PlaybackState{},
	}

	sdk := opts.SDK
	if sdk == nil {
		found, err := probe(opts.PluginPath)
		if err != nil {
			logger.Info("firetv_sdk_unavailable", slog.String("reason", err.Error()))
		}
		sdk = found
	}
	if sdk == nil {
		c.impl = noopBinding{}
		return c
	}
	c.impl = newBoundBinding(sdk, opts.Route, opts.Install, opts.Lock, logger)
	c.available = true
	logger.Info("firetv_sdk_bound")
	return c
}

// Available reports whether a real SDK binding is active.
func (c *Client) Available() bool { return c.available }

// DefaultServiceID is the SDK's default player service id, else the
// well-known vendor constant.
func (c *Client) DefaultServiceID() string {
	if sid := strings.TrimSpace(c.impl.defaultServiceID()); sid != "" {
		return sid
	}
	return domain.DefaultFlingServiceID
}

// StartDiscovery reports receivers from every available channel through
// one callback stream, deduplicated by receiver id. A receiver is lost only
// once every channel that saw it has dropped it. A running discovery is
// stopped first.
func (c *Client) StartDiscovery(ctx context.Context, serviceID string, onFound, onLost func(domain.Receiver)) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.impl.stopDiscovery()

	c.mu.Lock()
	c.receivers = map[string]domain.Receiver{}
	c.seenBy = map[string]map[string]bool{}
	c.mu.Unlock()

	sid := strings.TrimSpace(serviceID)
	if sid == "" {
		sid = c.DefaultServiceID()
	}
	c.logger.Info("firetv_discovery_start", slog.String("service_id", sid), slog.Bool("available", c.available))
	c.impl.startDiscovery(ctx, sid, c.foundFunc(onFound), c.lostFunc(onLost))
}

// StopDiscovery is safe to call at any time.
func (c *Client) StopDiscovery() {
	c.impl.stopDiscovery()
}

// Receivers returns the receivers currently known from discovery.
func (c *Client) Receivers() []domain.Receiver {
	c.mu.Lock()
	out := make([]domain.Receiver, 0, len(c.receivers))
	for _, r := range c.receivers {
		out = append(out, r)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].FriendlyName), strings.ToLower(out[j].FriendlyName)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Connect selects r as the media target and resets playback to idle.
func (c *Client) Connect(r domain.Receiver) {
	c.impl.connect(r)
	c.mu.Lock()
	target := r
	c.target = &target
	c.mu.Unlock()
	c.setState(domain.PlaybackIdle)
}

// Target returns the connected receiver.
func (c *Client) Target() (domain.Receiver, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == nil {
		return domain.Receiver{}, false
	}
	return *c.target, true
}

// Play loads url when it is not blank, then resumes playback.
func (c *Client) Play(url string) {
	c.impl.play(strings.TrimSpace(url))
	c.setState(domain.PlaybackPlaying)
}

func (c *Client) Pause() {
	c.impl.pause()
	c.setState(domain.PlaybackPaused)
}

func (c *Client) Stop() {
	c.impl.stop()
	c.setState(domain.PlaybackIdle)
}

// Playback returns the current local playback mirror.
func (c *Client) Playback() domain.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel holding the latest playback state. Slow
// readers only ever see the newest value. The returned func unsubscribes
// and closes the channel.
func (c *Client) Subscribe() (<-chan domain.PlaybackState, func()) {
	ch := make(chan domain.PlaybackState, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Client) setState(state domain.PlaybackState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != state {
		c.logger.Debug("firetv_playback", slog.String("from", string(c.state)), slog.String("to", string(state)))
	}
	c.state = state
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

func (c *Client) foundFunc(onFound func(domain.Receiver)) sourceFunc {
	return func(source string, r domain.Receiver) {
		if strings.TrimSpace(r.ID) == "" {
			return
		}
		c.mu.Lock()
		_, known := c.receivers[r.ID]
		c.receivers[r.ID] = r
		if c.seenBy[r.ID] == nil {
			c.seenBy[r.ID] = map[string]bool{}
		}
		c.seenBy[r.ID][source] = true
		c.mu.Unlock()
		if known {
			return
		}
		c.logger.Info("firetv_receiver_found", slog.String("id", r.ID), slog.String("name", r.FriendlyName), slog.String("source", source))
		if onFound != nil {
			onFound(r)
		}
	}
}

func (c *Client) lostFunc(onLost func(domain.Receiver)) sourceFunc {
	return func(source string, r domain.Receiver) {
		c.mu.Lock()
		prev, known := c.receivers[r.ID]
		sources := c.seenBy[r.ID]
		delete(sources, source)
		if known && len(sources) > 0 {
			c.mu.Unlock()
			c.logger.Debug("firetv_receiver_source_lost", slog.String("id", r.ID), slog.String("source", source))
			return
		}
		delete(c.receivers, r.ID)
		delete(c.seenBy, r.ID)
		c.mu.Unlock()
		if !known {
			return
		}
		c.logger.Info("firetv_receiver_lost", slog.String("id", r.ID), slog.String("source", source))
		if onLost != nil {
			onLost(prev)
		}
	}
}

type noopBinding struct{}

func (noopBinding) startDiscovery(context.Context, string, sourceFunc, sourceFunc) {
}
func (noopBinding) stopDiscovery()           {}
func (noopBinding) connect(domain.Receiver)  {}
func (noopBinding) play(string)              {}
func (noopBinding) pause()                   {}
func (noopBinding) stop()                    {}
func (noopBinding) defaultServiceID() string { return "" }
