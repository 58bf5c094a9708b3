package firetv

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"go2tv.app/uniremote/internal/adapters"
	"go2tv.app/uniremote/internal/adapters/fling"
	"go2tv.app/uniremote/internal/domain"
)

type fakePlayer struct {
	id, name string

	mu        sync.Mutex
	calls     []string
	sourceURL string
	title     string
	playErr   error
}

func (p *fakePlayer) UniqueIdentifier() string { return p.id }
func (p *fakePlayer) Name() string             { return p.name }

func (p *fakePlayer) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePlayer) Play() error  { p.record("play"); return p.playErr }
func (p *fakePlayer) Pause() error { p.record("pause"); return nil }
func (p *fakePlayer) Stop() error  { p.record("stop"); return nil }

func (p *fakePlayer) SetMediaSource(url, title string, autoPlay, playInBackground bool) error {
	p.record("source")
	p.mu.Lock()
	p.sourceURL, p.title = url, title
	p.mu.Unlock()
	return nil
}

type fakeController struct {
	mu          sync.Mutex
	acceptSID   map[string]bool
	attempts    []string
	legacyCalls int
	legacyOK    bool
	stops       int
	announce    []adapters.RemoteMediaPlayer
	listener    adapters.PlayerListener
}

func (c *fakeController) Start(sid string, l adapters.PlayerListener) error {
	c.mu.Lock()
	c.attempts = append(c.attempts, sid)
	ok := c.acceptSID[sid]
	if ok {
		c.listener = l
	}
	c.mu.Unlock()
	if !ok {
		return errors.New("unknown service id")
	}
	for _, p := range c.announce {
		l.PlayerDiscovered(p)
	}
	return nil
}

func (c *fakeController) Stop() error {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	return nil
}

type legacyController struct {
	*fakeController
}

func (c legacyController) StartLegacy(l adapters.PlayerListener) error {
	c.mu.Lock()
	c.legacyCalls++
	ok := c.legacyOK
	c.mu.Unlock()
	if !ok {
		return errors.New("legacy start failed")
	}
	return nil
}

type fakeSDK struct {
	controller adapters.DiscoveryController
	defaultSID string
}

func (s *fakeSDK) NewDiscoveryController() (adapters.DiscoveryController, error) {
	if s.controller == nil {
		return nil, errors.New("no controller")
	}
	return s.controller, nil
}

func (s *fakeSDK) DefaultServiceID() string { return s.defaultSID }

type fakeLock struct {
	acquires, releases int
	held               bool
}

func (l *fakeLock) Acquire() error { l.acquires++; l.held = true; return nil }
func (l *fakeLock) Release() error {
	if l.held {
		l.releases++
	}
	l.held = false
	return nil
}
func (l *fakeLock) Held() bool { return l.held }

type fakeChannel struct {
	name     string
	startErr error
	emit     []domain.Receiver
	starts   int
	stops    int
	lost     func(domain.Receiver)
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Start(_ context.Context, onFound, onLost func(domain.Receiver)) error {
	c.starts++
	if c.startErr != nil {
		return c.startErr
	}
	c.lost = onLost
	for _, r := range c.emit {
		onFound(r)
	}
	return nil
}

func (c *fakeChannel) Stop() error { c.stops++; return nil }

type callbackLog struct {
	mu    sync.Mutex
	found []domain.Receiver
	lost  []domain.Receiver
}

func (l *callbackLog) onFound(r domain.Receiver) {
	l.mu.Lock()
	l.found = append(l.found, r)
	l.mu.Unlock()
}

func (l *callbackLog) onLost(r domain.Receiver) {
	l.mu.Lock()
	l.lost = append(l.lost, r)
	l.mu.Unlock()
}

func withProbe(t *testing.T, fn func(string) (adapters.FlingSDK, error)) {
	t.Helper()
	orig := probe
	t.Cleanup(func() { probe = orig })
	probe = fn
}

func TestProbeFailureBindsNoop(t *testing.T) {
	withProbe(t, func(string) (adapters.FlingSDK, error) { return nil, fling.ErrUnavailable })
	lock := &fakeLock{}
	route := &fakeChannel{name: "route", emit: []domain.Receiver{{ID: "r1"}}}
	client := New(Options{Lock: lock, Route: route})

	if client.Available() {
		t.Fatal("expected adapter to be unavailable")
	}
	log := &callbackLog{}
	client.StartDiscovery(context.Background(), "", log.onFound, log.onLost)
	client.Connect(domain.Receiver{ID: "tv"})
	client.Play("http://example.com/video.mp4")
	client.Pause()
	client.Stop()
	client.StopDiscovery()
	client.StopDiscovery()

	if len(log.found) != 0 || len(log.lost) != 0 {
		t.Fatalf("noop binding must never invoke callbacks: %+v", log)
	}
	if lock.acquires != 0 || route.starts != 0 {
		t.Fatalf("noop binding must not touch the network: lock=%d route=%d", lock.acquires, route.starts)
	}
	if client.DefaultServiceID() != domain.DefaultFlingServiceID {
		t.Fatalf("unexpected default sid %q", client.DefaultServiceID())
	}
}

func TestPlaybackStateMachine(t *testing.T) {
	bindings := map[string]Options{
		"noop":  {},
		"bound": {SDK: &fakeSDK{controller: &fakeController{}}},
	}
	for name, opts := range bindings {
		t.Run(name, func(t *testing.T) {
			withProbe(t, func(string) (adapters.FlingSDK, error) { return nil, fling.ErrUnavailable })
			client := New(opts)

			steps := []struct {
				do   func()
				want domain.PlaybackState
			}{
				{func() { client.Connect(domain.Receiver{ID: "tv-1"}) }, domain.PlaybackIdle},
				{func() { client.Play("") }, domain.PlaybackPlaying},
				{func() { client.Pause() }, domain.PlaybackPaused},
				{func() { client.Play("") }, domain.PlaybackPlaying},
				{func() { client.Stop() }, domain.PlaybackIdle},
			}
			for i, step := range steps {
				step.do()
				if got := client.Playback(); got != step.want {
					t.Fatalf("step %d: got %s want %s", i, got, step.want)
				}
			}
		})
	}
}

func TestServiceIDFallbackOrder(t *testing.T) {
	controller := &fakeController{}
	lc := legacyController{fakeController: controller}
	client := New(Options{SDK: &fakeSDK{controller: lc}})

	client.StartDiscovery(context.Background(), "amzn.thin.pl", nil, nil)

	want := []string{"amzn.thin.pl", "com.amazon.whisperplay.fling.media", "com.amazon.whisperplay", "*", ""}
	if !reflect.DeepEqual(controller.attempts, want) {
		t.Fatalf("attempts = %q, want %q", controller.attempts, want)
	}
	if controller.legacyCalls != 1 {
		t.Fatalf("expected legacy start as last resort, got %d", controller.legacyCalls)
	}
}

func TestServiceIDFallbackStopsAtFirstAccepted(t *testing.T) {
	controller := &fakeController{acceptSID: map[string]bool{"com.amazon.whisperplay": true}}
	client := New(Options{SDK: &fakeSDK{controller: controller}})

	client.StartDiscovery(context.Background(), "custom.sid", nil, nil)

	want := []string{"custom.sid", "com.amazon.whisperplay.fling.media", "com.amazon.whisperplay"}
	if !reflect.DeepEqual(controller.attempts, want) {
		t.Fatalf("attempts = %q, want %q", controller.attempts, want)
	}
}

func TestBlankServiceIDUsesSDKDefault(t *testing.T) {
	controller := &fakeController{acceptSID: map[string]bool{"sdk.default": true}}
	client := New(Options{SDK: &fakeSDK{controller: controller, defaultSID: "sdk.default"}})

	client.StartDiscovery(context.Background(), "  ", nil, nil)
	if len(controller.attempts) != 1 || controller.attempts[0] != "sdk.default" {
		t.Fatalf("expected sdk default sid first, got %q", controller.attempts)
	}
}

func TestDiscoveryMergesChannelsAndDeduplicates(t *testing.T) {
	player := &fakePlayer{id: "amzn1.tv", name: "Living Room"}
	controller := &fakeController{
		acceptSID: map[string]bool{"amzn.thin.pl": true},
		announce:  []adapters.RemoteMediaPlayer{player, player},
	}
	route := &fakeChannel{name: "route", emit: []domain.Receiver{{ID: "amzn1.tv", FriendlyName: "Living Room"}, {ID: "route_1", FriendlyName: "Bedroom"}}}
	install := &fakeChannel{name: "install", startErr: errors.New("mdns unavailable")}
	lock := &fakeLock{}
	client := New(Options{SDK: &fakeSDK{controller: controller}, Route: route, Install: install, Lock: lock})

	log := &callbackLog{}
	client.StartDiscovery(context.Background(), "amzn.thin.pl", log.onFound, log.onLost)

	if len(log.found) != 2 {
		t.Fatalf("expected two distinct receivers, got %+v", log.found)
	}
	if got := client.Receivers(); len(got) != 2 || got[0].FriendlyName != "Bedroom" {
		t.Fatalf("unexpected receiver list %+v", got)
	}
	if !lock.Held() {
		t.Fatal("expected multicast lock held during discovery")
	}

	client.StopDiscovery()
	client.StopDiscovery()
	if lock.Held() || lock.releases != 1 {
		t.Fatalf("expected lock released once, held=%v releases=%d", lock.Held(), lock.releases)
	}
	if controller.stops != 1 || route.stops != 1 || install.stops != 0 {
		t.Fatalf("unexpected teardown: controller=%d route=%d install=%d", controller.stops, route.stops, install.stops)
	}
}

func TestStopDiscoveryBeforeStart(t *testing.T) {
	lock := &fakeLock{}
	client := New(Options{SDK: &fakeSDK{}, Lock: lock})
	client.StopDiscovery()
	if lock.releases != 0 {
		t.Fatalf("unexpected release %d", lock.releases)
	}
}

func TestPlayWithURLSetsSourceThenPlays(t *testing.T) {
	player := &fakePlayer{id: "amzn1.tv", name: "Living Room"}
	controller := &fakeController{acceptSID: map[string]bool{"amzn.thin.pl": true}, announce: []adapters.RemoteMediaPlayer{player}}
	client := New(Options{SDK: &fakeSDK{controller: controller}})
	client.StartDiscovery(context.Background(), "amzn.thin.pl", nil, nil)

	client.Connect(domain.Receiver{ID: "amzn1.tv"})
	client.Play("http://192.168.1.5:8080/movie.mp4")
	client.Pause()
	client.Stop()

	want := []string{"source", "play", "pause", "stop"}
	if !reflect.DeepEqual(player.calls, want) {
		t.Fatalf("calls = %q, want %q", player.calls, want)
	}
	if player.sourceURL != "http://192.168.1.5:8080/movie.mp4" || player.title != "UniRemote" {
		t.Fatalf("unexpected media source %q %q", player.sourceURL, player.title)
	}
}

// Playback mirrors what was asked for, not what the receiver did: a failed
// vendor play still reports Playing.
func TestPlaybackIsOptimisticWhenVendorFails(t *testing.T) {
	player := &fakePlayer{id: "amzn1.tv", playErr: errors.New("receiver asleep")}
	controller := &fakeController{acceptSID: map[string]bool{"amzn.thin.pl": true}, announce: []adapters.RemoteMediaPlayer{player}}
	client := New(Options{SDK: &fakeSDK{controller: controller}})
	client.StartDiscovery(context.Background(), "", nil, nil)
	client.Connect(domain.Receiver{ID: "amzn1.tv"})

	client.Play("")
	if client.Playback() != domain.PlaybackPlaying {
		t.Fatalf("expected optimistic Playing, got %s", client.Playback())
	}
}

type panickyPlayer struct{ fakePlayer }

func (p *panickyPlayer) Pause() error { panic("vendor bug") }

func TestVendorPanicIsContained(t *testing.T) {
	player := &panickyPlayer{fakePlayer{id: "amzn1.tv"}}
	controller := &fakeController{acceptSID: map[string]bool{"amzn.thin.pl": true}, announce: []adapters.RemoteMediaPlayer{player}}
	client := New(Options{SDK: &fakeSDK{controller: controller}})
	client.StartDiscovery(context.Background(), "", nil, nil)
	client.Connect(domain.Receiver{ID: "amzn1.tv"})

	client.Pause()
	if client.Playback() != domain.PlaybackPaused {
		t.Fatalf("expected Paused, got %s", client.Playback())
	}
}

func TestSubscribeDeliversLatestState(t *testing.T) {
	client := New(Options{SDK: &fakeSDK{}})
	ch, cancel := client.Subscribe()
	defer cancel()

	if got := <-ch; got != domain.PlaybackIdle {
		t.Fatalf("expected initial idle, got %s", got)
	}
	client.Play("")
	client.Pause()
	if got := <-ch; got != domain.PlaybackPaused {
		t.Fatalf("expected latest state paused, got %s", got)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestTargetSelectedBeforeDiscoveryResolvesOnAnnounce(t *testing.T) {
	player := &fakePlayer{id: "amzn1.tv", name: "Living Room"}
	controller := &fakeController{acceptSID: map[string]bool{"amzn.thin.pl": true}, announce: []adapters.RemoteMediaPlayer{player}}
	client := New(Options{SDK: &fakeSDK{controller: controller}})

	client.Connect(domain.Receiver{ID: "amzn1.tv"})
	client.Play("")
	if len(player.calls) != 0 {
		t.Fatalf("expected no vendor calls before discovery, got %q", player.calls)
	}

	client.StartDiscovery(context.Background(), "amzn.thin.pl", nil, nil)
	client.StopDiscovery()
	client.Play("")
	client.Pause()

	want := []string{"play", "pause"}
	if !reflect.DeepEqual(player.calls, want) {
		t.Fatalf("calls = %q, want %q", player.calls, want)
	}
}

func TestLostTargetIsDroppedUntilAnnouncedAgain(t *testing.T) {
	player := &fakePlayer{id: "amzn1.tv"}
	b := newBoundBinding(&fakeSDK{}, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	listener := &playerListener{binding: b}

	listener.PlayerDiscovered(player)
	b.connect(domain.Receiver{ID: "amzn1.tv"})
	listener.PlayerLost(player)
	b.play("")
	if len(player.calls) != 0 {
		t.Fatalf("expected no calls to a lost player, got %q", player.calls)
	}

	listener.PlayerDiscovered(player)
	b.play("")
	if !reflect.DeepEqual(player.calls, []string{"play"}) {
		t.Fatalf("calls = %q, want [play]", player.calls)
	}
}

func TestReceiverStaysUntilEverySourceLosesIt(t *testing.T) {
	player := &fakePlayer{id: "amzn1.tv", name: "Living Room"}
	controller := &fakeController{acceptSID: map[string]bool{"amzn.thin.pl": true}, announce: []adapters.RemoteMediaPlayer{player}}
	route := &fakeChannel{name: "route", emit: []domain.Receiver{{ID: "amzn1.tv", FriendlyName: "Living Room"}}}
	client := New(Options{SDK: &fakeSDK{controller: controller}, Route: route})

	log := &callbackLog{}
	client.StartDiscovery(context.Background(), "amzn.thin.pl", log.onFound, log.onLost)

	route.lost(domain.Receiver{ID: "amzn1.tv"})
	if len(log.lost) != 0 || len(client.Receivers()) != 1 {
		t.Fatalf("receiver dropped while the vendor still sees it: lost=%+v receivers=%+v", log.lost, client.Receivers())
	}

	controller.listener.PlayerLost(player)
	if len(log.lost) != 1 || log.lost[0].FriendlyName != "Living Room" {
		t.Fatalf("expected one lost report, got %+v", log.lost)
	}
	if len(client.Receivers()) != 0 {
		t.Fatalf("expected no receivers, got %+v", client.Receivers())
	}
}
