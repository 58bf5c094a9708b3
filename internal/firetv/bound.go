package firetv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"go2tv.app/uniremote/internal/adapters"
	"go2tv.app/uniremote/internal/buildinfo"
	"go2tv.app/uniremote/internal/domain"
)

// alternateServiceIDs are tried in order after the requested id. Some SDK
// builds only match one of these; the empty id and the single-argument
// start come last.
var alternateServiceIDs = []string{
	"com.amazon.whisperplay.fling.media",
	"com.amazon.whisperplay",
	"*",
	"",
}

type boundBinding struct {
	sdk     adapters.FlingSDK
	route   adapters.ReceiverChannel
	install adapters.ReceiverChannel
	lock    adapters.MulticastLock
	logger  *slog.Logger

	// discoveryMu orders start and stop; mu guards the fields below.
	discoveryMu sync.Mutex
	mu          sync.Mutex
	controller  adapters.DiscoveryController
	channels    []adapters.ReceiverChannel
	cancel      context.CancelFunc
	players     map[string]adapters.RemoteMediaPlayer

	// targetID outlives the player it resolves to, so a receiver selected
	// before discovery is picked up once it is announced.
	targetID string
	target   adapters.RemoteMediaPlayer
}

func newBoundBinding(sdk adapters.FlingSDK, route, install adapters.ReceiverChannel, lock adapters.MulticastLock, logger *slog.Logger) *boundBinding {
	return &boundBinding{
		sdk:     sdk,
		route:   route,
		install: install,
		lock:    lock,
		logger:  logger,
		players: map[string]adapters.RemoteMediaPlayer{},
	}
}

func (b *boundBinding) defaultServiceID() string {
	var sid string
	_ = safeCall(func() error {
		sid = b.sdk.DefaultServiceID()
		return nil
	})
	return sid
}

// vendorSource names the SDK controller among discovery sources.
const vendorSource = "vendor"

func (b *boundBinding) startDiscovery(ctx context.Context, serviceID string, onFound, onLost sourceFunc) {
	b.discoveryMu.Lock()
	defer b.discoveryMu.Unlock()

	if b.lock != nil {
		if err := b.lock.Acquire(); err != nil {
			b.logger.Warn("firetv_multicast_lock_failed", slog.String("error", err.Error()))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	listener := &playerListener{binding: b, onFound: fromSource(vendorSource, onFound), onLost: fromSource(vendorSource, onLost)}

	var (
		g          errgroup.Group
		controller adapters.DiscoveryController
		startedMu  sync.Mutex
		started    []adapters.ReceiverChannel
	)
	g.Go(func() error {
		controller = b.startController(serviceID, listener)
		return nil
	})
	for _, ch := range []adapters.ReceiverChannel{b.route, b.install} {
		if ch == nil {
			continue
		}
		g.Go(func() error {
			name := channelName(ch)
			found, lost := fromSource(name, onFound), fromSource(name, onLost)
			if err := safeCall(func() error { return ch.Start(runCtx, found, lost) }); err != nil {
				b.logger.Info("firetv_channel_unavailable", slog.String("channel", name), slog.String("error", err.Error()))
				return nil
			}
			b.logger.Debug("firetv_channel_started", slog.String("channel", name))
			startedMu.Lock()
			started = append(started, ch)
			startedMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	b.mu.Lock()
	b.controller = controller
	b.channels = started
	b.cancel = cancel
	b.mu.Unlock()
}

// startController walks the service id fallback list, then the legacy
// single-argument start. It returns nil when nothing started.
func (b *boundBinding) startController(serviceID string, listener adapters.PlayerListener) adapters.DiscoveryController {
	var controller adapters.DiscoveryController
	err := safeCall(func() error {
		var err error
		controller, err = b.sdk.NewDiscoveryController()
		return err
	})
	if err != nil || controller == nil {
		if err == nil {
			err = fmt.Errorf("sdk returned no discovery controller")
		}
		b.logger.Warn("firetv_controller_unavailable", slog.String("error", err.Error()))
		return nil
	}

	for _, sid := range serviceIDCandidates(serviceID) {
		err := safeCall(func() error { return controller.Start(sid, listener) })
		if err == nil {
			b.logger.Info("firetv_controller_started", slog.String("service_id", sid))
			return controller
		}
		b.logger.Debug("firetv_controller_start_failed", slog.String("service_id", sid), slog.String("error", err.Error()))
	}

	if legacy, ok := controller.(adapters.LegacyDiscoveryController); ok {
		err := safeCall(func() error { return legacy.StartLegacy(listener) })
		if err == nil {
			b.logger.Info("firetv_controller_started", slog.String("service_id", "legacy"))
			return controller
		}
		b.logger.Debug("firetv_controller_start_failed", slog.String("service_id", "legacy"), slog.String("error", err.Error()))
	}
	b.logger.Warn("firetv_controller_start_exhausted", slog.String("service_id", serviceID))
	return nil
}

func (b *boundBinding) stopDiscovery() {
	b.discoveryMu.Lock()
	defer b.discoveryMu.Unlock()

	b.mu.Lock()
	controller, channels, cancel := b.controller, b.channels, b.cancel
	b.controller, b.channels, b.cancel = nil, nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if controller != nil {
		if err := safeCall(controller.Stop); err != nil {
			b.logger.Warn("firetv_controller_stop_failed", slog.String("error", err.Error()))
		}
	}
	for _, ch := range channels {
		if err := safeCall(ch.Stop); err != nil {
			b.logger.Warn("firetv_channel_stop_failed", slog.String("channel", channelName(ch)), slog.String("error", err.Error()))
		}
	}
	if b.lock != nil {
		if err := b.lock.Release(); err != nil {
			b.logger.Warn("firetv_multicast_release_failed", slog.String("error", err.Error()))
		}
	}
	if cancel != nil {
		b.logger.Info("firetv_discovery_stop")
	}
}

func (b *boundBinding) connect(r domain.Receiver) {
	b.mu.Lock()
	player := b.players[r.ID]
	b.targetID = r.ID
	b.target = player
	b.mu.Unlock()
	if player == nil {
		b.logger.Info("firetv_target_not_discovered", slog.String("id", r.ID))
	}
}

func (b *boundBinding) currentTarget() adapters.RemoteMediaPlayer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.target
}

func (b *boundBinding) play(url string) {
	target := b.currentTarget()
	if target == nil {
		b.logger.Debug("firetv_no_target", slog.String("action", "play"))
		return
	}
	if url != "" {
		err := safeCall(func() error {
			return target.SetMediaSource(url, buildinfo.ProductName, true, false)
		})
		if err != nil {
			b.logger.Warn("firetv_set_media_source_failed", slog.String("error", err.Error()))
			return
		}
	}
	b.mediaCall("play", target.Play)
}

func (b *boundBinding) pause() {
	if target := b.currentTarget(); target != nil {
		b.mediaCall("pause", target.Pause)
	}
}

func (b *boundBinding) stop() {
	if target := b.currentTarget(); target != nil {
		b.mediaCall("stop", target.Stop)
	}
}

func (b *boundBinding) mediaCall(action string, call func() error) {
	if err := safeCall(call); err != nil {
		b.logger.Warn("firetv_media_call_failed", slog.String("action", action), slog.String("error", err.Error()))
	}
}

type playerListener struct {
	binding *boundBinding
	onFound func(domain.Receiver)
	onLost  func(domain.Receiver)
}

func (l *playerListener) PlayerDiscovered(player adapters.RemoteMediaPlayer) {
	r, ok := receiverOf(player)
	if !ok {
		return
	}
	l.binding.mu.Lock()
	l.binding.players[r.ID] = player
	retarget := r.ID == l.binding.targetID
	if retarget {
		l.binding.target = player
	}
	l.binding.mu.Unlock()
	if retarget {
		l.binding.logger.Info("firetv_target_resolved", slog.String("id", r.ID))
	}
	if l.onFound != nil {
		l.onFound(r)
	}
}

func (l *playerListener) PlayerLost(player adapters.RemoteMediaPlayer) {
	r, ok := receiverOf(player)
	if !ok {
		return
	}
	l.binding.mu.Lock()
	delete(l.binding.players, r.ID)
	if r.ID == l.binding.targetID {
		l.binding.target = nil
	}
	l.binding.mu.Unlock()
	if l.onLost != nil {
		l.onLost(r)
	}
}

func (l *playerListener) DiscoveryFailure() {
	l.binding.logger.Warn("firetv_discovery_failure")
}

func receiverOf(player adapters.RemoteMediaPlayer) (domain.Receiver, bool) {
	if player == nil {
		return domain.Receiver{}, false
	}
	var r domain.Receiver
	err := safeCall(func() error {
		r = domain.Receiver{ID: player.UniqueIdentifier(), FriendlyName: player.Name()}
		return nil
	})
	if err != nil || strings.TrimSpace(r.ID) == "" {
		return domain.Receiver{}, false
	}
	return r, true
}

func fromSource(source string, fn sourceFunc) func(domain.Receiver) {
	return func(r domain.Receiver) { fn(source, r) }
}

func serviceIDCandidates(primary string) []string {
	out := make([]string, 0, len(alternateServiceIDs)+1)
	seen := map[string]bool{}
	for _, sid := range append([]string{strings.TrimSpace(primary)}, alternateServiceIDs...) {
		if seen[sid] {
			continue
		}
		seen[sid] = true
		out = append(out, sid)
	}
	return out
}

func channelName(ch adapters.ReceiverChannel) string {
	var name string
	_ = safeCall(func() error {
		name = ch.Name()
		return nil
	})
	return name
}

// safeCall turns a vendor panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vendor panic: %v", r)
		}
	}()
	return fn()
}
