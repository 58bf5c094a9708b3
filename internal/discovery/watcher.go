package discovery

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/koron/go-ssdp"

	"go2tv.app/uniremote/internal/domain"
)

type monitor interface {
	Start() error
	Close() error
}

var newMonitor = func(alive ssdp.AliveHandler, bye ssdp.ByeHandler) monitor {
	return &ssdp.Monitor{Alive: alive, Bye: bye}
}

// Watcher listens for roku:ecp NOTIFY traffic so devices that power on or
// leave between scans are reported without a new M-SEARCH.
type Watcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	mon     monitor
	known   map[string]domain.RokuDevice
	onFound func(domain.RokuDevice)
	onLost  func(domain.RokuDevice)
}

func NewWatcher(logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{logger: logger, known: map[string]domain.RokuDevice{}}
}

// Start begins monitoring. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(onFound, onLost func(domain.RokuDevice)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mon != nil {
		return nil
	}
	mon := newMonitor(w.handleAlive, w.handleBye)
	if err := mon.Start(); err != nil {
		return err
	}
	w.mon = mon
	w.onFound = onFound
	w.onLost = onLost
	w.logger.Info("ssdp_watch_start", slog.String("nt", SearchTarget))
	return nil
}

// Stop is safe to call repeatedly and before Start.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	mon := w.mon
	w.mon = nil
	w.onFound = nil
	w.onLost = nil
	w.known = map[string]domain.RokuDevice{}
	w.mu.Unlock()

	if mon == nil {
		return nil
	}
	w.logger.Info("ssdp_watch_stop")
	return mon.Close()
}

// Known returns the devices currently announced alive.
func (w *Watcher) Known() []domain.RokuDevice {
	w.mu.Lock()
	out := make([]domain.RokuDevice, 0, len(w.known))
	for _, dev := range w.known {
		out = append(out, dev)
	}
	w.mu.Unlock()
	sortDevices(out)
	return out
}

func (w *Watcher) handleAlive(m *ssdp.AliveMessage) {
	if m == nil || !isRokuNT(m.Type) {
		return
	}
	// byebye carries only the USN, so a device without one could never be
	// reported lost.
	key := strings.TrimSpace(m.USN)
	if key == "" {
		w.logger.Debug("ssdp_roku_alive_without_usn", slog.String("location", m.Location))
		return
	}
	location := strings.TrimSpace(m.Location)
	ip := locationIP.FindStringSubmatch(location)
	if ip == nil {
		return
	}
	dev := domain.RokuDevice{Address: ip[1], Location: location}

	w.mu.Lock()
	prev, seen := w.known[key]
	if w.mon == nil || (seen && prev.Location == location) {
		w.mu.Unlock()
		return
	}
	w.known[key] = dev
	cb := w.onFound
	w.mu.Unlock()

	w.logger.Debug("ssdp_roku_alive", slog.String("usn", m.USN), slog.String("location", location))
	if cb != nil {
		cb(dev)
	}
}

func (w *Watcher) handleBye(m *ssdp.ByeMessage) {
	if m == nil || !isRokuNT(m.Type) {
		return
	}
	usn := strings.TrimSpace(m.USN)
	if usn == "" {
		return
	}
	w.mu.Lock()
	dev, found := w.known[usn]
	delete(w.known, usn)
	cb := w.onLost
	w.mu.Unlock()

	if !found {
		return
	}
	w.logger.Debug("ssdp_roku_byebye", slog.String("usn", usn))
	if cb != nil {
		cb(dev)
	}
}

func isRokuNT(nt string) bool {
	return strings.EqualFold(strings.TrimSpace(nt), SearchTarget)
}
