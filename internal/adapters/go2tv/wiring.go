// Package go2tv backs the route-based receiver channel with go2tv's
// DLNA/Chromecast renderer discovery.
package go2tv

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"go2tv.app/go2tv/v2/devices"

	"go2tv.app/uniremote/internal/adapters"
	"go2tv.app/uniremote/internal/domain"
)

const (
	RouteChannelName     = "route"
	defaultPollInterval  = 5 * time.Second
	defaultSearchSeconds = 1
)

// DeviceSource is the slice of go2tv's devices package the route channel needs.
type DeviceSource interface {
	StartChromecastDiscoveryLoop(ctx context.Context)
	LoadAllDevices(delaySeconds int) ([]devices.Device, error)
}

// Bundle wires the go2tv-backed adapters in one place.
type Bundle struct {
	Devices DeviceSource
	Route   *adapters.PollChannel
}

func NewBundle(loopCtx context.Context, interval time.Duration, logger *slog.Logger) Bundle {
	source := DiscoveryAdapter{}
	return Bundle{
		Devices: source,
		Route:   NewRouteChannel(source, loopCtx, interval, logger),
	}
}

type DiscoveryAdapter struct{}

func (DiscoveryAdapter) StartChromecastDiscoveryLoop(ctx context.Context) {
	devices.StartChromecastDiscoveryLoop(ctx)
}

func (DiscoveryAdapter) LoadAllDevices(delaySeconds int) ([]devices.Device, error) {
	return devices.LoadAllDevices(delaySeconds)
}

type routeSource struct {
	source  DeviceSource
	loopCtx context.Context
	once    sync.Once
}

// NewRouteChannel reports generic remote-playback renderers as receivers.
// The Chromecast mDNS loop is started once and lives as long as loopCtx.
func NewRouteChannel(source DeviceSource, loopCtx context.Context, interval time.Duration, logger *slog.Logger) *adapters.PollChannel {
	if loopCtx == nil {
		loopCtx = context.Background()
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	rs := &routeSource{source: source, loopCtx: loopCtx}
	return adapters.NewPollChannel(RouteChannelName, interval, rs.snapshot, logger)
}

func (r *routeSource) snapshot(ctx context.Context) ([]domain.Receiver, error) {
	if r.source == nil {
		return nil, errors.New("route source is not configured")
	}
	r.once.Do(func() {
		r.source.StartChromecastDiscoveryLoop(r.loopCtx)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loaded, err := r.source.LoadAllDevices(defaultSearchSeconds)
	if err != nil {
		if errors.Is(err, devices.ErrNoDeviceAvailable) {
			return []domain.Receiver{}, nil
		}
		return nil, err
	}
	return receiversFromDevices(loaded), nil
}

func receiversFromDevices(loaded []devices.Device) []domain.Receiver {
	out := make([]domain.Receiver, 0, len(loaded))
	for _, raw := range loaded {
		if raw.IsAudioOnly {
			continue
		}
		addr := strings.TrimSpace(raw.Addr)
		if addr == "" {
			continue
		}
		out = append(out, domain.Receiver{
			ID:           routeID(raw.Type, addr),
			FriendlyName: strings.TrimSpace(raw.Name),
			Address:      hostOf(addr),
		})
	}
	return out
}

func routeID(kind, address string) string {
	canonical := strings.ToLower(strings.TrimSpace(kind)) + "|" + strings.ToLower(address)
	sum := sha1.Sum([]byte(canonical))
	return "route_" + hex.EncodeToString(sum[:8])
}

func hostOf(address string) string {
	parsed, err := url.Parse(address)
	if err != nil || parsed.Hostname() == "" {
		return address
	}
	return parsed.Hostname()
}

var _ DeviceSource = DiscoveryAdapter{}
