package adapters

import (
	"context"

	"go2tv.app/uniremote/internal/domain"
)

// RemoteMediaPlayer is one Fire TV receiver as the vendor SDK exposes it.
type RemoteMediaPlayer interface {
	UniqueIdentifier() string
	Name() string
	Play() error
	Pause() error
	Stop() error
	SetMediaSource(url, title string, autoPlay, playInBackground bool) error
}

// PlayerListener receives vendor discovery events.
type PlayerListener interface {
	PlayerDiscovered(player RemoteMediaPlayer)
	PlayerLost(player RemoteMediaPlayer)
	DiscoveryFailure()
}

// DiscoveryController starts and stops vendor discovery for a service id.
type DiscoveryController interface {
	Start(serviceID string, listener PlayerListener) error
	Stop() error
}

// LegacyDiscoveryController is implemented by older SDK builds whose
// start call takes no service id.
type LegacyDiscoveryController interface {
	StartLegacy(listener PlayerListener) error
}

// FlingSDK is the entry point a vendor binding provides.
type FlingSDK interface {
	NewDiscoveryController() (DiscoveryController, error)
	// DefaultServiceID returns the SDK's own default player service id, or "".
	DefaultServiceID() string
}

// ReceiverChannel is an auxiliary receiver source that runs beside the
// vendor controller.
type ReceiverChannel interface {
	Name() string
	Start(ctx context.Context, onFound, onLost func(domain.Receiver)) error
	Stop() error
}

// MulticastLock is the exclusive permission to receive multicast traffic.
// It is not reference counted.
type MulticastLock interface {
	Acquire() error
	Release() error
	Held() bool
}
