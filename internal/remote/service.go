package remote

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go2tv.app/uniremote/internal/domain"
)

// DefaultReceiverWindow is how long a receiver scan listens.
const DefaultReceiverWindow = 3 * time.Second

// SettingsStore is the persisted-settings surface a Service needs.
type SettingsStore interface {
	ReceiverSink
	Snapshot(ctx context.Context) (domain.Settings, error)
	SaveMode(ctx context.Context, mode domain.Mode) error
}

// RokuScanner finds Roku devices within budget.
type RokuScanner interface {
	Scan(ctx context.Context, budget time.Duration) ([]domain.RokuDevice, error)
}

// ReceiverScanner is the discovery half of the Fire TV adapter.
type ReceiverScanner interface {
	StartDiscovery(ctx context.Context, serviceID string, onFound, onLost func(domain.Receiver))
	StopDiscovery()
	Receivers() []domain.Receiver
}

// PlaybackFeed streams the Fire TV playback mirror.
type PlaybackFeed interface {
	Playback() domain.PlaybackState
	Subscribe() (<-chan domain.PlaybackState, func())
}

// Status is a point-in-time view of the Fire TV side.
type Status struct {
	Available bool                 `json:"available"`
	Receiver  *domain.Receiver     `json:"receiver,omitempty"`
	Playback  domain.PlaybackState `json:"playback"`
	Mode      domain.Mode          `json:"mode"`
	Enabled   bool                 `json:"actions_enabled"`
}

// Service binds the dispatcher to the settings store and the discovery
// engines. Each call reads a fresh settings snapshot.
type Service struct {
	store     SettingsStore
	dispatch  *Dispatcher
	roku      RokuScanner
	receivers ReceiverScanner
	firetv    FireTV
	feed      PlaybackFeed
	logger    *slog.Logger
}

type ServiceOptions struct {
	Store      SettingsStore
	Dispatcher *Dispatcher
	Roku       RokuScanner
	Receivers  ReceiverScanner
	FireTV     FireTV
	Feed       PlaybackFeed
	Logger     *slog.Logger
}

func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:     opts.Store,
		dispatch:  opts.Dispatcher,
		roku:      opts.Roku,
		receivers: opts.Receivers,
		firetv:    opts.FireTV,
		feed:      opts.Feed,
		logger:    logger,
	}
}

func (s *Service) Settings(ctx context.Context) (domain.Settings, error) {
	if s.store == nil {
		return domain.DefaultSettings(), nil
	}
	settings, err := s.store.Snapshot(ctx)
	if err != nil {
		return domain.Settings{}, internalError("Failed to read settings", err)
	}
	return settings, nil
}

// ScanRoku runs one SSDP scan. A zero budget uses the scanner default.
func (s *Service) ScanRoku(ctx context.Context, budget time.Duration) ([]domain.RokuDevice, error) {
	if s.roku == nil {
		return []domain.RokuDevice{}, nil
	}
	return s.roku.Scan(ctx, budget)
}

func (s *Service) ValidateRoku(ctx context.Context) (*domain.Outcome, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.dispatch.ValidateRoku(ctx, settings)
}

// SendCommand dispatches cmd. A blank mode uses the last saved mode; an
// explicit one is saved as the new last mode.
func (s *Service) SendCommand(ctx context.Context, cmd domain.Command, mode string) (*domain.Outcome, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	active := settings.LastMode
	if strings.TrimSpace(mode) != "" {
		active = domain.ParseMode(mode)
		if active != settings.LastMode && s.store != nil {
			if err := s.store.SaveMode(ctx, active); err != nil {
				s.logger.Warn("remote_save_mode_failed", slog.String("error", err.Error()))
			}
		}
	}
	if active == "" {
		active = domain.ModeRoku
	}
	return s.dispatch.Dispatch(ctx, cmd, active, settings)
}

func (s *Service) SendRokuKey(ctx context.Context, key string) (*domain.Outcome, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.dispatch.SendRokuKey(ctx, settings, key)
}

func (s *Service) Launch(ctx context.Context, appID string) (*domain.Outcome, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.dispatch.Launch(ctx, settings, domain.LaunchRequest{AppID: appID})
}

func (s *Service) LaunchFavorite(ctx context.Context, query string) (*domain.Outcome, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.dispatch.LaunchFavorite(ctx, settings, query)
}

func (s *Service) SwitchToFireTVInput(ctx context.Context) (*domain.Outcome, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.dispatch.SwitchToFireTVInput(ctx, settings)
}

// ScanReceivers listens for Fire TV receivers for window, or until ctx
// ends, and returns what was seen. A zero window uses DefaultReceiverWindow.
func (s *Service) ScanReceivers(ctx context.Context, window time.Duration) ([]domain.Receiver, error) {
	if s.receivers == nil {
		return []domain.Receiver{}, nil
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultReceiverWindow
	}

	scanCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	s.receivers.StartDiscovery(scanCtx, settings.FlingServiceID, nil, nil)
	<-scanCtx.Done()
	found := s.receivers.Receivers()
	s.receivers.StopDiscovery()

	s.logger.Info("remote_receiver_scan_done", slog.Int("found", len(found)), slog.Int64("window_ms", window.Milliseconds()))
	return found, nil
}

// SelectReceiver selects id, taking its name from the last scan when known.
func (s *Service) SelectReceiver(ctx context.Context, id, name string) (*domain.Outcome, error) {
	r := domain.Receiver{ID: strings.TrimSpace(id), FriendlyName: strings.TrimSpace(name)}
	if s.receivers != nil && r.FriendlyName == "" {
		for _, known := range s.receivers.Receivers() {
			if known.ID == r.ID {
				r = known
				break
			}
		}
	}
	return s.dispatch.SelectReceiver(ctx, r)
}

func (s *Service) Media(ctx context.Context, action, url string) (*domain.Outcome, error) {
	parsed, err := ParseMediaAction(action)
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.dispatch.Media(settings, parsed, url)
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return Status{}, err
	}
	status := Status{
		Playback: domain.PlaybackIdle,
		Mode:     settings.LastMode,
		Enabled:  ActionsEnabled(settings, settings.LastMode),
	}
	if s.firetv != nil {
		status.Available = s.firetv.Available()
		status.Playback = s.firetv.Playback()
		if target, ok := s.firetv.Target(); ok {
			status.Receiver = &target
		}
	}
	return status, nil
}

// SubscribePlayback streams playback changes. Without a feed the channel
// carries the idle state once and stays open until cancel.
func (s *Service) SubscribePlayback() (<-chan domain.PlaybackState, func()) {
	if s.feed != nil {
		return s.feed.Subscribe()
	}
	ch := make(chan domain.PlaybackState, 1)
	ch <- domain.PlaybackIdle
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}
