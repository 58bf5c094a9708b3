// Package remote routes abstract remote-control requests to the Roku or
// Fire TV backend and turns the result into one user-facing outcome.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go2tv.app/uniremote/internal/domain"
	"go2tv.app/uniremote/internal/keymap"
)

const msgSentToRoku = "Command sent to Roku"

// RokuClient is the ECP surface the dispatcher drives.
type RokuClient interface {
	SendKey(ctx context.Context, address, key string) error
	Launch(ctx context.Context, address, appID string) error
	Validate(ctx context.Context, address string) error
}

// FireTV is the media-only Fire TV adapter surface.
type FireTV interface {
	Available() bool
	Connect(r domain.Receiver)
	Target() (domain.Receiver, bool)
	Play(url string)
	Pause()
	Stop()
	Playback() domain.PlaybackState
}

// ReceiverSink persists a newly selected receiver id.
type ReceiverSink interface {
	SaveReceiverID(ctx context.Context, id string) error
}

type Dispatcher struct {
	roku   RokuClient
	firetv FireTV
	sink   ReceiverSink
	logger *slog.Logger
}

func NewDispatcher(roku RokuClient, firetv FireTV, sink ReceiverSink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{roku: roku, firetv: firetv, sink: sink, logger: logger}
}

// Dispatch sends one button press. Volume and power always go to the Roku
// TV; everything else follows mode.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd domain.Command, mode domain.Mode, settings domain.Settings) (*domain.Outcome, error) {
	started := time.Now()
	var (
		out *domain.Outcome
		err error
	)
	switch {
	case cmd.TargetsTV(), mode != domain.ModeFireTV:
		out, err = d.sendCommandToRoku(ctx, cmd, settings)
	default:
		out, err = d.sendCommandToFireTV(cmd, settings)
	}
	d.logOutcome("remote_dispatch", started, err,
		slog.String("command", string(cmd)),
		slog.String("mode", string(mode)),
	)
	return out, err
}

func (d *Dispatcher) sendCommandToRoku(ctx context.Context, cmd domain.Command, settings domain.Settings) (*domain.Outcome, error) {
	if !settings.HasRokuAddress() {
		return nil, rokuNotConfiguredError()
	}
	key, ok := keymap.Lookup(cmd, domain.BackendRoku)
	if !ok {
		return nil, unsupportedError("ROKU_COMMAND_UNSUPPORTED", "Command not supported for Roku", cmd)
	}
	if d.roku == nil {
		return nil, internalError("Roku client is not configured", nil)
	}
	if err := d.roku.SendKey(ctx, settings.RokuAddress, key); err != nil {
		return nil, asRemoteError(err)
	}
	return &domain.Outcome{OK: true, Message: msgSentToRoku, Backend: domain.BackendRoku, Key: key}, nil
}

func (d *Dispatcher) sendCommandToFireTV(cmd domain.Command, settings domain.Settings) (*domain.Outcome, error) {
	if cmd.IsNavigation() || !keymap.FireTVAdapterSupports(cmd) {
		return nil, unsupportedError("FIRETV_NAVIGATION_UNSUPPORTED", "Navigation/Home/Back not supported by Fling SDK", cmd)
	}
	if err := d.connectReceiver(settings); err != nil {
		return nil, err
	}

	key, _ := keymap.Lookup(cmd, domain.BackendFireTV)
	var message string
	switch cmd {
	case domain.CommandPlay:
		d.firetv.Play("")
		message = "Play sent to Fire TV"
	case domain.CommandPause:
		d.firetv.Pause()
		message = "Pause sent to Fire TV"
	}
	return &domain.Outcome{
		OK:       true,
		Message:  message,
		Backend:  domain.BackendFireTV,
		Key:      key,
		Playback: d.firetv.Playback(),
	}, nil
}

// connectReceiver checks a Fire TV can be driven and connects the saved
// receiver when it is not already the target.
func (d *Dispatcher) connectReceiver(settings domain.Settings) error {
	if !settings.HasReceiver() {
		return &domain.RemoteError{
			Kind:    domain.KindPrecondition,
			Code:    "FIRETV_NOT_SELECTED",
			Message: "Select a Fire TV in Settings > Scan for Fire TV",
			SuggestedFixes: []string{
				"Scan for Fire TV receivers and select one.",
			},
		}
	}
	if d.firetv == nil || !d.firetv.Available() {
		return fireTVUnavailableError()
	}
	receiverID := strings.TrimSpace(settings.FireTVReceiverID)
	if target, ok := d.firetv.Target(); !ok || target.ID != receiverID {
		d.firetv.Connect(domain.Receiver{ID: receiverID})
	}
	return nil
}

// SendRokuKey sends any key from the ECP vocabulary, including the raw-only
// PowerOn and VolumeMute.
func (d *Dispatcher) SendRokuKey(ctx context.Context, settings domain.Settings, key string) (*domain.Outcome, error) {
	started := time.Now()
	out, err := d.sendRokuKey(ctx, settings, strings.TrimSpace(key))
	d.logOutcome("remote_roku_key", started, err, slog.String("key", key))
	return out, err
}

func (d *Dispatcher) sendRokuKey(ctx context.Context, settings domain.Settings, key string) (*domain.Outcome, error) {
	if !keymap.IsRokuKey(key) {
		return nil, &domain.RemoteError{
			Kind:    domain.KindUnsupported,
			Code:    "ROKU_KEY_INVALID",
			Message: fmt.Sprintf("Key %q is not part of the Roku ECP vocabulary", key),
			Details: map[string]any{"key": key, "allowed": keymap.RokuVocabulary},
		}
	}
	if !settings.HasRokuAddress() {
		return nil, rokuNotConfiguredError()
	}
	if d.roku == nil {
		return nil, internalError("Roku client is not configured", nil)
	}
	if err := d.roku.SendKey(ctx, settings.RokuAddress, key); err != nil {
		return nil, asRemoteError(err)
	}
	return &domain.Outcome{OK: true, Message: msgSentToRoku, Backend: domain.BackendRoku, Key: key}, nil
}

// PowerOn wakes the Roku TV. It is the one request that is retried.
func (d *Dispatcher) PowerOn(ctx context.Context, settings domain.Settings) (*domain.Outcome, error) {
	return d.SendRokuKey(ctx, settings, keymap.RokuPowerOn)
}

// ValidateRoku checks the configured Roku answers ECP queries.
func (d *Dispatcher) ValidateRoku(ctx context.Context, settings domain.Settings) (*domain.Outcome, error) {
	if !settings.HasRokuAddress() {
		return nil, rokuNotConfiguredError()
	}
	if d.roku == nil {
		return nil, internalError("Roku client is not configured", nil)
	}
	started := time.Now()
	err := d.roku.Validate(ctx, settings.RokuAddress)
	d.logOutcome("remote_validate", started, err, slog.String("address", settings.RokuAddress))
	if err != nil {
		remoteErr := asRemoteError(err)
		wrapped := *remoteErr
		wrapped.Message = "Roku validation failed: " + remoteErr.Message
		wrapped.Err = err
		return nil, &wrapped
	}
	return &domain.Outcome{OK: true, Message: "Roku connected successfully!", Backend: domain.BackendRoku}, nil
}

// Launch starts a channel or switches to an input. The active mode does
// not matter.
func (d *Dispatcher) Launch(ctx context.Context, settings domain.Settings, req domain.LaunchRequest) (*domain.Outcome, error) {
	appID := strings.TrimSpace(req.AppID)
	if appID == "" {
		return nil, &domain.RemoteError{
			Kind:    domain.KindPrecondition,
			Code:    "ROKU_APP_ID_REQUIRED",
			Message: "An app or input id is required to launch",
		}
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = settings.FavoriteLabel(appID)
	}
	if label == "" {
		label = "app"
	}
	out, err := d.launch(ctx, settings, appID, "remote_launch")
	if err != nil {
		return nil, err
	}
	out.Message = "Launching " + label
	return out, nil
}

// SwitchToFireTVInput launches the HDMI input the Fire TV is plugged into.
func (d *Dispatcher) SwitchToFireTVInput(ctx context.Context, settings domain.Settings) (*domain.Outcome, error) {
	input := strings.TrimSpace(settings.FireTVInput)
	if input == "" {
		return nil, &domain.RemoteError{
			Kind:    domain.KindPrecondition,
			Code:    "FIRETV_INPUT_NOT_SET",
			Message: "Set Fire TV input in Settings",
			SuggestedFixes: []string{
				"Set the Roku input the Fire TV is connected to, for example tvinput.hdmi1.",
			},
		}
	}
	out, err := d.launch(ctx, settings, input, "remote_switch_input")
	if err != nil {
		return nil, err
	}
	out.Message = "Switched to Fire TV input"
	return out, nil
}

func (d *Dispatcher) launch(ctx context.Context, settings domain.Settings, appID, event string) (*domain.Outcome, error) {
	if !settings.HasRokuAddress() {
		return nil, rokuNotConfiguredError()
	}
	if d.roku == nil {
		return nil, internalError("Roku client is not configured", nil)
	}
	started := time.Now()
	err := d.roku.Launch(ctx, settings.RokuAddress, appID)
	d.logOutcome(event, started, err, slog.String("app_id", appID))
	if err != nil {
		return nil, asRemoteError(err)
	}
	return &domain.Outcome{OK: true, Backend: domain.BackendRoku, Key: appID}, nil
}

// SelectReceiver makes r the Fire TV media target and asks the settings
// store to remember it.
func (d *Dispatcher) SelectReceiver(ctx context.Context, r domain.Receiver) (*domain.Outcome, error) {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return nil, &domain.RemoteError{
			Kind:    domain.KindPrecondition,
			Code:    "FIRETV_RECEIVER_REQUIRED",
			Message: "A receiver id is required",
		}
	}
	if d.firetv != nil {
		d.firetv.Connect(r)
	}
	if d.sink != nil {
		if err := d.sink.SaveReceiverID(ctx, r.ID); err != nil {
			return nil, internalError("Failed to save the selected Fire TV", err)
		}
	}
	name := r.FriendlyName
	if name == "" {
		name = r.ID
	}
	d.logger.Info("remote_select_receiver", slog.String("id", r.ID))
	out := &domain.Outcome{OK: true, Message: "Selected " + name, Backend: domain.BackendFireTV}
	if d.firetv != nil {
		out.Playback = d.firetv.Playback()
	}
	return out, nil
}

// ActionsEnabled reports whether the remote's buttons can do anything in mode.
func ActionsEnabled(settings domain.Settings, mode domain.Mode) bool {
	if mode == domain.ModeFireTV {
		return settings.HasReceiver()
	}
	return settings.HasRokuAddress()
}

func (d *Dispatcher) logOutcome(event string, started time.Time, err error, attrs ...slog.Attr) {
	attrs = append(attrs,
		slog.Bool("ok", err == nil),
		slog.Int64("duration_ms", time.Since(started).Milliseconds()),
	)
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		var remoteErr *domain.RemoteError
		if errors.As(err, &remoteErr) {
			attrs = append(attrs, slog.String("error_code", remoteErr.Code), slog.String("error_kind", string(remoteErr.Kind)))
		}
	}
	d.logger.LogAttrs(context.Background(), level, event, attrs...)
}
