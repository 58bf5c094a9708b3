package remote

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go2tv.app/uniremote/internal/domain"
)

// MediaAction is a Fire TV transport control.
type MediaAction string

const (
	MediaPlay  MediaAction = "play"
	MediaPause MediaAction = "pause"
	MediaStop  MediaAction = "stop"
)

// ParseMediaAction is case-insensitive.
func ParseMediaAction(raw string) (MediaAction, error) {
	switch action := MediaAction(strings.ToLower(strings.TrimSpace(raw))); action {
	case MediaPlay, MediaPause, MediaStop:
		return action, nil
	default:
		return "", &domain.RemoteError{
			Kind:    domain.KindUnsupported,
			Code:    "FIRETV_ACTION_INVALID",
			Message: fmt.Sprintf("Unknown Fire TV action %q", strings.TrimSpace(raw)),
			Details: map[string]any{"allowed": []MediaAction{MediaPlay, MediaPause, MediaStop}},
		}
	}
}

// Media drives the selected Fire TV receiver. A non-blank url is loaded
// before play.
func (d *Dispatcher) Media(settings domain.Settings, action MediaAction, url string) (*domain.Outcome, error) {
	started := time.Now()
	err := d.connectReceiver(settings)
	if err == nil {
		switch action {
		case MediaPlay:
			d.firetv.Play(url)
		case MediaPause:
			d.firetv.Pause()
		case MediaStop:
			d.firetv.Stop()
		default:
			_, err = ParseMediaAction(string(action))
		}
	}
	d.logOutcome("remote_firetv_media", started, err,
		slog.String("action", string(action)),
		slog.Bool("has_url", strings.TrimSpace(url) != ""),
	)
	if err != nil {
		return nil, err
	}

	verb := strings.ToUpper(string(action[:1])) + string(action[1:])
	return &domain.Outcome{
		OK:       true,
		Message:  verb + " sent to Fire TV",
		Backend:  domain.BackendFireTV,
		Playback: d.firetv.Playback(),
	}, nil
}
