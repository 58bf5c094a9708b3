package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"go2tv.app/uniremote/internal/domain"
)

const playbackWriteTimeout = 10 * time.Second

type playbackEvent struct {
	Playback domain.PlaybackState `json:"playback"`
}

// handlePlaybackStream sends the current playback state, then every
// change, until the client goes away.
func (s *Server) handlePlaybackStream(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn("ws_accept_failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(4096)
	defer conn.CloseNow()

	updates, unsubscribe := s.remote.SubscribePlayback()
	defer unsubscribe()

	// Client frames are ignored; CloseRead cancels ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())
	s.logger.Debug("ws_playback_connected")

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("ws_playback_disconnected")
			return
		case state, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "playback feed closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, playbackWriteTimeout)
			err := wsjson.Write(writeCtx, conn, playbackEvent{Playback: state})
			cancel()
			if err != nil {
				return
			}
		}
	}
}
