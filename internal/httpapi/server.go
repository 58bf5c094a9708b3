// Package httpapi serves the remote over HTTP for phone and browser
// clients. Routes mirror the MCP tools; playback changes stream over a
// websocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"go2tv.app/uniremote/internal/domain"
	"go2tv.app/uniremote/internal/remote"
)

// Remote is the remote-control surface behind the routes.
type Remote interface {
	Settings(ctx context.Context) (domain.Settings, error)
	ScanRoku(ctx context.Context, budget time.Duration) ([]domain.RokuDevice, error)
	ValidateRoku(ctx context.Context) (*domain.Outcome, error)
	SendCommand(ctx context.Context, cmd domain.Command, mode string) (*domain.Outcome, error)
	SendRokuKey(ctx context.Context, key string) (*domain.Outcome, error)
	Launch(ctx context.Context, appID string) (*domain.Outcome, error)
	SwitchToFireTVInput(ctx context.Context) (*domain.Outcome, error)
	ScanReceivers(ctx context.Context, window time.Duration) ([]domain.Receiver, error)
	SelectReceiver(ctx context.Context, id, name string) (*domain.Outcome, error)
	Media(ctx context.Context, action, url string) (*domain.Outcome, error)
	Status(ctx context.Context) (remote.Status, error)
	SubscribePlayback() (<-chan domain.PlaybackState, func())
}

// Option configures the server.
type Option func(*Server)

// WithAllowedOrigins sets websocket origin patterns. Without any, only
// same-origin upgrades are accepted.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

type Server struct {
	remote         Remote
	logger         *slog.Logger
	router         chi.Router
	allowedOrigins []string
}

func New(rm Remote, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{remote: rm, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", s.handleSettings)

		r.Get("/roku/devices", s.handleRokuDevices)
		r.Post("/roku/validate", s.handleValidate)
		r.Post("/roku/keys/{key}", s.handleRokuKey)
		r.Post("/commands/{command}", s.handleCommand)
		r.Post("/launch/{appID}", s.handleLaunch)
		r.Post("/input/firetv", s.handleSwitchInput)

		r.Get("/firetv/receivers", s.handleReceivers)
		r.Post("/firetv/receivers/{id}/select", s.handleSelectReceiver)
		r.Get("/firetv/status", s.handleStatus)
		r.Get("/firetv/playback", s.handlePlaybackStream)
		r.Post("/firetv/{action}", s.handleMedia)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.LogAttrs(r.Context(), slog.LevelInfo, "http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type failure struct {
	OK      bool                `json:"ok"`
	Message string              `json:"message"`
	Error   *domain.RemoteError `json:"error"`
}

// statusFor maps an error kind to the HTTP status returned for it.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindPrecondition:
		return http.StatusPreconditionFailed
	case domain.KindUnsupported:
		return http.StatusUnprocessableEntity
	case domain.KindTransport:
		return http.StatusGatewayTimeout
	case domain.KindProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var remoteErr *domain.RemoteError
	if !errors.As(err, &remoteErr) {
		remoteErr = &domain.RemoteError{Kind: domain.KindInternal, Code: "INTERNAL_ERROR", Message: err.Error()}
	}
	s.writeJSON(w, statusFor(remoteErr.Kind), failure{Message: remoteErr.Message, Error: remoteErr})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, failure{
		Message: message,
		Error:   &domain.RemoteError{Kind: domain.KindPrecondition, Code: "INVALID_REQUEST", Message: message},
	})
}

func (s *Server) writeOutcome(w http.ResponseWriter, out *domain.Outcome, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("http_write_failed", slog.String("error", err.Error()))
	}
}
