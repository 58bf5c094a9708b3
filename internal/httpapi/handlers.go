package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"go2tv.app/uniremote/internal/domain"
)

const (
	minScanTimeout = 100 * time.Millisecond
	maxScanTimeout = 30 * time.Second
	maxBodyBytes   = 64 << 10
)

// scanTimeout reads ?timeout_ms=. Zero means the engine default.
func scanTimeout(r *http.Request) (time.Duration, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("timeout_ms"))
	if raw == "" {
		return 0, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("timeout_ms must be an integer")
	}
	d := time.Duration(ms) * time.Millisecond
	if d < minScanTimeout || d > maxScanTimeout {
		return 0, errors.New("timeout_ms must be between 100 and 30000")
	}
	return d, nil
}

// decodeOptionalBody decodes a JSON body when one was sent.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.remote.Settings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleRokuDevices(w http.ResponseWriter, r *http.Request) {
	budget, err := scanTimeout(r)
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	devices, err := s.remote.ScanRoku(r.Context(), budget)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": len(devices), "devices": devices})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	out, err := s.remote.ValidateRoku(r.Context())
	s.writeOutcome(w, out, err)
}

func (s *Server) handleRokuKey(w http.ResponseWriter, r *http.Request) {
	out, err := s.remote.SendRokuKey(r.Context(), chi.URLParam(r, "key"))
	s.writeOutcome(w, out, err)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "command")
	cmd, err := domain.ParseCommand(raw)
	if err != nil {
		s.writeError(w, &domain.RemoteError{
			Kind:    domain.KindUnsupported,
			Code:    "COMMAND_INVALID",
			Message: err.Error(),
			Details: map[string]any{"allowed": domain.AllCommands},
		})
		return
	}
	out, err := s.remote.SendCommand(r.Context(), cmd, r.URL.Query().Get("mode"))
	s.writeOutcome(w, out, err)
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	out, err := s.remote.Launch(r.Context(), chi.URLParam(r, "appID"))
	s.writeOutcome(w, out, err)
}

func (s *Server) handleSwitchInput(w http.ResponseWriter, r *http.Request) {
	out, err := s.remote.SwitchToFireTVInput(r.Context())
	s.writeOutcome(w, out, err)
}

func (s *Server) handleReceivers(w http.ResponseWriter, r *http.Request) {
	window, err := scanTimeout(r)
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	receivers, err := s.remote.ScanReceivers(r.Context(), window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": len(receivers), "receivers": receivers})
}

type selectRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSelectReceiver(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeOptionalBody(w, r, &req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}
	out, err := s.remote.SelectReceiver(r.Context(), chi.URLParam(r, "id"), req.Name)
	s.writeOutcome(w, out, err)
}

type mediaRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if err := decodeOptionalBody(w, r, &req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}
	out, err := s.remote.Media(r.Context(), chi.URLParam(r, "action"), req.URL)
	s.writeOutcome(w, out, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.remote.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}
