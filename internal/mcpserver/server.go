package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go2tv.app/uniremote/internal/buildinfo"
	"go2tv.app/uniremote/internal/domain"
	"go2tv.app/uniremote/internal/remote"
)

const protocolVersion = "2024-11-05"
const (
	defaultScanTimeoutMS = 3000
	minScanTimeoutMS     = 100
	maxScanTimeoutMS     = 30000
)

// Remote is the remote-control surface exposed as tools.
type Remote interface {
	ScanRoku(ctx context.Context, budget time.Duration) ([]domain.RokuDevice, error)
	ValidateRoku(ctx context.Context) (*domain.Outcome, error)
	SendCommand(ctx context.Context, cmd domain.Command, mode string) (*domain.Outcome, error)
	SendRokuKey(ctx context.Context, key string) (*domain.Outcome, error)
	Launch(ctx context.Context, appID string) (*domain.Outcome, error)
	LaunchFavorite(ctx context.Context, query string) (*domain.Outcome, error)
	SwitchToFireTVInput(ctx context.Context) (*domain.Outcome, error)
	ScanReceivers(ctx context.Context, window time.Duration) ([]domain.Receiver, error)
	SelectReceiver(ctx context.Context, id, name string) (*domain.Outcome, error)
	Media(ctx context.Context, action, url string) (*domain.Outcome, error)
	Status(ctx context.Context) (remote.Status, error)
}

type Server struct {
	in                *bufio.Reader
	out               *bufio.Writer
	serverName        string
	serverVersion     string
	logger            *slog.Logger
	useJSONLineOutput bool
	outputModeLocked  bool
	tools             []tool
	handlers          map[string]toolHandler
	remote            Remote
}

type Config struct {
	ServerName    string
	ServerVersion string
	Logger        *slog.Logger
	Remote        Remote
}

func New(in io.Reader, out io.Writer, cfg Config) *Server {
	if cfg.ServerName == "" {
		cfg.ServerName = strings.ToLower(buildinfo.ProductName)
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = buildinfo.Version
	}

	s := &Server{
		in:            bufio.NewReader(in),
		out:           bufio.NewWriter(out),
		serverName:    cfg.ServerName,
		serverVersion: cfg.ServerVersion,
		logger:        cfg.Logger,
		tools:         staticTools(),
		remote:        cfg.Remote,
	}
	s.handlers = s.toolHandlers()
	return s
}

func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logLifecycle(slog.LevelInfo, "mcp_context_done", slog.String("reason", ctx.Err().Error()))
			return ctx.Err()
		default:
		}

		s.logLifecycle(slog.LevelDebug, "mcp_read_wait")
		payload, jsonLineInput, err := readMessage(s.in)
		if err != nil {
			if err == io.EOF {
				s.logLifecycle(slog.LevelInfo, "mcp_stream_eof")
				return nil
			}
			s.logLifecycle(slog.LevelError, "mcp_read_error", slog.String("error", err.Error()))
			return err
		}
		if !s.outputModeLocked {
			s.useJSONLineOutput = jsonLineInput
			s.outputModeLocked = true
			s.logLifecycle(
				slog.LevelDebug,
				"mcp_output_mode",
				slog.String("mode", map[bool]string{true: "jsonline", false: "framed"}[jsonLineInput]),
			)
		}
		s.logLifecycle(slog.LevelDebug, "mcp_message_received", slog.Int("bytes", len(payload)))

		if err := s.handle(ctx, payload); err != nil {
			s.logLifecycle(slog.LevelError, "mcp_handle_error", slog.String("error", err.Error()))
			return err
		}
	}
}

func (s *Server) handle(ctx context.Context, payload []byte) error {
	startedAt := time.Now()

	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logCall("parse", "", startedAt, fmt.Sprint(codeParseError))
		return s.send(response{
			JSONRPC: "2.0",
			Error: &responseError{
				Code:    codeParseError,
				Message: "parse error",
			},
		})
	}

	if len(req.ID) == 0 {
		return nil
	}

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		s.logCall(req.Method, "", startedAt, fmt.Sprint(codeInvalidRequest))
		return s.send(response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &responseError{
				Code:    codeInvalidRequest,
				Message: "invalid request",
			},
		})
	}

	switch req.Method {
	case "initialize":
		s.logCall("initialize", "", startedAt, "")
		return s.send(response{JSONRPC: "2.0", ID: req.ID, Result: initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
			},
			ServerInfo: serverInfo{
				Name:    s.serverName,
				Version: s.serverVersion,
			},
			Instructions: "Call list_roku_devices or list_firetv_receivers first, then send_command to drive the remote.",
		}})
	case "ping":
		s.logCall("ping", "", startedAt, "")
		return s.send(response{JSONRPC: "2.0", ID: req.ID, Result: struct{}{}})
	case "tools/list":
		s.logCall("tools/list", "", startedAt, "")
		return s.send(response{JSONRPC: "2.0", ID: req.ID, Result: toolsListResult{Tools: s.tools}})
	case "tools/call":
		return s.handleToolCall(ctx, req.ID, req.Params)
	default:
		s.logCall(req.Method, "", startedAt, fmt.Sprint(codeMethodNotFound))
		return s.send(response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &responseError{
				Code:    codeMethodNotFound,
				Message: "method not found",
			},
		})
	}
}

func (s *Server) handleToolCall(ctx context.Context, id json.RawMessage, rawParams json.RawMessage) error {
	startedAt := time.Now()

	params, err := decodeToolCallParams(rawParams)
	if err != nil {
		return s.sendInvalidParams("tools/call", "", startedAt, id)
	}

	handler, ok := s.handlers[params.Name]
	if !ok {
		s.logCall(params.Name, "", startedAt, "TOOL_NOT_FOUND")
		return s.send(response{
			JSONRPC: "2.0",
			ID:      id,
			Result: toolErrorResult(
				"TOOL_NOT_FOUND",
				fmt.Sprintf("unknown tool: %s", params.Name),
			),
		})
	}
	if s.remote == nil {
		return s.sendToolInternalError(params.Name, "", startedAt, id, "remote control is not configured")
	}

	res, err := handler(ctx, params.Arguments)
	if errors.Is(err, errInvalidParams) {
		return s.sendInvalidParams(params.Name, res.target, startedAt, id)
	}
	if err != nil {
		s.logCall(params.Name, res.target, startedAt, toolErrorCode(err))
		return s.send(response{
			JSONRPC: "2.0",
			ID:      id,
			Result:  toolErrorResultFromError(err),
		})
	}
	s.logCall(params.Name, res.target, startedAt, "")

	return s.send(response{
		JSONRPC: "2.0",
		ID:      id,
		Result: toolCallResult{
			Content:           []toolContent{{Type: "text", Text: res.text}},
			StructuredContent: res.structured,
		},
	})
}

func decodeToolCallParams(raw json.RawMessage) (toolsCallParams, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return toolsCallParams{}, err
	}

	nameRaw, ok := payload["name"]
	if !ok {
		return toolsCallParams{}, fmt.Errorf("missing tool name")
	}

	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil {
		return toolsCallParams{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return toolsCallParams{}, fmt.Errorf("missing tool name")
	}

	arguments, ok := payload["arguments"]
	if !ok {
		flattened := map[string]json.RawMessage{}
		for key, value := range payload {
			if key == "name" || key == "_meta" {
				continue
			}
			flattened[key] = value
		}
		if len(flattened) > 0 {
			normalized, err := json.Marshal(flattened)
			if err != nil {
				return toolsCallParams{}, err
			}
			arguments = normalized
		}
	}

	if len(bytes.TrimSpace(arguments)) == 0 {
		arguments = json.RawMessage("{}")
	}

	return toolsCallParams{
		Name:      name,
		Arguments: arguments,
	}, nil
}

func decodeStrict(raw json.RawMessage, out any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("invalid JSON payload")
	}
	var trailing any
	if err := decoder.Decode(&trailing); err != io.EOF {
		return fmt.Errorf("invalid JSON payload")
	}
	return nil
}

func (s *Server) sendInvalidParams(method, target string, startedAt time.Time, id json.RawMessage) error {
	s.logCall(method, target, startedAt, fmt.Sprint(codeInvalidParams))
	return s.send(response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &responseError{
			Code:    codeInvalidParams,
			Message: "invalid params",
		},
	})
}

func (s *Server) sendToolInternalError(method, target string, startedAt time.Time, id json.RawMessage, message string) error {
	s.logCall(method, target, startedAt, "INTERNAL_ERROR")
	return s.send(response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  toolErrorResult("INTERNAL_ERROR", message),
	})
}

func toolErrorResult(code, message string) toolCallResult {
	return toolCallResult{
		Content: []toolContent{
			{
				Type: "text",
				Text: fmt.Sprintf("%s: %s", code, message),
			},
		},
		StructuredContent: map[string]any{
			"error": map[string]string{
				"code":    code,
				"message": message,
			},
		},
		IsError: true,
	}
}

func toolErrorResultFromError(err error) toolCallResult {
	var rErr *domain.RemoteError
	if errors.As(err, &rErr) && rErr != nil {
		result := toolErrorResult(rErr.Code, rErr.Message)
		errObj := map[string]any{
			"code":    rErr.Code,
			"message": rErr.Message,
			"kind":    rErr.Kind,
		}
		if rErr.StatusCode != 0 {
			errObj["status_code"] = rErr.StatusCode
		}
		if len(rErr.SuggestedFixes) > 0 {
			errObj["suggested_fixes"] = rErr.SuggestedFixes
		}
		if len(rErr.Details) > 0 {
			errObj["details"] = rErr.Details
		}
		result.StructuredContent = map[string]any{"error": errObj}
		return result
	}

	return toolErrorResult("INTERNAL_ERROR", err.Error())
}

func toolErrorCode(err error) string {
	var rErr *domain.RemoteError
	if errors.As(err, &rErr) && rErr != nil && strings.TrimSpace(rErr.Code) != "" {
		return rErr.Code
	}
	return "INTERNAL_ERROR"
}

func (s *Server) logCall(method, target string, startedAt time.Time, errorCode string) {
	if s == nil || s.logger == nil {
		return
	}
	level := slog.LevelInfo
	if strings.TrimSpace(errorCode) != "" {
		level = slog.LevelError
	}

	s.logger.Log(
		context.Background(),
		level,
		"mcp_call",
		slog.String("method", strings.TrimSpace(method)),
		slog.String("target", strings.TrimSpace(target)),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
		slog.String("error_code", strings.TrimSpace(errorCode)),
	)
}

func (s *Server) send(resp response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.logLifecycle(slog.LevelDebug, "mcp_send", slog.Int("bytes", len(encoded)))
	return writeMessage(s.out, encoded, s.useJSONLineOutput)
}

func (s *Server) logLifecycle(level slog.Level, msg string, attrs ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Log(context.Background(), level, msg, attrs...)
}
