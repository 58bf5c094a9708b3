package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go2tv.app/uniremote/internal/domain"
	"go2tv.app/uniremote/internal/keymap"
)

var errInvalidParams = errors.New("invalid params")

type toolResult struct {
	text       string
	structured any
	// target is logged with the call.
	target string
}

type toolHandler func(ctx context.Context, args json.RawMessage) (toolResult, error)

func (s *Server) toolHandlers() map[string]toolHandler {
	return map[string]toolHandler{
		"list_roku_devices":      s.listRokuDevices,
		"validate_roku":          s.noArgs(func(ctx context.Context) (*domain.Outcome, error) { return s.remote.ValidateRoku(ctx) }),
		"send_command":           s.sendCommand,
		"send_roku_key":          s.sendRokuKey,
		"launch_app":             s.launchApp,
		"launch_favorite":        s.launchFavorite,
		"switch_to_firetv_input": s.noArgs(func(ctx context.Context) (*domain.Outcome, error) { return s.remote.SwitchToFireTVInput(ctx) }),
		"list_firetv_receivers":  s.listReceivers,
		"select_firetv_receiver": s.selectReceiver,
		"firetv_media":           s.fireTVMedia,
		"firetv_status":          s.fireTVStatus,
	}
}

func outcomeResult(out *domain.Outcome, target string) toolResult {
	return toolResult{text: out.Message, structured: out, target: target}
}

func (s *Server) noArgs(call func(ctx context.Context) (*domain.Outcome, error)) toolHandler {
	return func(ctx context.Context, raw json.RawMessage) (toolResult, error) {
		var args struct{}
		if err := decodeStrict(raw, &args); err != nil {
			return toolResult{}, errInvalidParams
		}
		out, err := call(ctx)
		if err != nil {
			return toolResult{}, err
		}
		return outcomeResult(out, ""), nil
	}
}

func decodeScanTimeout(raw json.RawMessage) (time.Duration, error) {
	var args struct {
		TimeoutMS *int `json:"timeout_ms,omitempty"`
	}
	if err := decodeStrict(raw, &args); err != nil {
		return 0, errInvalidParams
	}
	timeoutMS := defaultScanTimeoutMS
	if args.TimeoutMS != nil {
		if *args.TimeoutMS < minScanTimeoutMS || *args.TimeoutMS > maxScanTimeoutMS {
			return 0, errInvalidParams
		}
		timeoutMS = *args.TimeoutMS
	}
	return time.Duration(timeoutMS) * time.Millisecond, nil
}

func (s *Server) listRokuDevices(ctx context.Context, raw json.RawMessage) (toolResult, error) {
	budget, err := decodeScanTimeout(raw)
	if err != nil {
		return toolResult{}, err
	}
	s.logLifecycle(slog.LevelDebug, "list_roku_devices_request", slog.Int64("timeout_ms", budget.Milliseconds()))

	devices, err := s.remote.ScanRoku(ctx, budget)
	if err != nil {
		return toolResult{}, err
	}
	text := fmt.Sprintf("Discovered %d Roku device(s).", len(devices))
	if len(devices) > 0 {
		text += "\n" + formatRokuDevices(devices)
	}
	return toolResult{
		text:       text,
		structured: map[string]any{"count": len(devices), "devices": devices},
	}, nil
}

func (s *Server) sendCommand(ctx context.Context, raw json.RawMessage) (toolResult, error) {
	var args struct {
		Command string  `json:"command"`
		Mode    *string `json:"mode,omitempty"`
	}
	if err := decodeStrict(raw, &args); err != nil || strings.TrimSpace(args.Command) == "" {
		return toolResult{}, errInvalidParams
	}
	cmd, err := domain.ParseCommand(args.Command)
	if err != nil {
		return toolResult{target: args.Command}, &domain.RemoteError{
			Kind:    domain.KindUnsupported,
			Code:    "COMMAND_INVALID",
			Message: err.Error(),
			Details: map[string]any{"allowed": domain.AllCommands},
		}
	}
	mode := ""
	if args.Mode != nil {
		mode = *args.Mode
	}
	out, err := s.remote.SendCommand(ctx, cmd, mode)
	if err != nil {
		return toolResult{target: string(cmd)}, err
	}
	return outcomeResult(out, string(cmd)), nil
}

func (s *Server) sendRokuKey(ctx context.Context, raw json.RawMessage) (toolResult, error) {
	var args struct {
		Key string `json:"key"`
	}
	if err := decodeStrict(raw, &args); err != nil || strings.TrimSpace(args.Key) == "" {
		return toolResult{}, errInvalidParams
	}
	out, err := s.remote.SendRokuKey(ctx, args.Key)
	if err != nil {
		return toolResult{target: args.Key}, err
	}
	return outcomeResult(out, args.Key), nil
}

func (s *Server) launchApp(ctx context.Context, raw json.RawMessage) (toolResult, error) {
	var args struct {
		AppID string `json:"app_id"`
	}
	if err := decodeStrict(raw, &args); err != nil || strings.TrimSpace(args.AppID) == "" {
		return toolResult{}, errInvalidParams
	}
	out, err := s.remote.Launch(ctx, args.AppID)
	if err != nil {
		return toolResult{target: args.AppID}, err
	}
	return outcomeResult(out, args.AppID), nil
}

func (s *Server) launchFavorite(ctx context.Context, raw json.RawMessage) (toolResult, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := decodeStrict(raw, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return toolResult{}, errInvalidParams
	}
	out, err := s.remote.LaunchFavorite(ctx, args.Query)
	if err != nil {
		return toolResult{target: args.Query}, err
	}
	return outcomeResult(out, out.Key), nil
}

func (s *Server) listReceivers(ctx context.Context, raw json.RawMessage) (toolResult, error) {
	window, err := decodeScanTimeout(raw)
	if err != nil {
		return toolResult{}, err
	}
	receivers, err := s.remote.ScanReceivers(ctx, window)
	if err != nil {
		return toolResult{}, err
	}
	text := fmt.Sprintf("Discovered %d Fire TV receiver(s).", len(receivers))
	if len(receivers) > 0 {
		text += "\n" + formatReceivers(receivers)
	}
	return toolResult{
		text:       text,
		structured: map[string]any{"count": len(receivers), "receivers": receivers},
	}, nil
}

func (s *Server) selectReceiver(ctx context.Context, raw json.RawMessage) (toolResult, error) {
	var args struct {
		ID   string  `json:"id"`
		Name *string `json:"name,omitempty"`
	}
	if err := decodeStrict(raw, &args); err != nil || strings.TrimSpace(args.ID) == "" {
		return toolResult{}, errInvalidParams
	}
	name := ""
	if args.Name != nil {
		name = *args.Name
	}
	out, err := s.remote.SelectReceiver(ctx, args.ID, name)
	if err != nil {
		return toolResult{target: args.ID}, err
	}
	return outcomeResult(out, args.ID), nil
}

func (s *Server) fireTVMedia(ctx context.Context, raw json.RawMessage) (toolResult, error) {
	var args struct {
		Action string  `json:"action"`
		URL    *string `json:"url,omitempty"`
	}
	if err := decodeStrict(raw, &args); err != nil || strings.TrimSpace(args.Action) == "" {
		return toolResult{}, errInvalidParams
	}
	url := ""
	if args.URL != nil {
		url = *args.URL
	}
	out, err := s.remote.Media(ctx, args.Action, url)
	if err != nil {
		return toolResult{target: args.Action}, err
	}
	return outcomeResult(out, args.Action), nil
}

func (s *Server) fireTVStatus(ctx context.Context, raw json.RawMessage) (toolResult, error) {
	var args struct{}
	if err := decodeStrict(raw, &args); err != nil {
		return toolResult{}, errInvalidParams
	}
	status, err := s.remote.Status(ctx)
	if err != nil {
		return toolResult{}, err
	}
	receiver := "none"
	if status.Receiver != nil {
		receiver = receiverName(*status.Receiver)
	}
	text := fmt.Sprintf("Fire TV available=%t receiver=%s playback=%s mode=%s", status.Available, receiver, status.Playback, status.Mode)
	return toolResult{text: text, structured: status}, nil
}

func receiverName(r domain.Receiver) string {
	if name := strings.TrimSpace(r.FriendlyName); name != "" {
		return name
	}
	return r.ID
}

func formatRokuDevices(devices []domain.RokuDevice) string {
	var out strings.Builder
	for i, dev := range devices {
		if i > 0 {
			out.WriteByte('\n')
		}
		fmt.Fprintf(
			&out,
			"%d. address=%s name=%s model=%s",
			i+1,
			strings.TrimSpace(dev.Address),
			strings.TrimSpace(dev.DisplayName()),
			strings.TrimSpace(dev.ModelName),
		)
	}
	return out.String()
}

func formatReceivers(receivers []domain.Receiver) string {
	var out strings.Builder
	for i, r := range receivers {
		if i > 0 {
			out.WriteByte('\n')
		}
		fmt.Fprintf(&out, "%d. id=%s name=%s address=%s", i+1, r.ID, receiverName(r), strings.TrimSpace(r.Address))
	}
	return out.String()
}

func scanTimeoutSchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timeout_ms": map[string]any{
				"type":        "integer",
				"minimum":     minScanTimeoutMS,
				"maximum":     maxScanTimeoutMS,
				"default":     defaultScanTimeoutMS,
				"description": description,
			},
		},
		"additionalProperties": false,
	}
}

func emptySchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	}
}

func staticTools() []tool {
	commands := make([]string, len(domain.AllCommands))
	for i, cmd := range domain.AllCommands {
		commands[i] = string(cmd)
	}

	return []tool{
		{
			Name:        "list_roku_devices",
			Description: "Scan the local network for Roku devices with SSDP. Use the returned address to configure the remote.",
			InputSchema: scanTimeoutSchema("How long to listen for SSDP responses, in milliseconds."),
		},
		{
			Name:        "validate_roku",
			Description: "Check that the configured Roku answers External Control Protocol queries.",
			InputSchema: emptySchema(),
		},
		{
			Name:        "send_command",
			Description: "Press a remote button. Volume and power always go to the Roku TV; other buttons follow the mode (ROKU or FIRE_TV). Fire TV supports play and pause only.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"enum":        commands,
						"description": "The button to press.",
					},
					"mode": map[string]any{
						"type":        "string",
						"enum":        []string{string(domain.ModeRoku), string(domain.ModeFireTV)},
						"description": "Which device the button drives. Defaults to the last used mode and is remembered.",
					},
				},
				"required":             []string{"command"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "send_roku_key",
			Description: "Send a raw Roku ECP key, including PowerOn and VolumeMute.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"key": map[string]any{
						"type":        "string",
						"enum":        keymap.RokuVocabulary,
						"description": "The ECP key name.",
					},
				},
				"required":             []string{"key"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "launch_app",
			Description: "Launch a Roku channel by app id (e.g. 12 for Netflix) or switch to an input such as tvinput.hdmi1.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"app_id": map[string]any{
						"type":        "string",
						"description": "Roku channel id or input id.",
					},
				},
				"required":             []string{"app_id"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "launch_favorite",
			Description: "Launch a saved favorite by app id or by a label that is matched loosely.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Favorite label or app id.",
					},
				},
				"required":             []string{"query"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "switch_to_firetv_input",
			Description: "Switch the Roku TV to the HDMI input the Fire TV is connected to.",
			InputSchema: emptySchema(),
		},
		{
			Name:        "list_firetv_receivers",
			Description: "Discover Fire TV receivers. Returns an empty list when no Fling SDK binding is installed.",
			InputSchema: scanTimeoutSchema("How long to listen for receivers, in milliseconds."),
		},
		{
			Name:        "select_firetv_receiver",
			Description: "Select the Fire TV receiver used for play and pause, and remember it.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "Receiver id from list_firetv_receivers.",
					},
					"name": map[string]any{
						"type":        "string",
						"description": "Optional display name.",
					},
				},
				"required":             []string{"id"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "firetv_media",
			Description: "Play, pause, or stop media on the selected Fire TV. A url is loaded before play when given.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type": "string",
						"enum": []string{"play", "pause", "stop"},
					},
					"url": map[string]any{
						"type":        "string",
						"description": "Optional media URL to load before playing.",
					},
				},
				"required":             []string{"action"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "firetv_status",
			Description: "Report Fire TV availability, the selected receiver, and the local playback state.",
			InputSchema: emptySchema(),
		},
	}
}
