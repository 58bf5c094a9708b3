package domain

import (
	"fmt"
	"strings"
)

// Command is an abstract remote button, independent of any backend.
type Command string

const (
	CommandHome       Command = "home"
	CommandBack       Command = "back"
	CommandUp         Command = "up"
	CommandDown       Command = "down"
	CommandLeft       Command = "left"
	CommandRight      Command = "right"
	CommandOK         Command = "ok"
	CommandPlay       Command = "play"
	CommandPause      Command = "pause"
	CommandVolumeUp   Command = "volume_up"
	CommandVolumeDown Command = "volume_down"
	CommandPower      Command = "power"
)

// AllCommands lists every Command in button-panel order.
var AllCommands = []Command{
	CommandHome,
	CommandBack,
	CommandUp,
	CommandDown,
	CommandLeft,
	CommandRight,
	CommandOK,
	CommandPlay,
	CommandPause,
	CommandVolumeUp,
	CommandVolumeDown,
	CommandPower,
}

// ParseCommand accepts the canonical names plus a few spellings used by
// remote-control UIs ("select", "volup", "VolumeUp").
func ParseCommand(raw string) (Command, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "select", "center", "enter":
		return CommandOK, nil
	case "volup", "volumeup", "vol_up":
		return CommandVolumeUp, nil
	case "voldown", "volumedown", "vol_down":
		return CommandVolumeDown, nil
	}
	for _, cmd := range AllCommands {
		if string(cmd) == normalized {
			return cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", raw)
}

// IsNavigation reports whether the command moves focus or navigates menus.
func (c Command) IsNavigation() bool {
	switch c {
	case CommandHome, CommandBack, CommandUp, CommandDown, CommandLeft, CommandRight, CommandOK:
		return true
	default:
		return false
	}
}

// TargetsTV reports whether the command always drives the TV hardware,
// whatever source is selected.
func (c Command) TargetsTV() bool {
	switch c {
	case CommandVolumeUp, CommandVolumeDown, CommandPower:
		return true
	default:
		return false
	}
}

// Mode selects which device the navigation and media buttons drive.
type Mode string

const (
	ModeRoku   Mode = "ROKU"
	ModeFireTV Mode = "FIRE_TV"
)

// ParseMode is lenient: anything that is not a Fire TV spelling is Roku.
func ParseMode(raw string) Mode {
	switch strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(raw))) {
	case "FIRE_TV", "FIRETV":
		return ModeFireTV
	default:
		return ModeRoku
	}
}

// Backend names a key vocabulary.
type Backend string

const (
	BackendRoku   Backend = "roku"
	BackendFireTV Backend = "firetv"
)
