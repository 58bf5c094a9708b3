// Package keymap translates abstract remote buttons into backend key names.
package keymap

import "go2tv.app/uniremote/internal/domain"

// Roku ECP key names. Case-sensitive on the wire.
const (
	RokuHome       = "Home"
	RokuBack       = "Back"
	RokuUp         = "Up"
	RokuDown       = "Down"
	RokuLeft       = "Left"
	RokuRight      = "Right"
	RokuSelect     = "Select"
	RokuPlay       = "Play"
	RokuPause      = "Pause"
	RokuVolumeUp   = "VolumeUp"
	RokuVolumeDown = "VolumeDown"
	RokuVolumeMute = "VolumeMute"
	RokuPowerOff   = "PowerOff"
	RokuPowerOn    = "PowerOn"
)

// RokuVocabulary is every key the Roku client will send. PowerOn and
// VolumeMute have no abstract command and are reachable as raw keys only.
var RokuVocabulary = []string{
	RokuHome, RokuBack, RokuUp, RokuDown, RokuLeft, RokuRight, RokuSelect,
	RokuPlay, RokuPause, RokuVolumeUp, RokuVolumeDown, RokuPowerOff, RokuPowerOn,
	RokuVolumeMute,
}

var rokuKeys = map[domain.Command]string{
	domain.CommandHome:       RokuHome,
	domain.CommandBack:       RokuBack,
	domain.CommandUp:         RokuUp,
	domain.CommandDown:       RokuDown,
	domain.CommandLeft:       RokuLeft,
	domain.CommandRight:      RokuRight,
	domain.CommandOK:         RokuSelect,
	domain.CommandPlay:       RokuPlay,
	domain.CommandPause:      RokuPause,
	domain.CommandVolumeUp:   RokuVolumeUp,
	domain.CommandVolumeDown: RokuVolumeDown,
	domain.CommandPower:      RokuPowerOff,
}

// Fire TV key-event names, ADB style.
var fireTVKeys = map[domain.Command]string{
	domain.CommandHome:       "HOME",
	domain.CommandBack:       "BACK",
	domain.CommandUp:         "UP",
	domain.CommandDown:       "DOWN",
	domain.CommandLeft:       "LEFT",
	domain.CommandRight:      "RIGHT",
	domain.CommandOK:         "CENTER",
	domain.CommandPlay:       "PLAY",
	domain.CommandPause:      "PAUSE",
	domain.CommandVolumeUp:   "VOLUME_UP",
	domain.CommandVolumeDown: "VOLUME_DOWN",
	domain.CommandPower:      "POWER",
}

// Fire TV commands the media-only adapter can actually carry out.
var fireTVAdapterCommands = map[domain.Command]struct{}{
	domain.CommandPlay:  {},
	domain.CommandPause: {},
}

// Lookup returns the backend key for cmd, or false when the backend has no entry.
func Lookup(cmd domain.Command, backend domain.Backend) (string, bool) {
	switch backend {
	case domain.BackendRoku:
		key, ok := rokuKeys[cmd]
		return key, ok
	case domain.BackendFireTV:
		key, ok := fireTVKeys[cmd]
		return key, ok
	default:
		return "", false
	}
}

// FireTVAdapterSupports reports whether the Fire TV adapter forwards cmd.
// The key-event table is complete, but the adapter only speaks media control.
func FireTVAdapterSupports(cmd domain.Command) bool {
	_, ok := fireTVAdapterCommands[cmd]
	return ok
}

// IsRokuKey reports whether key belongs to the ECP vocabulary.
func IsRokuKey(key string) bool {
	for _, k := range RokuVocabulary {
		if k == key {
			return true
		}
	}
	return false
}
