package domain

// RokuDevice is one answer to an SSDP roku:ecp search.
type RokuDevice struct {
	Address      string `json:"address"`
	Location     string `json:"location"`
	FriendlyName string `json:"friendly_name,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
}

// DisplayName prefers the advertised friendly name.
func (d RokuDevice) DisplayName() string {
	switch {
	case d.FriendlyName != "":
		return d.FriendlyName
	case d.ModelName != "":
		return d.ModelName
	default:
		return "Roku " + d.Address
	}
}

// Receiver is a Fire TV playback target. Identity is ID.
type Receiver struct {
	ID           string `json:"id"`
	FriendlyName string `json:"friendly_name"`
	Address      string `json:"address,omitempty"`
}

// PlaybackState is the adapter's local mirror of what the receiver is doing.
type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
)
