package domain

import "strings"

// DefaultFlingServiceID is the player service id the vendor SDK ships as its default.
const DefaultFlingServiceID = "amzn.thin.pl"

// Favorite is a Roku channel or input shortcut.
type Favorite struct {
	Label string `json:"label"`
	AppID string `json:"app_id"`
}

// Settings is a read-only snapshot of the user's persisted preferences.
// Values are passed by value; the core never writes back into one.
type Settings struct {
	RokuAddress      string     `json:"roku_address"`
	FireTVReceiverID string     `json:"firetv_receiver_id"`
	FlingServiceID   string     `json:"fling_service_id"`
	LastMode         Mode       `json:"last_mode"`
	Favorites        []Favorite `json:"favorites"`
	FireTVInput      string     `json:"firetv_input"`
}

// DefaultSettings is what a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		FlingServiceID: DefaultFlingServiceID,
		LastMode:       ModeRoku,
		Favorites:      []Favorite{},
	}
}

func (s Settings) HasRokuAddress() bool {
	return strings.TrimSpace(s.RokuAddress) != ""
}

func (s Settings) HasReceiver() bool {
	return strings.TrimSpace(s.FireTVReceiverID) != ""
}

// FavoriteLabel returns the label saved for appID, or "" when none matches.
func (s Settings) FavoriteLabel(appID string) string {
	for _, fav := range s.Favorites {
		if fav.AppID == appID {
			return fav.Label
		}
	}
	return ""
}
