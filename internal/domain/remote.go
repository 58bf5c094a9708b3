package domain

// ErrorKind classifies a failed remote operation.
type ErrorKind string

const (
	// KindPrecondition: detected before any network call, never retried.
	KindPrecondition ErrorKind = "precondition"
	// KindTransport: timeout, refused, or unroutable.
	KindTransport ErrorKind = "transport"
	// KindProtocol: the device answered with a non-success status.
	KindProtocol ErrorKind = "protocol"
	// KindUnsupported: the active backend has no equivalent for the request.
	KindUnsupported ErrorKind = "unsupported"
	KindInternal    ErrorKind = "internal"
)

// RemoteError is the single error type surfaced to presentation layers.
// Message is written for the end user.
type RemoteError struct {
	Kind           ErrorKind      `json:"kind"`
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	StatusCode     int            `json:"status_code,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Err            error          `json:"-"`
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Outcome is the success half of a dispatch.
type Outcome struct {
	OK       bool          `json:"ok"`
	Message  string        `json:"message"`
	Backend  Backend       `json:"backend"`
	Key      string        `json:"key,omitempty"`
	Playback PlaybackState `json:"playback,omitempty"`
}

// LaunchRequest starts a Roku channel or switches to a Roku input
// ("12", "tvinput.hdmi1"). It is not a Command and ignores the active mode.
type LaunchRequest struct {
	AppID string `json:"app_id"`
	Label string `json:"label,omitempty"`
}
