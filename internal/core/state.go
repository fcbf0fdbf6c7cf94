package core

// SessionState is the user-visible connection status. Transitions are
// driven jointly by the session coordinator and the telemetry feed.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateSelfOffline
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSelfOffline:
		return "self_offline"
	default:
		return "unknown"
	}
}
