package push

import "strings"

// Signal is a server-pushed session instruction.
type Signal string

const (
	// ForceRefresh asks the client to renew its tokens now, regardless of
	// remaining lifetime.
	ForceRefresh Signal = "force-refresh"
	// ForceLogout asks the client to end its session.
	ForceLogout Signal = "force-logout"
)

// Message is the JSON frame exchanged on the wire.
type Message struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// ParseSignal maps a frame type, including legacy aliases, onto a Signal.
func ParseSignal(typ string) (Signal, bool) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case string(ForceRefresh), "refresh-token":
		return ForceRefresh, true
	case string(ForceLogout), "logout":
		return ForceLogout, true
	default:
		return "", false
	}
}
