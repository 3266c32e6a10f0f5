package mqtt

// ConnState is the broker connection state.
type ConnState int

// Connection states. The cycle is offline → connecting → online →
// offline.
const (
	StateOffline ConnState = iota
	StateConnecting
	StateOnline
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	default:
		return "offline"
	}
}
