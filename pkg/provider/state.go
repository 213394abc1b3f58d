package provider

// State is the connection lifecycle state of a Provider. All transitions are
// serialized by the provider's mutex; callbacks from the transport and the
// public API never interleave mid-transition.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateDiscoveringServices
	StateDiscoveringCharacteristics
	StateSubscribing
	StateConnected
	StateReconnecting
)

var stateNames = map[State]string{
	StateIdle:                       "idle",
	StateScanning:                   "scanning",
	StateConnecting:                 "connecting",
	StateDiscoveringServices:        "discovering_services",
	StateDiscoveringCharacteristics: "discovering_characteristics",
	StateSubscribing:                "subscribing",
	StateConnected:                  "connected",
	StateReconnecting:               "reconnecting",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
