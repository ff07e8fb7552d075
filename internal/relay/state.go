package relay

import "fmt"

// State is the phase of an engine's reconnect cycle. There is no terminal
// state: an engine leaves Backoff for Discovering or Connecting until its
// context is cancelled.
type State int32

const (
	Discovering State = iota // locating the serial port (master only)
	Connecting               // opening the device or performing the handshake
	Relaying                 // an epoch is live
	Backoff                  // waiting before the next attempt
)

func (s State) String() string {
	switch s {
	case Discovering:
		return "discovering"
	case Connecting:
		return "connecting"
	case Relaying:
		return "relaying"
	case Backoff:
		return "backoff"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// States lists every state, for metrics that export one series per state.
var States = []State{Discovering, Connecting, Relaying, Backoff}
