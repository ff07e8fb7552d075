package relay

// Observer is notified of engine activity. Implementations must be safe for
// concurrent use; calls happen on the engine's goroutines.
type Observer interface {
	StateChanged(link, state string)
	PacketIn(link string, size int)  // received from the link
	PacketOut(link string, size int) // sent on the link
	EpochFailed(link, class string)
}

// Observers fans every notification out to each element.
type Observers []Observer

func (o Observers) StateChanged(link, state string) {
	for _, x := range o {
		x.StateChanged(link, state)
	}
}

func (o Observers) PacketIn(link string, size int) {
	for _, x := range o {
		x.PacketIn(link, size)
	}
}

func (o Observers) PacketOut(link string, size int) {
	for _, x := range o {
		x.PacketOut(link, size)
	}
}

func (o Observers) EpochFailed(link, class string) {
	for _, x := range o {
		x.EpochFailed(link, class)
	}
}
