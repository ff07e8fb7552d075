package bus

// Queue names.
const (
	ToNetworkName = "to-network"
	ToSerialName  = "to-serial"
)

// Bus is the full-duplex channel between the two engines of one process.
// The serial engine pushes to ToNetwork and pops from ToSerial; the network
// engine does the opposite.
type Bus struct {
	ToNetwork *Queue
	ToSerial  *Queue
}

// New creates both directions with the same options.
func New(opts Options) *Bus {
	return &Bus{
		ToNetwork: NewQueue(ToNetworkName, opts),
		ToSerial:  NewQueue(ToSerialName, opts),
	}
}

// Close closes both directions.
func (b *Bus) Close() {
	b.ToNetwork.Close()
	b.ToSerial.Close()
}
