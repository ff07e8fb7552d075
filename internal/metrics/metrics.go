// Package metrics provides Prometheus instrumentation for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/ntusb/internal/bus"
	"github.com/1ureka/ntusb/internal/relay"
)

// Direction label values, relative to the link.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics holds the relay collectors and the registry they live in.
type Metrics struct {
	reg *prometheus.Registry

	Packets       *prometheus.CounterVec
	Bytes         *prometheus.CounterVec
	Epochs        *prometheus.CounterVec
	EpochFailures *prometheus.CounterVec
	LinkState     *prometheus.GaugeVec

	namespace string
}

// New creates the collectors in a fresh registry, together with the Go
// runtime and process collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ntusb"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		reg:       reg,
		namespace: namespace,
		Packets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packets_total",
				Help:      "Total number of packets relayed, by link and direction",
			},
			[]string{"link", "direction"},
		),
		Bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payload_bytes_total",
				Help:      "Total payload bytes relayed, by link and direction",
			},
			[]string{"link", "direction"},
		),
		Epochs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "epochs_total",
				Help:      "Total number of connection epochs started",
			},
			[]string{"link"},
		),
		EpochFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "epoch_failures_total",
				Help:      "Total number of failed attempts and epochs, by error class",
			},
			[]string{"link", "class"},
		),
		LinkState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "link_state",
				Help:      "1 for the current state of each link, 0 otherwise",
			},
			[]string{"link", "state"},
		),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveQueue exports the length and drop count of q.
func (m *Metrics) ObserveQueue(q *bus.Queue) {
	labels := prometheus.Labels{"queue": q.Name()}
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Name:        "queue_length",
			Help:        "Number of packets waiting on the bus",
			ConstLabels: labels,
		}, func() float64 { return float64(q.Len()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   m.namespace,
			Name:        "queue_dropped_total",
			Help:        "Total number of packets discarded by the overflow policy",
			ConstLabels: labels,
		}, func() float64 { return float64(q.Dropped()) }),
	)
}

// StateChanged implements relay.Observer.
func (m *Metrics) StateChanged(link, state string) {
	for _, s := range relay.States {
		v := 0.0
		if s.String() == state {
			v = 1
		}
		m.LinkState.WithLabelValues(link, s.String()).Set(v)
	}
	if state == relay.Relaying.String() {
		m.Epochs.WithLabelValues(link).Inc()
	}
}

// PacketIn implements relay.Observer.
func (m *Metrics) PacketIn(link string, size int) {
	m.Packets.WithLabelValues(link, DirectionIn).Inc()
	m.Bytes.WithLabelValues(link, DirectionIn).Add(float64(size))
}

// PacketOut implements relay.Observer.
func (m *Metrics) PacketOut(link string, size int) {
	m.Packets.WithLabelValues(link, DirectionOut).Inc()
	m.Bytes.WithLabelValues(link, DirectionOut).Add(float64(size))
}

// EpochFailed implements relay.Observer.
func (m *Metrics) EpochFailed(link, class string) {
	m.EpochFailures.WithLabelValues(link, class).Inc()
}

var _ relay.Observer = (*Metrics)(nil)
