package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/1ureka/ntusb/internal/bus"
	"github.com/1ureka/ntusb/internal/protocol"
)

func TestPacketCounters(t *testing.T) {
	m := New("test")

	m.PacketIn("serial", 4)
	m.PacketIn("serial", 6)
	m.PacketOut("network", 2)

	if got := testutil.ToFloat64(m.Packets.WithLabelValues("serial", DirectionIn)); got != 2 {
		t.Errorf("serial in packets: got %v", got)
	}
	if got := testutil.ToFloat64(m.Bytes.WithLabelValues("serial", DirectionIn)); got != 10 {
		t.Errorf("serial in bytes: got %v", got)
	}
	if got := testutil.ToFloat64(m.Packets.WithLabelValues("network", DirectionOut)); got != 1 {
		t.Errorf("network out packets: got %v", got)
	}
}

func TestStateGauge(t *testing.T) {
	m := New("test")

	m.StateChanged("serial", "connecting")
	m.StateChanged("serial", "relaying")

	testCases := []struct {
		state string
		want  float64
	}{
		{"discovering", 0},
		{"connecting", 0},
		{"relaying", 1},
		{"backoff", 0},
	}
	for _, tc := range testCases {
		t.Run(tc.state, func(t *testing.T) {
			if got := testutil.ToFloat64(m.LinkState.WithLabelValues("serial", tc.state)); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}

	if got := testutil.ToFloat64(m.Epochs.WithLabelValues("serial")); got != 1 {
		t.Errorf("epochs: got %v", got)
	}
}

func TestEpochFailures(t *testing.T) {
	m := New("test")
	m.EpochFailed("network", "connect")
	m.EpochFailed("network", "connect")
	m.EpochFailed("network", "io")

	if got := testutil.ToFloat64(m.EpochFailures.WithLabelValues("network", "connect")); got != 2 {
		t.Errorf("connect failures: got %v", got)
	}
	if got := testutil.CollectAndCount(m.EpochFailures); got != 2 {
		t.Errorf("series: got %d, want 2", got)
	}
}

func TestQueueMetricsAndHandler(t *testing.T) {
	m := New("test")
	q := bus.NewQueue(bus.ToSerialName, bus.Options{Size: 1, Policy: bus.DropNewest})
	m.ObserveQueue(q)

	q.Push(context.Background(), protocol.TextPacket("a"))
	q.Push(context.Background(), protocol.TextPacket("b"))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`test_queue_length{queue="to-serial"} 1`,
		`test_queue_dropped_total{queue="to-serial"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
