package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1ureka/ntusb/internal/relay"
)

type fixedEngine struct {
	name  string
	state atomic.Int32
}

func newFixedEngine(name string, s relay.State) *fixedEngine {
	f := &fixedEngine{name: name}
	f.state.Store(int32(s))
	return f
}

func (f *fixedEngine) Name() string       { return f.name }
func (f *fixedEngine) State() relay.State { return relay.State(f.state.Load()) }

func TestCheckerCaches(t *testing.T) {
	c := NewChecker(time.Hour)
	calls := 0
	c.Register("counted", func(ctx context.Context) error {
		calls++
		return nil
	})

	for range 3 {
		if h, _ := c.Health(context.Background()); h != Healthy {
			t.Fatalf("got %s", h)
		}
	}
	if calls != 1 {
		t.Errorf("check ran %d times, want 1", calls)
	}
}

func TestCheckerDegraded(t *testing.T) {
	c := NewChecker(time.Nanosecond)
	c.Register("b-ok", func(ctx context.Context) error { return nil })
	c.Register("a-bad", func(ctx context.Context) error { return errors.New("down") })

	h, checks := c.Health(context.Background())
	if h != Degraded {
		t.Errorf("got %s, want degraded", h)
	}
	if len(checks) != 2 || checks[0].Name != "a-bad" || checks[0].Message != "down" {
		t.Errorf("checks: %+v", checks)
	}
}

func TestCheckerUnhealthy(t *testing.T) {
	c := NewChecker(time.Nanosecond)
	c.Register("a", func(ctx context.Context) error { return errors.New("down") })
	c.Register("b", func(ctx context.Context) error { return errors.New("down") })

	if h, _ := c.Health(context.Background()); h != Unhealthy {
		t.Errorf("got %s, want unhealthy", h)
	}
}

func TestCheckDurationInMilliseconds(t *testing.T) {
	c := NewChecker(time.Hour)
	c.Register("slow", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	_, checks := c.Health(context.Background())
	if ms := checks[0].DurationMS; ms < 20 || ms > 2000 {
		t.Errorf("duration_ms: got %d", ms)
	}

	rec := httptest.NewRecorder()
	c.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body struct {
		Checks []struct {
			DurationMS int64 `json:"duration_ms"`
		} `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Checks) != 1 || body.Checks[0].DurationMS != checks[0].DurationMS {
		t.Errorf("checks: %+v", body.Checks)
	}
}

func TestEndpoints(t *testing.T) {
	serial := newFixedEngine("serial", relay.Relaying)
	network := newFixedEngine("network", relay.Backoff)

	c := NewChecker(time.Nanosecond)
	c.Register("link:serial", LinkCheck(serial))
	c.Register("link:network", LinkCheck(network))

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metrics"))
	})
	srv := httptest.NewServer(NewMux(metrics, c))
	defer srv.Close()

	testCases := []struct {
		path string
		code int
		body string
	}{
		{"/metrics", http.StatusOK, "metrics"},
		{"/healthz", http.StatusOK, "link network is backoff"},
		{"/readyz", http.StatusServiceUnavailable, `"status":"degraded"`},
		{"/livez", http.StatusOK, "alive"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := srv.Client().Get(srv.URL + tc.path)
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if tc.path != "/metrics" && !json.Valid(body) {
				t.Errorf("invalid json: %s", body)
			}

			if resp.StatusCode != tc.code {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tc.code)
			}
			if !strings.Contains(string(body), tc.body) {
				t.Errorf("body %q should contain %q", body, tc.body)
			}
		})
	}

	// every link down
	serial.state.Store(int32(relay.Backoff))
	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("healthz with every link down: got %d", resp.StatusCode)
	}

	serial.state.Store(int32(relay.Relaying))
	network.state.Store(int32(relay.Relaying))
	resp, err = srv.Client().Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz after recovery: got %d", resp.StatusCode)
	}
}
