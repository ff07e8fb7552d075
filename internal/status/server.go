package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/1ureka/ntusb/internal/relay"
	"github.com/1ureka/ntusb/internal/util"
)

// StateReporter is the part of a relay engine the readiness check needs.
type StateReporter interface {
	Name() string
	State() relay.State
}

// LinkCheck fails unless the engine is relaying.
func LinkCheck(e StateReporter) CheckFunc {
	return func(ctx context.Context) error {
		if s := e.State(); s != relay.Relaying {
			return fmt.Errorf("link %s is %s", e.Name(), s)
		}
		return nil
	}
}

// NewMux routes /metrics, /healthz, /readyz and /livez.
func NewMux(metrics http.Handler, checker *Checker) *http.ServeMux {
	mux := http.NewServeMux()
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	mux.HandleFunc("/healthz", checker.HealthHandler())
	mux.HandleFunc("/readyz", checker.ReadinessHandler())
	mux.HandleFunc("/livez", LivenessHandler())
	return mux
}

// Serve serves handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, log util.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start status server: %w", err)
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("status server listening", "addr", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
