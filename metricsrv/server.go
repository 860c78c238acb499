// Package metricsrv serves the Prometheus scrape endpoint and samples
// scheduler health.
package metricsrv

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var loopLag = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "event_loop_lag_seconds",
	Help: "gauge of scheduler lag sampled by a background timer probe",
})

const lagProbeInterval = 500 * time.Millisecond

// Server exposes /metrics on a configurable port.
type Server struct {
	Port int

	http *http.Server
}

// Start binds the listener and serves until ctx is done. The lag
// probe runs for the server's lifetime.
func (s *Server) Start(ctx context.Context) error {
	var mux = http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	var listener, err = net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("binding metrics listener: %w", err)
	}
	s.http = &http.Server{Handler: mux}

	go probeLag(ctx)
	go func() {
		<-ctx.Done()
		var shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", listener.Addr()).Info("serving metrics")
	if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// probeLag samples the drift between a timer's expected and actual
// wake-up, a proxy for scheduler saturation.
func probeLag(ctx context.Context) {
	var ticker = time.NewTicker(lagProbeInterval)
	defer ticker.Stop()

	var expected = time.Now().Add(lagProbeInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var lag = now.Sub(expected)
			if lag < 0 {
				lag = 0
			}
			loopLag.Set(lag.Seconds())
			expected = now.Add(lagProbeInterval)
		}
	}
}
