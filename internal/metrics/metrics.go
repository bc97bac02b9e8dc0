// Package metrics exposes gateway and messaging collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OnlineConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobchat",
			Subsystem: "gateway",
			Name:      "online_connections",
			Help:      "Number of open push channel connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobchat",
			Subsystem: "gateway",
			Name:      "online_users",
			Help:      "Number of users with at least one open connection",
		},
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobchat",
			Subsystem: "gateway",
			Name:      "active_subscriptions",
			Help:      "Number of (connection, topic) subscriptions",
		},
	)

	SubscribeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobchat",
			Subsystem: "gateway",
			Name:      "subscribe_total",
			Help:      "Subscribe requests by topic kind and outcome",
		},
		[]string{"kind", "status"},
	)

	PushedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobchat",
			Subsystem: "gateway",
			Name:      "pushed_events_total",
			Help:      "Events written to client connections",
		},
		[]string{"kind"},
	)

	DroppedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobchat",
			Subsystem: "gateway",
			Name:      "dropped_events_total",
			Help:      "Events dropped before reaching a connection",
		},
		[]string{"reason"},
	)

	BrokerPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobchat",
			Subsystem: "broker",
			Name:      "publish_total",
			Help:      "Events published to the fan-out broker",
		},
		[]string{"status"},
	)
)

// Handler returns the prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve runs the scrape endpoint on its own listener until ctx is cancelled
func Serve(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening on :%d", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics server failed: %v", err)
	}
}
