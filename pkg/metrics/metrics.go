// Package metrics exposes Prometheus instruments for the exchange core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "orders_placed_total",
		Help:      "Accepted order submissions by kind and side.",
	}, []string{"kind", "side"})

	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "orders_cancelled_total",
		Help:      "Successful order cancellations.",
	})

	FillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "fills_total",
		Help:      "Matches executed.",
	})

	QuoteVolume = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "quote_volume_total",
		Help:      "Traded volume in quote token units.",
	})

	OpenOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "spotdex",
		Name:      "open_orders",
		Help:      "Orders currently resting across all books.",
	})

	PairsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "pairs_registered_total",
		Help:      "Trading pairs added.",
	})
)

// StartServer serves /metrics on addr in the background.
func StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
