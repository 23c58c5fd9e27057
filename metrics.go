/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "screenlink"

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Path, hint and validate queries by outcome",
		},
		[]string{"query", "outcome"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "Wall-clock time spent answering a query",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"query"},
	)

	pathHops = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "path_hops",
			Help:      "Productions crossed by shortest paths found",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6},
		},
	)

	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Credit source calls by method and status",
		},
		[]string{"source", "method", "status"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Latency of credit source calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source", "method"},
	)

	activeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "versus",
			Name:      "active_rooms",
			Help:      "Versus rooms currently held in memory",
		},
	)
)

func observeQuery(query, outcome string, began time.Time) {
	queriesTotal.WithLabelValues(query, outcome).Inc()
	queryDuration.WithLabelValues(query).Observe(time.Since(began).Seconds())
}

func observePathHops(hops int) {
	pathHops.Observe(float64(hops))
}

func observeUpstream(source, method string, status int, began time.Time) {
	upstreamRequests.WithLabelValues(source, method, strconv.Itoa(status)).Inc()
	upstreamDuration.WithLabelValues(source, method).Observe(time.Since(began).Seconds())
}

func registerMetricsHandler(cfg *Config, mux *httprouter.Router) {
	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.Handler())
}
