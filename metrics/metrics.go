// Copyright (c) 2025 BVK Chaitanya

// Package metrics defines the prometheus collectors exported by the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbtrader_gateway_requests_total",
			Help: "Requests sent to the gateway by method.",
		},
		[]string{"method"},
	)

	GatewayFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbtrader_gateway_frames_total",
			Help: "Frames received from the gateway by type.",
		},
		[]string{"type"},
	)

	ProtocolFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbtrader_protocol_faults_total",
			Help: "Protocol faults by kind.",
		},
		[]string{"kind"},
	)

	ConnectionDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbtrader_gateway_connection_drops_total",
			Help: "Unexpected gateway connection drops.",
		},
	)

	FetchResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbtrader_fetch_results_total",
			Help: "Fetch coordinator per-request outcomes.",
		},
		[]string{"method", "outcome"},
	)

	FetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbtrader_fetch_latency_seconds",
			Help:    "Fetch coordinator per-request latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"method"},
	)

	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbtrader_orders_placed_total",
			Help: "Orders placed or replaced by role and outcome.",
		},
		[]string{"role", "outcome"},
	)

	StopAdjustments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbtrader_stop_adjustments_total",
			Help: "Trailing stop tightening modifications.",
		},
	)

	EngineState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbtrader_engine_state",
			Help: "Current engine state as an ordinal.",
		},
	)

	GexEstimates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbtrader_gex_estimates_total",
			Help: "Gamma exposure estimates by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	ProcessRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbtrader_process_rss_bytes",
			Help: "Resident set size of the engine process.",
		},
	)

	ProcessCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbtrader_process_cpu_percent",
			Help: "CPU usage percent of the engine process.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		GatewayRequests,
		GatewayFrames,
		ProtocolFaults,
		ConnectionDrops,
		FetchResults,
		FetchLatency,
		OrdersPlaced,
		StopAdjustments,
		EngineState,
		GexEstimates,
		ProcessRSS,
		ProcessCPU,
	)
}
