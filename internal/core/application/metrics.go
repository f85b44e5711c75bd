package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "roundd"

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "transitions_total",
		Help:      "Round transitions committed by this instance.",
	}, []string{"transition"})

	keepAlivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "keepalives_total",
		Help:      "Keep-alive actions by outcome.",
	}, []string{"outcome"})

	staleGuardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "stale_guards_total",
		Help:      "Conditional writes lost to a concurrent writer.",
	}, []string{"op"})

	creditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "credits_total",
		Help:      "Ledger credits by kind and final status.",
	}, []string{"kind", "status"})

	settlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "settlements_total",
		Help:      "Rounds settled by this instance.",
	})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "tick_duration_seconds",
		Help:      "Duration of a single round tick, settlement included.",
		Buckets:   prometheus.DefBuckets,
	})
)
