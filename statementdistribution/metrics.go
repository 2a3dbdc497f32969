// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	errStatementsVectorMetrics = fmt.Errorf("failed to register statements vector metrics")
	errReportsVectorMetrics    = fmt.Errorf("failed to register peer-report vector metrics")

	freshnessLabel = "freshness"
	freshLabel     = prometheus.Labels{freshnessLabel: "fresh"}
	redundantLabel = prometheus.Labels{freshnessLabel: "redundant"}
)

// Metrics holds the Prometheus collectors for one Engine instance.
type Metrics struct {
	freshStatements     prometheus.Counter
	redundantStatements prometheus.Counter

	reportsByReason *prometheus.CounterVec

	outstandingRequests prometheus.Gauge
	relayParentsActive  prometheus.Gauge
	sessionsActive      prometheus.Gauge
}

// NewMetrics constructs and registers the engine's collectors against reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	statementsVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statement_distribution_statements_total",
		Help: "Total number of signed statements accepted, by freshness",
	}, []string{freshnessLabel})
	if err := reg.Register(statementsVec); err != nil {
		return nil, fmt.Errorf("%w: %w", errStatementsVectorMetrics, err)
	}

	reportsByReason := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statement_distribution_peer_reports_total",
		Help: "Total number of reputation changes applied to peers, by reason",
	}, []string{"reason"})
	if err := reg.Register(reportsByReason); err != nil {
		return nil, fmt.Errorf("%w: %w", errReportsVectorMetrics, err)
	}

	outstandingRequests := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "statement_distribution_outstanding_requests",
		Help: "Number of candidate fetches currently queued in the request manager",
	})
	if err := reg.Register(outstandingRequests); err != nil {
		return nil, fmt.Errorf("failed to register outstanding-requests gauge: %w", err)
	}

	relayParentsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "statement_distribution_relay_parents_active",
		Help: "Number of relay-parents currently tracked",
	})
	if err := reg.Register(relayParentsActive); err != nil {
		return nil, fmt.Errorf("failed to register active-relay-parents gauge: %w", err)
	}

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "statement_distribution_sessions_active",
		Help: "Number of sessions with live per-session state",
	})
	if err := reg.Register(sessionsActive); err != nil {
		return nil, fmt.Errorf("failed to register active-sessions gauge: %w", err)
	}

	return &Metrics{
		freshStatements:     statementsVec.With(freshLabel),
		redundantStatements: statementsVec.With(redundantLabel),
		reportsByReason:     reportsByReason,
		outstandingRequests: outstandingRequests,
		relayParentsActive:  relayParentsActive,
		sessionsActive:      sessionsActive,
	}, nil
}

func (m *Metrics) onStatement(fresh bool) {
	if m == nil {
		return
	}
	if fresh {
		m.freshStatements.Inc()
	} else {
		m.redundantStatements.Inc()
	}
}

func (m *Metrics) onReport(reason string) {
	if m == nil {
		return
	}
	m.reportsByReason.WithLabelValues(reason).Inc()
}

func (m *Metrics) setOutstandingRequests(n int) {
	if m == nil {
		return
	}
	m.outstandingRequests.Set(float64(n))
}

func (m *Metrics) setRelayParentsActive(n int) {
	if m == nil {
		return
	}
	m.relayParentsActive.Set(float64(n))
}

func (m *Metrics) setSessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}
