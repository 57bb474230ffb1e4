// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "powd"

// Metrics exposes the activity of the prover.  A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	loops             prometheus.Counter
	proofsFound       prometheus.Counter
	proofsCanceled    prometheus.Counter
	nearMisses        prometheus.Counter
	submissionsFailed prometheus.Counter
	hashRate          prometheus.Gauge
	computing         prometheus.Gauge
}

// NewMetrics registers the prover metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		loops: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "prover",
			Name:      "loops_total",
			Help:      "Number of rounds run by the permanent prover.",
		}),
		proofsFound: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "prover",
			Name:      "proofs_found_total",
			Help:      "Number of proofs found.",
		}),
		proofsCanceled: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "prover",
			Name:      "proofs_canceled_total",
			Help:      "Number of proof computations canceled.",
		}),
		nearMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "prover",
			Name:      "near_misses_total",
			Help:      "Number of hashes with at least two leading zeros that missed the target.",
		}),
		submissionsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "prover",
			Name:      "self_submissions_failed_total",
			Help:      "Number of proven blocks rejected by the node.",
		}),
		hashRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "prover",
			Name:      "hash_rate",
			Help:      "Tests per second of the last proof found.",
		}),
		computing: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "prover",
			Name:      "computing",
			Help:      "Whether a proof computation is in progress.",
		}),
	}
}

func (m *Metrics) loop() {
	if m != nil {
		m.loops.Inc()
	}
}

func (m *Metrics) found(testsPerSecond float64) {
	if m != nil {
		m.proofsFound.Inc()
		m.hashRate.Set(testsPerSecond)
	}
}

func (m *Metrics) canceled() {
	if m != nil {
		m.proofsCanceled.Inc()
	}
}

func (m *Metrics) nearMiss() {
	if m != nil {
		m.nearMisses.Inc()
	}
}

func (m *Metrics) submissionFailed() {
	if m != nil {
		m.submissionsFailed.Inc()
	}
}

func (m *Metrics) setComputing(computing bool) {
	if m == nil {
		return
	}
	if computing {
		m.computing.Set(1)
		return
	}
	m.computing.Set(0)
}
