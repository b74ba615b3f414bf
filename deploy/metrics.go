// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deploy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts task runs. A nil *Metrics records nothing.
type Metrics struct {
	reg      *prometheus.Registry
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

// NewMetrics returns Metrics in their own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trydeploy",
			Name:      "task_duration_seconds",
			Help:      "Time spent in a deployment task, including the tasks it runs.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"task"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trydeploy",
			Name:      "task_runs_total",
			Help:      "Deployment task runs by outcome.",
		}, []string{"task", "outcome"}),
	}
	m.reg.MustRegister(m.duration, m.runs)
	return m
}

// Gatherer returns the registry holding the metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.reg
}

// WriteTextfile writes the metrics in the text format, for the node
// exporter's textfile collector.
func (m *Metrics) WriteTextfile(file string) error {
	return prometheus.WriteToTextfile(file, m.reg)
}

func (m *Metrics) observe(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.duration.WithLabelValues(task).Observe(d.Seconds())
	m.runs.WithLabelValues(task, outcome).Inc()
}
