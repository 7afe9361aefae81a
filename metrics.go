// metrics.go: Prometheus metrics fed from the lifecycle event channel
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver turns lifecycle events into Prometheus metrics. It holds
// no reference to the manager; everything it records arrives through
// Subscribe.
type MetricsObserver struct {
	EventsTotal  *prometheus.CounterVec
	Running      prometheus.Gauge
	LoadDuration prometheus.Histogram
}

// NewMetricsObserver creates the collectors and registers them with reg.
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	o := &MetricsObserver{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plughost_events_total",
				Help: "Total number of plugin lifecycle events",
			},
			[]string{"kind"},
		),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plughost_plugins_running",
			Help: "Number of plugins currently loaded",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plughost_load_duration_seconds",
			Help:    "Time taken to load a plugin",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{o.EventsTotal, o.Running, o.LoadDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Observe records e.
func (o *MetricsObserver) Observe(e Event) {
	o.EventsTotal.WithLabelValues(e.Kind.String()).Inc()
	switch e.Kind {
	case EventLoaded:
		o.Running.Inc()
		o.LoadDuration.Observe(e.Duration.Seconds())
	case EventUnloaded:
		o.Running.Dec()
	}
}

// Attach subscribes the observer to m and returns the unsubscribe function.
func (o *MetricsObserver) Attach(m *Manager) func() {
	return m.Subscribe(o.Observe)
}
