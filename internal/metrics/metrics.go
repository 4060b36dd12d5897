// Package metrics exposes instantiation and device memory figures to
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/mechpack/internal/device"
)

// Metrics owns a private registry, one per cell group.
type Metrics struct {
	registry *prometheus.Registry

	instantiations *prometheus.CounterVec
	instances      prometheus.Gauge
	initDuration   prometheus.Histogram
}

// New registers the collectors. When dev reports its allocation size, a
// device bytes gauge is exported too.
func New(dev device.Device) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		instantiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mechpack",
			Name:      "instantiations_total",
			Help:      "Mechanism instantiations by mechanism and outcome.",
		}, []string{"mechanism", "outcome"}),
		instances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mechpack",
			Name:      "instances",
			Help:      "Live mechanism instances.",
		}),
		initDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mechpack",
			Name:      "initialize_seconds",
			Help:      "Time to initialise every instance of a cell group.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
	}
	m.registry.MustRegister(m.instantiations, m.instances, m.initDuration, collectors.NewGoCollector())
	if acct, ok := dev.(device.Accountant); ok {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "mechpack",
			Name:        "device_bytes",
			Help:        "Bytes currently allocated on the device.",
			ConstLabels: prometheus.Labels{"device": dev.Name()},
		}, func() float64 { return float64(acct.BytesInUse()) }))
	}
	return m
}

// ObserveInstantiate counts one instantiation attempt.
func (m *Metrics) ObserveInstantiate(mechanism string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		m.instances.Inc()
	}
	m.instantiations.WithLabelValues(mechanism, outcome).Inc()
}

func (m *Metrics) ObserveClose(n int) {
	if m == nil {
		return
	}
	m.instances.Sub(float64(n))
}

func (m *Metrics) ObserveInitialize(d time.Duration) {
	if m == nil {
		return
	}
	m.initDuration.Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
