// Package metrics exposes prometheus collectors for the tree engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/menutree/internal/menutree"
)

// Rebuild results.
const (
	rebuildApplied = "applied"
	rebuildStale   = "stale"
	rebuildFailed  = "failed"
)

// Metrics implements menutree.Observer on top of prometheus collectors.
type Metrics struct {
	reg *prometheus.Registry

	moves     *prometheus.CounterVec
	rebuilds  *prometheus.CounterVec
	anomalies prometheus.Gauge
	records   prometheus.Gauge
	inFlight  prometheus.Gauge
}

// Verify *Metrics satisfies menutree.Observer at compile time.
var _ menutree.Observer = (*Metrics)(nil)

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menutree",
			Name:      "moves_total",
			Help:      "Move requests by outcome.",
		}, []string{"result"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menutree",
			Name:      "rebuilds_total",
			Help:      "Forest rebuilds by outcome; stale replies are discarded.",
		}, []string{"result"}),
		anomalies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "menutree",
			Name:      "anomalies",
			Help:      "Records placed at top level because their parent could not be honoured.",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "menutree",
			Name:      "records",
			Help:      "Records in the current forest.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "menutree",
			Name:      "move_in_flight",
			Help:      "1 while a move is dispatching or rebuilding.",
		}),
	}
	reg.MustRegister(
		m.moves, m.rebuilds, m.anomalies, m.records, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// StateChanged tracks whether a move is in flight.
func (m *Metrics) StateChanged(_, to menutree.State) {
	switch to {
	case menutree.StateDispatching:
		m.inFlight.Set(1)
	case menutree.StateIdle:
		m.inFlight.Set(0)
	}
}

// Rebuilt records an applied rebuild.
func (m *Metrics) Rebuilt(snap menutree.Snapshot) {
	m.rebuilds.WithLabelValues(rebuildApplied).Inc()
	m.anomalies.Set(float64(len(snap.Anomalies)))
	m.records.Set(float64(len(snap.Records)))
}

// RebuildDiscarded records a rebuild overtaken by a newer one.
func (m *Metrics) RebuildDiscarded(uint64) {
	m.rebuilds.WithLabelValues(rebuildStale).Inc()
}

// RebuildFailed records a rebuild whose fetch failed.
func (m *Metrics) RebuildFailed(uint64, error) {
	m.rebuilds.WithLabelValues(rebuildFailed).Inc()
}

// MoveFinished counts a move by outcome.
func (m *Metrics) MoveFinished(res menutree.MoveResult, _ error) {
	result := string(res.Status)
	if res.Status == menutree.MoveNoOp {
		result = "noop"
	}
	m.moves.WithLabelValues(result).Inc()
}
