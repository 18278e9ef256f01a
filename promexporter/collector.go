// Package promexporter exposes the latest highstate snapshot in the
// Prometheus text exposition format.
package promexporter

import (
	"sort"

	exporter "github.com/danweinerdev/saltstack-exporter"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metric names.
const (
	StatesTotalName   = "saltstack_states_total"
	NonHighStatesName = "saltstack_nonhigh_states"
	ErrorStatesName   = "saltstack_error_states"
	LastHighstateName = "saltstack_last_highstate"
)

// Family describes one metric family independently of any sample value.
type Family struct {
	Name string
	Help string
	Type dto.MetricType
}

func (f Family) desc() *prometheus.Desc {
	return prometheus.NewDesc(f.Name, f.Help, nil, nil)
}

var catalog = []Family{
	{
		Name: StatesTotalName,
		Help: "Number of states which apply to the minion in highstate",
		Type: dto.MetricType_GAUGE,
	},
	{
		Name: NonHighStatesName,
		Help: "Number of states which would change on state.highstate",
		Type: dto.MetricType_GAUGE,
	},
	{
		Name: ErrorStatesName,
		Help: "Number of states which returns an error on highstate dry-run",
		Type: dto.MetricType_GAUGE,
	},
	{
		Name: LastHighstateName,
		Help: "Timestamp of the last highstate test run",
		Type: dto.MetricType_COUNTER,
	},
}

// Catalog returns the metric families the exporter serves, sorted by name.
func Catalog() []Family {
	out := make([]Family, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SnapshotSource is the read side of exporter.Store.
type SnapshotSource interface {
	Load() exporter.Snapshot
}

// Collector is a prometheus.Collector over a snapshot source. Describe
// always reports the full catalog; Collect emits samples only once a
// successful run has been published.
type Collector struct {
	source SnapshotSource

	statesTotal   *prometheus.Desc
	nonHighStates *prometheus.Desc
	errorStates   *prometheus.Desc
	lastHighstate *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source SnapshotSource) *Collector {
	return &Collector{
		source:        source,
		statesTotal:   catalog[0].desc(),
		nonHighStates: catalog[1].desc(),
		errorStates:   catalog[2].desc(),
		lastHighstate: catalog[3].desc(),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.statesTotal
	ch <- c.nonHighStates
	ch <- c.errorStates
	ch <- c.lastHighstate
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Load()
	if !snap.Valid {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.statesTotal, prometheus.GaugeValue, float64(snap.TotalStates))
	ch <- prometheus.MustNewConstMetric(c.nonHighStates, prometheus.GaugeValue, float64(snap.NonHighStates))
	ch <- prometheus.MustNewConstMetric(c.errorStates, prometheus.GaugeValue, float64(snap.ErrorStates))
	ch <- prometheus.MustNewConstMetric(c.lastHighstate, prometheus.CounterValue, float64(snap.LastRunUnix))
}

// Compile-time check.
var _ prometheus.Collector = (*Collector)(nil)
