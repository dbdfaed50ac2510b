package prometheus

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/roleauth"
	"github.com/MrEthical07/roleauth/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() roleauth.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   roleauth.MetricID
	desc *prom.Desc
}

// Collector reads an engine snapshot on each Collect.
type Collector struct {
	source     metricsSource
	counters   []counterDesc
	histograms []counterDesc
	dropped    *prom.Desc
}

// NewCollector returns a Collector for engine.
func NewCollector(engine *roleauth.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource returns a Collector over any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]counterDesc, 0, len(internaldefs.HistogramDefs)),
		dropped:    prom.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.dropped
}

// Collect emits nothing while the engine has metrics disabled.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, d := range c.counters {
		ch <- prom.MustNewConstMetric(d.desc, prom.CounterValue, float64(snapshot.Counters[d.id]))
	}
	for _, d := range c.histograms {
		raw, ok := snapshot.Histograms[d.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// The snapshot carries no sum.
		ch <- prom.MustNewConstHistogram(d.desc, cumulative[internaldefs.BucketCount-1], 0, buckets)
	}
	ch <- prom.MustNewConstMetric(c.dropped, prom.CounterValue, float64(dropped))
}

// Registry returns a fresh registry holding c plus the Go runtime and
// process collectors.
func (c *Collector) Registry() *prom.Registry {
	reg := prom.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the text exposition format for Registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{})
}
