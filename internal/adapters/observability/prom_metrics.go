package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

// PromObs backs ports.Observability with slog for events and Prometheus for
// metrics. Unknown metric names are ignored.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func newHistogram(name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
}

// NewPromObs registers the service metrics on reg, or on the default
// registerer when reg is nil.
func NewPromObs(logger *slog.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counters := map[string]prometheus.Counter{
		ports.MetricSamplesAccepted:       newCounter(ports.MetricSamplesAccepted, "Samples appended to the minutely store."),
		ports.MetricSamplesRejected:       newCounter(ports.MetricSamplesRejected, "Readings rejected by validation."),
		ports.MetricQueueDropped:          newCounter(ports.MetricQueueDropped, "Readings lost due to queue backpressure policies."),
		ports.MetricRollupKiosks:          newCounter(ports.MetricRollupKiosks, "Kiosk-days aggregated into daily statistics."),
		ports.MetricRollupFailures:        newCounter(ports.MetricRollupFailures, "Kiosk-days whose aggregation failed."),
		ports.MetricRollupEmpty:           newCounter(ports.MetricRollupEmpty, "Kiosk-days without samples."),
		ports.MetricRollupPublishFailures: newCounter(ports.MetricRollupPublishFailures, "Daily statistics that could not be published."),
		ports.MetricQueryKioskFailures:    newCounter(ports.MetricQueryKioskFailures, "Per-kiosk failures in fleet queries."),
		ports.MetricFetchSuccess:          newCounter(ports.MetricFetchSuccess, "Successful cooling unit polls."),
		ports.MetricFetchFailures:         newCounter(ports.MetricFetchFailures, "Failed cooling unit polls."),
		ports.MetricBreakerTransitions:    newCounter(ports.MetricBreakerTransitions, "Circuit breaker state transitions."),
	}
	gauges := map[string]prometheus.Gauge{
		ports.MetricQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ports.MetricQueueLength,
			Help: "Current number of readings buffered in the collector queue.",
		}),
	}
	histos := map[string]prometheus.Histogram{
		ports.MetricIngestLatency:  newHistogram(ports.MetricIngestLatency, "Latency of minutely store appends.", prometheus.ExponentialBuckets(0.001, 2, 12)),
		ports.MetricRollupDuration: newHistogram(ports.MetricRollupDuration, "Duration of a fleet rollup run.", prometheus.ExponentialBuckets(0.01, 2, 14)),
		ports.MetricFetchLatency:   newHistogram(ports.MetricFetchLatency, "Latency of a cooling unit read including retries.", prometheus.ExponentialBuckets(0.01, 2, 12)),
	}

	p := &PromObs{
		logger:   logger,
		counters: counters,
		gauges:   gauges,
		histos:   make(map[string]prometheus.Observer, len(histos)),
	}
	for _, c := range counters {
		reg.MustRegister(c)
	}
	for _, g := range gauges {
		reg.MustRegister(g)
	}
	for name, h := range histos {
		reg.MustRegister(h)
		p.histos[name] = h
	}
	return p
}

func attrs(fields []ports.Field, err error) []any {
	out := make([]any, 0, 2*len(fields)+2)
	if err != nil {
		out = append(out, "error", err)
	}
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields, nil)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.logger.Warn(msg, attrs(fields, nil)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, attrs(fields, err)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields, err), "critical", true)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

var _ ports.Observability = (*PromObs)(nil)
