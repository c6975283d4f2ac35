package observability

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/AegisGate/internal/ports"
)

// PromObs implements ports.Observability with slog and a Prometheus registry
// owned by one gateway instance.
type PromObs struct {
	log      *slog.Logger
	reg      *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

var counterHelp = map[string]string{
	"aegis_definitions_ingested_total": "Tag definitions accepted into the registry.",
	"aegis_definitions_rejected_total": "Tag definitions rejected as invalid or unresolvable.",
	"aegis_values_ingested_total":      "Tag values written to the value store.",
	"aegis_publish_total":              "Documents published to the broker.",
	"aegis_publish_errors_total":       "Broker publish attempts that failed to encode or send.",
	"aegis_forwarded_total":            "Documents written to the downstream sink.",
	"aegis_forward_dropped_total":      "Documents lost to queue overflow or sink failures.",
}

var gaugeHelp = map[string]string{
	"aegis_devices":              "Devices known to the registry.",
	"aegis_collections":          "Collections known to the registry.",
	"aegis_tags":                 "Tag definitions known to the registry.",
	"aegis_values":               "Tag ids with a stored value.",
	"aegis_forward_queue_length": "Documents waiting for the downstream sink.",
	"aegis_broker_connected":     "1 while the broker connection is up.",
}

// NewPromObs registers the gateway metrics on reg, or on a fresh registry
// when reg is nil. A nil logger falls back to slog.Default.
func NewPromObs(logger *slog.Logger, reg *prometheus.Registry) (*PromObs, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	p := &PromObs{
		log:      logger,
		reg:      reg,
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
		gauges:   make(map[string]prometheus.Gauge, len(gaugeHelp)),
		histos:   make(map[string]prometheus.Observer, 1),
	}

	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		if err := reg.Register(c); err != nil {
			return nil, err
		}
		p.counters[name] = c
	}
	for name, help := range gaugeHelp {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		if err := reg.Register(g); err != nil {
			return nil, err
		}
		p.gauges[name] = g
	}

	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aegis_publish_latency_seconds",
		Help:    "Time from connection hand-out to broker acknowledgement.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	if err := reg.Register(latency); err != nil {
		return nil, err
	}
	p.histos["aegis_publish_latency_seconds"] = latency

	return p, nil
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	args := attrs(fields)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	p.log.Error(msg, args...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	args := append(attrs(fields), slog.Bool("critical", true))
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	p.log.Error(msg, args...)
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

// Registry returns the registry the metrics live on.
func (p *PromObs) Registry() *prometheus.Registry {
	return p.reg
}

// Handler serves this instance's metrics in the Prometheus text format.
func (p *PromObs) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
