package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"feed-translator/internal/cache"
)

const metricsNamespace = "feed_translator"

// Metrics 同步流程的 Prometheus 指标。nil 时所有方法为空操作
type Metrics struct {
	stages        *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	characters    *prometheus.CounterVec
	syncDuration  *prometheus.HistogramVec
}

// NewMetrics 在 reg 上注册指标；c 不为空时额外导出缓存命中统计
func NewMetrics(reg prometheus.Registerer, c *cache.Cache) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		stages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stage_total",
			Help:      "Sync stage outcomes by stage and result.",
		}, []string{"stage", "result"}),
		providerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "provider_calls_total",
			Help:      "Provider call attempts by engine kind, operation and result.",
		}, []string{"kind", "op", "result"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tokens_total",
			Help:      "Tokens billed by providers, per feed.",
		}, []string{"feed"}),
		characters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "characters_total",
			Help:      "Characters billed by providers, per feed.",
		}, []string{"feed"}),
		syncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of a full feed sync.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"bucket"}),
	}
	if c != nil {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_hits_total",
			Help:      "Cache lookups answered without calling a provider.",
		}, func() float64 { return float64(c.Stats().Hits) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that required a provider call.",
		}, func() float64 { return float64(c.Stats().Misses) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_errors_total",
			Help:      "Cache backend errors treated as misses.",
		}, func() float64 { return float64(c.Stats().Errors) })
	}
	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) Stage(stage string, ok bool) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage, result(ok)).Inc()
}

func (m *Metrics) ProviderCall(kind, op string, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(kind, op, result(err == nil)).Inc()
}

func (m *Metrics) AddCost(feed string, c Cost) {
	if m == nil {
		return
	}
	if c.Tokens > 0 {
		m.tokens.WithLabelValues(feed).Add(float64(c.Tokens))
	}
	if c.Characters > 0 {
		m.characters.WithLabelValues(feed).Add(float64(c.Characters))
	}
}

func (m *Metrics) ObserveSync(bucket string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.WithLabelValues(bucket).Observe(d.Seconds())
}
