// Package metrics 暴露生成网关与限流器的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 持有所有指标。nil 接收者上的方法都是空操作。
type Metrics struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	fallbacks   *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// New 创建一个使用独立注册表的 Metrics。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costsense_generations_total",
				Help: "Total number of generation requests by provider and outcome",
			},
			[]string{"provider", "outcome", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "costsense_generation_duration_seconds",
				Help:    "Duration of provider generation calls",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"provider"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costsense_fallbacks_total",
				Help: "Total number of fallback attempts against the default provider",
			},
			[]string{"from", "to"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costsense_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"provider"},
		),
	}
	m.registry.MustRegister(
		m.generations, m.duration, m.fallbacks, m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterConversationGauge 注册一个按需读取活跃会话数的指标。
func (m *Metrics) RegisterConversationGauge(count func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "costsense_active_conversations",
			Help: "Number of conversations held in memory",
		},
		count,
	))
}

// ObserveGeneration 记录一次供应商调用的结果与耗时。
func (m *Metrics) ObserveGeneration(provider string, success bool, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.generations.WithLabelValues(provider, outcome, kind).Inc()
	m.duration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveFallback 记录一次兜底调用。
func (m *Metrics) ObserveFallback(from, to string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(from, to).Inc()
}

// ObserveRateLimited 记录一次被限流的请求。
func (m *Metrics) ObserveRateLimited(provider string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(provider).Inc()
}

// Handler 返回 Prometheus 抓取接口。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
