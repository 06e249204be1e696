// 包 metrics：围栏解析相关的 Prometheus 指标；由调用方注入 Registerer，测试可使用独立注册表
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000}

// Collector：集中持有指标；方法对 nil 接收者安全，未启用指标时可直接传 nil
type Collector struct {
	gatherer prometheus.Gatherer

	Requests           *prometheus.CounterVec
	DurationMs         *prometheus.HistogramVec
	Candidates         *prometheus.HistogramVec
	EmptyResults       *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	CheckerEvaluations *prometheus.CounterVec
	CheckerUnsupported *prometheus.CounterVec
	CacheHits          *prometheus.CounterVec
	CacheMisses        prometheus.Counter
	TrackerEvents      *prometheus.CounterVec
	PublishFailures    prometheus.Counter
}

// New：在 reg 上注册全部指标，reg 为 nil 时使用全局注册表
// 约束：重复注册同名指标时复用已存在的实例，便于同进程多次构造
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{gatherer: prometheus.DefaultGatherer}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	var err error
	if c.Requests, err = counterVec(reg, "geozone_resolve_requests_total", "Total resolver operations by op", "op"); err != nil {
		return nil, err
	}
	if c.DurationMs, err = histogramVec(reg, "geozone_resolve_duration_ms", "Resolver operation duration in milliseconds", msBuckets, "op"); err != nil {
		return nil, err
	}
	if c.Candidates, err = histogramVec(reg, "geozone_candidates", "Candidate rows returned by the bounding-box prefilter", []float64{0, 1, 2, 5, 10, 20, 50, 100, 500}, "op"); err != nil {
		return nil, err
	}
	if c.EmptyResults, err = counterVec(reg, "geozone_empty_results_total", "Resolver operations with zero matches", "op"); err != nil {
		return nil, err
	}
	if c.StoreErrors, err = counterVec(reg, "geozone_store_errors_total", "Store lookups that failed", "op"); err != nil {
		return nil, err
	}
	if c.CheckerEvaluations, err = counterVec(reg, "geozone_checker_evaluations_total", "Precise containment tests by zone type and result", "type", "result"); err != nil {
		return nil, err
	}
	if c.CheckerUnsupported, err = counterVec(reg, "geozone_checker_unsupported_total", "Candidates skipped because no checker is installed", "type"); err != nil {
		return nil, err
	}
	if c.CacheHits, err = counterVec(reg, "geozone_cache_hits_total", "Candidate cache hits by layer", "layer"); err != nil {
		return nil, err
	}
	if c.CacheMisses, err = counter(reg, "geozone_cache_misses_total", "Candidate cache misses"); err != nil {
		return nil, err
	}
	if c.TrackerEvents, err = counterVec(reg, "geozone_tracker_events_total", "Arrival/departure events emitted", "event"); err != nil {
		return nil, err
	}
	if c.PublishFailures, err = counter(reg, "geozone_tracker_publish_failures_total", "Tracker events that failed to publish"); err != nil {
		return nil, err
	}
	return c, nil
}

// ObserveResolve：记录一次解析调用
func (c *Collector) ObserveResolve(op string, d time.Duration, candidates, matches int, err error) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(op).Inc()
	c.DurationMs.WithLabelValues(op).Observe(float64(d.Milliseconds()))
	if err != nil {
		c.StoreErrors.WithLabelValues(op).Inc()
		return
	}
	c.Candidates.WithLabelValues(op).Observe(float64(candidates))
	if matches == 0 {
		c.EmptyResults.WithLabelValues(op).Inc()
	}
}

func (c *Collector) CheckerEvaluated(zoneType string, hit bool) {
	if c == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	c.CheckerEvaluations.WithLabelValues(zoneType, res).Inc()
}

func (c *Collector) CheckerMissing(zoneType string) {
	if c == nil {
		return
	}
	c.CheckerUnsupported.WithLabelValues(zoneType).Inc()
}

func (c *Collector) CacheHit(layer string) {
	if c == nil {
		return
	}
	c.CacheHits.WithLabelValues(layer).Inc()
}

func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.CacheMisses.Inc()
}

func (c *Collector) TrackerEvent(kind string) {
	if c == nil {
		return
	}
	c.TrackerEvents.WithLabelValues(kind).Inc()
}

func (c *Collector) PublishFailed() {
	if c == nil {
		return
	}
	c.PublishFailures.Inc()
}

// 文档注释：返回 Prometheus 指标处理器
// 背景：在主入口挂载到 /metrics，只暴露本 Collector 所在注册表。
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func counter(reg prometheus.Registerer, name, help string) (prometheus.Counter, error) {
	m := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	if err := reg.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return m, nil
}

func counterVec(reg prometheus.Registerer, name, help string, labels ...string) (*prometheus.CounterVec, error) {
	m := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	if err := reg.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return m, nil
}

func histogramVec(reg prometheus.Registerer, name, help string, buckets []float64, labels ...string) (*prometheus.HistogramVec, error) {
	m := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	if err := reg.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return m, nil
}
