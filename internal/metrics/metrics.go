// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// キャッシュ、AIクライアント、ミドルウェアから利用する。
type Recorder interface {
	RecordCacheLookup(namespace, result string)
	RecordAIRequest(operation, outcome string, duration time.Duration)
	RecordRateLimitRejection(policy string)
	RecordHTTPStatus(statusCode int)
}

// キャッシュ参照結果のラベル値
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheLookups       *prometheus.CounterVec
	aiRequests         *prometheus.CounterVec
	aiLatency          *prometheus.HistogramVec
	rateLimitRejection *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yhal_cache_lookups_total",
			Help: "名前空間と結果別のキャッシュ参照数",
		}, []string{"namespace", "result"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yhal_ai_requests_total",
			Help: "操作と結果別のAI呼び出し数",
		}, []string{"operation", "outcome"}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yhal_ai_latency_seconds",
			Help:    "AI呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"operation"}),
		rateLimitRejection: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yhal_rate_limit_rejections_total",
			Help: "ポリシー別のレート制限拒否数",
		}, []string{"policy"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yhal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.cacheLookups,
		c.aiRequests,
		c.aiLatency,
		c.rateLimitRejection,
		c.httpStatus,
	)

	return c
}

// RecordCacheLookup はキャッシュ参照結果を記録する。
func (c *Collector) RecordCacheLookup(namespace, result string) {
	c.cacheLookups.WithLabelValues(namespace, result).Inc()
}

// RecordAIRequest はAI呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordAIRequest(operation, outcome string, duration time.Duration) {
	c.aiRequests.WithLabelValues(operation, outcome).Inc()
	c.aiLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRateLimitRejection はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimitRejection(policy string) {
	c.rateLimitRejection.WithLabelValues(policy).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないRecorder。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordCacheLookup(string, string)              {}
func (Nop) RecordAIRequest(string, string, time.Duration) {}
func (Nop) RecordRateLimitRejection(string)               {}
func (Nop) RecordHTTPStatus(int)                          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
