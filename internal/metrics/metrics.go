// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は同期層のPrometheusメトリクスを収集する。
// ストア/コーディネーター/APIクライアントの各部分集合インターフェースを実装する。
type Collector struct {
	refreshSuccess      prometheus.Counter
	refreshFail         *prometheus.CounterVec
	mutationSuccess     *prometheus.CounterVec
	mutationFail        *prometheus.CounterVec
	sessionInvalidation prometheus.Counter
	httpStatus          *prometheus.CounterVec
	requestLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_refresh_success_total",
			Help: "フィード全量取得成功の合計数",
		}),
		refreshFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_refresh_fail_total",
			Help: "フィード全量取得失敗の合計数（理由別）",
		}, []string{"reason"}),
		mutationSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_mutation_success_total",
			Help: "ミューテーション成功の合計数（種別ごと）",
		}, []string{"kind"}),
		mutationFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_mutation_fail_total",
			Help: "ミューテーション失敗の合計数（種別・理由ごと）",
		}, []string{"kind", "reason"}),
		sessionInvalidation: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_session_invalidation_total",
			Help: "401応答によるセッション無効化の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_http_status_total",
			Help: "リモートAPIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedsync_request_latency_seconds",
			Help:    "リモートAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.refreshSuccess,
		c.refreshFail,
		c.mutationSuccess,
		c.mutationFail,
		c.sessionInvalidation,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordRefreshSuccess はフィード全量取得の成功を記録する。
func (c *Collector) RecordRefreshSuccess(postCount int) {
	c.refreshSuccess.Inc()
}

// RecordRefreshFailure はフィード全量取得の失敗を理由付きで記録する。
func (c *Collector) RecordRefreshFailure(reason string) {
	c.refreshFail.WithLabelValues(reason).Inc()
}

// RecordMutationSuccess はミューテーション成功を種別ごとに記録する。
func (c *Collector) RecordMutationSuccess(kind string) {
	c.mutationSuccess.WithLabelValues(kind).Inc()
}

// RecordMutationFailure はミューテーション失敗を種別・理由ごとに記録する。
func (c *Collector) RecordMutationFailure(kind, reason string) {
	c.mutationFail.WithLabelValues(kind, reason).Inc()
}

// RecordSessionInvalidation はセッション無効化を記録する。
func (c *Collector) RecordSessionInvalidation() {
	c.sessionInvalidation.Inc()
}

// RecordHTTPStatus はリモートAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリモートAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
