// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー層から利用する。
type MetricsCollector interface {
	RecordRegistration(outcome string)
	RecordAuthentication(outcome string)
	RecordTokenRefresh(outcome string)
	RecordRevocation()
	RecordTokenValidationLatency(duration time.Duration)
}

// 成功・失敗を表すoutcomeラベル値。
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations     *prometheus.CounterVec
	authentications   *prometheus.CounterVec
	tokenRefreshes    *prometheus.CounterVec
	revocations       prometheus.Counter
	validationLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_registrations_total",
			Help: "アカウント登録の結果別合計数",
		}, []string{"outcome"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_authentications_total",
			Help: "認証試行の結果別合計数",
		}, []string{"outcome"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_token_refreshes_total",
			Help: "リフレッシュトークンによる再発行の結果別合計数",
		}, []string{"outcome"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authman_revocations_total",
			Help: "一括失効操作の合計数",
		}),
		validationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authman_token_validation_seconds",
			Help:    "アクセストークン検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.authentications,
		c.tokenRefreshes,
		c.revocations,
		c.validationLatency,
	)

	return c
}

// RecordRegistration はアカウント登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordAuthentication は認証試行の結果を記録する。
func (c *Collector) RecordAuthentication(outcome string) {
	c.authentications.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh はトークン再発行の結果を記録する。
func (c *Collector) RecordTokenRefresh(outcome string) {
	c.tokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordRevocation は一括失効操作を記録する。
func (c *Collector) RecordRevocation() {
	c.revocations.Inc()
}

// RecordTokenValidationLatency はトークン検証のレイテンシを記録する。
func (c *Collector) RecordTokenValidationLatency(duration time.Duration) {
	c.validationLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
