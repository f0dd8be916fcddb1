// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は認証・認可イベントのPrometheusメトリクスを収集する。
type Collector struct {
	logins             prometheus.Counter
	authFailures       *prometheus.CounterVec
	collabTokensIssued prometheus.Counter
	webhookDecisions   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noteauth_logins_total",
			Help: "ログイン成功の合計数",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "noteauth_auth_failures_total",
			Help: "ゲートウェイ認証失敗のエラーコード別合計数",
		}, []string{"code"}),
		collabTokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noteauth_collab_tokens_issued_total",
			Help: "発行されたコラボトークンの合計数",
		}),
		webhookDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "noteauth_webhook_decisions_total",
			Help: "認可webhookの判定結果別合計数",
		}, []string{"result", "reason"}),
	}

	reg.MustRegister(
		c.logins,
		c.authFailures,
		c.collabTokensIssued,
		c.webhookDecisions,
	)

	return c
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

// RecordAuthFailure はゲートウェイ認証失敗をエラーコード別に記録する。
func (c *Collector) RecordAuthFailure(code string) {
	c.authFailures.WithLabelValues(code).Inc()
}

// RecordCollabTokenIssued はコラボトークン発行を記録する。
func (c *Collector) RecordCollabTokenIssued() {
	c.collabTokensIssued.Inc()
}

// RecordWebhookDecision は認可webhookの判定を記録する。
// 許可時のreasonは空文字列で記録される。
func (c *Collector) RecordWebhookDecision(allowed bool, reason string) {
	result := "allow"
	if !allowed {
		result = "deny"
	}
	c.webhookDecisions.WithLabelValues(result, reason).Inc()
}

// NewHandler はレジストリのメトリクスを公開するHTTPハンドラーを返す。
func NewHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
