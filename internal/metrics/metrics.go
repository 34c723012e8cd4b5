// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 送信ラッパー、スイープ、リレーの各層から利用する。
type MetricsCollector interface {
	RecordSend(method string)
	RecordSendFailure(method string)
	RecordRetry(method string)
	RecordWarningSent()
	RecordMemberRemoved()
	RecordInviteIssued()
	RecordInviteRevoked()
	RecordRelayForwarded()
	RecordDuplicateDropped()
	RecordBroadcast(sent, failed int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sends           *prometheus.CounterVec
	sendFailures    *prometheus.CounterVec
	retries         *prometheus.CounterVec
	warningsSent    prometheus.Counter
	membersRemoved  prometheus.Counter
	invitesIssued   prometheus.Counter
	invitesRevoked  prometheus.Counter
	relayForwarded  prometheus.Counter
	duplicates      prometheus.Counter
	broadcastSent   prometheus.Counter
	broadcastFailed prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_sends_total",
			Help: "プラットフォームAPI呼び出し成功の合計数",
		}, []string{"method"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_send_failures_total",
			Help: "プラットフォームAPI呼び出し失敗の合計数",
		}, []string{"method"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_send_retries_total",
			Help: "レート制限による再試行の合計数",
		}, []string{"method"}),
		warningsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_warnings_sent_total",
			Help: "送信した期限警告の合計数",
		}),
		membersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_members_removed_total",
			Help: "追放処理を完了したメンバーの合計数",
		}),
		invitesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_invites_issued_total",
			Help: "発行した招待リンクの合計数",
		}),
		invitesRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_invites_revoked_total",
			Help: "失効させた招待リンクの合計数",
		}),
		relayForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_relay_forwarded_total",
			Help: "管理者へ転送したメッセージの合計数",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_relay_duplicates_total",
			Help: "重複として破棄したメッセージの合計数",
		}),
		broadcastSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_broadcast_sent_total",
			Help: "ブロードキャスト配信成功の合計数",
		}),
		broadcastFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_broadcast_failed_total",
			Help: "ブロードキャスト配信失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.sends,
		c.sendFailures,
		c.retries,
		c.warningsSent,
		c.membersRemoved,
		c.invitesIssued,
		c.invitesRevoked,
		c.relayForwarded,
		c.duplicates,
		c.broadcastSent,
		c.broadcastFailed,
	)

	return c
}

// RecordSend はAPI呼び出し成功を記録する。
func (c *Collector) RecordSend(method string) {
	c.sends.WithLabelValues(method).Inc()
}

// RecordSendFailure はAPI呼び出し失敗を記録する。
func (c *Collector) RecordSendFailure(method string) {
	c.sendFailures.WithLabelValues(method).Inc()
}

// RecordRetry はレート制限による再試行を記録する。
func (c *Collector) RecordRetry(method string) {
	c.retries.WithLabelValues(method).Inc()
}

// RecordWarningSent は期限警告の送信を記録する。
func (c *Collector) RecordWarningSent() {
	c.warningsSent.Inc()
}

// RecordMemberRemoved はメンバー追放の完了を記録する。
func (c *Collector) RecordMemberRemoved() {
	c.membersRemoved.Inc()
}

// RecordInviteIssued は招待リンクの発行を記録する。
func (c *Collector) RecordInviteIssued() {
	c.invitesIssued.Inc()
}

// RecordInviteRevoked は招待リンクの失効を記録する。
func (c *Collector) RecordInviteRevoked() {
	c.invitesRevoked.Inc()
}

// RecordRelayForwarded は管理者へのメッセージ転送を記録する。
func (c *Collector) RecordRelayForwarded() {
	c.relayForwarded.Inc()
}

// RecordDuplicateDropped は重複メッセージの破棄を記録する。
func (c *Collector) RecordDuplicateDropped() {
	c.duplicates.Inc()
}

// RecordBroadcast はブロードキャスト結果を記録する。
func (c *Collector) RecordBroadcast(sent, failed int) {
	c.broadcastSent.Add(float64(sent))
	c.broadcastFailed.Add(float64(failed))
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
