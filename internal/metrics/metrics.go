// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 参加者削除の結果ラベル
const (
	RemovalOutcomeDeleted     = "deleted"
	RemovalOutcomeDeactivated = "deactivated"
	RemovalOutcomeBlocked     = "blocked"
)

// RachaRecorder はメトリクス収集のインターフェース。
// racha サービスとワーカーから利用する。
type RachaRecorder interface {
	RecordExpenseRecorded()
	RecordParticipantRemoval(outcome string)
	RecordSharesRebalanced(expenses int)
	RecordPaymentTransition(status string)
	RecordDuplicateNotification()
	RecordPaymentsExpired(count int64)
	RecordSettlementDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	expensesRecorded       prometheus.Counter
	participantRemovals    *prometheus.CounterVec
	expensesRebalanced     prometheus.Counter
	paymentTransitions     *prometheus.CounterVec
	duplicateNotifications prometheus.Counter
	paymentsExpired        prometheus.Counter
	settlementDuration     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		expensesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "racha_expenses_recorded_total",
			Help: "記録された支出の合計数",
		}),
		participantRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "racha_participant_removals_total",
			Help: "参加者削除の結果別件数",
		}, []string{"outcome"}),
		expensesRebalanced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "racha_expenses_rebalanced_total",
			Help: "参加者削除で負担額を再配分した支出の合計数",
		}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "racha_payment_transitions_total",
			Help: "支払い状態遷移の遷移先別件数",
		}, []string{"status"}),
		duplicateNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "racha_duplicate_notifications_total",
			Help: "重複として無視された決済通知の合計数",
		}),
		paymentsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "racha_payments_expired_total",
			Help: "期限切れでCANCELLEDにされたPENDING支払いの合計数",
		}),
		settlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "racha_settlement_duration_seconds",
			Help:    "精算計算のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.expensesRecorded,
		c.participantRemovals,
		c.expensesRebalanced,
		c.paymentTransitions,
		c.duplicateNotifications,
		c.paymentsExpired,
		c.settlementDuration,
	)

	return c
}

// RecordExpenseRecorded は支出の記録を数える。
func (c *Collector) RecordExpenseRecorded() {
	c.expensesRecorded.Inc()
}

// RecordParticipantRemoval は参加者削除の結果を記録する。
func (c *Collector) RecordParticipantRemoval(outcome string) {
	c.participantRemovals.WithLabelValues(outcome).Inc()
}

// RecordSharesRebalanced は再配分した支出数を加算する。
func (c *Collector) RecordSharesRebalanced(expenses int) {
	c.expensesRebalanced.Add(float64(expenses))
}

// RecordPaymentTransition は支払い状態の遷移を記録する。
func (c *Collector) RecordPaymentTransition(status string) {
	c.paymentTransitions.WithLabelValues(status).Inc()
}

// RecordDuplicateNotification は重複通知を数える。
func (c *Collector) RecordDuplicateNotification() {
	c.duplicateNotifications.Inc()
}

// RecordPaymentsExpired は期限切れにした支払い数を加算する。
func (c *Collector) RecordPaymentsExpired(count int64) {
	c.paymentsExpired.Add(float64(count))
}

// RecordSettlementDuration は精算計算の所要時間を記録する。
func (c *Collector) RecordSettlementDuration(duration time.Duration) {
	c.settlementDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しない RachaRecorder。メトリクス無効時とテストで使う。
type Nop struct{}

func (Nop) RecordExpenseRecorded()                 {}
func (Nop) RecordParticipantRemoval(string)        {}
func (Nop) RecordSharesRebalanced(int)             {}
func (Nop) RecordPaymentTransition(string)         {}
func (Nop) RecordDuplicateNotification()           {}
func (Nop) RecordPaymentsExpired(int64)            {}
func (Nop) RecordSettlementDuration(time.Duration) {}

var (
	_ RachaRecorder = (*Collector)(nil)
	_ RachaRecorder = Nop{}
)
