package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus は支払いの状態を表す。
type PaymentStatus string

const (
	// PaymentStatusPending は決済待ち。
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusPaid は決済完了。精算に計上されるのはこの状態のみ。
	PaymentStatusPaid PaymentStatus = "PAID"
	// PaymentStatusFailed は決済失敗。
	PaymentStatusFailed PaymentStatus = "FAILED"
	// PaymentStatusCancelled は取り消し済み。
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// ParsePaymentStatus は文字列を PaymentStatus に変換する。
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch st := PaymentStatus(s); st {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal は終端状態かどうかを返す。
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// CanTransitionTo は s から next への遷移が許可されているかを返す。
// 許可されるのは PENDING から終端状態への遷移のみ。
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentStatusPending && next.IsTerminal()
}

// Payment は参加者が外部決済プロバイダ経由で残高を支払う試行とその結果を表す。
type Payment struct {
	ID                string
	EventID           string
	ParticipantID     string
	Amount            decimal.Decimal
	Status            PaymentStatus
	Provider          string
	ProviderPaymentID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IdempotencyKey はPAID遷移の冪等キーを返す。
// プロバイダ側のIDがあればそれを、なければ支払い自身のIDを使う。
func (p *Payment) IdempotencyKey() string {
	if p.ProviderPaymentID != nil && *p.ProviderPaymentID != "" {
		return *p.ProviderPaymentID
	}
	return p.ID
}
