// Package model はドメインモデルを定義する。
package model

import "time"

// EventKind はイベントの課金形態を表す。
type EventKind string

const (
	// EventKindFree は無料イベント。
	EventKindFree EventKind = "FREE"
	// EventKindPrepaid は事前購入チケット制のイベント。
	EventKindPrepaid EventKind = "PREPAID"
	// EventKindPostpaid は参加者間で費用を割り勘する後払いイベント（racha）。
	EventKindPostpaid EventKind = "POSTPAID"
)

// Valid は定義済みの種別かどうかを返す。
func (k EventKind) Valid() bool {
	switch k {
	case EventKindFree, EventKindPrepaid, EventKindPostpaid:
		return true
	default:
		return false
	}
}

// Event は主催者が作成するイベントを表す。
// 精算エンジンが参照するのは主催者とracha締め日時のみ。
type Event struct {
	ID                 string
	OrganizerUserID    string
	Name               string
	Kind               EventKind
	SettlementClosedAt *time.Time
	CreatedAt          time.Time
}

// IsSettlementFinal はrachaが締められているかを返す。
func (e *Event) IsSettlementFinal() bool {
	return e.SettlementClosedAt != nil
}

// Session はユーザーのログインセッションを表す。
// 外部の認証サービスが作成し、このサービスは参照のみ行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
