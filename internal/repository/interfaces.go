// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/racha/internal/model"
)

// ErrUniqueViolation は一意制約違反を表す。
// サービス層はこれをドメインの競合エラーに変換する。
var ErrUniqueViolation = errors.New("unique constraint violation")

// DBTX は *sql.DB と *sql.Tx の共通部分。
// リポジトリはトランザクションの内外どちらでも同じ実装で動作する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EventRepository はイベントデータの永続化インターフェース。
type EventRepository interface {
	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// LockByID はイベント行を SELECT ... FOR UPDATE で取得する。見つからない場合はnilを返す。
	// 同一イベントの参加者・支出を変更するトランザクションを直列化するために使う。
	LockByID(ctx context.Context, id string) (*model.Event, error)

	// Create はイベントを作成する。
	Create(ctx context.Context, event *model.Event) error

	// CloseSettlement はrachaの締め日時を記録する。
	CloseSettlement(ctx context.Context, id string, closedAt time.Time) error

	// Delete はイベントを削除する。参加者・支出・支払いはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// ParticipantRepository は参加者データの永続化インターフェース。
type ParticipantRepository interface {
	// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Participant, error)

	// FindActiveByEventAndUser はアカウントに紐付く有効な参加者を検索する。見つからない場合はnilを返す。
	FindActiveByEventAndUser(ctx context.Context, eventID, userID string) (*model.Participant, error)

	// ListActiveByEvent はイベントの有効な参加者を作成順で返す。
	ListActiveByEvent(ctx context.Context, eventID string) ([]*model.Participant, error)

	// ListByEvent は無効化済みを含むイベントの全参加者を作成順で返す。
	ListByEvent(ctx context.Context, eventID string) ([]*model.Participant, error)

	// Create は参加者を作成する。(event_id, user_id) の重複時は ErrUniqueViolation を返す。
	Create(ctx context.Context, participant *model.Participant) error

	// Deactivate は参加者を無効化する（is_active=false）。
	Deactivate(ctx context.Context, id string) error

	// Delete は参加者を物理削除する。
	Delete(ctx context.Context, id string) error

	// HasPayerOrPaymentHistory は参加者が支払者となった支出、または支払い記録を持つかを返す。
	HasPayerOrPaymentHistory(ctx context.Context, id string) (bool, error)
}

// ExpenseRepository は支出と負担額の永続化インターフェース。
type ExpenseRepository interface {
	// FindByID は指定IDの支出を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Expense, error)

	// Create は支出と負担額を作成する。呼び出し側のトランザクション内で実行すること。
	Create(ctx context.Context, expense *model.Expense, shares []model.ExpenseShare) error

	// Delete は支出を削除する。負担額はCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ListByEvent はイベントの支出を作成順で返す。
	ListByEvent(ctx context.Context, eventID string) ([]*model.Expense, error)

	// ListSharesByEvent はイベントの全支出の負担額を返す。
	ListSharesByEvent(ctx context.Context, eventID string) ([]model.ExpenseShare, error)

	// ListSharesByExpenses は指定した支出群の負担額を返す。
	ListSharesByExpenses(ctx context.Context, expenseIDs []string) ([]model.ExpenseShare, error)

	// ListExpenseIDsByShareholder は参加者が負担額を持つ支出IDを返す。
	ListExpenseIDsByShareholder(ctx context.Context, participantID string) ([]string, error)

	// ReplaceShares は支出の負担額を全件削除してから挿入し直す。
	ReplaceShares(ctx context.Context, expenseID string, shares []model.ExpenseShare) error
}

// PaymentRepository は支払いデータの永続化インターフェース。
type PaymentRepository interface {
	// Create は支払いを作成する。provider_payment_id の重複時は ErrUniqueViolation を返す。
	Create(ctx context.Context, payment *model.Payment) error

	// FindByID は指定IDの支払いを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Payment, error)

	// FindByProviderPaymentID はプロバイダ側IDで支払いを取得する。見つからない場合はnilを返す。
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*model.Payment, error)

	// LockByID は支払い行を SELECT ... FOR UPDATE で取得する。見つからない場合はnilを返す。
	LockByID(ctx context.Context, id string) (*model.Payment, error)

	// MarkPaid はPENDINGの支払いをPAIDにし、冪等キーを記録する。
	// 冪等キーが既に使われている場合は false を返し、何も変更しない。
	MarkPaid(ctx context.Context, id, idempotencyKey string, at time.Time) (bool, error)

	// UpdateStatus はPENDINGの支払いをPAID以外の終端状態に変更する。
	UpdateStatus(ctx context.Context, id string, status model.PaymentStatus, at time.Time) error

	// SumPaidByEvent はPAIDの支払い額を参加者ごとに合計する。
	SumPaidByEvent(ctx context.Context, eventID string) (map[string]decimal.Decimal, error)
}

// SessionRepository はセッションの参照インターフェース。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// Store は同一の接続（またはトランザクション）に束縛されたリポジトリ群。
type Store interface {
	Events() EventRepository
	Participants() ParticipantRepository
	Expenses() ExpenseRepository
	Payments() PaymentRepository
}

// UnitOfWork はトランザクション境界を明示する永続化ハンドル。
// Store のメソッドはトランザクション外で実行され、読み取り専用の処理に使う。
type UnitOfWork interface {
	Store

	// WithinTx は fn をトランザクション内で実行する。
	// fn がエラーを返した場合はロールバックし、そのエラーをそのまま返す。
	WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx Store) error) error
}
