package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/racha/internal/model"
)

// PostgresPaymentRepo はPostgreSQLを使用した支払いリポジトリ。
type PostgresPaymentRepo struct {
	db DBTX
}

// NewPostgresPaymentRepo はPostgresPaymentRepoを生成する。
func NewPostgresPaymentRepo(db DBTX) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

const selectPaymentColumns = `SELECT id, event_id, participant_id, amount, status, provider, provider_payment_id, created_at, updated_at FROM payments`

func scanPayment(row rowScanner) (*model.Payment, error) {
	p := &model.Payment{}
	var providerPaymentID sql.NullString
	if err := row.Scan(
		&p.ID, &p.EventID, &p.ParticipantID, &p.Amount, &p.Status,
		&p.Provider, &providerPaymentID, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if providerPaymentID.Valid {
		p.ProviderPaymentID = &providerPaymentID.String
	}
	return p, nil
}

func (r *PostgresPaymentRepo) findOne(ctx context.Context, query string, arg string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("支払いの取得に失敗しました: %w", err)
	}
	return p, nil
}

// Create は支払いを作成する。
func (r *PostgresPaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, event_id, participant_id, amount, status, provider, provider_payment_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.EventID, p.ParticipantID, p.Amount, p.Status, p.Provider, p.ProviderPaymentID, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("支払いの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの支払いを取得する。見つからない場合はnilを返す。
func (r *PostgresPaymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.findOne(ctx, selectPaymentColumns+` WHERE id = $1`, id)
}

// FindByProviderPaymentID はプロバイダ側IDで支払いを取得する。見つからない場合はnilを返す。
func (r *PostgresPaymentRepo) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*model.Payment, error) {
	return r.findOne(ctx, selectPaymentColumns+` WHERE provider_payment_id = $1`, providerPaymentID)
}

// LockByID は支払い行をロックして取得する。見つからない場合はnilを返す。
func (r *PostgresPaymentRepo) LockByID(ctx context.Context, id string) (*model.Payment, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.findOne(ctx, selectPaymentColumns+` WHERE id = $1 FOR UPDATE`, id)
}

// MarkPaid はPENDINGの支払いをPAIDにし、冪等キーを記録する。
// paid_key のUNIQUE制約により、同じキーでの2回目の計上は false になる。
// 一意制約違反でトランザクション全体が中断しないよう、SAVEPOINTで囲む。
// トランザクション内でのみ呼び出すこと。
func (r *PostgresPaymentRepo) MarkPaid(ctx context.Context, id, idempotencyKey string, at time.Time) (bool, error) {
	if _, err := r.db.ExecContext(ctx, `SAVEPOINT mark_paid`); err != nil {
		return false, fmt.Errorf("SAVEPOINTの作成に失敗しました: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = 'PAID', paid_key = $2, updated_at = $3
		 WHERE id = $1 AND status = 'PENDING'
		   AND NOT EXISTS (SELECT 1 FROM payments WHERE paid_key = $2)`,
		id, idempotencyKey, at,
	)
	if isUniqueViolation(err) {
		if _, rbErr := r.db.ExecContext(ctx, `ROLLBACK TO SAVEPOINT mark_paid`); rbErr != nil {
			return false, fmt.Errorf("SAVEPOINTへのロールバックに失敗しました: %w", rbErr)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("支払いのPAID更新に失敗しました: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `RELEASE SAVEPOINT mark_paid`); err != nil {
		return false, fmt.Errorf("SAVEPOINTの解放に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return n == 1, nil
}

// UpdateStatus はPENDINGの支払いをPAID以外の終端状態に変更する。
func (r *PostgresPaymentRepo) UpdateStatus(ctx context.Context, id string, status model.PaymentStatus, at time.Time) error {
	if status == model.PaymentStatusPaid {
		return fmt.Errorf("PAIDへの遷移にはMarkPaidを使用してください: %s", id)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'PENDING'`,
		id, status, at,
	)
	if err != nil {
		return fmt.Errorf("支払い状態の更新に失敗しました: %w", err)
	}
	return expectAffected(result, "PENDINGの支払い", id)
}

// SumPaidByEvent はPAIDの支払い額を参加者ごとに合計する。
func (r *PostgresPaymentRepo) SumPaidByEvent(ctx context.Context, eventID string) (map[string]decimal.Decimal, error) {
	if !isUUID(eventID) {
		return map[string]decimal.Decimal{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT participant_id, SUM(amount) FROM payments
		 WHERE event_id = $1 AND status = 'PAID'
		 GROUP BY participant_id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("支払い合計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var participantID string
		var sum decimal.Decimal
		if err := rows.Scan(&participantID, &sum); err != nil {
			return nil, fmt.Errorf("支払い合計行の読み取りに失敗しました: %w", err)
		}
		totals[participantID] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("支払い合計の走査に失敗しました: %w", err)
	}
	return totals, nil
}

// compile-time interface check
var _ PaymentRepository = (*PostgresPaymentRepo)(nil)
