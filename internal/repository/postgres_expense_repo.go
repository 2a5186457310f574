package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/racha/internal/model"
)

// PostgresExpenseRepo はPostgreSQLを使用した支出リポジトリ。
type PostgresExpenseRepo struct {
	db DBTX
}

// NewPostgresExpenseRepo はPostgresExpenseRepoを生成する。
func NewPostgresExpenseRepo(db DBTX) *PostgresExpenseRepo {
	return &PostgresExpenseRepo{db: db}
}

// FindByID は指定IDの支出を取得する。見つからない場合はnilを返す。
func (r *PostgresExpenseRepo) FindByID(ctx context.Context, id string) (*model.Expense, error) {
	if !isUUID(id) {
		return nil, nil
	}
	e := &model.Expense{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, payer_id, description, total_amount, created_at FROM expenses WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.EventID, &e.PayerID, &e.Description, &e.TotalAmount, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("支出の取得に失敗しました: %w", err)
	}
	return e, nil
}

// Create は支出と負担額を作成する。
func (r *PostgresExpenseRepo) Create(ctx context.Context, e *model.Expense, shares []model.ExpenseShare) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, event_id, payer_id, description, total_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.EventID, e.PayerID, e.Description, e.TotalAmount, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("支出の作成に失敗しました: %w", err)
	}
	return r.insertShares(ctx, shares)
}

// Delete は支出を削除する。
func (r *PostgresExpenseRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("支出の削除に失敗しました: %w", err)
	}
	return expectAffected(result, "支出", id)
}

// ListByEvent はイベントの支出を作成順で返す。
func (r *PostgresExpenseRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.Expense, error) {
	if !isUUID(eventID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, payer_id, description, total_amount, created_at
		 FROM expenses WHERE event_id = $1 ORDER BY created_at ASC, id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("支出一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var expenses []*model.Expense
	for rows.Next() {
		e := &model.Expense{}
		if err := rows.Scan(&e.ID, &e.EventID, &e.PayerID, &e.Description, &e.TotalAmount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("支出行の読み取りに失敗しました: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("支出一覧の走査に失敗しました: %w", err)
	}
	return expenses, nil
}

// ListSharesByEvent はイベントの全支出の負担額を返す。
func (r *PostgresExpenseRepo) ListSharesByEvent(ctx context.Context, eventID string) ([]model.ExpenseShare, error) {
	if !isUUID(eventID) {
		return nil, nil
	}
	return r.listShares(ctx,
		`SELECT s.expense_id, s.participant_id, s.share_amount
		 FROM expense_shares s
		 JOIN expenses e ON e.id = s.expense_id
		 WHERE e.event_id = $1
		 ORDER BY s.expense_id, s.participant_id`,
		eventID,
	)
}

// ListSharesByExpenses は指定した支出群の負担額を返す。
func (r *PostgresExpenseRepo) ListSharesByExpenses(ctx context.Context, expenseIDs []string) ([]model.ExpenseShare, error) {
	if len(expenseIDs) == 0 {
		return nil, nil
	}
	return r.listShares(ctx,
		`SELECT expense_id, participant_id, share_amount
		 FROM expense_shares WHERE expense_id = ANY($1::uuid[])
		 ORDER BY expense_id, participant_id`,
		pq.Array(expenseIDs),
	)
}

func (r *PostgresExpenseRepo) listShares(ctx context.Context, query string, arg any) ([]model.ExpenseShare, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("負担額一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var shares []model.ExpenseShare
	for rows.Next() {
		var s model.ExpenseShare
		if err := rows.Scan(&s.ExpenseID, &s.ParticipantID, &s.ShareAmount); err != nil {
			return nil, fmt.Errorf("負担額行の読み取りに失敗しました: %w", err)
		}
		shares = append(shares, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("負担額一覧の走査に失敗しました: %w", err)
	}
	return shares, nil
}

// ListExpenseIDsByShareholder は参加者が負担額を持つ支出IDを返す。
func (r *PostgresExpenseRepo) ListExpenseIDsByShareholder(ctx context.Context, participantID string) ([]string, error) {
	if !isUUID(participantID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT expense_id FROM expense_shares WHERE participant_id = $1 ORDER BY expense_id`,
		participantID,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者の負担支出の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("支出IDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("支出IDの走査に失敗しました: %w", err)
	}
	return ids, nil
}

// ReplaceShares は支出の負担額を全件削除してから挿入し直す。
func (r *PostgresExpenseRepo) ReplaceShares(ctx context.Context, expenseID string, shares []model.ExpenseShare) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM expense_shares WHERE expense_id = $1`, expenseID); err != nil {
		return fmt.Errorf("負担額の削除に失敗しました: %w", err)
	}
	return r.insertShares(ctx, shares)
}

func (r *PostgresExpenseRepo) insertShares(ctx context.Context, shares []model.ExpenseShare) error {
	for _, s := range shares {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO expense_shares (expense_id, participant_id, share_amount) VALUES ($1, $2, $3)`,
			s.ExpenseID, s.ParticipantID, s.ShareAmount,
		)
		if err != nil {
			return fmt.Errorf("負担額の作成に失敗しました: %w", err)
		}
	}
	return nil
}

// compile-time interface check
var _ ExpenseRepository = (*PostgresExpenseRepo)(nil)
