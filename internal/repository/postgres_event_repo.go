package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/racha/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db DBTX
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db DBTX) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

const selectEventColumns = `SELECT id, organizer_user_id, name, kind, settlement_closed_at, created_at FROM events`

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	return r.findOne(ctx, selectEventColumns+` WHERE id = $1`, id)
}

// LockByID はイベント行をロックして取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) LockByID(ctx context.Context, id string) (*model.Event, error) {
	return r.findOne(ctx, selectEventColumns+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresEventRepo) findOne(ctx context.Context, query, id string) (*model.Event, error) {
	if !isUUID(id) {
		return nil, nil
	}
	event := &model.Event{}
	var closedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID, &event.OrganizerUserID, &event.Name, &event.Kind, &closedAt, &event.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if closedAt.Valid {
		event.SettlementClosedAt = &closedAt.Time
	}
	return event, nil
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, organizer_user_id, name, kind, settlement_closed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.OrganizerUserID, event.Name, event.Kind, event.SettlementClosedAt, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// CloseSettlement はrachaの締め日時を記録する。
func (r *PostgresEventRepo) CloseSettlement(ctx context.Context, id string, closedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events SET settlement_closed_at = $2 WHERE id = $1`,
		id, closedAt,
	)
	if err != nil {
		return fmt.Errorf("racha締め日時の更新に失敗しました: %w", err)
	}
	return expectAffected(result, "イベント", id)
}

// Delete はイベントを削除する。
func (r *PostgresEventRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}
	return expectAffected(result, "イベント", id)
}

// expectAffected は更新・削除の対象行が存在したことを確認する。
func expectAffected(result sql.Result, entity, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%sが見つかりません: %s", entity, id)
	}
	return nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
