package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/racha/internal/model"
)

// PostgresParticipantRepo はPostgreSQLを使用した参加者リポジトリ。
type PostgresParticipantRepo struct {
	db DBTX
}

// NewPostgresParticipantRepo はPostgresParticipantRepoを生成する。
func NewPostgresParticipantRepo(db DBTX) *PostgresParticipantRepo {
	return &PostgresParticipantRepo{db: db}
}

const selectParticipantColumns = `SELECT id, event_id, name, user_id, is_active, created_at FROM participants`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*model.Participant, error) {
	p := &model.Participant{}
	var userID sql.NullString
	if err := row.Scan(&p.ID, &p.EventID, &p.Name, &userID, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		p.UserID = &userID.String
	}
	return p, nil
}

// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
func (r *PostgresParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	if !isUUID(id) {
		return nil, nil
	}
	p, err := scanParticipant(r.db.QueryRowContext(ctx, selectParticipantColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindActiveByEventAndUser はアカウントに紐付く有効な参加者を検索する。見つからない場合はnilを返す。
func (r *PostgresParticipantRepo) FindActiveByEventAndUser(ctx context.Context, eventID, userID string) (*model.Participant, error) {
	if !isUUID(eventID) {
		return nil, nil
	}
	p, err := scanParticipant(r.db.QueryRowContext(ctx,
		selectParticipantColumns+` WHERE event_id = $1 AND user_id = $2 AND is_active`,
		eventID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントによる参加者の検索に失敗しました: %w", err)
	}
	return p, nil
}

// ListActiveByEvent はイベントの有効な参加者を作成順で返す。
func (r *PostgresParticipantRepo) ListActiveByEvent(ctx context.Context, eventID string) ([]*model.Participant, error) {
	return r.list(ctx, selectParticipantColumns+` WHERE event_id = $1 AND is_active ORDER BY created_at ASC, id ASC`, eventID)
}

// ListByEvent は無効化済みを含むイベントの全参加者を作成順で返す。
func (r *PostgresParticipantRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.Participant, error) {
	return r.list(ctx, selectParticipantColumns+` WHERE event_id = $1 ORDER BY created_at ASC, id ASC`, eventID)
}

func (r *PostgresParticipantRepo) list(ctx context.Context, query, eventID string) ([]*model.Participant, error) {
	if !isUUID(eventID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("参加者行の読み取りに失敗しました: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加者一覧の走査に失敗しました: %w", err)
	}
	return participants, nil
}

// Create は参加者を作成する。
func (r *PostgresParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (id, event_id, name, user_id, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.EventID, p.Name, p.UserID, p.IsActive, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("参加者の作成に失敗しました: %w", err)
	}
	return nil
}

// Deactivate は参加者を無効化する。
func (r *PostgresParticipantRepo) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE participants SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("参加者の無効化に失敗しました: %w", err)
	}
	return expectAffected(result, "参加者", id)
}

// Delete は参加者を物理削除する。
func (r *PostgresParticipantRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("参加者の削除に失敗しました: %w", err)
	}
	return expectAffected(result, "参加者", id)
}

// HasPayerOrPaymentHistory は参加者が支払者となった支出、または支払い記録を持つかを返す。
func (r *PostgresParticipantRepo) HasPayerOrPaymentHistory(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM expenses WHERE payer_id = $1)
		     OR EXISTS (SELECT 1 FROM payments WHERE participant_id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("参加者の履歴確認に失敗しました: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ ParticipantRepository = (*PostgresParticipantRepo)(nil)
