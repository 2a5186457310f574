package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	// maxTxAttempts はシリアライゼーション失敗時の最大試行回数。
	maxTxAttempts = 3
)

// PostgresStore はPostgreSQLを使用した UnitOfWork 実装。
type PostgresStore struct {
	db *sql.DB
	q  DBTX
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// Events はイベントリポジトリを返す。
func (s *PostgresStore) Events() EventRepository { return NewPostgresEventRepo(s.q) }

// Participants は参加者リポジトリを返す。
func (s *PostgresStore) Participants() ParticipantRepository { return NewPostgresParticipantRepo(s.q) }

// Expenses は支出リポジトリを返す。
func (s *PostgresStore) Expenses() ExpenseRepository { return NewPostgresExpenseRepo(s.q) }

// Payments は支払いリポジトリを返す。
func (s *PostgresStore) Payments() PaymentRepository { return NewPostgresPaymentRepo(s.q) }

// WithinTx は fn をトランザクション内で実行する。
// シリアライゼーション失敗またはデッドロック検出の場合は最大 maxTxAttempts 回まで再試行する。
func (s *PostgresStore) WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx Store) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, opts, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx Store) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &PostgresStore{db: s.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUUID はidがUUID列と比較できる正規の文字列表現かどうかを判定する。
// UUIDでない値はどの行にも一致しないため、リポジトリは問い合わせずに
// 「見つからない」として扱う。PostgreSQLに渡すと22P02でトランザクションが中断する。
func isUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// isUniqueViolation はPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// isRetryable はトランザクションを再試行すべきエラーかどうかを判定する。
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pgSerializationFailure || pqErr.Code == pgDeadlockDetected
}

// compile-time interface check
var _ UnitOfWork = (*PostgresStore)(nil)
