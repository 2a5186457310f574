// Package expiry は放置されたPENDING支払いを取り消すバックグラウンドジョブを提供する。
// 決済通知が届かないまま有効期限（デフォルト24時間）を過ぎた支払いを
// CANCELLEDに遷移させる。遷移元がPENDINGに限られる点は通知による遷移と同じ。
package expiry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/racha/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ExpiryJob は期限切れPENDING支払いの取り消しジョブ。
// 1本のUPDATE文で完結するため、複数インスタンスで同時に実行しても結果は変わらない。
type ExpiryJob struct {
	db       Executor
	logger   *slog.Logger
	recorder metrics.RachaRecorder
	// PendingTTL はPENDINGのまま保持する期間（デフォルト: 24時間）。
	PendingTTL time.Duration
}

// NewExpiryJob は新しいExpiryJobを生成する。
func NewExpiryJob(db Executor, recorder metrics.RachaRecorder, logger *slog.Logger) *ExpiryJob {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &ExpiryJob{
		db:         db,
		logger:     logger,
		recorder:   recorder,
		PendingTTL: 24 * time.Hour,
	}
}

// Run はcreated_atがPendingTTLより古いPENDING支払いをCANCELLEDにする。
// 対象がない場合もエラーにならない。
func (j *ExpiryJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(j.PendingTTL/time.Second))

	query := `UPDATE payments SET status = 'CANCELLED', updated_at = now()
		WHERE status = 'PENDING' AND created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("支払い期限切れジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("pending_ttl", j.PendingTTL),
		)
		return fmt.Errorf("支払い期限切れ処理の実行に失敗: %w", err)
	}

	expiredCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("更新件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}

	j.recorder.RecordPaymentsExpired(expiredCount)

	duration := time.Since(start)
	j.logger.Info("支払い期限切れジョブが完了しました",
		slog.Int64("expired_count", expiredCount),
		slog.Duration("pending_ttl", j.PendingTTL),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は interval ごとに Run を実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *ExpiryJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("支払い期限切れジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// Run は失敗をログに残すため、ここでは戻り値を見ない
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("支払い期限切れジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
