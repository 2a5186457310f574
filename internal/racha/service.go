// Package racha は後払いイベントの割り勘（racha）精算ロジックを提供する。
//
// 参加者の登録、支出の記録、残高計算、参加者削除時の負担額再配分、
// 支払いの記録と決済通知の反映を扱う。変更操作はすべて
// repository.UnitOfWork のトランザクション内で完結し、途中で失敗した場合は
// 何も変更されない。
package racha

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/racha/internal/metrics"
	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/repository"
)

// TextSanitizer は利用者入力の自由記述テキストを無害化する。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// Service はracha精算のサービス層。
type Service struct {
	uow       repository.UnitOfWork
	gate      SettlementGate
	sanitizer TextSanitizer
	recorder  metrics.RachaRecorder
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option はServiceの生成オプション。
type Option func(*Service)

// WithClock は作成日時・更新日時に使う時計を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator はエンティティIDの生成関数を差し替える。
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService はServiceの新しいインスタンスを生成する。
// recorder と logger がnilの場合は何も記録しない実装とデフォルトロガーを使う。
func NewService(
	uow repository.UnitOfWork,
	gate SettlementGate,
	sanitizer TextSanitizer,
	recorder metrics.RachaRecorder,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		uow:       uow,
		gate:      gate,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockOpenEvent はイベント行をロックし、後払いイベントでrachaが締められていないことを確認する。
func lockOpenEvent(ctx context.Context, tx repository.Store, eventID string) (*model.Event, error) {
	event, err := tx.Events().LockByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントのロックに失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}
	if event.Kind != model.EventKindPostpaid {
		return nil, model.NewInvalidEventKindError(string(event.Kind))
	}
	if event.IsSettlementFinal() {
		return nil, model.NewSettlementAlreadyFinalError(eventID)
	}
	return event, nil
}
