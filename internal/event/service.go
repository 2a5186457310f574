// Package event はイベントのライフサイクルと、racha操作のアクセス制御を提供する。
package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/racha"
	"github.com/hitoshi/racha/internal/repository"
)

// defaultOrganizerName は主催者の表示名が空の場合に使う参加者名。
const defaultOrganizerName = "Organizador"

// RachaService はイベント操作から利用するracha精算の機能。
type RachaService interface {
	AddParticipant(ctx context.Context, in racha.AddParticipantInput) (*model.Participant, error)
	ComputeReconciliation(ctx context.Context, eventID string) ([]racha.Reconciliation, error)
}

// TextSanitizer は利用者入力の自由記述テキストを無害化する。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// CreateEventInput はイベント作成の入力。
type CreateEventInput struct {
	OrganizerUserID string
	OrganizerName   string
	Name            string
	// Kind が空の場合は POSTPAID とする。
	Kind model.EventKind
}

// Service はイベント管理のサービス層。
type Service struct {
	uow       repository.UnitOfWork
	racha     RachaService
	sanitizer TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(uow repository.UnitOfWork, rachaSvc RachaService, sanitizer TextSanitizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:       uow,
		racha:     rachaSvc,
		sanitizer: sanitizer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// CreateEvent はイベントを作成する。
// 後払いイベントでは主催者を最初の参加者として同じトランザクションで登録する。
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (*model.Event, error) {
	name := s.sanitizer.Sanitize(in.Name)
	if name == "" {
		return nil, model.NewInvalidNameError()
	}
	kind := in.Kind
	if kind == "" {
		kind = model.EventKindPostpaid
	}
	if !kind.Valid() {
		return nil, model.NewInvalidEventKindError(string(kind))
	}

	now := s.now()
	event := &model.Event{
		ID:              s.newID(),
		OrganizerUserID: in.OrganizerUserID,
		Name:            name,
		Kind:            kind,
		CreatedAt:       now,
	}

	err := s.uow.WithinTx(ctx, nil, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Events().Create(ctx, event); err != nil {
			return fmt.Errorf("イベントの作成に失敗しました: %w", err)
		}
		if kind != model.EventKindPostpaid {
			return nil
		}

		organizerName := s.sanitizer.Sanitize(in.OrganizerName)
		if organizerName == "" {
			organizerName = defaultOrganizerName
		}
		userID := in.OrganizerUserID
		organizer := &model.Participant{
			ID:        s.newID(),
			EventID:   event.ID,
			Name:      organizerName,
			UserID:    &userID,
			IsActive:  true,
			CreatedAt: now,
		}
		if err := tx.Participants().Create(ctx, organizer); err != nil {
			return fmt.Errorf("主催者の参加登録に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("event created",
		"event_id", event.ID,
		"organizer_user_id", event.OrganizerUserID,
		"kind", string(event.Kind),
	)
	return event, nil
}

// GetEvent はイベントを取得する。
func (s *Service) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	event, err := s.uow.Events().FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}
	return event, nil
}

// JoinEvent は招待を受諾したアカウントをrachaの参加者として登録する。
func (s *Service) JoinEvent(ctx context.Context, eventID, userID, name string) (*model.Participant, error) {
	return s.racha.AddParticipant(ctx, racha.AddParticipantInput{
		EventID: eventID,
		Name:    name,
		UserID:  &userID,
	})
}

// CloseSettlement はrachaを締める。以降は支出と参加者が固定され、支払いを受け付ける。
func (s *Service) CloseSettlement(ctx context.Context, eventID, userID string) (*model.Event, error) {
	var closed *model.Event
	err := s.uow.WithinTx(ctx, nil, func(ctx context.Context, tx repository.Store) error {
		event, err := tx.Events().LockByID(ctx, eventID)
		if err != nil {
			return fmt.Errorf("イベントのロックに失敗しました: %w", err)
		}
		if event == nil {
			return model.NewEventNotFoundError(eventID)
		}
		if event.OrganizerUserID != userID {
			return model.NewForbiddenError("rachaを締められるのは主催者のみです。")
		}
		if event.Kind != model.EventKindPostpaid {
			return model.NewInvalidEventKindError(string(event.Kind))
		}
		if event.IsSettlementFinal() {
			return model.NewSettlementAlreadyFinalError(eventID)
		}

		closedAt := s.now()
		if err := tx.Events().CloseSettlement(ctx, eventID, closedAt); err != nil {
			return fmt.Errorf("rachaの締め処理に失敗しました: %w", err)
		}
		event.SettlementClosedAt = &closedAt
		closed = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("settlement closed", "event_id", eventID)
	return closed, nil
}

// DeleteEvent はイベントを削除する。
// 後払いイベントで未払い額が残る参加者がいる間は OUTSTANDING_DEBTS を返す。
func (s *Service) DeleteEvent(ctx context.Context, eventID, userID string) error {
	event, err := s.RequireOrganizer(ctx, eventID, userID)
	if err != nil {
		return err
	}

	if event.Kind == model.EventKindPostpaid {
		rows, err := s.racha.ComputeReconciliation(ctx, eventID)
		if err != nil {
			return err
		}
		if debtors := racha.OutstandingParticipantIDs(rows); len(debtors) > 0 {
			s.logger.Warn("event deletion blocked by outstanding debts",
				"event_id", eventID,
				"debtors", len(debtors),
			)
			return model.NewOutstandingDebtsError(eventID, debtors)
		}
	}

	if err := s.uow.Events().Delete(ctx, eventID); err != nil {
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}

	s.logger.Info("event deleted", "event_id", eventID)
	return nil
}

// RequireOrganizer はユーザーがイベントの主催者であることを確認する。
func (s *Service) RequireOrganizer(ctx context.Context, eventID, userID string) (*model.Event, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerUserID != userID {
		return nil, model.NewForbiddenError("この操作はイベントの主催者のみ実行できます。")
	}
	return event, nil
}

// RequireMember はユーザーが主催者、またはrachaの有効な参加者であることを確認する。
func (s *Service) RequireMember(ctx context.Context, eventID, userID string) (*model.Event, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerUserID == userID {
		return event, nil
	}

	participant, err := s.uow.Participants().FindActiveByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("参加者の検索に失敗しました: %w", err)
	}
	if participant == nil {
		return nil, model.NewForbiddenError("このイベントの参加者ではありません。")
	}
	return event, nil
}
