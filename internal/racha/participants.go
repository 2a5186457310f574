package racha

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/repository"
)

// AddParticipantInput は参加者登録の入力。
type AddParticipantInput struct {
	EventID string
	Name    string
	// UserID は認証済みアカウントとの紐付け。招待前のゲストはnil。
	UserID *string
}

// AddParticipant はイベントのrachaに有効な参加者を追加する。
// 同じアカウントが既に有効な参加者の場合は DUPLICATE_PARTICIPANT を返す。
func (s *Service) AddParticipant(ctx context.Context, in AddParticipantInput) (*model.Participant, error) {
	name := s.sanitizer.Sanitize(in.Name)
	if name == "" {
		return nil, model.NewInvalidNameError()
	}

	var userID *string
	if in.UserID != nil {
		if trimmed := strings.TrimSpace(*in.UserID); trimmed != "" {
			userID = &trimmed
		}
	}

	participant := &model.Participant{
		ID:        s.newID(),
		EventID:   in.EventID,
		Name:      name,
		UserID:    userID,
		IsActive:  true,
		CreatedAt: s.now(),
	}

	err := s.uow.WithinTx(ctx, nil, func(ctx context.Context, tx repository.Store) error {
		if _, err := lockOpenEvent(ctx, tx, in.EventID); err != nil {
			return err
		}

		if userID != nil {
			existing, err := tx.Participants().FindActiveByEventAndUser(ctx, in.EventID, *userID)
			if err != nil {
				return fmt.Errorf("参加者の検索に失敗しました: %w", err)
			}
			if existing != nil {
				return model.NewDuplicateParticipantError(*userID)
			}
		}

		// 事前確認をすり抜けた同時登録は部分ユニークインデックスで検出する
		if err := tx.Participants().Create(ctx, participant); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) && userID != nil {
				return model.NewDuplicateParticipantError(*userID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("participant added",
		"event_id", participant.EventID,
		"participant_id", participant.ID,
		"linked", participant.UserID != nil,
	)
	return participant, nil
}

// ListParticipants はイベントの有効な参加者を作成順で返す。
func (s *Service) ListParticipants(ctx context.Context, eventID string) ([]*model.Participant, error) {
	event, err := s.uow.Events().FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}

	participants, err := s.uow.Participants().ListActiveByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	model.SortByCreation(participants)
	return participants, nil
}

// orderedIDs は ps のうち include に含まれる参加者のIDを作成順で返す。
// 均等割りの端数はこの順序で先頭から1センタボずつ配分される。
func orderedIDs(ps []*model.Participant, include map[string]bool) []string {
	sorted := make([]*model.Participant, len(ps))
	copy(sorted, ps)
	model.SortByCreation(sorted)

	ids := make([]string, 0, len(include))
	for _, p := range sorted {
		if include[p.ID] {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
