package racha

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/racha/internal/metrics"
	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/repository"
)

// RemovalResult は参加者削除の結果。
type RemovalResult struct {
	ParticipantID string
	// Removed は参加者行を物理削除した場合にtrue。
	Removed bool
	// Deactivated は支払者・支払いの履歴が残るため無効化に留めた場合にtrue。
	Deactivated          bool
	RebalancedExpenseIDs []string
}

// RemoveParticipant は参加者をrachaから外し、その負担額を残りの負担者で再配分する。
//
// 参加者が唯一の負担者である支出が1件でもあれば、何も変更せず
// UNIQUE_SHAREHOLDER_CONFLICT を返す。再配分後、支払者または支払いの履歴が
// なければ参加者行を削除し、あれば無効化する。
// 判定から書き換えまでを1トランザクションで行い、最初にイベント行をロックする。
// ロック後の各文が同時にコミットされた支出を読めるよう、分離レベルはREAD COMMITTED。
// SERIALIZABLEではスナップショットがロック待ちより前に確定してしまう。
func (s *Service) RemoveParticipant(ctx context.Context, eventID, participantID string) (*RemovalResult, error) {
	var result *RemovalResult
	err := s.uow.WithinTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx repository.Store) error {
		var err error
		result, err = s.removeParticipant(ctx, tx, eventID, participantID)
		return err
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUniqueShareholderConflict {
			s.recorder.RecordParticipantRemoval(metrics.RemovalOutcomeBlocked)
			s.logger.Warn("participant removal blocked",
				"event_id", eventID,
				"participant_id", participantID,
				"expense_ids", apiErr.Details["expense_ids"],
			)
		}
		return nil, err
	}

	outcome := metrics.RemovalOutcomeDeleted
	if result.Deactivated {
		outcome = metrics.RemovalOutcomeDeactivated
	}
	s.recorder.RecordParticipantRemoval(outcome)
	s.recorder.RecordSharesRebalanced(len(result.RebalancedExpenseIDs))
	s.logger.Info("participant removed",
		"event_id", eventID,
		"participant_id", participantID,
		"outcome", outcome,
		"rebalanced_expenses", len(result.RebalancedExpenseIDs),
	)
	return result, nil
}

func (s *Service) removeParticipant(ctx context.Context, tx repository.Store, eventID, participantID string) (*RemovalResult, error) {
	if _, err := lockOpenEvent(ctx, tx, eventID); err != nil {
		return nil, err
	}

	target, err := tx.Participants().FindByID(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if target == nil || target.EventID != eventID || !target.IsActive {
		return nil, model.NewParticipantNotFoundError(participantID)
	}

	expenseIDs, err := tx.Expenses().ListExpenseIDsByShareholder(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("負担中の支出の取得に失敗しました: %w", err)
	}

	var byExpense map[string][]model.ExpenseShare
	if len(expenseIDs) > 0 {
		shares, err := tx.Expenses().ListSharesByExpenses(ctx, expenseIDs)
		if err != nil {
			return nil, fmt.Errorf("負担額の取得に失敗しました: %w", err)
		}
		byExpense = groupShares(shares)
	}

	remaining := make(map[string]map[string]bool, len(expenseIDs))
	var blocking []string
	for _, id := range expenseIDs {
		others := make(map[string]bool)
		for _, sh := range byExpense[id] {
			if sh.ParticipantID != participantID {
				others[sh.ParticipantID] = true
			}
		}
		if len(others) == 0 {
			blocking = append(blocking, id)
			continue
		}
		remaining[id] = others
	}
	if len(blocking) > 0 {
		return nil, model.NewUniqueShareholderConflictError(participantID, blocking)
	}

	rebalanced := make([]string, 0, len(expenseIDs))
	if len(expenseIDs) > 0 {
		everyone, err := tx.Participants().ListByEvent(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
		}

		for _, id := range expenseIDs {
			expense, err := tx.Expenses().FindByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("支出の取得に失敗しました: %w", err)
			}
			if expense == nil {
				return nil, model.NewExpenseNotFoundError(id)
			}

			// 元の総額を残りの負担者で割り直す。削除者の端数を足し込むだけにはしない。
			shares, err := splitShares(id, expense.TotalAmount, orderedIDs(everyone, remaining[id]))
			if err != nil {
				return nil, err
			}
			if err := tx.Expenses().ReplaceShares(ctx, id, shares); err != nil {
				return nil, fmt.Errorf("負担額の再配分に失敗しました: %w", err)
			}
			rebalanced = append(rebalanced, id)
		}
	}

	hasHistory, err := tx.Participants().HasPayerOrPaymentHistory(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("参加者の履歴確認に失敗しました: %w", err)
	}

	result := &RemovalResult{
		ParticipantID:        participantID,
		RebalancedExpenseIDs: rebalanced,
	}
	if hasHistory {
		if err := tx.Participants().Deactivate(ctx, participantID); err != nil {
			return nil, fmt.Errorf("参加者の無効化に失敗しました: %w", err)
		}
		result.Deactivated = true
	} else {
		if err := tx.Participants().Delete(ctx, participantID); err != nil {
			return nil, fmt.Errorf("参加者の削除に失敗しました: %w", err)
		}
		result.Removed = true
	}
	return result, nil
}
