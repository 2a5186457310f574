package racha

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/money"
	"github.com/hitoshi/racha/internal/repository"
)

// RecordExpenseInput は支出記録の入力。
type RecordExpenseInput struct {
	EventID     string
	PayerID     string
	Description string
	TotalAmount decimal.Decimal
	// ParticipantIDs は負担者。支払者を含めても含めなくてもよい。重複は無視する。
	ParticipantIDs []string
}

// RecordExpense は支出を記録し、負担者で均等割りした負担額を作成する。
//
// 端数は参加者の作成順で先頭から1センタボずつ配分するため、
// 負担額の合計は常に TotalAmount と一致する。
func (s *Service) RecordExpense(ctx context.Context, in RecordExpenseInput) (*model.ExpenseWithShares, error) {
	if err := money.ValidatePositive(in.TotalAmount); err != nil {
		return nil, model.NewInvalidAmountError(err.Error())
	}

	requested := make(map[string]bool, len(in.ParticipantIDs))
	for _, id := range in.ParticipantIDs {
		if id = strings.TrimSpace(id); id != "" {
			requested[id] = true
		}
	}
	if len(requested) == 0 {
		return nil, model.NewEmptyShareSetError()
	}

	expense := &model.Expense{
		ID:          s.newID(),
		EventID:     in.EventID,
		PayerID:     in.PayerID,
		Description: s.sanitizer.Sanitize(in.Description),
		TotalAmount: in.TotalAmount,
		CreatedAt:   s.now(),
	}

	var shares []model.ExpenseShare
	err := s.uow.WithinTx(ctx, nil, func(ctx context.Context, tx repository.Store) error {
		if _, err := lockOpenEvent(ctx, tx, in.EventID); err != nil {
			return err
		}

		active, err := tx.Participants().ListActiveByEvent(ctx, in.EventID)
		if err != nil {
			return fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
		}
		activeIDs := make(map[string]bool, len(active))
		for _, p := range active {
			activeIDs[p.ID] = true
		}

		if !activeIDs[in.PayerID] {
			return model.NewInvalidPayerError(in.PayerID)
		}

		var unknown []string
		seen := make(map[string]bool, len(requested))
		for _, id := range in.ParticipantIDs {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			if !activeIDs[id] {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			return model.NewInvalidShareholderError(unknown)
		}

		shares, err = splitShares(expense.ID, expense.TotalAmount, orderedIDs(active, requested))
		if err != nil {
			return err
		}

		if err := tx.Expenses().Create(ctx, expense, shares); err != nil {
			return fmt.Errorf("支出の作成に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.RecordExpenseRecorded()
	s.logger.Info("expense recorded",
		"event_id", expense.EventID,
		"expense_id", expense.ID,
		"payer_id", expense.PayerID,
		"total_amount", expense.TotalAmount.StringFixed(money.MinorUnitExponent),
		"shareholders", len(shares),
	)
	return &model.ExpenseWithShares{Expense: *expense, Shares: shares}, nil
}

// DeleteExpense は支出と負担額を削除する。
// 唯一の負担者であるために削除できない参加者を解消する手段として使う。
func (s *Service) DeleteExpense(ctx context.Context, eventID, expenseID string) error {
	err := s.uow.WithinTx(ctx, nil, func(ctx context.Context, tx repository.Store) error {
		if _, err := lockOpenEvent(ctx, tx, eventID); err != nil {
			return err
		}

		expense, err := tx.Expenses().FindByID(ctx, expenseID)
		if err != nil {
			return fmt.Errorf("支出の取得に失敗しました: %w", err)
		}
		if expense == nil || expense.EventID != eventID {
			return model.NewExpenseNotFoundError(expenseID)
		}

		if err := tx.Expenses().Delete(ctx, expenseID); err != nil {
			return fmt.Errorf("支出の削除に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("expense deleted", "event_id", eventID, "expense_id", expenseID)
	return nil
}

// ListExpenses はイベントの支出を負担額付きで作成順に返す。
func (s *Service) ListExpenses(ctx context.Context, eventID string) ([]model.ExpenseWithShares, error) {
	event, err := s.uow.Events().FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}

	expenses, err := s.uow.Expenses().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("支出一覧の取得に失敗しました: %w", err)
	}
	shares, err := s.uow.Expenses().ListSharesByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("負担額一覧の取得に失敗しました: %w", err)
	}

	byExpense := groupShares(shares)
	result := make([]model.ExpenseWithShares, len(expenses))
	for i, e := range expenses {
		result[i] = model.ExpenseWithShares{Expense: *e, Shares: byExpense[e.ID]}
	}
	return result, nil
}

// splitShares は total を holderIDs の順に均等割りした負担額を返す。
func splitShares(expenseID string, total decimal.Decimal, holderIDs []string) ([]model.ExpenseShare, error) {
	parts, err := money.SplitEqually(total, len(holderIDs))
	if err != nil {
		return nil, model.NewInvalidAmountError(err.Error())
	}

	shares := make([]model.ExpenseShare, len(holderIDs))
	for i, id := range holderIDs {
		shares[i] = model.ExpenseShare{
			ExpenseID:     expenseID,
			ParticipantID: id,
			ShareAmount:   parts[i],
		}
	}
	return shares, nil
}

func groupShares(shares []model.ExpenseShare) map[string][]model.ExpenseShare {
	grouped := make(map[string][]model.ExpenseShare)
	for _, sh := range shares {
		grouped[sh.ExpenseID] = append(grouped[sh.ExpenseID], sh)
	}
	return grouped
}
