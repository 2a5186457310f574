package racha

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/racha/internal/money"
	"github.com/hitoshi/racha/internal/repository"
)

// Reconciliation は参加者1人の残高と支払い済み額の突き合わせ結果。
type Reconciliation struct {
	ParticipantID string
	Name          string
	Balance       decimal.Decimal
	// AmountOwed は負の残高の絶対値。受け取る側の参加者は0。
	AmountOwed decimal.Decimal
	Paid       decimal.Decimal
	// Remaining は未払い額。max(0, AmountOwed - Paid)。
	Remaining decimal.Decimal
}

// ComputeReconciliation は精算結果とPAIDの支払い合計を同一スナップショットで突き合わせる。
func (s *Service) ComputeReconciliation(ctx context.Context, eventID string) ([]Reconciliation, error) {
	var result []Reconciliation
	err := s.uow.WithinTx(ctx, readSnapshot, func(ctx context.Context, tx repository.Store) error {
		balances, err := loadSettlement(ctx, tx, eventID)
		if err != nil {
			return err
		}
		paid, err := tx.Payments().SumPaidByEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("支払い合計の取得に失敗しました: %w", err)
		}
		result = reconcile(balances, paid)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func reconcile(balances []Balance, paid map[string]decimal.Decimal) []Reconciliation {
	result := make([]Reconciliation, len(balances))
	for i, b := range balances {
		owed := money.Max(decimal.Zero, b.Balance.Neg())
		p, ok := paid[b.ParticipantID]
		if !ok {
			p = decimal.Zero
		}
		result[i] = Reconciliation{
			ParticipantID: b.ParticipantID,
			Name:          b.Name,
			Balance:       b.Balance,
			AmountOwed:    owed,
			Paid:          p,
			Remaining:     money.Max(decimal.Zero, owed.Sub(p)),
		}
	}
	return result
}

// OutstandingParticipantIDs は未払い額が残る参加者のIDを返す。
func OutstandingParticipantIDs(rows []Reconciliation) []string {
	var ids []string
	for _, r := range rows {
		if r.Remaining.IsPositive() {
			ids = append(ids, r.ParticipantID)
		}
	}
	return ids
}
