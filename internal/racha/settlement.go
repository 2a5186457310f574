package racha

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/repository"
)

// Balance は有効な参加者1人の精算結果。
// Balance が正なら立て替え超過（受け取る側）、負なら支払う側。
type Balance struct {
	ParticipantID string
	Name          string
	TotalPaid     decimal.Decimal
	TotalShare    decimal.Decimal
	Balance       decimal.Decimal
}

// readSnapshot は精算の読み取りに使うトランザクション設定。
// 参加者・支出・負担額を同一スナップショットから読む。
var readSnapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// ComputeSettlement はイベントの有効な参加者ごとの残高を作成順で返す。
// 有効な参加者がいない場合は空のスライスを返す（エラーではない）。
func (s *Service) ComputeSettlement(ctx context.Context, eventID string) ([]Balance, error) {
	start := time.Now()
	defer func() {
		s.recorder.RecordSettlementDuration(time.Since(start))
	}()

	var balances []Balance
	err := s.uow.WithinTx(ctx, readSnapshot, func(ctx context.Context, tx repository.Store) error {
		var err error
		balances, err = loadSettlement(ctx, tx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

func loadSettlement(ctx context.Context, store repository.Store, eventID string) ([]Balance, error) {
	active, err := store.Participants().ListActiveByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	expenses, err := store.Expenses().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("支出一覧の取得に失敗しました: %w", err)
	}
	shares, err := store.Expenses().ListSharesByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("負担額一覧の取得に失敗しました: %w", err)
	}
	return settle(active, expenses, shares), nil
}

// settle は有効な参加者だけの部分グラフで残高を計算する。
//
// 支払者が無効な支出は丸ごと除外し、無効な参加者の負担額は数えない。
// 支払者には支出総額ではなく数えた負担額の分だけを計上するため、
// TotalPaid の総和と TotalShare の総和は常に一致する。
func settle(active []*model.Participant, expenses []*model.Expense, shares []model.ExpenseShare) []Balance {
	sorted := make([]*model.Participant, len(active))
	copy(sorted, active)
	model.SortByCreation(sorted)

	balances := make([]Balance, len(sorted))
	index := make(map[string]int, len(sorted))
	for i, p := range sorted {
		index[p.ID] = i
		balances[i] = Balance{
			ParticipantID: p.ID,
			Name:          p.Name,
			TotalPaid:     decimal.Zero,
			TotalShare:    decimal.Zero,
		}
	}

	payerIndex := make(map[string]int, len(expenses))
	for _, e := range expenses {
		if i, ok := index[e.PayerID]; ok {
			payerIndex[e.ID] = i
		}
	}

	for _, sh := range shares {
		payer, ok := payerIndex[sh.ExpenseID]
		if !ok {
			continue
		}
		owner, ok := index[sh.ParticipantID]
		if !ok {
			continue
		}
		balances[owner].TotalShare = balances[owner].TotalShare.Add(sh.ShareAmount)
		balances[payer].TotalPaid = balances[payer].TotalPaid.Add(sh.ShareAmount)
	}

	for i := range balances {
		balances[i].Balance = balances[i].TotalPaid.Sub(balances[i].TotalShare)
	}
	return balances
}
