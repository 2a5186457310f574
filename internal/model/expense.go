package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense は1人の参加者が立て替えた支出を表す。
// 負担額（Shares）の合計は常にTotalAmountと一致する。
type Expense struct {
	ID          string
	EventID     string
	PayerID     string
	Description string
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
}

// ExpenseShare は1件の支出に対する1参加者の負担額。
type ExpenseShare struct {
	ExpenseID     string
	ParticipantID string
	ShareAmount   decimal.Decimal
}

// ExpenseWithShares は支出と負担額一覧を結合したモデル。
type ExpenseWithShares struct {
	Expense
	Shares []ExpenseShare
}

// SumShares は負担額の合計を返す。
func SumShares(shares []ExpenseShare) decimal.Decimal {
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.ShareAmount)
	}
	return total
}
