// Package money は金額の最小通貨単位（センタボ）変換と均等割りを提供する。
//
// 均等割りは浮動小数点を使わず整数の最小単位で計算するため、
// 分割後の合計は常に元の金額と一致する。
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent は最小通貨単位の小数点以下桁数（BRL: 2桁）。
const MinorUnitExponent = 2

var (
	// ErrNonPositive は金額が0以下の場合に返される。
	ErrNonPositive = errors.New("amount must be greater than zero")
	// ErrSubMinorUnit は最小通貨単位より細かい端数を含む場合に返される。
	ErrSubMinorUnit = errors.New("amount has more precision than the minor currency unit")
	// ErrNoParts は分割数が0以下の場合に返される。
	ErrNoParts = errors.New("number of parts must be positive")
	// ErrTooLarge は金額が MaxAmount を超える場合に返される。
	ErrTooLarge = errors.New("amount exceeds the maximum storable value")
)

// MaxAmount は保存できる金額の上限。金額列の NUMERIC(12,2) に合わせる。
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ToMinorUnits は金額を最小通貨単位の整数に変換する。
// 最小単位より細かい端数を含む場合は ErrSubMinorUnit を返す。
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	scaled := amount.Shift(MinorUnitExponent)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrSubMinorUnit
	}
	if !scaled.BigInt().IsInt64() {
		return 0, ErrTooLarge
	}
	return scaled.IntPart(), nil
}

// FromMinorUnits は最小通貨単位の整数を金額に戻す。
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -MinorUnitExponent)
}

// ValidatePositive は金額が0より大きく MaxAmount 以下で、最小通貨単位で表現できることを検証する。
func ValidatePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositive
	}
	if amount.GreaterThan(MaxAmount) {
		return ErrTooLarge
	}
	if _, err := ToMinorUnits(amount); err != nil {
		return err
	}
	return nil
}

// SplitEqually は total を n 個に均等割りする。
//
// base = floor(total / n)、remainder = total - base*n を最小単位で求め、
// 先頭 remainder 個に1単位ずつ上乗せする。呼び出し側が渡す順序が
// そのまま端数の配分順になる。
func SplitEqually(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n <= 0 {
		return nil, ErrNoParts
	}
	units, err := ToMinorUnits(total)
	if err != nil {
		return nil, err
	}
	if units < 0 {
		return nil, ErrNonPositive
	}

	base := units / int64(n)
	remainder := units - base*int64(n)

	parts := make([]decimal.Decimal, n)
	for i := range parts {
		u := base
		if int64(i) < remainder {
			u++
		}
		parts[i] = FromMinorUnits(u)
	}
	return parts, nil
}

// Max は a と b の大きい方を返す。
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
