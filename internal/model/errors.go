package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string         // エラーコード
	Message  string         // エラーメッセージ
	Category string         // カテゴリ: auth, validation, conflict, not_found, system
	Action   string         // ユーザー向け対処方法
	Details  map[string]any // 解決に必要な補足情報（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is は同一コードのAPIErrorを等価とみなす。errors.Is で利用する。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateParticipant      = "DUPLICATE_PARTICIPANT"
	ErrCodeInvalidPayer              = "INVALID_PAYER"
	ErrCodeEmptyShareSet             = "EMPTY_SHARE_SET"
	ErrCodeInvalidAmount             = "INVALID_AMOUNT"
	ErrCodeInvalidShareholder        = "INVALID_SHAREHOLDER"
	ErrCodeInvalidName               = "INVALID_NAME"
	ErrCodeUniqueShareholderConflict = "UNIQUE_SHAREHOLDER_CONFLICT"
	ErrCodeParticipantNotFound       = "PARTICIPANT_NOT_FOUND"
	ErrCodeParticipantInactive       = "PARTICIPANT_INACTIVE"
	ErrCodeNotSettlementFinal        = "NOT_SETTLEMENT_FINAL"
	ErrCodeSettlementAlreadyFinal    = "SETTLEMENT_ALREADY_FINAL"
	ErrCodePaymentNotFound           = "PAYMENT_NOT_FOUND"
	ErrCodeInvalidStatusTransition   = "INVALID_STATUS_TRANSITION"
	ErrCodeEventNotFound             = "EVENT_NOT_FOUND"
	ErrCodeExpenseNotFound           = "EXPENSE_NOT_FOUND"
	ErrCodeOutstandingDebts          = "OUTSTANDING_DEBTS"
	ErrCodeInvalidEventKind          = "INVALID_EVENT_KIND"
	ErrCodeForbidden                 = "FORBIDDEN"
	ErrCodeInvalidProvider           = "INVALID_PROVIDER"
	ErrCodeDuplicateProviderPayment  = "DUPLICATE_PROVIDER_PAYMENT"
	ErrCodeInvalidStatus             = "INVALID_STATUS"
)

// センチネル。errors.Is(err, model.ErrUniqueShareholderConflict) の形で判定する。
var (
	ErrDuplicateParticipant      = &APIError{Code: ErrCodeDuplicateParticipant}
	ErrInvalidPayer              = &APIError{Code: ErrCodeInvalidPayer}
	ErrEmptyShareSet             = &APIError{Code: ErrCodeEmptyShareSet}
	ErrInvalidAmount             = &APIError{Code: ErrCodeInvalidAmount}
	ErrUniqueShareholderConflict = &APIError{Code: ErrCodeUniqueShareholderConflict}
	ErrParticipantNotFound       = &APIError{Code: ErrCodeParticipantNotFound}
	ErrParticipantInactive       = &APIError{Code: ErrCodeParticipantInactive}
	ErrNotSettlementFinal        = &APIError{Code: ErrCodeNotSettlementFinal}
	ErrPaymentNotFound           = &APIError{Code: ErrCodePaymentNotFound}
	ErrInvalidStatusTransition   = &APIError{Code: ErrCodeInvalidStatusTransition}
	ErrEventNotFound             = &APIError{Code: ErrCodeEventNotFound}
	ErrOutstandingDebts          = &APIError{Code: ErrCodeOutstandingDebts}
)

// NewDuplicateParticipantError はアカウントが既にイベントの参加者である場合のエラーを生成する。
func NewDuplicateParticipantError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateParticipant,
		Message:  fmt.Sprintf("このアカウントは既にイベントの参加者です: %s", userID),
		Category: "conflict",
		Action:   "参加者一覧から該当アカウントを確認してください。",
	}
}

// NewInvalidPayerError は支払者がイベントの有効な参加者でない場合のエラーを生成する。
func NewInvalidPayerError(payerID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayer,
		Message:  fmt.Sprintf("支払者がイベントの有効な参加者ではありません: %s", payerID),
		Category: "validation",
		Action:   "有効な参加者を支払者に指定してください。",
	}
}

// NewEmptyShareSetError は負担者が指定されていない場合のエラーを生成する。
func NewEmptyShareSetError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyShareSet,
		Message:  "負担者が指定されていません。",
		Category: "validation",
		Action:   "1人以上の参加者を負担者に指定してください。",
	}
}

// NewInvalidAmountError は金額が不正な場合のエラーを生成する。
func NewInvalidAmountError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("無効な金額です: %s", reason),
		Category: "validation",
		Action:   "0より大きく、小数点以下2桁までの金額を指定してください。",
	}
}

// NewInvalidShareholderError は負担者にイベントの有効な参加者以外が含まれる場合のエラーを生成する。
func NewInvalidShareholderError(participantIDs []string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidShareholder,
		Message:  fmt.Sprintf("負担者に有効でない参加者が含まれています: %s", strings.Join(participantIDs, ", ")),
		Category: "validation",
		Action:   "イベントの有効な参加者のみを負担者に指定してください。",
		Details:  map[string]any{"participant_ids": participantIDs},
	}
}

// NewInvalidNameError は参加者名やイベント名が空の場合のエラーを生成する。
func NewInvalidNameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidName,
		Message:  "名前が空です。",
		Category: "validation",
		Action:   "名前を入力してください。",
	}
}

// NewUniqueShareholderConflictError は参加者が唯一の負担者である支出が存在し、
// 削除できない場合のエラーを生成する。ブロックしている支出IDを含む。
func NewUniqueShareholderConflictError(participantID string, expenseIDs []string) *APIError {
	return &APIError{
		Code:     ErrCodeUniqueShareholderConflict,
		Message:  fmt.Sprintf("参加者 %s が唯一の負担者である支出があるため削除できません: %s", participantID, strings.Join(expenseIDs, ", ")),
		Category: "conflict",
		Action:   "該当する支出を編集または削除してから再度お試しください。",
		Details:  map[string]any{"participant_id": participantID, "expense_ids": expenseIDs},
	}
}

// NewParticipantNotFoundError は参加者が見つからない場合のエラーを生成する。
func NewParticipantNotFoundError(participantID string) *APIError {
	return &APIError{
		Code:     ErrCodeParticipantNotFound,
		Message:  fmt.Sprintf("指定された参加者が見つかりません: %s", participantID),
		Category: "not_found",
		Action:   "参加者IDを確認してください。",
	}
}

// NewParticipantInactiveError は参加者が無効化済みの場合のエラーを生成する。
func NewParticipantInactiveError(participantID string) *APIError {
	return &APIError{
		Code:     ErrCodeParticipantInactive,
		Message:  fmt.Sprintf("参加者は既にrachaから外れています: %s", participantID),
		Category: "validation",
		Action:   "有効な参加者で操作してください。",
	}
}

// NewNotSettlementFinalError はrachaが締められていない場合のエラーを生成する。
func NewNotSettlementFinalError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotSettlementFinal,
		Message:  fmt.Sprintf("rachaがまだ締められていません: %s", eventID),
		Category: "conflict",
		Action:   "主催者がrachaを締めた後に支払いを行ってください。",
	}
}

// NewSettlementAlreadyFinalError はrachaが既に締められている場合のエラーを生成する。
func NewSettlementAlreadyFinalError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeSettlementAlreadyFinal,
		Message:  fmt.Sprintf("rachaは既に締められています: %s", eventID),
		Category: "conflict",
		Action:   "締め後は支出や参加者を変更できません。",
	}
}

// NewPaymentNotFoundError は支払いが見つからない場合のエラーを生成する。
func NewPaymentNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodePaymentNotFound,
		Message:  fmt.Sprintf("指定された支払いが見つかりません: %s", ref),
		Category: "not_found",
		Action:   "支払いIDを確認してください。",
	}
}

// NewInvalidStatusTransitionError は許可されていない状態遷移の場合のエラーを生成する。
func NewInvalidStatusTransitionError(from, to PaymentStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatusTransition,
		Message:  fmt.Sprintf("支払い状態を %s から %s に変更できません。", from, to),
		Category: "conflict",
		Action:   "PENDING の支払いのみ状態を変更できます。",
	}
}

// NewEventNotFoundError はイベントが見つからない場合のエラーを生成する。
func NewEventNotFoundError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", eventID),
		Category: "not_found",
		Action:   "イベントIDを確認してください。",
	}
}

// NewExpenseNotFoundError は支出が見つからない場合のエラーを生成する。
func NewExpenseNotFoundError(expenseID string) *APIError {
	return &APIError{
		Code:     ErrCodeExpenseNotFound,
		Message:  fmt.Sprintf("指定された支出が見つかりません: %s", expenseID),
		Category: "not_found",
		Action:   "支出IDを確認してください。",
	}
}

// NewOutstandingDebtsError は未精算の残高があるためイベントを削除できない場合のエラーを生成する。
func NewOutstandingDebtsError(eventID string, participantIDs []string) *APIError {
	return &APIError{
		Code:     ErrCodeOutstandingDebts,
		Message:  fmt.Sprintf("未精算の残高があるためイベントを削除できません: %s", eventID),
		Category: "conflict",
		Action:   "全員の精算が完了してから削除してください。",
		Details:  map[string]any{"participant_ids": participantIDs},
	}
}

// NewInvalidEventKindError はイベント種別が不正な場合のエラーを生成する。
func NewInvalidEventKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEventKind,
		Message:  fmt.Sprintf("無効なイベント種別です: %s", kind),
		Category: "validation",
		Action:   "FREE、PREPAID、POSTPAID のいずれかを指定してください。",
	}
}

// NewForbiddenError は操作権限がない場合のエラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: "auth",
		Action:   "イベントの主催者または参加者としてログインしてください。",
	}
}

// NewInvalidProviderError は決済プロバイダが指定されていない場合のエラーを生成する。
func NewInvalidProviderError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProvider,
		Message:  "決済プロバイダが指定されていません。",
		Category: "validation",
		Action:   "決済プロバイダ（例: pix）を指定してください。",
	}
}

// NewDuplicateProviderPaymentError はプロバイダ側の支払いIDが既に登録済みの場合のエラーを生成する。
func NewDuplicateProviderPaymentError(providerPaymentID string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateProviderPayment,
		Message:  fmt.Sprintf("このプロバイダ支払いIDは既に登録されています: %s", providerPaymentID),
		Category: "conflict",
		Action:   "既存の支払いの状態を確認してください。",
	}
}

// NewInvalidStatusError は未知の支払い状態が指定された場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効な支払い状態です: %s", status),
		Category: "validation",
		Action:   "PAID、FAILED、CANCELLED のいずれかを指定してください。",
	}
}
