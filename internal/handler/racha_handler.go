package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/racha/internal/middleware"
	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/racha"
	"github.com/shopspring/decimal"
)

// RachaServiceInterface はrachaハンドラーが必要とするサービスインターフェース。
// 実装側でセッションユーザーのアクセス権を確認する。
type RachaServiceInterface interface {
	ListParticipants(ctx context.Context, userID, eventID string) ([]participantResponse, error)
	AddParticipant(ctx context.Context, userID, eventID, name string) (*participantResponse, error)
	// RemoveParticipant は主催者のみ実行できる。
	RemoveParticipant(ctx context.Context, userID, eventID, participantID string) (*removalResponse, error)
	ListExpenses(ctx context.Context, userID, eventID string) ([]expenseResponse, error)
	RecordExpense(ctx context.Context, userID string, in racha.RecordExpenseInput) (*expenseResponse, error)
	DeleteExpense(ctx context.Context, userID, eventID, expenseID string) error
	ComputeSettlement(ctx context.Context, userID, eventID string) ([]balanceResponse, error)
	SummarizePayments(ctx context.Context, userID, eventID string) (map[string]string, error)
	ComputeReconciliation(ctx context.Context, userID, eventID string) ([]reconciliationResponse, error)
	RecordPayment(ctx context.Context, userID string, in racha.RecordPaymentInput) (*paymentResponse, error)
}

// RachaHandler は参加者・支出・精算・支払いのHTTPハンドラー。
type RachaHandler struct {
	service  RachaServiceInterface
	currency string
}

// NewRachaHandler はRachaHandlerを生成する。currencyはレスポンスに付与する通貨コード。
func NewRachaHandler(service RachaServiceInterface, currency string) *RachaHandler {
	return &RachaHandler{service: service, currency: currency}
}

// participantResponse は参加者情報のAPIレスポンス。
type participantResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	UserID    *string   `json:"user_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// removalResponse は参加者削除結果のAPIレスポンス。
type removalResponse struct {
	ParticipantID        string   `json:"participant_id"`
	Removed              bool     `json:"removed"`
	Deactivated          bool     `json:"deactivated"`
	RebalancedExpenseIDs []string `json:"rebalanced_expense_ids"`
}

// shareResponse は支出の負担額1件。
type shareResponse struct {
	ParticipantID string `json:"participant_id"`
	ShareAmount   string `json:"share_amount"`
}

// expenseResponse は支出情報のAPIレスポンス。金額は小数点以下2桁の文字列。
type expenseResponse struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	PayerID     string          `json:"payer_id"`
	Description string          `json:"description"`
	TotalAmount string          `json:"total_amount"`
	Shares      []shareResponse `json:"shares"`
	CreatedAt   time.Time       `json:"created_at"`
}

// balanceResponse は参加者1人分の精算残高。
type balanceResponse struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	TotalPaid     string `json:"total_paid"`
	TotalShare    string `json:"total_share"`
	Balance       string `json:"balance"`
}

// reconciliationResponse は参加者1人分の支払い消込状況。
type reconciliationResponse struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Balance       string `json:"balance"`
	AmountOwed    string `json:"amount_owed"`
	Paid          string `json:"paid"`
	Remaining     string `json:"remaining"`
}

// paymentResponse は支払い情報のAPIレスポンス。
type paymentResponse struct {
	ID                string    `json:"id"`
	EventID           string    `json:"event_id"`
	ParticipantID     string    `json:"participant_id"`
	Amount            string    `json:"amount"`
	Status            string    `json:"status"`
	Provider          string    `json:"provider"`
	ProviderPaymentID *string   `json:"provider_payment_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type settlementResponse struct {
	EventID  string            `json:"event_id"`
	Currency string            `json:"currency"`
	Balances []balanceResponse `json:"balances"`
}

type paymentSummaryResponse struct {
	EventID  string            `json:"event_id"`
	Currency string            `json:"currency"`
	Paid     map[string]string `json:"paid"`
}

type reconciliationListResponse struct {
	EventID      string                   `json:"event_id"`
	Currency     string                   `json:"currency"`
	Participants []reconciliationResponse `json:"participants"`
}

// addParticipantRequest はアカウントを持たないゲスト参加者の追加リクエスト。
type addParticipantRequest struct {
	Name string `json:"name"`
}

// recordExpenseRequest は支出記録リクエストのボディ。
type recordExpenseRequest struct {
	PayerID        string   `json:"payer_id"`
	Description    string   `json:"description"`
	TotalAmount    string   `json:"total_amount"`
	ParticipantIDs []string `json:"participant_ids"`
}

// recordPaymentRequest は支払い記録リクエストのボディ。
type recordPaymentRequest struct {
	ParticipantID     string  `json:"participant_id"`
	Amount            string  `json:"amount"`
	Provider          string  `json:"provider"`
	ProviderPaymentID *string `json:"provider_payment_id"`
}

// ListParticipants はrachaの有効な参加者一覧を返す。
// GET /api/events/{eventID}/racha/participants
func (h *RachaHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	participants, err := h.service.ListParticipants(r.Context(), userID, chi.URLParam(r, "eventID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, participants)
}

// AddParticipant はゲスト参加者を追加する。
// POST /api/events/{eventID}/racha/participants
func (h *RachaHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	var req addParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	participant, err := h.service.AddParticipant(r.Context(), userID, chi.URLParam(r, "eventID"), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, participant)
}

// RemoveParticipant は参加者を削除または無効化する。
// DELETE /api/events/{eventID}/racha/participants/{participantID}
func (h *RachaHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	result, err := h.service.RemoveParticipant(r.Context(), userID,
		chi.URLParam(r, "eventID"), chi.URLParam(r, "participantID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListExpenses は支出一覧を負担額付きで返す。
// GET /api/events/{eventID}/racha/expenses
func (h *RachaHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	expenses, err := h.service.ListExpenses(r.Context(), userID, chi.URLParam(r, "eventID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, expenses)
}

// RecordExpense は支出を記録し、負担者間で均等に割り振る。
// POST /api/events/{eventID}/racha/expenses
func (h *RachaHandler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	var req recordExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	total, err := parseAmount(req.TotalAmount)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	expense, err := h.service.RecordExpense(r.Context(), userID, racha.RecordExpenseInput{
		EventID:        chi.URLParam(r, "eventID"),
		PayerID:        req.PayerID,
		Description:    req.Description,
		TotalAmount:    total,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, expense)
}

// DeleteExpense は支出と負担額を削除する。
// DELETE /api/events/{eventID}/racha/expenses/{expenseID}
func (h *RachaHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	err = h.service.DeleteExpense(r.Context(), userID, chi.URLParam(r, "eventID"), chi.URLParam(r, "expenseID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSettlement は参加者ごとの精算残高を返す。
// GET /api/events/{eventID}/racha/settlement
func (h *RachaHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	eventID := chi.URLParam(r, "eventID")
	balances, err := h.service.ComputeSettlement(r.Context(), userID, eventID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settlementResponse{
		EventID:  eventID,
		Currency: h.currency,
		Balances: balances,
	})
}

// GetPaymentSummary は参加者ごとのPAID支払い合計を返す。
// GET /api/events/{eventID}/racha/payments/summary
func (h *RachaHandler) GetPaymentSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	eventID := chi.URLParam(r, "eventID")
	paid, err := h.service.SummarizePayments(r.Context(), userID, eventID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentSummaryResponse{
		EventID:  eventID,
		Currency: h.currency,
		Paid:     paid,
	})
}

// GetReconciliation は残高と支払い済み額の消込状況を返す。
// GET /api/events/{eventID}/racha/reconciliation
func (h *RachaHandler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	eventID := chi.URLParam(r, "eventID")
	rows, err := h.service.ComputeReconciliation(r.Context(), userID, eventID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reconciliationListResponse{
		EventID:      eventID,
		Currency:     h.currency,
		Participants: rows,
	})
}

// RecordPayment はPENDING状態の支払いを記録する。
// POST /api/events/{eventID}/racha/payments
func (h *RachaHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	payment, err := h.service.RecordPayment(r.Context(), userID, racha.RecordPaymentInput{
		EventID:           chi.URLParam(r, "eventID"),
		ParticipantID:     req.ParticipantID,
		Amount:            amount,
		Provider:          req.Provider,
		ProviderPaymentID: req.ProviderPaymentID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, payment)
}

// parseAmount は "100.00" 形式の金額文字列を解析する。
// 桁数や正値の検証はサービス層で行う。
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, model.NewInvalidAmountError("金額が指定されていません")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, model.NewInvalidAmountError(s)
	}
	return d, nil
}

// formatAmount は金額を小数点以下2桁の文字列にする。
func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
