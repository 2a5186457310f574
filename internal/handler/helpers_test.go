package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/racha/internal/middleware"
	"github.com/hitoshi/racha/internal/racha"
)

// --- モック定義 ---

// mockEventService はEventServiceInterfaceのモック実装。
type mockEventService struct {
	createEventFn     func(ctx context.Context, userID string, req createEventRequest) (*eventResponse, error)
	getEventFn        func(ctx context.Context, userID, eventID string) (*eventResponse, error)
	joinEventFn       func(ctx context.Context, userID, eventID, name string) (*participantResponse, error)
	closeSettlementFn func(ctx context.Context, userID, eventID string) (*eventResponse, error)
	deleteEventFn     func(ctx context.Context, userID, eventID string) error
}

func (m *mockEventService) CreateEvent(ctx context.Context, userID string, req createEventRequest) (*eventResponse, error) {
	return m.createEventFn(ctx, userID, req)
}

func (m *mockEventService) GetEvent(ctx context.Context, userID, eventID string) (*eventResponse, error) {
	return m.getEventFn(ctx, userID, eventID)
}

func (m *mockEventService) JoinEvent(ctx context.Context, userID, eventID, name string) (*participantResponse, error) {
	return m.joinEventFn(ctx, userID, eventID, name)
}

func (m *mockEventService) CloseSettlement(ctx context.Context, userID, eventID string) (*eventResponse, error) {
	return m.closeSettlementFn(ctx, userID, eventID)
}

func (m *mockEventService) DeleteEvent(ctx context.Context, userID, eventID string) error {
	return m.deleteEventFn(ctx, userID, eventID)
}

// mockRachaService はRachaServiceInterfaceのモック実装。
// 未設定の関数が呼ばれた場合はpanicする。
type mockRachaService struct {
	listParticipantsFn      func(ctx context.Context, userID, eventID string) ([]participantResponse, error)
	addParticipantFn        func(ctx context.Context, userID, eventID, name string) (*participantResponse, error)
	removeParticipantFn     func(ctx context.Context, userID, eventID, participantID string) (*removalResponse, error)
	listExpensesFn          func(ctx context.Context, userID, eventID string) ([]expenseResponse, error)
	recordExpenseFn         func(ctx context.Context, userID string, in racha.RecordExpenseInput) (*expenseResponse, error)
	deleteExpenseFn         func(ctx context.Context, userID, eventID, expenseID string) error
	computeSettlementFn     func(ctx context.Context, userID, eventID string) ([]balanceResponse, error)
	summarizePaymentsFn     func(ctx context.Context, userID, eventID string) (map[string]string, error)
	computeReconciliationFn func(ctx context.Context, userID, eventID string) ([]reconciliationResponse, error)
	recordPaymentFn         func(ctx context.Context, userID string, in racha.RecordPaymentInput) (*paymentResponse, error)
}

func (m *mockRachaService) ListParticipants(ctx context.Context, userID, eventID string) ([]participantResponse, error) {
	return m.listParticipantsFn(ctx, userID, eventID)
}

func (m *mockRachaService) AddParticipant(ctx context.Context, userID, eventID, name string) (*participantResponse, error) {
	return m.addParticipantFn(ctx, userID, eventID, name)
}

func (m *mockRachaService) RemoveParticipant(ctx context.Context, userID, eventID, participantID string) (*removalResponse, error) {
	return m.removeParticipantFn(ctx, userID, eventID, participantID)
}

func (m *mockRachaService) ListExpenses(ctx context.Context, userID, eventID string) ([]expenseResponse, error) {
	return m.listExpensesFn(ctx, userID, eventID)
}

func (m *mockRachaService) RecordExpense(ctx context.Context, userID string, in racha.RecordExpenseInput) (*expenseResponse, error) {
	return m.recordExpenseFn(ctx, userID, in)
}

func (m *mockRachaService) DeleteExpense(ctx context.Context, userID, eventID, expenseID string) error {
	return m.deleteExpenseFn(ctx, userID, eventID, expenseID)
}

func (m *mockRachaService) ComputeSettlement(ctx context.Context, userID, eventID string) ([]balanceResponse, error) {
	return m.computeSettlementFn(ctx, userID, eventID)
}

func (m *mockRachaService) SummarizePayments(ctx context.Context, userID, eventID string) (map[string]string, error) {
	return m.summarizePaymentsFn(ctx, userID, eventID)
}

func (m *mockRachaService) ComputeReconciliation(ctx context.Context, userID, eventID string) ([]reconciliationResponse, error) {
	return m.computeReconciliationFn(ctx, userID, eventID)
}

func (m *mockRachaService) RecordPayment(ctx context.Context, userID string, in racha.RecordPaymentInput) (*paymentResponse, error) {
	return m.recordPaymentFn(ctx, userID, in)
}

// mockNotificationService はPaymentNotificationServiceInterfaceのモック実装。
type mockNotificationService struct {
	applyFn func(ctx context.Context, n racha.PaymentNotification) (*notificationResponse, error)
}

func (m *mockNotificationService) ApplyPaymentNotification(ctx context.Context, n racha.PaymentNotification) (*notificationResponse, error) {
	return m.applyFn(ctx, n)
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
// key, value の順に交互に渡す。
func withChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
