package handler

import (
	"context"

	"github.com/hitoshi/racha/internal/event"
	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/racha"
	"github.com/shopspring/decimal"
)

// EventServiceAdapter は event.Service を EventServiceInterface に適合させるアダプタ。
type EventServiceAdapter struct {
	svc *event.Service
}

// NewEventServiceAdapter はEventServiceAdapterを生成する。
func NewEventServiceAdapter(svc *event.Service) *EventServiceAdapter {
	return &EventServiceAdapter{svc: svc}
}

// CreateEvent はイベントを作成しhandlerレスポンス型で返す。
func (a *EventServiceAdapter) CreateEvent(ctx context.Context, userID string, req createEventRequest) (*eventResponse, error) {
	e, err := a.svc.CreateEvent(ctx, event.CreateEventInput{
		OrganizerUserID: userID,
		OrganizerName:   req.OrganizerName,
		Name:            req.Name,
		Kind:            model.EventKind(req.Kind),
	})
	if err != nil {
		return nil, err
	}
	resp := toEventResponse(e)
	return &resp, nil
}

// GetEvent は主催者または参加者であることを確認してイベントを返す。
func (a *EventServiceAdapter) GetEvent(ctx context.Context, userID, eventID string) (*eventResponse, error) {
	e, err := a.svc.RequireMember(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	resp := toEventResponse(e)
	return &resp, nil
}

// JoinEvent は招待を受諾し、登録された参加者を返す。
func (a *EventServiceAdapter) JoinEvent(ctx context.Context, userID, eventID, name string) (*participantResponse, error) {
	p, err := a.svc.JoinEvent(ctx, eventID, userID, name)
	if err != nil {
		return nil, err
	}
	resp := toParticipantResponse(p)
	return &resp, nil
}

// CloseSettlement はrachaを締め、更新後のイベントを返す。
func (a *EventServiceAdapter) CloseSettlement(ctx context.Context, userID, eventID string) (*eventResponse, error) {
	e, err := a.svc.CloseSettlement(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	resp := toEventResponse(e)
	return &resp, nil
}

// DeleteEvent はイベントを削除する。
func (a *EventServiceAdapter) DeleteEvent(ctx context.Context, userID, eventID string) error {
	return a.svc.DeleteEvent(ctx, eventID, userID)
}

// AccessChecker はイベント単位のアクセス権を確認する。event.Service が実装する。
type AccessChecker interface {
	RequireOrganizer(ctx context.Context, eventID, userID string) (*model.Event, error)
	RequireMember(ctx context.Context, eventID, userID string) (*model.Event, error)
}

// RachaServiceAdapter は racha.Service を RachaServiceInterface に適合させるアダプタ。
// 各操作の前にAccessCheckerでセッションユーザーの権限を確認する。
type RachaServiceAdapter struct {
	svc    *racha.Service
	access AccessChecker
}

// NewRachaServiceAdapter はRachaServiceAdapterを生成する。
func NewRachaServiceAdapter(svc *racha.Service, access AccessChecker) *RachaServiceAdapter {
	return &RachaServiceAdapter{svc: svc, access: access}
}

// ListParticipants は有効な参加者一覧を返す。
func (a *RachaServiceAdapter) ListParticipants(ctx context.Context, userID, eventID string) ([]participantResponse, error) {
	if _, err := a.access.RequireMember(ctx, eventID, userID); err != nil {
		return nil, err
	}
	ps, err := a.svc.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, err
	}
	results := make([]participantResponse, len(ps))
	for i, p := range ps {
		results[i] = toParticipantResponse(p)
	}
	return results, nil
}

// AddParticipant はゲスト参加者を追加する。
func (a *RachaServiceAdapter) AddParticipant(ctx context.Context, userID, eventID, name string) (*participantResponse, error) {
	if _, err := a.access.RequireMember(ctx, eventID, userID); err != nil {
		return nil, err
	}
	p, err := a.svc.AddParticipant(ctx, racha.AddParticipantInput{EventID: eventID, Name: name})
	if err != nil {
		return nil, err
	}
	resp := toParticipantResponse(p)
	return &resp, nil
}

// RemoveParticipant は主催者であることを確認して参加者を削除する。
func (a *RachaServiceAdapter) RemoveParticipant(ctx context.Context, userID, eventID, participantID string) (*removalResponse, error) {
	if _, err := a.access.RequireOrganizer(ctx, eventID, userID); err != nil {
		return nil, err
	}
	result, err := a.svc.RemoveParticipant(ctx, eventID, participantID)
	if err != nil {
		return nil, err
	}
	resp := toRemovalResponse(result)
	return &resp, nil
}

// ListExpenses は支出一覧を返す。
func (a *RachaServiceAdapter) ListExpenses(ctx context.Context, userID, eventID string) ([]expenseResponse, error) {
	if _, err := a.access.RequireMember(ctx, eventID, userID); err != nil {
		return nil, err
	}
	expenses, err := a.svc.ListExpenses(ctx, eventID)
	if err != nil {
		return nil, err
	}
	results := make([]expenseResponse, len(expenses))
	for i := range expenses {
		results[i] = toExpenseResponse(&expenses[i])
	}
	return results, nil
}

// RecordExpense は支出を記録する。
func (a *RachaServiceAdapter) RecordExpense(ctx context.Context, userID string, in racha.RecordExpenseInput) (*expenseResponse, error) {
	if _, err := a.access.RequireMember(ctx, in.EventID, userID); err != nil {
		return nil, err
	}
	e, err := a.svc.RecordExpense(ctx, in)
	if err != nil {
		return nil, err
	}
	resp := toExpenseResponse(e)
	return &resp, nil
}

// DeleteExpense は支出を削除する。
func (a *RachaServiceAdapter) DeleteExpense(ctx context.Context, userID, eventID, expenseID string) error {
	if _, err := a.access.RequireMember(ctx, eventID, userID); err != nil {
		return err
	}
	return a.svc.DeleteExpense(ctx, eventID, expenseID)
}

// ComputeSettlement は精算残高を返す。
func (a *RachaServiceAdapter) ComputeSettlement(ctx context.Context, userID, eventID string) ([]balanceResponse, error) {
	if _, err := a.access.RequireMember(ctx, eventID, userID); err != nil {
		return nil, err
	}
	balances, err := a.svc.ComputeSettlement(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return toBalanceResponses(balances), nil
}

// SummarizePayments は参加者IDごとのPAID合計を金額文字列で返す。
func (a *RachaServiceAdapter) SummarizePayments(ctx context.Context, userID, eventID string) (map[string]string, error) {
	if _, err := a.access.RequireMember(ctx, eventID, userID); err != nil {
		return nil, err
	}
	totals, err := a.svc.SummarizePayments(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return toAmountMap(totals), nil
}

// ComputeReconciliation は消込状況を返す。
func (a *RachaServiceAdapter) ComputeReconciliation(ctx context.Context, userID, eventID string) ([]reconciliationResponse, error) {
	if _, err := a.access.RequireMember(ctx, eventID, userID); err != nil {
		return nil, err
	}
	rows, err := a.svc.ComputeReconciliation(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return toReconciliationResponses(rows), nil
}

// RecordPayment は支払いを記録する。
func (a *RachaServiceAdapter) RecordPayment(ctx context.Context, userID string, in racha.RecordPaymentInput) (*paymentResponse, error) {
	if _, err := a.access.RequireMember(ctx, in.EventID, userID); err != nil {
		return nil, err
	}
	p, err := a.svc.RecordPayment(ctx, in)
	if err != nil {
		return nil, err
	}
	resp := toPaymentResponse(p)
	return &resp, nil
}

// PaymentNotificationAdapter は racha.Service を PaymentNotificationServiceInterface に適合させるアダプタ。
type PaymentNotificationAdapter struct {
	svc *racha.Service
}

// NewPaymentNotificationAdapter はPaymentNotificationAdapterを生成する。
func NewPaymentNotificationAdapter(svc *racha.Service) *PaymentNotificationAdapter {
	return &PaymentNotificationAdapter{svc: svc}
}

// ApplyPaymentNotification は決済通知を反映し、結果をhandlerレスポンス型で返す。
func (a *PaymentNotificationAdapter) ApplyPaymentNotification(ctx context.Context, n racha.PaymentNotification) (*notificationResponse, error) {
	result, err := a.svc.ApplyPaymentNotification(ctx, n)
	if err != nil {
		return nil, err
	}
	return &notificationResponse{
		Payment:   toPaymentResponse(result.Payment),
		Duplicate: result.Duplicate,
	}, nil
}

// toEventResponse はmodel.EventをeventResponseに変換する。
func toEventResponse(e *model.Event) eventResponse {
	return eventResponse{
		ID:                 e.ID,
		OrganizerUserID:    e.OrganizerUserID,
		Name:               e.Name,
		Kind:               string(e.Kind),
		SettlementFinal:    e.IsSettlementFinal(),
		SettlementClosedAt: e.SettlementClosedAt,
		CreatedAt:          e.CreatedAt,
	}
}

func toParticipantResponse(p *model.Participant) participantResponse {
	return participantResponse{
		ID:        p.ID,
		EventID:   p.EventID,
		Name:      p.Name,
		UserID:    p.UserID,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}
}

func toRemovalResponse(r *racha.RemovalResult) removalResponse {
	ids := r.RebalancedExpenseIDs
	if ids == nil {
		ids = []string{}
	}
	return removalResponse{
		ParticipantID:        r.ParticipantID,
		Removed:              r.Removed,
		Deactivated:          r.Deactivated,
		RebalancedExpenseIDs: ids,
	}
}

func toExpenseResponse(e *model.ExpenseWithShares) expenseResponse {
	shares := make([]shareResponse, len(e.Shares))
	for i, s := range e.Shares {
		shares[i] = shareResponse{
			ParticipantID: s.ParticipantID,
			ShareAmount:   formatAmount(s.ShareAmount),
		}
	}
	return expenseResponse{
		ID:          e.ID,
		EventID:     e.EventID,
		PayerID:     e.PayerID,
		Description: e.Description,
		TotalAmount: formatAmount(e.TotalAmount),
		Shares:      shares,
		CreatedAt:   e.CreatedAt,
	}
}

func toBalanceResponses(balances []racha.Balance) []balanceResponse {
	results := make([]balanceResponse, len(balances))
	for i, b := range balances {
		results[i] = balanceResponse{
			ParticipantID: b.ParticipantID,
			Name:          b.Name,
			TotalPaid:     formatAmount(b.TotalPaid),
			TotalShare:    formatAmount(b.TotalShare),
			Balance:       formatAmount(b.Balance),
		}
	}
	return results
}

func toReconciliationResponses(rows []racha.Reconciliation) []reconciliationResponse {
	results := make([]reconciliationResponse, len(rows))
	for i, r := range rows {
		results[i] = reconciliationResponse{
			ParticipantID: r.ParticipantID,
			Name:          r.Name,
			Balance:       formatAmount(r.Balance),
			AmountOwed:    formatAmount(r.AmountOwed),
			Paid:          formatAmount(r.Paid),
			Remaining:     formatAmount(r.Remaining),
		}
	}
	return results
}

// toAmountMap は参加者IDをキーにした金額マップを文字列表現に変換する。
func toAmountMap(totals map[string]decimal.Decimal) map[string]string {
	results := make(map[string]string, len(totals))
	for k, v := range totals {
		results[k] = formatAmount(v)
	}
	return results
}

func toPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID,
		EventID:           p.EventID,
		ParticipantID:     p.ParticipantID,
		Amount:            formatAmount(p.Amount),
		Status:            string(p.Status),
		Provider:          p.Provider,
		ProviderPaymentID: p.ProviderPaymentID,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
