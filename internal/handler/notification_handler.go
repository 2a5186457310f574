package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/racha"
)

// PaymentNotificationServiceInterface は決済通知ハンドラーが必要とするサービスインターフェース。
type PaymentNotificationServiceInterface interface {
	ApplyPaymentNotification(ctx context.Context, n racha.PaymentNotification) (*notificationResponse, error)
}

// NotificationHandler は決済プロバイダからの通知を受け付けるHTTPハンドラー。
// セッションを持たないため、ルーター側でリモートアドレス単位のレート制限をかける。
type NotificationHandler struct {
	service PaymentNotificationServiceInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service PaymentNotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// paymentNotificationRequest は決済通知のボディ。
// provider_payment_id を優先し、なければ payment_id で支払いを特定する。
type paymentNotificationRequest struct {
	ProviderPaymentID string `json:"provider_payment_id"`
	PaymentID         string `json:"payment_id"`
	Status            string `json:"status"`
}

// notificationResponse は通知適用結果のAPIレスポンス。
// duplicate=true は同じ通知が既に反映済みで、何も変更しなかったことを示す。
type notificationResponse struct {
	Payment   paymentResponse `json:"payment"`
	Duplicate bool            `json:"duplicate"`
}

// ApplyNotification は決済通知を支払いに反映する。重複通知も200で応答する。
// POST /api/payments/notifications
func (h *NotificationHandler) ApplyNotification(w http.ResponseWriter, r *http.Request) {
	var req paymentNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	status, ok := model.ParsePaymentStatus(req.Status)
	if !ok {
		handleServiceError(w, model.NewInvalidStatusError(req.Status))
		return
	}

	result, err := h.service.ApplyPaymentNotification(r.Context(), racha.PaymentNotification{
		ProviderPaymentID: req.ProviderPaymentID,
		PaymentID:         req.PaymentID,
		Status:            status,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
