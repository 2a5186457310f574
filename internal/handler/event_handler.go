package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/racha/internal/middleware"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	// CreateEvent はセッションユーザーを主催者としてイベントを作成する。
	CreateEvent(ctx context.Context, userID string, req createEventRequest) (*eventResponse, error)
	// GetEvent は主催者または参加者に対してイベントを返す。
	GetEvent(ctx context.Context, userID, eventID string) (*eventResponse, error)
	// JoinEvent は招待を受諾し、セッションユーザーを参加者として登録する。
	JoinEvent(ctx context.Context, userID, eventID, name string) (*participantResponse, error)
	// CloseSettlement はrachaを締める（主催者のみ）。
	CloseSettlement(ctx context.Context, userID, eventID string) (*eventResponse, error)
	// DeleteEvent はイベントを削除する（主催者のみ）。
	DeleteEvent(ctx context.Context, userID, eventID string) error
}

// EventHandler はイベント管理のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

// eventResponse はイベント情報のAPIレスポンス。
type eventResponse struct {
	ID                 string     `json:"id"`
	OrganizerUserID    string     `json:"organizer_user_id"`
	Name               string     `json:"name"`
	Kind               string     `json:"kind"`
	SettlementFinal    bool       `json:"settlement_final"`
	SettlementClosedAt *time.Time `json:"settlement_closed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// createEventRequest はイベント作成リクエストのボディ。
type createEventRequest struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	OrganizerName string `json:"organizer_name"`
}

// joinEventRequest は招待受諾リクエストのボディ。
type joinEventRequest struct {
	Name string `json:"name"`
}

// CreateEvent はイベントを作成する。
// POST /api/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	event, err := h.service.CreateEvent(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// GetEvent はイベントを取得する。
// GET /api/events/{eventID}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	event, err := h.service.GetEvent(r.Context(), userID, chi.URLParam(r, "eventID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// JoinEvent は招待を受諾する。
// POST /api/events/{eventID}/join
func (h *EventHandler) JoinEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	var req joinEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	participant, err := h.service.JoinEvent(r.Context(), userID, chi.URLParam(r, "eventID"), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, participant)
}

// CloseSettlement はrachaを締める。
// POST /api/events/{eventID}/racha/close
func (h *EventHandler) CloseSettlement(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	event, err := h.service.CloseSettlement(r.Context(), userID, chi.URLParam(r, "eventID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent はイベントを削除する。
// DELETE /api/events/{eventID}
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	if err := h.service.DeleteEvent(r.Context(), userID, chi.URLParam(r, "eventID")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
