package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/racha/internal/model"
)

func TestEventHandler_CreateEvent_Success(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockEventService{
		createEventFn: func(ctx context.Context, userID string, req createEventRequest) (*eventResponse, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			if req.Name != "Churrasco" || req.Kind != "POSTPAID" || req.OrganizerName != "Ana" {
				t.Errorf("unexpected request: %+v", req)
			}
			return &eventResponse{
				ID:              "ev-1",
				OrganizerUserID: userID,
				Name:            req.Name,
				Kind:            req.Kind,
				CreatedAt:       now,
			}, nil
		},
	}
	h := NewEventHandler(svc)

	body := `{"name":"Churrasco","kind":"POSTPAID","organizer_name":"Ana"}`
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString(body))
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.CreateEvent(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var got eventResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != "ev-1" || got.SettlementFinal {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestEventHandler_CreateEvent_InvalidJSON(t *testing.T) {
	h := NewEventHandler(&mockEventService{})

	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString("{"))
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.CreateEvent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want INVALID_REQUEST", body.Code)
	}
}

func TestEventHandler_CreateEvent_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewEventHandler(&mockEventService{})

	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString(`{"name":"x"}`))
	w := httptest.NewRecorder()

	h.CreateEvent(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestEventHandler_GetEvent_Forbidden(t *testing.T) {
	svc := &mockEventService{
		getEventFn: func(ctx context.Context, userID, eventID string) (*eventResponse, error) {
			return nil, model.NewForbiddenError("not a member")
		},
	}
	h := NewEventHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/events/ev-1", nil)
	req = withUserID(req, "stranger")
	req = withChiURLParams(req, "eventID", "ev-1")
	w := httptest.NewRecorder()

	h.GetEvent(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestEventHandler_JoinEvent_Duplicate(t *testing.T) {
	svc := &mockEventService{
		joinEventFn: func(ctx context.Context, userID, eventID, name string) (*participantResponse, error) {
			if eventID != "ev-1" || name != "Bruno" {
				t.Errorf("eventID=%q name=%q", eventID, name)
			}
			return nil, model.NewDuplicateParticipantError(userID)
		},
	}
	h := NewEventHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/events/ev-1/join", bytes.NewBufferString(`{"name":"Bruno"}`))
	req = withUserID(req, "user-2")
	req = withChiURLParams(req, "eventID", "ev-1")
	w := httptest.NewRecorder()

	h.JoinEvent(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeDuplicateParticipant {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeDuplicateParticipant)
	}
}

func TestEventHandler_CloseSettlement_Success(t *testing.T) {
	closedAt := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	svc := &mockEventService{
		closeSettlementFn: func(ctx context.Context, userID, eventID string) (*eventResponse, error) {
			return &eventResponse{ID: eventID, SettlementFinal: true, SettlementClosedAt: &closedAt}, nil
		},
	}
	h := NewEventHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/events/ev-1/racha/close", nil)
	req = withUserID(req, "user-1")
	req = withChiURLParams(req, "eventID", "ev-1")
	w := httptest.NewRecorder()

	h.CloseSettlement(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got eventResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !got.SettlementFinal || got.SettlementClosedAt == nil || !got.SettlementClosedAt.Equal(closedAt) {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestEventHandler_DeleteEvent_OutstandingDebts(t *testing.T) {
	svc := &mockEventService{
		deleteEventFn: func(ctx context.Context, userID, eventID string) error {
			return model.NewOutstandingDebtsError(eventID, []string{"p-2", "p-3"})
		},
	}
	h := NewEventHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/events/ev-1", nil)
	req = withUserID(req, "user-1")
	req = withChiURLParams(req, "eventID", "ev-1")
	w := httptest.NewRecorder()

	h.DeleteEvent(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	body := parseAPIErrorResponse(t, w)
	if body.Code != model.ErrCodeOutstandingDebts {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeOutstandingDebts)
	}
	ids, ok := body.Details["participant_ids"].([]any)
	if !ok || len(ids) != 2 {
		t.Errorf("details.participant_ids = %v, want 2 entries", body.Details["participant_ids"])
	}
}

func TestEventHandler_DeleteEvent_Success(t *testing.T) {
	called := false
	svc := &mockEventService{
		deleteEventFn: func(ctx context.Context, userID, eventID string) error {
			called = true
			return nil
		},
	}
	h := NewEventHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/events/ev-1", nil)
	req = withUserID(req, "user-1")
	req = withChiURLParams(req, "eventID", "ev-1")
	w := httptest.NewRecorder()

	h.DeleteEvent(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !called {
		t.Error("expected DeleteEvent to be called")
	}
}
