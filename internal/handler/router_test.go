package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/racha/internal/middleware"
	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/racha"
)

// mockSessionFinder はセッションIDからユーザーIDを引くモック。
type mockSessionFinder struct {
	sessions map[string]string
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	userID, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &model.Session{ID: id, UserID: userID}, nil
}

// mockHealthChecker はPingContextの結果を固定するモック。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	deps.RateLimiter = rl
	deps.SessionFinder = &mockSessionFinder{sessions: map[string]string{"sess-1": "user-1"}}
	deps.CORSAllowedOrigin = "http://localhost:3000"
	deps.Currency = "BRL"
	if deps.EventService == nil {
		deps.EventService = &mockEventService{}
	}
	if deps.RachaService == nil {
		deps.RachaService = &mockRachaService{}
	}
	if deps.NotificationService == nil {
		deps.NotificationService = &mockNotificationService{}
	}
	return NewRouter(deps)
}

func TestNewRouter_Health(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"healthy", nil, http.StatusOK},
		{"db down", errors.New("dial tcp: refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &RouterDeps{HealthChecker: &mockHealthChecker{err: tt.err}})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.want {
				t.Errorf("GET /health status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestNewRouter_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("racha_expenses_recorded_total 1\n"))
	})
	router := newTestRouter(t, &RouterDeps{MetricsHandler: metrics})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}

	router = newTestRouter(t, &RouterDeps{})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without handler status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestNewRouter_RequiresSession(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events/ev-1/racha/settlement", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestNewRouter_SettlementRoute(t *testing.T) {
	svc := &mockRachaService{
		computeSettlementFn: func(ctx context.Context, userID, eventID string) ([]balanceResponse, error) {
			if userID != "user-1" || eventID != "ev-1" {
				t.Errorf("userID=%q eventID=%q", userID, eventID)
			}
			return []balanceResponse{}, nil
		},
	}
	router := newTestRouter(t, &RouterDeps{RachaService: svc})

	req := httptest.NewRequest(http.MethodGet, "/api/events/ev-1/racha/settlement", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_StateChangingRouteRequiresCSRFToken(t *testing.T) {
	called := false
	svc := &mockRachaService{
		deleteExpenseFn: func(ctx context.Context, userID, eventID, expenseID string) error {
			called = true
			if expenseID != "e-1" {
				t.Errorf("expenseID = %q, want e-1", expenseID)
			}
			return nil
		},
	}
	router := newTestRouter(t, &RouterDeps{RachaService: svc})

	req := httptest.NewRequest(http.MethodDelete, "/api/events/ev-1/racha/expenses/e-1", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("without token status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if called {
		t.Fatal("handler must not run without a CSRF token")
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/events/ev-1/racha/expenses/e-1", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
	req.Header.Set("X-CSRF-Token", "tok")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("with token status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !called {
		t.Error("expected DeleteExpense to be called")
	}
}

func TestNewRouter_NotificationWithoutSession(t *testing.T) {
	svc := &mockNotificationService{
		applyFn: func(ctx context.Context, n racha.PaymentNotification) (*notificationResponse, error) {
			return &notificationResponse{Payment: paymentResponse{ID: "pay-1", Status: string(n.Status)}}, nil
		},
	}
	router := newTestRouter(t, &RouterDeps{NotificationService: svc})

	req := httptest.NewRequest(http.MethodPost, "/api/payments/notifications",
		bytes.NewBufferString(`{"provider_payment_id":"px-1","status":"PAID"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
