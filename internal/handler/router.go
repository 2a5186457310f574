package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/racha/internal/middleware"
)

// HealthChecker はDB疎通確認に必要なインターフェース。*sql.DB が実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig

	// MetricsHandler がnilの場合 /metrics は公開しない。
	MetricsHandler http.Handler

	// イベント
	EventService EventServiceInterface

	// racha
	RachaService        RachaServiceInterface
	NotificationService PaymentNotificationServiceInterface
	Currency            string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General) → CSRF
//
// /health, /metrics と決済通知はセッションの外に配置する。
// 決済通知にはリモートアドレス単位のレート制限のみをかける。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	eventHandler := NewEventHandler(deps.EventService)
	rachaHandler := NewRachaHandler(deps.RachaService, deps.Currency)
	notificationHandler := NewNotificationHandler(deps.NotificationService)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// POST /api/payments/notifications - 決済プロバイダからの通知
	r.With(deps.RateLimiter.NotificationMiddleware()).
		Post("/api/payments/notifications", notificationHandler.ApplyNotification)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		// GET /api/csrf-token - CSRFトークンの発行
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		r.Route("/api/events", func(r chi.Router) {
			r.Post("/", eventHandler.CreateEvent)

			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", eventHandler.GetEvent)
				r.Delete("/", eventHandler.DeleteEvent)
				r.Post("/join", eventHandler.JoinEvent)

				r.Route("/racha", func(r chi.Router) {
					r.Post("/close", eventHandler.CloseSettlement)

					r.Get("/participants", rachaHandler.ListParticipants)
					r.Post("/participants", rachaHandler.AddParticipant)
					r.Delete("/participants/{participantID}", rachaHandler.RemoveParticipant)

					r.Get("/expenses", rachaHandler.ListExpenses)
					r.Post("/expenses", rachaHandler.RecordExpense)
					r.Delete("/expenses/{expenseID}", rachaHandler.DeleteExpense)

					r.Get("/settlement", rachaHandler.GetSettlement)
					r.Get("/reconciliation", rachaHandler.GetReconciliation)

					r.Post("/payments", rachaHandler.RecordPayment)
					r.Get("/payments/summary", rachaHandler.GetPaymentSummary)
				})
			})
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
