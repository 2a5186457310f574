package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
)

// NewRecoveryMiddleware はハンドラ内のpanicを500のINTERNAL_ERRORに変換する。
// ログにはルートのパターンと対象のイベントIDを残し、どのracha操作で落ちたかを追えるようにする。
// http.ErrAbortHandlerはnet/httpに接続を切らせるため再panicする。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				attrs := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				// chiのルートコンテキストはルーティング後に埋まるため、ここで読める
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					attrs = append(attrs, slog.String("route", rctx.RoutePattern()))
					if eventID := rctx.URLParam("eventID"); eventID != "" {
						attrs = append(attrs, slog.String("event_id", eventID))
					}
				}
				attrs = append(attrs, slog.String("stack", string(debug.Stack())))
				logger.Error("panic recovered", attrs...)

				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
