package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// racha APIの更新系はPOSTとDELETEだけで、PUT/PATCHのルートはない。
var (
	corsAllowMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsAllowHeaders = strings.Join([]string{"Content-Type", csrfHeaderName}, ", ")
)

const corsPreflightMaxAge = 24 * time.Hour

// NewCORSMiddleware はフロントエンドのオリジンallowedOriginからのAPI呼び出しを許可する。
// セッションCookieを送らせるため、許可オリジンは1つに固定しワイルドカードは返さない。
// プリフライトは次のハンドラに渡さず204で終える。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	maxAge := strconv.Itoa(int(corsPreflightMaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
