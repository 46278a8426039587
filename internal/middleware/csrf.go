package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/moviesync/internal/model"
)

// NewOriginCheckMiddleware は状態変更リクエストのOriginヘッダーを検証するミドルウェアを返す。
// 許可されたオリジン（カンマ区切りで複数指定可）からのものだけを受け付ける。
// Originヘッダーを送らないネイティブクライアントのリクエストはそのまま通す。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証しない。
func NewOriginCheckMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := ParseAllowedOrigins(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" || origins.Allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("cross-origin request rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", origin),
			)
			WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
				Code:     model.ErrCodeInvalidOrigin,
				Message:  "Request origin is not allowed.",
				Category: "auth",
				Action:   "許可されたオリジンからアクセスしてください。",
			})
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
