package middleware

import (
	"net/http"
	"strings"
)

// AllowedOrigins はブラウザからのアクセスを許可するオリジンの集合。
// 設定値はカンマ区切りで複数指定できる（例: Expoの開発サーバーと本番Web）。
type AllowedOrigins map[string]struct{}

// ParseAllowedOrigins はカンマ区切りのオリジン一覧を解析する。末尾のスラッシュは無視する。
func ParseAllowedOrigins(raw string) AllowedOrigins {
	origins := make(AllowedOrigins)
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins[o] = struct{}{}
		}
	}
	return origins
}

// Allows はオリジンが許可されているかどうかを返す。
func (a AllowedOrigins) Allows(origin string) bool {
	_, ok := a[origin]
	return ok
}

// NewCORSMiddleware は許可されたオリジンに対するCORSミドルウェアを返す。
// セッションCookieを送るため、ワイルドカード(*)は使用せず、許可されたOriginのみをそのまま返す。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := ParseAllowedOrigins(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); origins.Allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
				h.Set("Access-Control-Expose-Headers", "Retry-After")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
