package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/moviesync/internal/metrics"
	"github.com/hitoshi/moviesync/internal/middleware"
)

// HealthChecker はデータベース接続の疎通確認に必要なインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HealthChecker     HealthChecker
	Logger            *slog.Logger // nilの場合はslog.Default()

	// メトリクス（nilの場合は記録しない）
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// アカウント
	AccountService AccountServiceInterface
	AccountConfig  AccountHandlerConfig

	// ドキュメント
	DocumentService DocumentServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → SecurityHeaders → CORS → Logging → OriginCheck → Session → RateLimit(General)
//
// /health と /metrics はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Metrics))
	r.Use(chimiddleware.RealIP)

	accountHandler := NewAccountHandler(deps.AccountService, deps.AccountConfig, deps.Metrics)
	documentHandler := NewDocumentHandler(deps.DocumentService, deps.Metrics)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- API ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.NewSecurityHeadersMiddleware(deps.AccountConfig.CookieSecure))
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
		r.Use(middleware.NewOriginCheckMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/account", func(r chi.Router) {
			// 認証不要: 登録とログイン
			r.Post("/", accountHandler.Signup)
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/sessions/email", accountHandler.CreateSession)

			// 認証必須
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAccount(scopeAccount))
				r.Get("/", accountHandler.Get)
				r.Patch("/name", accountHandler.UpdateName)
				r.Patch("/password", accountHandler.UpdatePassword)
				r.Delete("/sessions/current", accountHandler.DeleteCurrentSession)
			})
		})

		// ドキュメント: ゲスト可否はコレクションごとにサービス層で判定する
		r.Route("/collections/{collection}/documents", func(r chi.Router) {
			r.Get("/", documentHandler.List)
			r.Post("/", documentHandler.Create)
			r.Patch("/{id}", documentHandler.Update)
			r.Delete("/{id}", documentHandler.Delete)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
