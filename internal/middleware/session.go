// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moviesync/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// accountIDContextKey はリクエストコンテキストにアカウントIDを格納するためのキー。
	accountIDContextKey = contextKey("account_id")
	// sessionIDContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
	sessionIDContextKey = contextKey("session_id")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取るミドルウェアを返す。
// 有効なセッションの場合はアカウントIDとセッションIDをリクエストコンテキストに注入する。
// Cookieがない、または無効なセッションの場合はゲストとして後続に渡す。
// 認証が必須のルートでは RequireAccount を併用する。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			// 2. セッションの有効性を検証
			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			// 3. 認証済みアカウントIDをコンテキストに注入
			ctx := ContextWithAccountID(r.Context(), session.AccountID)
			ctx = ContextWithSessionID(ctx, session.ID)
			if al, ok := w.(AccountLogger); ok {
				al.SetLoggedAccountID(session.AccountID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAccount は認証済みのリクエストだけを通すミドルウェアを返す。
// ゲストには401と "missing scope (<scope>)" を含むエラーを返す。
func RequireAccount(scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := AccountIDFromContext(r.Context()); err != nil {
				WriteMissingScope(w, scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountIDFromContext はリクエストコンテキストからアカウントIDを取得する。
// 有効なセッションを持つリクエストでのみ取得できる。
func AccountIDFromContext(ctx context.Context) (string, error) {
	accountID, ok := ctx.Value(accountIDContextKey).(string)
	if !ok || accountID == "" {
		return "", fmt.Errorf("account ID not found in context")
	}
	return accountID, nil
}

// SessionIDFromContext はリクエストコンテキストから有効なセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionIDContextKey).(string)
	return sessionID
}

// ContextWithAccountID はコンテキストにアカウントIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDContextKey, accountID)
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}
