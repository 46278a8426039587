package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moviesync/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// クライアント（RESTゲートウェイ）はcodeでエラー種別を、messageの "missing scope" で
// スコープ不足を判定する。statusはHTTPステータスと同じ値。
type ErrorResponseBody struct {
	Status   int    `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
	Action   string `json:"action,omitempty"`
}

// NewErrorResponseBody はAPIErrorからレスポンスボディを組み立てる。
func NewErrorResponseBody(statusCode int, apiErr *model.APIError) ErrorResponseBody {
	return ErrorResponseBody{
		Status:   statusCode,
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(NewErrorResponseBody(statusCode, apiErr)); err != nil {
		slog.Warn("failed to write error response",
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	}
}

// WriteMissingScope はゲストがスコープを必要とする操作を行った場合の401を書き込む。
func WriteMissingScope(w http.ResponseWriter, scope string) {
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingScopeError(scope))
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "Server Error",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
