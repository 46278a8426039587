package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moviesync/internal/metrics"
	"github.com/hitoshi/moviesync/internal/middleware"
	"github.com/hitoshi/moviesync/internal/model"
)

// maxRequestBodySize はリクエストボディの読み取り上限。
const maxRequestBodySize = 1 << 20

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUserUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidQuery, model.ErrCodePasswordTooWeak:
		return http.StatusBadRequest
	case model.ErrCodeUserAlreadyExists, model.ErrCodeDocumentAlreadyExists:
		return http.StatusConflict
	case model.ErrCodeUserNotFound, model.ErrCodeCollectionNotFound, model.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.ErrCodeInvalidOrigin:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// resultOf はメトリクス用にエラーを結果ラベルへ変換する。
// 未認証による拒否はfailureと区別してdeniedとする。
func resultOf(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUserUnauthorized {
		return metrics.ResultDenied
	}
	return metrics.ResultFailure
}

// decodeJSON はリクエストボディをJSONとしてvにデコードする。
// 不正なボディは general_argument_invalid として返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewInvalidRequestError("request body is empty")
		}
		return model.NewInvalidRequestError(fmt.Sprintf("malformed JSON: %v", err))
	}
	return nil
}

// writeJSON はステータスコードとともにvをJSONで書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
